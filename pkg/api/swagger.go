package api

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.json
var openAPISpec []byte

// openAPIHandler handles GET /api/docs.
func (s *Server) openAPIHandler(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, openAPISpec)
}

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>alertfeed API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/api/docs", dom_id: "#swagger-ui" });
  </script>
</body>
</html>`

// swaggerUIHandler handles GET /api-docs.
func (s *Server) swaggerUIHandler(c echo.Context) error {
	return c.HTML(http.StatusOK, swaggerUIPage)
}
