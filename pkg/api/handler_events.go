package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

// listEventsHandler handles GET /events.
func (s *Server) listEventsHandler(c echo.Context) error {
	params := services.ListParams{Limit: services.ListDefaultLimit}

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		if n > services.ListMaxLimit {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid limit: must be at most %d", services.ListMaxLimit))
		}
		params.Limit = n
	}

	if v := c.QueryParam("kind"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !models.Kind(n).Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid kind: "+v)
		}
		kind := models.Kind(n)
		params.Kind = &kind
	}

	if v := c.QueryParam("source"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !models.Source(n).Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid source: "+v)
		}
		source := models.Source(n)
		params.Source = &source
	}

	result, err := s.events.List(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	if result == nil {
		result = []*models.Event{}
	}
	return c.JSON(http.StatusOK, result)
}
