package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/krsafety/alertfeed/pkg/database"
	"github.com/krsafety/alertfeed/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

// rootHandler handles GET /. A bare liveness probe.
func (s *Server) rootHandler(c echo.Context) error {
	return c.String(http.StatusOK, "Running")
}

type pingResponse struct {
	OK        bool  `json:"ok"`
	Timestamp int64 `json:"timestamp"`
}

// pingHandler handles GET /api/health/ping. Liveness only — never touches a
// dependency, so a degraded database cannot make the orchestrator restart a
// serving instance.
func (s *Server) pingHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, &pingResponse{
		OK:        true,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// healthHandler handles GET /api/health: readiness, reporting database
// connectivity and pool statistics.
func (s *Server) healthHandler(c echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.GitCommit,
	}
	httpStatus := http.StatusOK

	if s.dbHealth != nil {
		dbStatus, err := s.dbHealth(reqCtx)
		resp.Database = dbStatus
		if err != nil {
			resp.Status = healthStatusUnhealthy
			resp.Error = err.Error()
			httpStatus = http.StatusServiceUnavailable
		}
	}

	return c.JSON(httpStatus, resp)
}
