// Package api is the HTTP surface: the event query endpoint, the SSE stream,
// and the operational endpoints (liveness, health ping, API docs).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/krsafety/alertfeed/pkg/database"
	"github.com/krsafety/alertfeed/pkg/events"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

// EventLister is the event log read path used by the query endpoint.
// Implemented by services.EventService.
type EventLister interface {
	List(ctx context.Context, params services.ListParams) ([]*models.Event, error)
}

// StreamHub is the fan-out component behind the SSE endpoint. Implemented by
// events.Hub.
type StreamHub interface {
	AddClient() *events.Client
	RemoveClient(c *events.Client)
	CatchUp(ctx context.Context, since time.Time) ([]*models.Event, error)
}

// Options are the HTTP-surface toggles from configuration.
type Options struct {
	CORSEnabled    bool
	SwaggerEnabled bool
}

// DatabaseHealthFunc reports database connectivity and pool statistics.
// Wired from database.Health over the live pool.
type DatabaseHealthFunc func(ctx context.Context) (*database.HealthStatus, error)

// Server is the HTTP API server.
type Server struct {
	echo     *echo.Echo
	events   EventLister
	hub      StreamHub
	dbHealth DatabaseHealthFunc

	heartbeatInterval time.Duration
}

// NewServer creates the API server and wires its routes.
func NewServer(eventService EventLister, hub StreamHub, opts Options) *Server {
	s := &Server{
		events:            eventService,
		hub:               hub,
		heartbeatInterval: heartbeatInterval,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if opts.CORSEnabled {
		e.Use(middleware.CORS())
	}

	e.GET("/", s.rootHandler)
	e.GET("/api/health", s.healthHandler)
	e.GET("/api/health/ping", s.pingHandler)
	e.GET("/events", s.listEventsHandler)
	e.GET("/events/stream", s.streamHandler)
	if opts.SwaggerEnabled {
		e.GET("/api/docs", s.openAPIHandler)
		e.GET("/api-docs", s.swaggerUIHandler)
	}

	s.echo = e
	return s
}

// SetDatabaseHealth installs the readiness check behind GET /api/health.
// Without one the endpoint reports healthy on liveness alone.
func (s *Server) SetDatabaseHealth(fn DatabaseHealthFunc) {
	s.dbHealth = fn
}

// Start serves on addr until Shutdown. Blocks; returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
