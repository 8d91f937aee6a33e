package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/swl-control/swlc/internal/auth"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server

	sessionConn    SessionPort
	dispatcher     DispatcherPort
	spots          SpotPort
	settings       SettingsPort
	telemetryHub   TelemetryPort
	authMiddleware *auth.Middleware

	startTime    time.Time
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// NewServer creates an API server. authMiddleware may be nil, in which
// case every route is open; that configuration is for tests and
// loopback-only deployments.
func NewServer(sessionConn SessionPort, dispatcher DispatcherPort, spots SpotPort, settings SettingsPort, telemetryHub TelemetryPort, authMiddleware *auth.Middleware) *Server {
	return &Server{
		sessionConn:    sessionConn,
		dispatcher:     dispatcher,
		spots:          spots,
		settings:       settings,
		telemetryHub:   telemetryHub,
		authMiddleware: authMiddleware,
		startTime:      time.Now(),
		readTimeout:    15 * time.Second,
		writeTimeout:   0, // SSE responses stream indefinitely
		idleTimeout:    60 * time.Second,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}
