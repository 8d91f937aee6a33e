// Package main implements the shortwave listening control daemon entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/swl-control/swlc/internal/api"
	"github.com/swl-control/swlc/internal/audit"
	"github.com/swl-control/swlc/internal/auth"
	"github.com/swl-control/swlc/internal/command"
	"github.com/swl-control/swlc/internal/config"
	"github.com/swl-control/swlc/internal/session"
	"github.com/swl-control/swlc/internal/spot"
	"github.com/swl-control/swlc/internal/telemetry"
)

const Version = "1.0.0"

func main() {
	addr := pflag.String("addr", defaultAddr(), "HTTP listen address")
	configPath := pflag.String("config", "local_config.json", "path to the settings document")
	logDir := pflag.String("log-dir", "logs", "directory for the audit log")
	authSecret := pflag.String("auth-secret", os.Getenv("SWLC_AUTH_SECRET"), "HS256 secret; empty disables auth (loopback only)")
	pflag.Parse()

	log.Printf("Starting SWL control daemon v%s", Version)

	timing := config.LoadTiming()
	store := config.NewStore(*configPath)
	if _, err := store.Load(); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	log.Println("Settings loaded")

	hub := telemetry.NewHub(timing)

	auditLogger, err := audit.NewLogger(*logDir)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	log.Printf("Audit log: %s", auditLogger.FilePath())

	conn := session.NewConn(
		session.WithConnectTimeout(timing.ConnectTimeout),
		session.WithQueueSize(timing.WriteQueueSize),
	)

	dispatcher := command.NewDispatcher(conn, hub)
	dispatcher.SetAuditLogger(auditLogger)

	spotManager := spot.NewManager(dispatcher, hub, spot.WithSweepInterval(timing.SweepInterval))
	conn.RegisterStateListener(spotManager)
	conn.RegisterStateListener(session.StateListenerFunc(func(state session.State) {
		hub.Publish(telemetry.Event{
			Type: "sessionState",
			Data: map[string]interface{}{"state": state.String()},
		})
	}))
	conn.SetDropHandler(func(frame string, err error) {
		auditLogger.LogAction(context.Background(), "send", frame, "QUEUE_DROPPED", 0)
	})
	spotManager.Start()

	var middleware *auth.Middleware
	if *authSecret != "" {
		verifier, err := auth.NewVerifier(auth.VerifierConfig{Algorithm: "HS256", SecretKey: *authSecret})
		if err != nil {
			log.Fatalf("Failed to initialize token verifier: %v", err)
		}
		middleware = auth.NewMiddleware(verifier)
		log.Println("Authentication enabled (HS256)")
	} else {
		log.Println("Authentication disabled; bind to loopback only")
	}

	server := api.NewServer(conn, dispatcher, spotManager, store, hub, middleware)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(*addr); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	log.Printf("Listening on %s", *addr)
	log.Printf("Health endpoint: http://localhost%s/api/v1/health", *addr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Printf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	spotManager.Stop()
	conn.Disconnect()
	hub.Stop()
	if err := auditLogger.Close(); err != nil {
		log.Printf("Error closing audit logger: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}
	log.Println("Shutdown complete")
}

func defaultAddr() string {
	if addr := os.Getenv("SWLC_ADDR"); addr != "" {
		return addr
	}
	return ":8090"
}
