package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/th-e-o/budgibot/internal/audit"
	"github.com/th-e-o/budgibot/internal/config"
	"github.com/th-e-o/budgibot/internal/db"
	"github.com/th-e-o/budgibot/internal/engine"
	"github.com/th-e-o/budgibot/internal/history"
	"github.com/th-e-o/budgibot/internal/middleware"
	"github.com/th-e-o/budgibot/internal/repository"
	"github.com/th-e-o/budgibot/internal/session"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
	"github.com/th-e-o/budgibot/internal/transport"
	"github.com/th-e-o/budgibot/internal/workbook"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// The decision audit log is optional; without a database the service
	// keeps full validation behavior and simply skips recording.
	var sessionOpts []session.Option
	var decisionRepo repository.DecisionLogRepository
	if cfg.DatabaseEnabled {
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer conn.Close()

		if err := db.RunMigrations(ctx, conn.Pool, cfg.MigrationsPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}

		decisionRepo = repository.NewDecisionLogRepository(conn.Pool)
		sessionOpts = append(sessionOpts, session.WithRecorder(decisionRepo))
	}

	// Core wiring: live workbook, change history, applier, validation session.
	grid := spreadsheet.NewWorkbook()
	hist := history.NewStore(grid, logger)
	applier := engine.NewApplier(grid, hist, logger)

	manager := transport.NewManager(logger)
	emitter := transport.NewValidationEmitter(manager)
	controller := session.NewController(applier, hist, emitter, logger, sessionOpts...)

	wbService := workbook.NewService(grid, controller, logger)
	server := transport.NewServer(manager, controller, grid, wbService, logger)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.LoggingMiddleware(logger, h))
	}

	workbookHandler := wrap(workbook.NewHTTPHandler(wbService, server))
	http.HandleFunc("/ws", server.HandleWS)
	http.Handle("/api/workbook", workbookHandler)
	http.Handle("/api/workbook/export", workbookHandler)
	if decisionRepo != nil {
		http.Handle("/api/decisions", wrap(audit.NewHTTPHandler(decisionRepo)))
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting validation server")
		logger.Info().Msgf("websocket endpoint available at ws://localhost%s/ws", cfg.Server.Addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
