package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
)

// Exit codes to provide meaningful status to the operating system or
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main acts as a thin wrapper; run owns initialization, lifecycle,
	// and error reporting so defers execute before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Backing store (PostgreSQL)
	db, err := storage.Connect(ctx, config.DatabaseURL, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("store connection failed: %w", err)
	}
	defer func() {
		logger.Info("Closing store...")
		_ = db.Close()
	}()
	store := storage.NewStore(db, logger)

	// 3. Room registry, supervision, fan-out
	registry := runtime.NewRegistry()
	envelopes := make(chan workers.Envelope, config.EventBufferSize)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewFanoutWorker(logger, registry, envelopes, config.SinkTimeout))

	// 4. Identity resolution and command handlers
	resolver := auth.NewResolver(auth.NewVerifier(config.ServiceKey), store, logger)
	chatService := services.NewChatService(store, registry, envelopes, logger)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting supervisor...")
		sup.Run(ctx)
	}()

	// 6. HTTP server with the WebSocket surface
	server := ws.NewServer(logger, resolver, chatService, registry, store,
		config.AllowedOrigin, config.SinkBufferSize)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", config.Port),
		Handler: server.Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Delayed graceful shutdown: keep answering health probes for the
	// grace window before closing the listener.
	logger.Info("Waiting grace window before shutdown", "grace", config.ShutdownGrace)
	time.Sleep(config.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Relay stopped cleanly")

	return exitOK, nil
}
