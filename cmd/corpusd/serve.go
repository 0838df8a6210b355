package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	corpus "github.com/avollmer/corpus"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion and retrieval HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	return cmd
}

func runServe(addr string) error {
	cfg := corpus.ConfigFromEnv()
	service, err := corpus.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer service.Close()

	apiKey := os.Getenv("CORPUS_API_KEY")
	corsOrigins := os.Getenv("CORPUS_CORS_ORIGINS")

	h := newHandler(service)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /domains", h.handleDomains)

	mux.HandleFunc("POST /ingestion/run", h.handleRun)
	mux.HandleFunc("POST /ingestion/run/batch", h.handleRunBatch)
	mux.HandleFunc("POST /ingestion/raw-capture", h.handleRawCapture)
	mux.HandleFunc("POST /ingestion/raw-capture/batch", h.handleRawCaptureBatch)
	mux.HandleFunc("POST /ingestion/ingest/batch", h.handleIngestBatch)
	mux.HandleFunc("POST /ingestion/file-capture", h.handleFileCapture)
	mux.HandleFunc("POST /ingestion/quarantine", h.handleQuarantine)
	mux.HandleFunc("GET /ingestion/{domain}/events", h.handleEvents)
	mux.HandleFunc("GET /ingestion/{domain}/metrics", h.handleMetrics)

	mux.HandleFunc("GET /releases/{domain}", h.handleListReleases)
	mux.HandleFunc("GET /releases/{domain}/audit", h.handleAudit)
	mux.HandleFunc("POST /releases/{domain}/promote", h.handlePromoteBody)
	mux.HandleFunc("POST /releases/{domain}/{release_id}/promote", h.handlePromote)
	mux.HandleFunc("POST /releases/{domain}/merge", h.handleMerge)

	mux.HandleFunc("POST /retrieve", h.handleRetrieve)
	mux.HandleFunc("POST /retrieval/query", h.handleRetrieve)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // batch capture+ingest can be long
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
