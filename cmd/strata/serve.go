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

	"github.com/spf13/cobra"

	"github.com/hyperengineering/strata/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve the Strata tool set over HTTP.

Endpoints:
  GET  /healthz            Health check
  GET  /v1/tools           List available tools
  POST /v1/tools/{name}    Invoke a tool; body is the tool's argument object
  GET  /v1/stats           Memory counts per tier

Authentication is enabled when an API key is configured (api.key in the
config file or STRATA_API_KEY).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: :8002)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cc, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cc.APIAddr = serveAddr
	}

	engine, err := buildEngine(cc)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	logger := cc.Engine.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	router := api.NewRouter(engine, cc.APIKey, logger)
	srv := &http.Server{
		Addr:              cc.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cc.APIAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
