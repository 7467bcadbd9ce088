package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the crawl worker pool",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	logger := rt.logger

	port := rt.cfg.Server.Port
	if raw := os.Getenv("PORT"); raw != "" {
		if p, convErr := strconv.Atoi(raw); convErr == nil && p > 0 {
			port = p
		}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           rt.app.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		logger.Info("dispatcher started", zap.Int("workers", rt.cfg.Crawler.Concurrency))
		rt.app.Dispatcher().Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		logger.Error("http server error", zap.Error(err))
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown error", zap.Error(shutdownErr))
	}
	stop()
	<-workersDone
	logger.Info("shutdown complete")
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
