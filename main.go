package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"artrise/api"
)

func main() {
	args, err := ParseArgs()
	if err != nil {
		slog.Error("Fail to parse arguments", slog.Any("error", err))
		os.Exit(1)
	}
	if err := args.Validate(); err != nil {
		slog.Error("Invalid arguments", slog.Any("error", err))
		os.Exit(1)
	}
	logger := args.Logger()
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, args.ServerConfig, logger)
	if err != nil {
		logger.Error("Fail to create server", slog.Any("error", err))
		os.Exit(1)
	}
	defer server.Close()
	if err := server.Start(); err != nil {
		logger.Error("Fail to start server", slog.Any("error", err))
		return
	}

	httpServer := &http.Server{
		Addr:    args.ServerURL,
		Handler: server.Router(),
	}
	// SSE 連線不會自行結束，關閉時先中斷它們
	httpServer.RegisterOnShutdown(server.StopStreaming)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", args.ServerURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), args.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Fail to shutdown HTTP server", slog.Any("error", err))
	}
}
