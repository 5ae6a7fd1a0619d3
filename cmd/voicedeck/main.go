package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/httpapi"
	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/internal/provision"
	"github.com/voicedeck/voicedeck/internal/store"
	"github.com/voicedeck/voicedeck/pkg/version"
)

func main() {
	logger := setupLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("starting api server",
		slog.String("service", "voicedeck"),
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
		slog.String("addr", cfg.BindAddr))

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	rooms := lksdk.NewRoomServiceClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)

	provisioner := provision.New(provision.Config{
		ServerURL:         cfg.LiveKitWSURL,
		APIKey:            cfg.LiveKitAPIKey,
		APISecret:         cfg.LiveKitAPISecret,
		TokenTTL:          cfg.TokenTTL,
		DispatchAgentName: cfg.DispatchAgentName,
	}, st, rooms, metrics, logger)

	if len(cfg.StaticAPITokens) == 0 {
		logger.Warn("no API tokens configured, all requests will be rejected")
	}
	verifier := httpapi.NewStaticVerifier(cfg.StaticAPITokens)

	api := httpapi.New(cfg, st, provisioner, verifier, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch os.Getenv("VOICEDECK_LOG_LEVEL") {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if os.Getenv("VOICEDECK_LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
