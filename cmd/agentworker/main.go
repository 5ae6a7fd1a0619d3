package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/livekit/protocol/auth"
	"github.com/spf13/cobra"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/internal/worker"
	"github.com/voicedeck/voicedeck/pkg/version"

	// Imported for provider registration.
	_ "github.com/voicedeck/voicedeck/pkg/plugin/deepgram"
	_ "github.com/voicedeck/voicedeck/pkg/plugin/elevenlabs"
	_ "github.com/voicedeck/voicedeck/pkg/plugin/energy"
	_ "github.com/voicedeck/voicedeck/pkg/plugin/openai"
	_ "github.com/voicedeck/voicedeck/pkg/plugin/silero"
)

var rootCmd = &cobra.Command{
	Use:          "agentworker",
	Short:        "Voice agent worker that serves rooms dispatched by the platform",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Register with the room server and serve jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(false)

		cfg, err := loadWorkerConfig()
		if err != nil {
			return err
		}
		metrics := observability.NewMetrics(cfg.MetricsNamespace)
		serveMetrics(cfg, logger)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runWorker(ctx, cfg, metrics, logger)
	},
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Development mode with debug logging and hot reload on file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(true)

		cfg, err := loadWorkerConfig()
		if err != nil {
			return err
		}
		metrics := observability.NewMetrics(cfg.MetricsNamespace)
		serveMetrics(cfg, logger)

		return runDev(cfg, metrics, logger)
	},
}

func loadWorkerConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serveMetrics(cfg config.Config, logger *slog.Logger) {
	if cfg.WorkerMetricsAddr == "" {
		return
	}
	go func() {
		logger.Info("metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		if err := http.ListenAndServe(cfg.WorkerMetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
}

func runWorker(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) error {
	logger.Info("starting agent worker",
		slog.String("service", "agentworker"),
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
		slog.String("agent_name", cfg.DispatchAgentName),
		slog.String("url", cfg.LiveKitWSURL))

	token, err := workerToken(cfg)
	if err != nil {
		return fmt.Errorf("mint worker token: %w", err)
	}

	runner := worker.NewRunner(worker.RunnerConfig{
		URL:       cfg.LiveKitWSURL,
		APIKey:    cfg.LiveKitAPIKey,
		APISecret: cfg.LiveKitAPISecret,
		Credentials: worker.Credentials{
			OpenAI:     cfg.OpenAIAPIKey,
			Deepgram:   cfg.DeepgramAPIKey,
			ElevenLabs: cfg.ElevenLabsAPIKey,
		},
		Metrics: metrics,
	}, logger)

	w := worker.New(worker.Config{
		URL:       cfg.LiveKitWSURL,
		Token:     token,
		AgentName: cfg.DispatchAgentName,
	}, runner.Handle, logger)

	return w.Run(ctx)
}

// workerToken mints the registration credential for the dispatch
// socket. The worker re-mints on restart, so a day of validity is
// plenty.
func workerToken(cfg config.Config) (string, error) {
	at := auth.NewAccessToken(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	at.AddGrant(&auth.VideoGrant{Agent: true}).
		SetIdentity(cfg.DispatchAgentName).
		SetValidFor(24 * time.Hour)
	return at.ToJWT()
}

// runDev restarts the worker whenever a file under the working
// directory changes.
func runDev(cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set up file watching: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runWorker(ctx, cfg, metrics, logger)
	}()

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			logger.Info("file modified, restarting worker", slog.String("file", event.Name))
			cancel()
			<-workerDone

			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				workerDone <- runWorker(ctx, cfg, metrics, logger)
			}()
		case err := <-watcher.Errors:
			logger.Warn("file watcher error", slog.String("error", err.Error()))
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
			return <-workerDone
		}
	}
}

func setupLogger(debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	switch os.Getenv("VOICEDECK_LOG_LEVEL") {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if os.Getenv("VOICEDECK_LOG_FORMAT") == "console" || debug {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.AddCommand(versionCmd, startCmd, devCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
