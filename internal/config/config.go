package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the API server and the agent
// worker. It is loaded once at process start and passed explicitly; nothing
// below this package reads environment variables.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// WorkerMetricsAddr serves the worker's /metrics endpoint when set.
	WorkerMetricsAddr string

	DatabaseURL string

	// LiveKit room platform.
	LiveKitURL       string
	LiveKitWSURL     string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	TokenTTL         time.Duration

	// Name the room platform uses to dispatch the agent worker.
	DispatchAgentName string

	// Provider credentials, handed to plugin factories.
	OpenAIAPIKey     string
	DeepgramAPIKey   string
	ElevenLabsAPIKey string

	// Static bearer tokens for development, "token:userID" pairs.
	// Production deployments verify tokens against the identity provider.
	StaticAPITokens map[string]string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("VOICEDECK_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("VOICEDECK_METRICS_NAMESPACE", "voicedeck"),
		WorkerMetricsAddr: strings.TrimSpace(os.Getenv("VOICEDECK_WORKER_METRICS_ADDR")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LiveKitURL:        strings.TrimSpace(os.Getenv("LIVEKIT_URL")),
		LiveKitWSURL:      strings.TrimSpace(os.Getenv("LIVEKIT_WS_URL")),
		LiveKitAPIKey:     strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY")),
		LiveKitAPISecret:  strings.TrimSpace(os.Getenv("LIVEKIT_API_SECRET")),
		DispatchAgentName: envOrDefault("VOICEDECK_DISPATCH_AGENT", "voicedeck-agent"),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		DeepgramAPIKey:    strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		ElevenLabsAPIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ShutdownTimeout:   15 * time.Second,
		TokenTTL:          time.Hour,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("VOICEDECK_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("VOICEDECK_TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	if cfg.LiveKitWSURL == "" {
		cfg.LiveKitWSURL = cfg.LiveKitURL
	}

	cfg.StaticAPITokens, err = tokenPairsFromEnv("VOICEDECK_API_TOKENS")
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateServer checks the settings the API server cannot run without.
func (c Config) ValidateServer() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return c.validateLiveKit()
}

// ValidateWorker checks the settings the agent worker cannot run without.
func (c Config) ValidateWorker() error {
	return c.validateLiveKit()
}

func (c Config) validateLiveKit() error {
	if c.LiveKitURL == "" {
		return fmt.Errorf("LIVEKIT_URL is required")
	}
	if c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

// tokenPairsFromEnv parses "tok1:user1,tok2:user2" into a lookup map.
func tokenPairsFromEnv(key string) (map[string]string, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, user, ok := strings.Cut(pair, ":")
		if !ok || tok == "" || user == "" {
			return nil, fmt.Errorf("invalid %s entry %q: want token:user", key, pair)
		}
		out[tok] = user
	}
	return out, nil
}
