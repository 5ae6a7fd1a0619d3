package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOICEDECK_BIND_ADDR", "")
	t.Setenv("VOICEDECK_TOKEN_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", cfg.TokenTTL)
	}
	if cfg.DispatchAgentName == "" {
		t.Error("DispatchAgentName should have a default")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("VOICEDECK_TOKEN_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}

	t.Setenv("VOICEDECK_TOKEN_TTL", "-5m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestTokenPairs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "tok1:alice", want: map[string]string{"tok1": "alice"}},
		{
			name: "multiple with spaces",
			raw:  "tok1:alice, tok2:bob",
			want: map[string]string{"tok1": "alice", "tok2": "bob"},
		},
		{name: "missing user", raw: "tok1", wantErr: true},
		{name: "empty user", raw: "tok1:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VOICEDECK_API_TOKENS", tt.raw)
			got, err := tokenPairsFromEnv("VOICEDECK_API_TOKENS")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Config{
		LiveKitURL:       "wss://example.livekit.cloud",
		LiveKitAPIKey:    "key",
		LiveKitAPISecret: "secret",
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}

	cfg.DatabaseURL = "postgres://localhost/voicedeck"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.LiveKitAPISecret = ""
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected error without API secret")
	}
}
