package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/plugin"
)

func fakeServer(t *testing.T, pcmChunks [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") == "" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// First message carries the text, second closes the input.
		var in inputMessage
		if err := conn.ReadJSON(&in); err != nil {
			t.Errorf("read text: %v", err)
			return
		}
		if in.Text == "" {
			t.Error("first message had empty text")
		}
		if err := conn.ReadJSON(&in); err != nil {
			t.Errorf("read eos: %v", err)
			return
		}

		for _, chunk := range pcmChunks {
			msg := outputMessage{Audio: base64.StdEncoding.EncodeToString(chunk)}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		_ = conn.WriteJSON(outputMessage{IsFinal: true})
	}))
}

func TestSynthesizeStreamsFrames(t *testing.T) {
	// Two chunks totalling 800 bytes: two full 320-byte frames plus a
	// 160-byte tail that must be flushed on the final message.
	srv := fakeServer(t, [][]byte{make([]byte, 500), make([]byte, 300)})
	defer srv.Close()

	built, err := plugin.Build(plugin.KindTTS, "elevenlabs", plugin.Config{
		"api_key":  "test-key",
		"base_url": "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	provider := built.(tts.TTS)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames, err := provider.Synthesize(ctx, tts.SynthesizeRequest{Text: "hello there"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	count := 0
	for frame := range frames {
		if len(frame.Data) != 320 {
			t.Errorf("frame len = %d, want 320", len(frame.Data))
		}
		count++
	}
	if count != 3 {
		t.Errorf("got %d frames, want 3 (two full + flushed tail)", count)
	}
}

func TestSynthesizeDialFailure(t *testing.T) {
	built, err := plugin.Build(plugin.KindTTS, "elevenlabs", plugin.Config{
		"api_key":  "test-key",
		"base_url": "ws://127.0.0.1:1",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	provider := built.(tts.TTS)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := provider.Synthesize(ctx, tts.SynthesizeRequest{Text: "hi"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestBuildRequiresAPIKey(t *testing.T) {
	if _, err := plugin.Build(plugin.KindTTS, "elevenlabs", plugin.Config{}); err == nil {
		t.Fatal("expected error without api_key")
	}
}
