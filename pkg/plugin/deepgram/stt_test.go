package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// fakeDeepgram echoes one interim and one final result after receiving
// audio, then closes when the client sends CloseStream.
func fakeDeepgram(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Token ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("encoding") != "linear16" {
			t.Errorf("encoding = %q, want linear16", r.URL.Query().Get("encoding"))
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		result := func(text string, final bool) []byte {
			msg := transcriptMessage{Type: "Results", IsFinal: final}
			msg.Channel.Alternatives = []struct {
				Transcript string `json:"transcript"`
			}{{Transcript: text}}
			b, _ := json.Marshal(msg)
			return b
		}

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, result("hello", false))
				_ = conn.WriteMessage(websocket.TextMessage, result("hello world", true))
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				return
			}
		}
	}))
}

func TestStreamTranscription(t *testing.T) {
	srv := fakeDeepgram(t)
	defer srv.Close()

	built, err := plugin.Build(plugin.KindSTT, "deepgram", plugin.Config{
		"api_key":  "test-key",
		"base_url": "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	provider := built.(stt.STT)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := provider.NewStream(ctx, stt.StreamConfig{SampleRate: 16000, NumChannels: 1})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}

	frame, err := rtc.NewAudioFrame(make([]byte, 320), 16000, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Push(frame); err != nil {
		t.Fatalf("push: %v", err)
	}

	var events []stt.SpeechEvent
	deadline := time.After(3 * time.Second)
	for len(events) < 2 {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				t.Fatalf("stream closed early, events: %+v", events)
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out, events: %+v", events)
		}
	}

	if events[0].Type != stt.SpeechEventInterim || events[0].Text != "hello" {
		t.Errorf("first event = %+v, want interim 'hello'", events[0])
	}
	if events[1].Type != stt.SpeechEventFinal || events[1].Text != "hello world" {
		t.Errorf("second event = %+v, want final 'hello world'", events[1])
	}

	if err := stream.CloseSend(); err != nil {
		t.Errorf("close send: %v", err)
	}
	if err := stream.Push(frame); err == nil {
		t.Error("push after close should fail")
	}
}

func TestBuildRequiresAPIKey(t *testing.T) {
	if _, err := plugin.Build(plugin.KindSTT, "deepgram", plugin.Config{}); err == nil {
		t.Fatal("expected error without api_key")
	}
}
