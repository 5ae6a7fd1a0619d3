// Package deepgram provides streaming speech-to-text over the Deepgram
// realtime websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

const defaultBaseURL = "wss://api.deepgram.com"

func init() {
	plugin.Register(plugin.KindSTT, "deepgram", func(cfg plugin.Config) (any, error) {
		key := cfg.String("api_key", "")
		if key == "" {
			return nil, fmt.Errorf("deepgram: api_key is required")
		}
		return &STT{
			apiKey:  key,
			baseURL: cfg.String("base_url", defaultBaseURL),
			model:   cfg.String("model", "nova-3"),
		}, nil
	})
}

// STT opens realtime transcription sessions against Deepgram.
type STT struct {
	apiKey  string
	baseURL string
	model   string
}

func (s *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NumChannels == 0 {
		cfg.NumChannels = 1
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	q := url.Values{}
	q.Set("model", s.model)
	q.Set("language", cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.NumChannels))
	q.Set("interim_results", "true")

	header := http.Header{}
	header.Set("Authorization", "Token "+s.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.baseURL+"/v1/listen?"+q.Encode(), header)
	if err != nil {
		return nil, ai.Recoverable(err, fmt.Sprintf("deepgram: dial: %v", err))
	}

	st := &stream{
		conn:     conn,
		language: cfg.Language,
		events:   make(chan stt.SpeechEvent, 16),
	}
	go st.readLoop(ctx)
	return st, nil
}

type stream struct {
	conn     *websocket.Conn
	language string
	events   chan stt.SpeechEvent

	writeMu sync.Mutex
	closed  bool
}

// transcriptMessage is the subset of Deepgram's result payload we use.
type transcriptMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (st *stream) readLoop(ctx context.Context) {
	defer close(st.events)
	defer st.conn.Close()
	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			st.writeMu.Lock()
			closed := st.closed
			st.writeMu.Unlock()
			if !closed && ctx.Err() == nil {
				st.emit(ctx, stt.SpeechEvent{
					Type:      stt.SpeechEventError,
					Timestamp: time.Now().UnixMilli(),
					Err:       ai.Recoverable(err, fmt.Sprintf("deepgram: read: %v", err)),
				})
			}
			return
		}

		var msg transcriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "Results" && msg.Type != "" {
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}
		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}

		evType := stt.SpeechEventInterim
		if msg.IsFinal {
			evType = stt.SpeechEventFinal
		}
		st.emit(ctx, stt.SpeechEvent{
			Type:      evType,
			Text:      text,
			Language:  st.language,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (st *stream) emit(ctx context.Context, ev stt.SpeechEvent) {
	select {
	case st.events <- ev:
	case <-ctx.Done():
	}
}

func (st *stream) Push(frame *rtc.AudioFrame) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	if st.closed {
		return stt.ErrFatal
	}
	if err := st.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
		return ai.Recoverable(err, fmt.Sprintf("deepgram: push: %v", err))
	}
	return nil
}

func (st *stream) Events() <-chan stt.SpeechEvent {
	return st.events
}

func (st *stream) CloseSend() error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true

	// Ask Deepgram to flush pending results; the read loop closes the
	// socket once the server finishes and disconnects.
	return st.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}
