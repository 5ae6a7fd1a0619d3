// Package elevenlabs provides streaming text-to-speech over the
// ElevenLabs websocket API.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

const (
	defaultBaseURL = "wss://api.elevenlabs.io"
	// pcm_16000 output keeps frames directly usable by the pipeline.
	outputFormat = "pcm_16000"
	sampleRate   = 16000
)

func init() {
	plugin.Register(plugin.KindTTS, "elevenlabs", func(cfg plugin.Config) (any, error) {
		key := cfg.String("api_key", "")
		if key == "" {
			return nil, fmt.Errorf("elevenlabs: api_key is required")
		}
		return &TTS{
			apiKey:  key,
			baseURL: cfg.String("base_url", defaultBaseURL),
			model:   cfg.String("model", "eleven_turbo_v2_5"),
			voice:   cfg.String("voice", "rachel"),
		}, nil
	})
}

// TTS synthesizes speech through the stream-input websocket endpoint.
type TTS struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
}

type inputMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type outputMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
}

func (t *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan *rtc.AudioFrame, error) {
	voice := t.voice
	if req.Voice != "" {
		voice = req.Voice
	}

	q := url.Values{}
	q.Set("model_id", t.model)
	q.Set("output_format", outputFormat)
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s",
		t.baseURL, url.PathEscape(voice), q.Encode())

	header := http.Header{}
	header.Set("xi-api-key", t.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, ai.Recoverable(err, fmt.Sprintf("elevenlabs: dial: %v", err))
	}

	if err := conn.WriteJSON(inputMessage{Text: req.Text, TryTriggerGeneration: true}); err != nil {
		conn.Close()
		return nil, ai.Recoverable(err, fmt.Sprintf("elevenlabs: send text: %v", err))
	}
	// Empty text closes the input side and flushes generation.
	if err := conn.WriteJSON(inputMessage{Text: ""}); err != nil {
		conn.Close()
		return nil, ai.Recoverable(err, fmt.Sprintf("elevenlabs: close input: %v", err))
	}

	out := make(chan *rtc.AudioFrame, 16)
	go func() {
		defer close(out)
		defer conn.Close()

		fb := rtc.NewFrameBuffer(sampleRate, 1)
		for {
			if ctx.Err() != nil {
				return
			}
			var msg outputMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Error != "" {
				return
			}
			if msg.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err != nil {
					continue
				}
				for _, frame := range fb.Write(pcm) {
					select {
					case out <- frame:
					case <-ctx.Done():
						return
					}
				}
			}
			if msg.IsFinal {
				if tail := fb.Flush(); tail != nil {
					select {
					case out <- tail:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()
	return out, nil
}
