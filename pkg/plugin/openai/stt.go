package openai

import (
	"bytes"
	"context"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/audio/wav"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// STT transcribes buffered utterances with Whisper. Whisper is a batch
// API, so the stream accumulates frames and emits a single final event
// on CloseSend.
type STT struct {
	client *openai.Client
	model  string
}

func newSTT(cfg plugin.Config) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return &STT{
		client: openai.NewClient(key),
		model:  cfg.String("model", openai.Whisper1),
	}, nil
}

func (s *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NumChannels == 0 {
		cfg.NumChannels = 1
	}
	return &whisperStream{
		parent: s,
		ctx:    ctx,
		cfg:    cfg,
		events: make(chan stt.SpeechEvent, 2),
	}, nil
}

type whisperStream struct {
	parent *STT
	ctx    context.Context
	cfg    stt.StreamConfig
	events chan stt.SpeechEvent

	mu     sync.Mutex
	pcm    []byte
	closed bool
}

func (w *whisperStream) Push(frame *rtc.AudioFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return stt.ErrFatal
	}
	w.pcm = append(w.pcm, frame.Data...)
	return nil
}

func (w *whisperStream) Events() <-chan stt.SpeechEvent {
	return w.events
}

func (w *whisperStream) CloseSend() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	pcm := w.pcm
	w.mu.Unlock()

	go func() {
		defer close(w.events)
		if len(pcm) == 0 {
			return
		}

		resp, err := w.parent.client.CreateTranscription(w.ctx, openai.AudioRequest{
			Model:    w.parent.model,
			FilePath: "utterance.wav",
			Reader:   bytes.NewReader(wav.Encode(pcm, w.cfg.SampleRate, w.cfg.NumChannels)),
			Language: w.cfg.Language,
		})
		if err != nil {
			w.events <- stt.SpeechEvent{
				Type:      stt.SpeechEventError,
				Timestamp: time.Now().UnixMilli(),
				Err:       classify(err, "transcription"),
			}
			return
		}

		w.events <- stt.SpeechEvent{
			Type:      stt.SpeechEventFinal,
			Text:      resp.Text,
			Language:  w.cfg.Language,
			Timestamp: time.Now().UnixMilli(),
		}
	}()
	return nil
}
