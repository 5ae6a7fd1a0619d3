// Package fake provides a canned-transcript STT for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// STT emits a fixed transcript as a final event once audio is flushed.
type STT struct {
	Transcript string
}

// New returns a fake STT that recognizes everything as transcript.
func New(transcript string) *STT {
	return &STT{Transcript: transcript}
}

func (f *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	return &stream{
		transcript: f.Transcript,
		language:   cfg.Language,
		events:     make(chan stt.SpeechEvent, 4),
	}, nil
}

type stream struct {
	transcript string
	language   string
	events     chan stt.SpeechEvent
	pushed     int
	mu         sync.Mutex
	closed     bool
}

func (s *stream) Push(frame *rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrFatal
	}
	s.pushed++
	return nil
}

func (s *stream) Events() <-chan stt.SpeechEvent {
	return s.events
}

func (s *stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pushed > 0 {
		s.events <- stt.SpeechEvent{
			Type:      stt.SpeechEventFinal,
			Text:      s.transcript,
			Language:  s.language,
			Timestamp: time.Now().UnixMilli(),
		}
	}
	close(s.events)
	return nil
}
