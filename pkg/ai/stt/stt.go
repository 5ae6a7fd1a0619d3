// Package stt defines the streaming speech-to-text capability interface.
// Providers convert pushed audio frames into interim and final transcript
// events.
package stt

import (
	"context"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// StreamConfig configures one STT streaming session.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Language    string
}

// SpeechEventType classifies a recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim is a partial transcript that may still change.
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal is a committed transcript.
	SpeechEventFinal
	// SpeechEventError carries a provider failure.
	SpeechEventError
)

// SpeechEvent is one recognition result or error.
type SpeechEvent struct {
	Type      SpeechEventType
	Text      string
	Language  string
	Timestamp int64 // ms since epoch
	Err       error // set only for SpeechEventError
}

// STT creates streaming recognition sessions.
type STT interface {
	// NewStream opens a streaming session. The stream is closed by
	// CloseSend or context cancellation.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one active recognition session.
type Stream interface {
	// Push sends an audio frame for recognition.
	Push(frame *rtc.AudioFrame) error

	// Events returns recognition events. The channel closes after
	// CloseSend has been called and all pending results are delivered.
	Events() <-chan SpeechEvent

	// CloseSend flushes pending audio and ends the session.
	CloseSend() error
}
