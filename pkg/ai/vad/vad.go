// Package vad defines the voice-activity-detection capability interface
// and a default energy-threshold implementation.
package vad

import (
	"context"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType classifies a voice activity event.
type EventType int

const (
	EventSpeechStart EventType = iota
	EventSpeechEnd
	EventError
)

// Event is one detected activity change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Err       error
}

// VAD turns an audio frame stream into speech start/end events.
type VAD interface {
	// Detect consumes frames and emits events. The returned channel
	// closes when frames closes or ctx is cancelled.
	Detect(ctx context.Context, frames <-chan *rtc.AudioFrame) (<-chan Event, error)
}
