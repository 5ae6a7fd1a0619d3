// Package tts defines the speech-synthesis capability interface.
package tts

import (
	"context"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// SynthesizeRequest carries text and voice selection for synthesis.
type SynthesizeRequest struct {
	Text  string
	Voice string
}

// TTS converts text into an audio frame stream.
type TTS interface {
	// Synthesize speaks the request. The returned channel delivers frames
	// as they are produced and closes when synthesis completes or ctx is
	// cancelled, so playback can be interrupted without draining.
	Synthesize(ctx context.Context, req SynthesizeRequest) (<-chan *rtc.AudioFrame, error)
}
