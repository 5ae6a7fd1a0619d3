// Package fake provides a silence-generating TTS for tests.
package fake

import (
	"context"

	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// TTS produces FramesPerChar frames of silence per input character so
// tests can reason about playback duration and interruption.
type TTS struct {
	SampleRate    int
	FramesPerChar int
}

// New returns a fake TTS emitting 16 kHz mono silence.
func New() *TTS {
	return &TTS{SampleRate: 16000, FramesPerChar: 1}
}

func (f *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan *rtc.AudioFrame, error) {
	out := make(chan *rtc.AudioFrame, 8)
	total := len(req.Text) * f.FramesPerChar
	frameLen := (f.SampleRate / 100) * 2

	go func() {
		defer close(out)
		for i := 0; i < total; i++ {
			frame, err := rtc.NewAudioFrame(make([]byte, frameLen), f.SampleRate, 1, 0)
			if err != nil {
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
