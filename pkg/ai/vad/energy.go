package vad

import (
	"context"
	"time"

	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// EnergyVAD is a dependency-free detector using an RMS amplitude
// threshold with hangover. It is the fallback when the Silero model is
// not compiled in, and the default for tests.
type EnergyVAD struct {
	Threshold   float64       // RMS level treated as speech
	MinSpeech   time.Duration // sustained speech before SpeechStart
	MinSilence  time.Duration // sustained silence before SpeechEnd
}

// NewEnergyVAD returns a detector with thresholds tuned for 16 kHz
// microphone input.
func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{
		Threshold:  0.02,
		MinSpeech:  100 * time.Millisecond,
		MinSilence: 500 * time.Millisecond,
	}
}

func (v *EnergyVAD) Detect(ctx context.Context, frames <-chan *rtc.AudioFrame) (<-chan Event, error) {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		var (
			speaking      bool
			activeStreak  time.Duration
			silenceStreak time.Duration
		)

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if speaking {
						emit(ctx, events, Event{Type: EventSpeechEnd, Timestamp: time.Now()})
					}
					return
				}

				active := frame.RMS() >= v.Threshold
				if active {
					activeStreak += frame.Duration()
					silenceStreak = 0
				} else {
					silenceStreak += frame.Duration()
					activeStreak = 0
				}

				if !speaking && activeStreak >= v.MinSpeech {
					speaking = true
					emit(ctx, events, Event{Type: EventSpeechStart, Timestamp: time.Now()})
				}
				if speaking && silenceStreak >= v.MinSilence {
					speaking = false
					emit(ctx, events, Event{Type: EventSpeechEnd, Timestamp: time.Now()})
				}
			}
		}
	}()

	return events, nil
}

func emit(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
