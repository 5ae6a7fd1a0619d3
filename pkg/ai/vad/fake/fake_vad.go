// Package fake provides a scriptable VAD for tests.
package fake

import (
	"context"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

// VAD replays a script: after every FramesPerEvent consumed frames it
// emits the next scripted event.
type VAD struct {
	Script         []vad.EventType
	FramesPerEvent int
}

// New returns a fake VAD replaying script.
func New(script ...vad.EventType) *VAD {
	return &VAD{Script: script, FramesPerEvent: 10}
}

func (f *VAD) Detect(ctx context.Context, frames <-chan *rtc.AudioFrame) (<-chan vad.Event, error) {
	events := make(chan vad.Event, len(f.Script)+1)

	go func() {
		defer close(events)
		consumed := 0
		next := 0
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-frames:
				if !ok {
					return
				}
				consumed++
				if next < len(f.Script) && consumed%f.FramesPerEvent == 0 {
					ev := vad.Event{Type: f.Script[next], Timestamp: time.Now()}
					next++
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return events, nil
}
