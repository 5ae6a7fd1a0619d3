//go:build silero

// Package silero provides voice activity detection backed by the Silero
// ONNX model. Build with -tags=silero; without the tag a stub factory is
// registered that fails with a clear message.
package silero

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	"github.com/voicedeck/voicedeck/pkg/plugin"
	"github.com/voicedeck/voicedeck/pkg/rtc"
)

func init() {
	plugin.Register(plugin.KindVAD, "silero", newSileroVAD)
}

// VAD runs the Silero model over 30 ms windows of 16 kHz mono audio.
type VAD struct {
	modelPath string
	threshold float32

	minSpeech  time.Duration
	minSilence time.Duration
}

func newSileroVAD(cfg plugin.Config) (any, error) {
	modelPath := cfg.String("model_path", defaultModelPath())
	v := &VAD{
		modelPath:  modelPath,
		threshold:  DefaultThreshold,
		minSpeech:  100 * time.Millisecond,
		minSilence: 500 * time.Millisecond,
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("silero: initialize onnxruntime: %w", err)
		}
	}
	return v, nil
}

func (v *VAD) Detect(ctx context.Context, frames <-chan *rtc.AudioFrame) (<-chan vad.Event, error) {
	session, inputTensor, stateTensor, outputTensor, err := v.newSession()
	if err != nil {
		return nil, err
	}

	events := make(chan vad.Event, 16)
	go func() {
		defer close(events)
		defer session.Destroy()
		defer inputTensor.Destroy()
		defer stateTensor.Destroy()
		defer outputTensor.Destroy()

		var (
			window        []float32
			speaking      bool
			activeStreak  time.Duration
			silenceStreak time.Duration
		)
		const windowSamples = 480 // 30 ms at 16 kHz

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if speaking {
						sendEvent(ctx, events, vad.Event{Type: vad.EventSpeechEnd, Timestamp: time.Now()})
					}
					return
				}

				window = append(window, pcmToFloat32(frame.Data)...)
				for len(window) >= windowSamples {
					prob, err := v.infer(session, inputTensor, outputTensor, window[:windowSamples])
					window = window[windowSamples:]
					if err != nil {
						sendEvent(ctx, events, vad.Event{Type: vad.EventError, Timestamp: time.Now(), Err: err})
						return
					}

					if prob >= v.threshold {
						activeStreak += 30 * time.Millisecond
						silenceStreak = 0
					} else {
						silenceStreak += 30 * time.Millisecond
						activeStreak = 0
					}
					if !speaking && activeStreak >= v.minSpeech {
						speaking = true
						sendEvent(ctx, events, vad.Event{Type: vad.EventSpeechStart, Timestamp: time.Now()})
					}
					if speaking && silenceStreak >= v.minSilence {
						speaking = false
						sendEvent(ctx, events, vad.Event{Type: vad.EventSpeechEnd, Timestamp: time.Now()})
					}
				}
			}
		}
	}()
	return events, nil
}

func (v *VAD) newSession() (*ort.DynamicAdvancedSession, *ort.Tensor[float32], *ort.Tensor[float32], *ort.Tensor[float32], error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 480), make([]float32, 480))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("silero: input tensor: %w", err)
	}
	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, 2*128))
	if err != nil {
		inputTensor.Destroy()
		return nil, nil, nil, nil, fmt.Errorf("silero: state tensor: %w", err)
	}
	outputTensor, err := ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, nil, nil, nil, fmt.Errorf("silero: output tensor: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(v.modelPath,
		[]string{"input", "state"}, []string{"output"}, nil)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		outputTensor.Destroy()
		return nil, nil, nil, nil, fmt.Errorf("silero: load model %s: %w", v.modelPath, err)
	}
	return session, inputTensor, stateTensor, outputTensor, nil
}

func (v *VAD) infer(session *ort.DynamicAdvancedSession, in, out *ort.Tensor[float32], samples []float32) (float32, error) {
	copy(in.GetData(), samples)
	if err := session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	return out.GetData()[0], nil
}

func pcmToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

func sendEvent(ctx context.Context, ch chan<- vad.Event, ev vad.Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
