// Package rtc holds the audio primitives shared by the voice pipeline:
// fixed-size PCM frames and helpers for moving between frame streams and
// raw byte streams.
package rtc

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// AudioFrame represents exactly 10 ms of 16-bit little-endian PCM.
// Len(Data) == SamplesPerChannel * NumChannels * 2.
type AudioFrame struct {
	Data              []byte
	SampleRate        int // 48000 or 16000
	SamplesPerChannel int // SampleRate / 100
	NumChannels       int // 1 or 2
	Timestamp         time.Duration
}

// NewAudioFrame validates that data holds 10 ms of audio at the given
// rate and channel count.
func NewAudioFrame(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*AudioFrame, error) {
	samplesPerChannel := sampleRate / 100
	expectedLen := samplesPerChannel * numChannels * 2
	if len(data) != expectedLen {
		return nil, fmt.Errorf("audio frame length mismatch: got %d bytes, want %d for %dHz %dch 10ms",
			len(data), expectedLen, sampleRate, numChannels)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// Clone returns a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &AudioFrame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Timestamp:         f.Timestamp,
	}
}

// Duration returns the duration of the frame, always 10 ms.
func (f *AudioFrame) Duration() time.Duration {
	return 10 * time.Millisecond
}

// RMS returns the root-mean-square amplitude of the frame normalized to
// [0, 1]. Used by the energy VAD.
func (f *AudioFrame) RMS() float64 {
	if len(f.Data) < 2 {
		return 0
	}
	var sum float64
	n := len(f.Data) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// FrameBuffer accumulates raw PCM bytes and emits whole 10 ms frames.
// Partial trailing data is held until the next write or Flush.
type FrameBuffer struct {
	buf         []byte
	sampleRate  int
	numChannels int
}

// NewFrameBuffer creates a buffer emitting frames at the given format.
func NewFrameBuffer(sampleRate, numChannels int) *FrameBuffer {
	return &FrameBuffer{
		sampleRate:  sampleRate,
		numChannels: numChannels,
	}
}

// Write appends raw PCM and returns any complete frames.
func (b *FrameBuffer) Write(data []byte) []*AudioFrame {
	b.buf = append(b.buf, data...)
	frameSize := (b.sampleRate / 100) * b.numChannels * 2

	var frames []*AudioFrame
	for len(b.buf) >= frameSize {
		chunk := make([]byte, frameSize)
		copy(chunk, b.buf[:frameSize])
		b.buf = b.buf[frameSize:]

		frame, err := NewAudioFrame(chunk, b.sampleRate, b.numChannels, 0)
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

// Flush zero-pads and returns any partial trailing frame, or nil.
func (b *FrameBuffer) Flush() *AudioFrame {
	if len(b.buf) == 0 {
		return nil
	}
	frameSize := (b.sampleRate / 100) * b.numChannels * 2
	chunk := make([]byte, frameSize)
	copy(chunk, b.buf)
	b.buf = b.buf[:0]

	frame, _ := NewAudioFrame(chunk, b.sampleRate, b.numChannels, 0)
	return frame
}
