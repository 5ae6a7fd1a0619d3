package vad

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/voicedeck/voicedeck/pkg/rtc"
)

func frame(t *testing.T, amplitude int16) *rtc.AudioFrame {
	t.Helper()
	data := make([]byte, 320)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(amplitude))
	}
	f, err := rtc.NewAudioFrame(data, 16000, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestEnergyVADDetectsSpeechBoundaries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := NewEnergyVAD()
	frames := make(chan *rtc.AudioFrame)
	events, err := v.Detect(ctx, frames)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		defer close(frames)
		// 200ms of speech then 600ms of silence.
		for i := 0; i < 20; i++ {
			frames <- frame(t, 20000)
		}
		for i := 0; i < 60; i++ {
			frames <- frame(t, 0)
		}
	}()

	var got []EventType
	for ev := range events {
		got = append(got, ev.Type)
	}

	if len(got) != 2 {
		t.Fatalf("got %d events %v, want [SpeechStart SpeechEnd]", len(got), got)
	}
	if got[0] != EventSpeechStart || got[1] != EventSpeechEnd {
		t.Errorf("events = %v, want [SpeechStart SpeechEnd]", got)
	}
}

func TestEnergyVADEmitsEndOnStreamClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := NewEnergyVAD()
	frames := make(chan *rtc.AudioFrame)
	events, err := v.Detect(ctx, frames)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		defer close(frames)
		for i := 0; i < 20; i++ {
			frames <- frame(t, 20000)
		}
	}()

	var got []EventType
	for ev := range events {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[1] != EventSpeechEnd {
		t.Errorf("events = %v, want trailing SpeechEnd on close", got)
	}
}

func TestEnergyVADIgnoresShortBursts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := NewEnergyVAD()
	frames := make(chan *rtc.AudioFrame)
	events, err := v.Detect(ctx, frames)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		defer close(frames)
		// A single loud frame is below MinSpeech and must not trigger.
		frames <- frame(t, 20000)
		for i := 0; i < 10; i++ {
			frames <- frame(t, 0)
		}
	}()

	for ev := range events {
		t.Errorf("unexpected event %v", ev.Type)
	}
}
