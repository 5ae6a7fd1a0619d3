package agent

import "sync/atomic"

// AudioGate decides whether microphone frames are dropped while the
// agent is speaking. With interruptions disabled the mic is logically
// muted during playback so the agent cannot hear itself or be barged
// in on; with interruptions enabled frames always pass so the VAD can
// detect barge-in.
type AudioGate struct {
	speaking           atomic.Bool
	allowInterruptions bool
}

func NewAudioGate(allowInterruptions bool) *AudioGate {
	return &AudioGate{allowInterruptions: allowInterruptions}
}

// SetSpeaking marks whether TTS playback is in progress.
func (g *AudioGate) SetSpeaking(speaking bool) {
	g.speaking.Store(speaking)
}

// ShouldDiscard reports whether the current mic frame must be dropped.
func (g *AudioGate) ShouldDiscard() bool {
	return g.speaking.Load() && !g.allowInterruptions
}
