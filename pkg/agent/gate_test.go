package agent

import "testing"

func TestAudioGate(t *testing.T) {
	tests := []struct {
		name               string
		allowInterruptions bool
		speaking           bool
		wantDiscard        bool
	}{
		{"idle with interruptions", true, false, false},
		{"speaking with interruptions", true, true, false},
		{"idle without interruptions", false, false, false},
		{"speaking without interruptions", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewAudioGate(tt.allowInterruptions)
			g.SetSpeaking(tt.speaking)
			if got := g.ShouldDiscard(); got != tt.wantDiscard {
				t.Errorf("ShouldDiscard() = %v, want %v", got, tt.wantDiscard)
			}
		})
	}
}
