package agent

import (
	"testing"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai/llm"
)

func TestUsageCollector(t *testing.T) {
	c := NewUsageCollector()

	c.RecordTokens(llm.Usage{PromptTokens: 100, CompletionTokens: 20})
	c.RecordTokens(llm.Usage{PromptTokens: 150, CompletionTokens: 30})
	c.RecordTurnLatency(800 * time.Millisecond)
	c.RecordTurnLatency(1200 * time.Millisecond)

	got := c.Summary()
	if got.Turns != 2 {
		t.Errorf("Turns = %d, want 2", got.Turns)
	}
	if got.PromptTokens != 250 || got.CompletionTokens != 50 {
		t.Errorf("tokens = %d/%d, want 250/50", got.PromptTokens, got.CompletionTokens)
	}
	if got.TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", got.TotalTokens)
	}
	if got.AvgLatency != time.Second {
		t.Errorf("AvgLatency = %v, want 1s", got.AvgLatency)
	}
	if got.Duration <= 0 {
		t.Error("Duration should be positive")
	}
}

func TestUsageCollectorEmpty(t *testing.T) {
	got := NewUsageCollector().Summary()
	if got.Turns != 0 || got.AvgLatency != 0 {
		t.Errorf("empty summary should be zeroed: %+v", got)
	}
}
