package agent

import (
	"sync"
	"time"

	"github.com/voicedeck/voicedeck/pkg/ai/llm"
)

// UsageCollector accumulates per-turn token usage and response latency
// for the lifetime of one session.
type UsageCollector struct {
	mu sync.Mutex

	start            time.Time
	turns            int
	promptTokens     int
	completionTokens int
	latencies        []time.Duration
}

// UsageSummary is the final accounting for a session.
type UsageSummary struct {
	Turns            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	AvgLatency       time.Duration
	Duration         time.Duration
}

func NewUsageCollector() *UsageCollector {
	return &UsageCollector{start: time.Now()}
}

// RecordTokens adds one completion's token usage.
func (c *UsageCollector) RecordTokens(u llm.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns++
	c.promptTokens += u.PromptTokens
	c.completionTokens += u.CompletionTokens
}

// RecordTurnLatency records end-of-user-speech to first assistant
// audio for one turn.
func (c *UsageCollector) RecordTurnLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, d)
}

// Summary snapshots the totals so far.
func (c *UsageCollector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var avg time.Duration
	if len(c.latencies) > 0 {
		var sum time.Duration
		for _, d := range c.latencies {
			sum += d
		}
		avg = sum / time.Duration(len(c.latencies))
	}

	return UsageSummary{
		Turns:            c.turns,
		PromptTokens:     c.promptTokens,
		CompletionTokens: c.completionTokens,
		TotalTokens:      c.promptTokens + c.completionTokens,
		AvgLatency:       avg,
		Duration:         time.Since(c.start),
	}
}
