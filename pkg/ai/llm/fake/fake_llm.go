// Package fake provides a scripted LLM for tests.
package fake

import (
	"context"
	"sync"

	"github.com/voicedeck/voicedeck/pkg/ai/llm"
)

// LLM cycles through scripted responses and records every request.
type LLM struct {
	mu        sync.Mutex
	responses []string
	next      int
	requests  []llm.ChatRequest
}

// New returns a fake LLM replying with responses in order, wrapping
// around when exhausted.
func New(responses ...string) *LLM {
	if len(responses) == 0 {
		responses = []string{"ok"}
	}
	return &LLM{responses: responses}
}

func (f *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	text := f.responses[f.next%len(f.responses)]
	f.next++

	return llm.ChatResponse{
		Message: llm.Message{Role: llm.RoleAssistant, Content: text},
		Usage: llm.Usage{
			PromptTokens:     len(req.Messages) * 8,
			CompletionTokens: len(text) / 4,
			TotalTokens:      len(req.Messages)*8 + len(text)/4,
		},
		FinishReason: "stop",
	}, nil
}

// Requests returns a copy of all chat requests seen so far.
func (f *LLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}
