// Package llm defines the chat-completion capability interface.
package llm

import (
	"context"

	"github.com/voicedeck/voicedeck/pkg/ai"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// ChatRequest carries a completion request.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the result of one completion.
type ChatResponse struct {
	Message      Message
	Usage        Usage
	FinishReason string
}

// LLM performs chat completions.
type LLM interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
