package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voicedeck/voicedeck/pkg/ai"
	"github.com/voicedeck/voicedeck/pkg/ai/llm"
	"github.com/voicedeck/voicedeck/pkg/plugin"
)

// LLM performs chat completions against the OpenAI API.
type LLM struct {
	client *openai.Client
	model  string
}

func newLLM(cfg plugin.Config) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: openai.NewClient(key),
		model:  cfg.String("model", "gpt-4o-mini"),
	}, nil
}

func (l *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.ChatResponse{}, classify(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, ai.Recoverable(fmt.Errorf("empty choices"), "chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.MessageRole(choice.Message.Role),
			Content: choice.Message.Content,
		},
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}

// classify maps OpenAI API errors onto the shared retry taxonomy.
func classify(err error, op string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return ai.Recoverable(err, fmt.Sprintf("openai %s: %v", op, err))
		default:
			return ai.Fatal(err, fmt.Sprintf("openai %s: %v", op, err))
		}
	}
	// Transport-level failures are worth retrying.
	return ai.Recoverable(err, fmt.Sprintf("openai %s: %v", op, err))
}
