// Package openai provides LLM, STT (Whisper) and TTS backed by the
// OpenAI API.
package openai

import (
	"fmt"

	"github.com/voicedeck/voicedeck/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindLLM, "openai", newLLM)
	plugin.Register(plugin.KindSTT, "openai", newSTT)
	plugin.Register(plugin.KindTTS, "openai", newTTS)
}

func apiKey(cfg plugin.Config) (string, error) {
	key := cfg.String("api_key", "")
	if key == "" {
		return "", fmt.Errorf("openai: api_key is required")
	}
	return key, nil
}
