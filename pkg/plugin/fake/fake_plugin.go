// Package fake registers fake providers for every capability kind.
// Importing it lets tests and local development resolve a complete
// pipeline without network credentials.
package fake

import (
	llmfake "github.com/voicedeck/voicedeck/pkg/ai/llm/fake"
	sttfake "github.com/voicedeck/voicedeck/pkg/ai/stt/fake"
	ttsfake "github.com/voicedeck/voicedeck/pkg/ai/tts/fake"
	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	vadfake "github.com/voicedeck/voicedeck/pkg/ai/vad/fake"
	"github.com/voicedeck/voicedeck/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindSTT, "fake", func(cfg plugin.Config) (any, error) {
		return sttfake.New(cfg.String("transcript", "this is a test transcript")), nil
	})
	plugin.Register(plugin.KindLLM, "fake", func(cfg plugin.Config) (any, error) {
		return llmfake.New(cfg.String("response", "Hello! How can I help?")), nil
	})
	plugin.Register(plugin.KindTTS, "fake", func(cfg plugin.Config) (any, error) {
		return ttsfake.New(), nil
	})
	plugin.Register(plugin.KindVAD, "fake", func(cfg plugin.Config) (any, error) {
		return vadfake.New(vad.EventSpeechStart, vad.EventSpeechEnd), nil
	})
}
