package worker

import (
	"fmt"

	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/pkg/ai/llm"
	"github.com/voicedeck/voicedeck/pkg/ai/stt"
	"github.com/voicedeck/voicedeck/pkg/ai/tts"
	"github.com/voicedeck/voicedeck/pkg/ai/vad"
	"github.com/voicedeck/voicedeck/pkg/job"
	"github.com/voicedeck/voicedeck/pkg/plugin"
)

// Credentials holds provider API keys for pipeline construction.
type Credentials struct {
	OpenAI     string
	Deepgram   string
	ElevenLabs string
}

func (c Credentials) forProvider(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAI
	case "deepgram":
		return c.Deepgram
	case "elevenlabs":
		return c.ElevenLabs
	default:
		return ""
	}
}

// Pipeline is the assembled capability set for one session.
type Pipeline struct {
	STT stt.STT
	LLM llm.LLM
	TTS tts.TTS
	VAD vad.VAD
}

// BuildPipeline resolves a job's provider choices against the plugin
// registry. Dispatch is over the closed set of registered plugin names;
// an unregistered provider fails construction rather than falling back.
func BuildPipeline(snap *job.AgentConfigSnapshot, creds Credentials, m *observability.Metrics) (*Pipeline, error) {
	if snap == nil {
		return nil, fmt.Errorf("agent config snapshot is required")
	}

	countError := func(provider, kind string) {
		if m != nil {
			m.ProviderErrors.WithLabelValues(provider, kind).Inc()
		}
	}

	sttAny, err := plugin.Build(plugin.KindSTT, snap.STTProvider, plugin.Config{
		"api_key":  creds.forProvider(snap.STTProvider),
		"model":    snap.STTModel,
		"language": snap.STTLanguage,
	})
	if err != nil {
		countError(snap.STTProvider, "stt_build")
		return nil, fmt.Errorf("build stt: %w", err)
	}
	sttImpl, ok := sttAny.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not an STT", snap.STTProvider)
	}

	llmAny, err := plugin.Build(plugin.KindLLM, snap.LLMProvider, plugin.Config{
		"api_key": creds.forProvider(snap.LLMProvider),
		"model":   snap.LLMModel,
	})
	if err != nil {
		countError(snap.LLMProvider, "llm_build")
		return nil, fmt.Errorf("build llm: %w", err)
	}
	llmImpl, ok := llmAny.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not an LLM", snap.LLMProvider)
	}

	ttsAny, err := plugin.Build(plugin.KindTTS, snap.TTSProvider, plugin.Config{
		"api_key": creds.forProvider(snap.TTSProvider),
		"model":   snap.TTSModel,
		"voice":   snap.TTSVoice,
	})
	if err != nil {
		countError(snap.TTSProvider, "tts_build")
		return nil, fmt.Errorf("build tts: %w", err)
	}
	ttsImpl, ok := ttsAny.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a TTS", snap.TTSProvider)
	}

	vadImpl, err := buildVAD(snap)
	if err != nil {
		return nil, err
	}

	return &Pipeline{STT: sttImpl, LLM: llmImpl, TTS: ttsImpl, VAD: vadImpl}, nil
}

// buildVAD picks the detector for the configured turn-detection mode.
// server_vad prefers the silero model when this binary carries it and
// falls back to the energy detector otherwise.
func buildVAD(snap *job.AgentConfigSnapshot) (vad.VAD, error) {
	name := "energy"
	if snap.TurnDetection == "" || snap.TurnDetection == "server_vad" {
		for _, registered := range plugin.List(plugin.KindVAD) {
			if registered == "silero" {
				name = "silero"
			}
		}
	}

	vadAny, err := plugin.Build(plugin.KindVAD, name, plugin.Config{})
	if err != nil {
		if name == "silero" {
			// Stub registration without the model file; use energy.
			vadAny, err = plugin.Build(plugin.KindVAD, "energy", plugin.Config{})
		}
		if err != nil {
			return nil, fmt.Errorf("build vad: %w", err)
		}
	}
	vadImpl, ok := vadAny.(vad.VAD)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a VAD", name)
	}
	return vadImpl, nil
}
