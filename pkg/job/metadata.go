package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoInstructions means neither room nor job metadata yielded a
// persona. A worker must refuse to start rather than run with an
// undefined persona.
var ErrNoInstructions = errors.New("no instructions in room or job metadata")

// AgentConfigSnapshot is the subset of an agent configuration the worker
// needs at connect time. The provisioner serializes it into room
// metadata so the worker never needs a database round-trip.
type AgentConfigSnapshot struct {
	Instructions string `json:"instructions"`

	LLMProvider    string  `json:"llmProvider"`
	LLMModel       string  `json:"llmModel"`
	LLMTemperature float64 `json:"llmTemperature,omitempty"`
	LLMMaxTokens   int     `json:"llmMaxTokens,omitempty"`

	STTProvider string `json:"sttProvider"`
	STTModel    string `json:"sttModel"`
	STTLanguage string `json:"sttLanguage,omitempty"`

	TTSProvider string `json:"ttsProvider"`
	TTSModel    string `json:"ttsModel"`
	TTSVoice    string `json:"ttsVoice,omitempty"`

	TurnDetection            string `json:"turnDetection,omitempty"`
	AllowInterruptions       bool   `json:"allowInterruptions,omitempty"`
	MinInterruptionDuration  int    `json:"minInterruptionDuration,omitempty"`
	ResumeFalseInterruption  bool   `json:"resumeFalseInterruption,omitempty"`
	FalseInterruptionTimeout int    `json:"falseInterruptionTimeout,omitempty"`
	MinEndpointingDelay      int    `json:"minEndpointingDelay,omitempty"`
	MaxEndpointingDelay      int    `json:"maxEndpointingDelay,omitempty"`
	TargetLatency            int    `json:"targetLatency,omitempty"`
	SessionTimeout           int    `json:"sessionTimeout,omitempty"`
}

// roomMetadata is the wire envelope attached at room-creation time.
type roomMetadata struct {
	AgentConfig *AgentConfigSnapshot `json:"agentConfig,omitempty"`
}

// jobMetadata is the dispatch-level fallback channel.
type jobMetadata struct {
	Instructions string `json:"instructions,omitempty"`
}

// EncodeRoomMetadata serializes a snapshot into the room metadata
// envelope.
func EncodeRoomMetadata(snap *AgentConfigSnapshot) (string, error) {
	b, err := json.Marshal(roomMetadata{AgentConfig: snap})
	if err != nil {
		return "", fmt.Errorf("encode room metadata: %w", err)
	}
	return string(b), nil
}

// EncodeJobMetadata serializes the fallback instruction channel.
func EncodeJobMetadata(instructions string) (string, error) {
	b, err := json.Marshal(jobMetadata{Instructions: instructions})
	if err != nil {
		return "", fmt.Errorf("encode job metadata: %w", err)
	}
	return string(b), nil
}

// ParseSnapshot extracts the agent config snapshot from room metadata.
// Returns false when the metadata is absent, malformed, or carries no
// agentConfig envelope; malformed metadata is not fatal here because the
// job-level fallback may still supply instructions.
func ParseSnapshot(roomMeta string) (*AgentConfigSnapshot, bool) {
	if strings.TrimSpace(roomMeta) == "" {
		return nil, false
	}
	var env roomMetadata
	if err := json.Unmarshal([]byte(roomMeta), &env); err != nil {
		return nil, false
	}
	if env.AgentConfig == nil {
		return nil, false
	}
	return env.AgentConfig, true
}

// ResolveInstructions applies the resolution order: room metadata's
// agentConfig.instructions wins; otherwise job metadata's instructions;
// if neither yields a non-empty string the job must not start.
func ResolveInstructions(roomMeta, jobMeta string) (string, error) {
	if snap, ok := ParseSnapshot(roomMeta); ok {
		if s := strings.TrimSpace(snap.Instructions); s != "" {
			return s, nil
		}
	}

	if strings.TrimSpace(jobMeta) != "" {
		var jm jobMetadata
		if err := json.Unmarshal([]byte(jobMeta), &jm); err == nil {
			if s := strings.TrimSpace(jm.Instructions); s != "" {
				return s, nil
			}
		}
	}

	return "", ErrNoInstructions
}
