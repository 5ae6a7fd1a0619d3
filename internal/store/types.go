// Package store persists voice agent configurations and their realtime
// session history. Two implementations are provided: Postgres for
// production and Memory for tests.
package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist or is not
	// visible to the requesting user. Ownership failures map here too so
	// the API never reveals whether a foreign record exists.
	ErrNotFound = errors.New("record not found")
)

// TurnDetection selects the policy deciding when the user finished speaking.
type TurnDetection string

const (
	TurnDetectionServerVAD  TurnDetection = "server_vad"
	TurnDetectionPushToTalk TurnDetection = "push_to_talk"
	TurnDetectionSemantic   TurnDetection = "semantic"
)

// SessionStatus is the lifecycle state of a realtime session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// AgentConfig describes one voice agent: provider choices for each
// capability, the persona prompt, and behavioral tuning.
type AgentConfig struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Instructions string `json:"instructions"`

	LLMProvider    string  `json:"llmProvider"`
	LLMModel       string  `json:"llmModel"`
	LLMTemperature float64 `json:"llmTemperature"`
	LLMMaxTokens   int     `json:"llmMaxTokens"`

	STTProvider string `json:"sttProvider"`
	STTModel    string `json:"sttModel"`
	STTLanguage string `json:"sttLanguage"`

	TTSProvider string `json:"ttsProvider"`
	TTSModel    string `json:"ttsModel"`
	TTSVoice    string `json:"ttsVoice"`

	TurnDetection            TurnDetection `json:"turnDetection"`
	AllowInterruptions       bool          `json:"allowInterruptions"`
	MinInterruptionDuration  int           `json:"minInterruptionDuration"`  // ms
	ResumeFalseInterruption  bool          `json:"resumeFalseInterruption"`
	FalseInterruptionTimeout int           `json:"falseInterruptionTimeout"` // ms
	MinEndpointingDelay      int           `json:"minEndpointingDelay"`      // ms
	MaxEndpointingDelay      int           `json:"maxEndpointingDelay"`      // ms
	TargetLatency            int           `json:"targetLatency"`            // ms
	SessionTimeout           int           `json:"sessionTimeout"`           // s

	DispatchAgentName string `json:"dispatchAgentName"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session is one realtime conversation tied to an agent config. It
// snapshots what it needs at creation time and survives later config edits
// and deletes.
type Session struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	RoomName  string        `json:"roomName"`
	UserID    string        `json:"userId"`
	AgentID   string        `json:"agentId"`
	Status    SessionStatus `json:"status"`

	TotalDuration int     `json:"totalDuration"` // s
	AvgLatency    float64 `json:"avgLatency"`    // ms
	MessageCount  int     `json:"messageCount"`

	Metadata map[string]any `json:"metadata,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// AgentSummary is the list-view projection of an AgentConfig.
type AgentSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	LLMProvider   string    `json:"llmProvider"`
	LLMModel      string    `json:"llmModel"`
	STTProvider   string    `json:"sttProvider"`
	STTModel      string    `json:"sttModel"`
	TTSProvider   string    `json:"ttsProvider"`
	TTSModel      string    `json:"ttsModel"`
	TargetLatency int       `json:"targetLatency"`
	SessionCount  int       `json:"sessionCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Pagination describes one page of a list result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListAgentsParams filters and pages the agent list.
type ListAgentsParams struct {
	UserID   string
	Page     int
	Limit    int
	Provider string // optional LLM provider filter
}

// AgentUpdate carries a partial update; nil fields are left untouched.
type AgentUpdate struct {
	Name                     *string
	Description              *string
	Instructions             *string
	LLMProvider              *string
	LLMModel                 *string
	LLMTemperature           *float64
	LLMMaxTokens             *int
	STTProvider              *string
	STTModel                 *string
	STTLanguage              *string
	TTSProvider              *string
	TTSModel                 *string
	TTSVoice                 *string
	TurnDetection            *TurnDetection
	AllowInterruptions       *bool
	MinInterruptionDuration  *int
	ResumeFalseInterruption  *bool
	FalseInterruptionTimeout *int
	MinEndpointingDelay      *int
	MaxEndpointingDelay      *int
	TargetLatency            *int
	SessionTimeout           *int
}

// SessionMetrics is written by the worker/session-close path.
type SessionMetrics struct {
	TotalDuration int
	AvgLatency    float64
	MessageCount  int
}

// ValidationError reports a single out-of-range or malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Supported providers per capability. Dispatch is by string over this
// closed set; adding a provider means registering its plugin and listing
// it here.
var (
	supportedLLM = map[string]bool{"openai": true}
	supportedSTT = map[string]bool{"deepgram": true, "openai": true}
	supportedTTS = map[string]bool{"elevenlabs": true, "openai": true}
)

const (
	minTargetLatency = 100
	maxTargetLatency = 5000
	maxLLMTokens     = 32768
)

// ApplyDefaults fills zero-valued fields with the platform defaults before
// validation and insert.
func (a *AgentConfig) ApplyDefaults() {
	if a.LLMProvider == "" {
		a.LLMProvider = "openai"
	}
	if a.LLMModel == "" {
		a.LLMModel = "gpt-4o-mini"
	}
	if a.LLMTemperature == 0 {
		a.LLMTemperature = 0.7
	}
	if a.LLMMaxTokens == 0 {
		a.LLMMaxTokens = 1000
	}
	if a.STTProvider == "" {
		a.STTProvider = "deepgram"
	}
	if a.STTModel == "" {
		a.STTModel = "nova-3"
	}
	if a.STTLanguage == "" {
		a.STTLanguage = "en"
	}
	if a.TTSProvider == "" {
		a.TTSProvider = "elevenlabs"
	}
	if a.TTSModel == "" {
		a.TTSModel = "eleven_turbo_v2_5"
	}
	if a.TTSVoice == "" {
		a.TTSVoice = "rachel"
	}
	if a.TurnDetection == "" {
		a.TurnDetection = TurnDetectionServerVAD
	}
	if a.MinInterruptionDuration == 0 {
		a.MinInterruptionDuration = 500
	}
	if a.FalseInterruptionTimeout == 0 {
		a.FalseInterruptionTimeout = 2000
	}
	if a.MinEndpointingDelay == 0 {
		a.MinEndpointingDelay = 500
	}
	if a.MaxEndpointingDelay == 0 {
		a.MaxEndpointingDelay = 6000
	}
	if a.TargetLatency == 0 {
		a.TargetLatency = 1000
	}
	if a.SessionTimeout == 0 {
		a.SessionTimeout = 600
	}
}

// Validate rejects out-of-range behavioral parameters and unknown
// provider choices. It is called before any row is written.
func (a *AgentConfig) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if a.Instructions == "" {
		return &ValidationError{Field: "instructions", Message: "is required"}
	}
	if !supportedLLM[a.LLMProvider] {
		return &ValidationError{Field: "llmProvider", Message: fmt.Sprintf("unsupported provider %q", a.LLMProvider)}
	}
	if !supportedSTT[a.STTProvider] {
		return &ValidationError{Field: "sttProvider", Message: fmt.Sprintf("unsupported provider %q", a.STTProvider)}
	}
	if !supportedTTS[a.TTSProvider] {
		return &ValidationError{Field: "ttsProvider", Message: fmt.Sprintf("unsupported provider %q", a.TTSProvider)}
	}
	if a.LLMTemperature < 0 || a.LLMTemperature > 2 {
		return &ValidationError{Field: "llmTemperature", Message: "must be within [0, 2]"}
	}
	if a.LLMMaxTokens < 1 || a.LLMMaxTokens > maxLLMTokens {
		return &ValidationError{Field: "llmMaxTokens", Message: fmt.Sprintf("must be within [1, %d]", maxLLMTokens)}
	}
	switch a.TurnDetection {
	case TurnDetectionServerVAD, TurnDetectionPushToTalk, TurnDetectionSemantic:
	default:
		return &ValidationError{Field: "turnDetection", Message: fmt.Sprintf("unknown mode %q", a.TurnDetection)}
	}
	if a.MinInterruptionDuration < 0 {
		return &ValidationError{Field: "minInterruptionDuration", Message: "must not be negative"}
	}
	if a.FalseInterruptionTimeout < 0 {
		return &ValidationError{Field: "falseInterruptionTimeout", Message: "must not be negative"}
	}
	if a.MinEndpointingDelay < 0 || a.MaxEndpointingDelay < 0 {
		return &ValidationError{Field: "minEndpointingDelay", Message: "must not be negative"}
	}
	if a.MinEndpointingDelay > a.MaxEndpointingDelay {
		return &ValidationError{Field: "minEndpointingDelay", Message: "must not exceed maxEndpointingDelay"}
	}
	if a.TargetLatency < minTargetLatency || a.TargetLatency > maxTargetLatency {
		return &ValidationError{
			Field:   "targetLatency",
			Message: fmt.Sprintf("must be within [%d, %d] ms", minTargetLatency, maxTargetLatency),
		}
	}
	if a.SessionTimeout < 0 {
		return &ValidationError{Field: "sessionTimeout", Message: "must not be negative"}
	}
	return nil
}
