package client

import "time"

// Agent mirrors the platform's agent configuration resource.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Instructions string `json:"instructions"`

	LLMProvider    string  `json:"llmProvider,omitempty"`
	LLMModel       string  `json:"llmModel,omitempty"`
	LLMTemperature float64 `json:"llmTemperature,omitempty"`
	LLMMaxTokens   int     `json:"llmMaxTokens,omitempty"`

	STTProvider string `json:"sttProvider,omitempty"`
	STTModel    string `json:"sttModel,omitempty"`
	STTLanguage string `json:"sttLanguage,omitempty"`

	TTSProvider string `json:"ttsProvider,omitempty"`
	TTSModel    string `json:"ttsModel,omitempty"`
	TTSVoice    string `json:"ttsVoice,omitempty"`

	TurnDetection      string `json:"turnDetection,omitempty"`
	AllowInterruptions bool   `json:"allowInterruptions,omitempty"`
	TargetLatency      int    `json:"targetLatency,omitempty"`
	SessionTimeout     int    `json:"sessionTimeout,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// AgentSummary is the list-view projection.
type AgentSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	LLMProvider   string    `json:"llmProvider"`
	LLMModel      string    `json:"llmModel"`
	TargetLatency int       `json:"targetLatency"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Pagination describes one page of a list result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// AgentList is one page of agents.
type AgentList struct {
	Data       []AgentSummary `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// JoinCredentials is everything needed to join a voice session.
type JoinCredentials struct {
	SessionID         string `json:"sessionId"`
	RoomName          string `json:"roomName"`
	ServerURL         string `json:"serverUrl"`
	Token             string `json:"accessToken"`
	AgentID           string `json:"agentId"`
	AgentName         string `json:"agentName"`
	DispatchAgentName string `json:"dispatchAgentName"`
	ExpiresAt         string `json:"expiresAt"`
	TestSession       bool   `json:"testSession,omitempty"`
}

// SessionMetrics reports final counters when ending a session.
type SessionMetrics struct {
	TotalDuration int     `json:"totalDuration"`
	AvgLatency    float64 `json:"avgLatency"`
	MessageCount  int     `json:"messageCount"`
}
