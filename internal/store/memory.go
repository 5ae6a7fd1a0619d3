package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]*AgentConfig
	sessions map[string]*Session
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]*AgentConfig),
		sessions: make(map[string]*Session),
	}
}

func (m *Memory) CreateAgent(_ context.Context, agent *AgentConfig) error {
	agent.ApplyDefaults()
	if err := agent.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	agent.ID = uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *Memory) GetAgent(_ context.Context, id, userID string) (*AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAgents(_ context.Context, p ListAgentsParams) ([]AgentSummary, Pagination, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*AgentConfig
	for _, a := range m.agents {
		if a.UserID != p.UserID {
			continue
		}
		if p.Provider != "" && a.LLMProvider != p.Provider {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	pages := (total + p.Limit - 1) / p.Limit
	offset := (p.Page - 1) * p.Limit
	if offset > total {
		offset = total
	}
	end := offset + p.Limit
	if end > total {
		end = total
	}

	out := make([]AgentSummary, 0, end-offset)
	for _, a := range all[offset:end] {
		out = append(out, AgentSummary{
			ID:            a.ID,
			Name:          a.Name,
			Description:   a.Description,
			LLMProvider:   a.LLMProvider,
			LLMModel:      a.LLMModel,
			STTProvider:   a.STTProvider,
			STTModel:      a.STTModel,
			TTSProvider:   a.TTSProvider,
			TTSModel:      a.TTSModel,
			TargetLatency: a.TargetLatency,
			SessionCount:  m.sessionCountLocked(a.ID),
			CreatedAt:     a.CreatedAt,
			UpdatedAt:     a.UpdatedAt,
		})
	}

	return out, Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}, nil
}

func (m *Memory) sessionCountLocked(agentID string) int {
	n := 0
	for _, s := range m.sessions {
		if s.AgentID == agentID {
			n++
		}
	}
	return n
}

func (m *Memory) UpdateAgent(_ context.Context, id, userID string, upd AgentUpdate) (*AgentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}

	next := *a
	applyUpdate(&next, upd)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.agents[id] = &next

	cp := next
	return &cp, nil
}

func (m *Memory) DeleteAgent(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	// Sessions are historical records and survive the config.
	delete(m.agents, id)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[s.AgentID]; !ok {
		return ErrNotFound
	}

	s.ID = uuid.NewString()
	if s.Status == "" {
		s.Status = SessionActive
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.findSession(sessionID)
	if s == nil || s.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// findSession must be called with the lock held.
func (m *Memory) findSession(sessionID string) *Session {
	for _, s := range m.sessions {
		if s.SessionID == sessionID {
			return s
		}
	}
	return nil
}

func (m *Memory) RecentSessions(_ context.Context, agentID string, limit int) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Session
	for _, s := range m.sessions {
		if s.AgentID == agentID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) EndSession(_ context.Context, sessionID string, metrics SessionMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.findSession(sessionID)
	if s == nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.Status = SessionEnded
	s.TotalDuration = metrics.TotalDuration
	s.AvgLatency = metrics.AvgLatency
	s.MessageCount = metrics.MessageCount
	s.EndedAt = &now
	return nil
}

func (m *Memory) Close() {}

func applyUpdate(a *AgentConfig, upd AgentUpdate) {
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.Instructions != nil {
		a.Instructions = *upd.Instructions
	}
	if upd.LLMProvider != nil {
		a.LLMProvider = *upd.LLMProvider
	}
	if upd.LLMModel != nil {
		a.LLMModel = *upd.LLMModel
	}
	if upd.LLMTemperature != nil {
		a.LLMTemperature = *upd.LLMTemperature
	}
	if upd.LLMMaxTokens != nil {
		a.LLMMaxTokens = *upd.LLMMaxTokens
	}
	if upd.STTProvider != nil {
		a.STTProvider = *upd.STTProvider
	}
	if upd.STTModel != nil {
		a.STTModel = *upd.STTModel
	}
	if upd.STTLanguage != nil {
		a.STTLanguage = *upd.STTLanguage
	}
	if upd.TTSProvider != nil {
		a.TTSProvider = *upd.TTSProvider
	}
	if upd.TTSModel != nil {
		a.TTSModel = *upd.TTSModel
	}
	if upd.TTSVoice != nil {
		a.TTSVoice = *upd.TTSVoice
	}
	if upd.TurnDetection != nil {
		a.TurnDetection = *upd.TurnDetection
	}
	if upd.AllowInterruptions != nil {
		a.AllowInterruptions = *upd.AllowInterruptions
	}
	if upd.MinInterruptionDuration != nil {
		a.MinInterruptionDuration = *upd.MinInterruptionDuration
	}
	if upd.ResumeFalseInterruption != nil {
		a.ResumeFalseInterruption = *upd.ResumeFalseInterruption
	}
	if upd.FalseInterruptionTimeout != nil {
		a.FalseInterruptionTimeout = *upd.FalseInterruptionTimeout
	}
	if upd.MinEndpointingDelay != nil {
		a.MinEndpointingDelay = *upd.MinEndpointingDelay
	}
	if upd.MaxEndpointingDelay != nil {
		a.MaxEndpointingDelay = *upd.MaxEndpointingDelay
	}
	if upd.TargetLatency != nil {
		a.TargetLatency = *upd.TargetLatency
	}
	if upd.SessionTimeout != nil {
		a.SessionTimeout = *upd.SessionTimeout
	}
}
