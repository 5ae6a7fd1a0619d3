package store

import "context"

// Store is the persistence boundary for agent configs and sessions.
// All reads and writes are scoped to the owning user; a record owned by
// someone else behaves exactly like a missing record.
type Store interface {
	// CreateAgent validates and inserts a new config, filling ID and
	// timestamps. Invalid input is rejected before any row is written.
	CreateAgent(ctx context.Context, agent *AgentConfig) error

	// GetAgent returns the config if it exists and is owned by userID.
	GetAgent(ctx context.Context, id, userID string) (*AgentConfig, error)

	// ListAgents returns one page of the user's configs, newest first,
	// optionally filtered by LLM provider.
	ListAgents(ctx context.Context, p ListAgentsParams) ([]AgentSummary, Pagination, error)

	// UpdateAgent applies a partial update and returns the new record.
	UpdateAgent(ctx context.Context, id, userID string, upd AgentUpdate) (*AgentConfig, error)

	// DeleteAgent removes the config. Historical sessions are kept.
	DeleteAgent(ctx context.Context, id, userID string) error

	// CreateSession inserts a session row, filling ID and StartedAt.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns the session with the given public session
	// identifier if owned by userID.
	GetSession(ctx context.Context, sessionID, userID string) (*Session, error)

	// RecentSessions returns the most recent sessions for an agent,
	// newest first.
	RecentSessions(ctx context.Context, agentID string, limit int) ([]Session, error)

	// EndSession marks the session ended and records final metrics,
	// keyed by the public session identifier.
	EndSession(ctx context.Context, sessionID string, m SessionMetrics) error

	// Close releases the underlying connections.
	Close()
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
