package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres persists agents and sessions in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and runs pending migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if err := migrate(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// migrate runs goose over a short-lived database/sql connection; the
// pgxpool used for queries never sees DDL.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

const agentColumns = `id, user_id, name, description, instructions,
	llm_provider, llm_model, llm_temperature, llm_max_tokens,
	stt_provider, stt_model, stt_language,
	tts_provider, tts_model, tts_voice,
	turn_detection, allow_interruptions, min_interruption_duration,
	resume_false_interruption, false_interruption_timeout,
	min_endpointing_delay, max_endpointing_delay,
	target_latency, session_timeout, dispatch_agent_name,
	created_at, updated_at`

func scanAgent(row pgx.Row) (*AgentConfig, error) {
	var a AgentConfig
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Description, &a.Instructions,
		&a.LLMProvider, &a.LLMModel, &a.LLMTemperature, &a.LLMMaxTokens,
		&a.STTProvider, &a.STTModel, &a.STTLanguage,
		&a.TTSProvider, &a.TTSModel, &a.TTSVoice,
		&a.TurnDetection, &a.AllowInterruptions, &a.MinInterruptionDuration,
		&a.ResumeFalseInterruption, &a.FalseInterruptionTimeout,
		&a.MinEndpointingDelay, &a.MaxEndpointingDelay,
		&a.TargetLatency, &a.SessionTimeout, &a.DispatchAgentName,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return &a, nil
}

func (p *Postgres) CreateAgent(ctx context.Context, agent *AgentConfig) error {
	agent.ApplyDefaults()
	if err := agent.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	agent.ID = uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	_, err := p.pool.Exec(ctx, `
		INSERT INTO voice_agents (
			id, user_id, name, description, instructions,
			llm_provider, llm_model, llm_temperature, llm_max_tokens,
			stt_provider, stt_model, stt_language,
			tts_provider, tts_model, tts_voice,
			turn_detection, allow_interruptions, min_interruption_duration,
			resume_false_interruption, false_interruption_timeout,
			min_endpointing_delay, max_endpointing_delay,
			target_latency, session_timeout, dispatch_agent_name,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
		)`,
		agent.ID, agent.UserID, agent.Name, agent.Description, agent.Instructions,
		agent.LLMProvider, agent.LLMModel, agent.LLMTemperature, agent.LLMMaxTokens,
		agent.STTProvider, agent.STTModel, agent.STTLanguage,
		agent.TTSProvider, agent.TTSModel, agent.TTSVoice,
		agent.TurnDetection, agent.AllowInterruptions, agent.MinInterruptionDuration,
		agent.ResumeFalseInterruption, agent.FalseInterruptionTimeout,
		agent.MinEndpointingDelay, agent.MaxEndpointingDelay,
		agent.TargetLatency, agent.SessionTimeout, agent.DispatchAgentName,
		agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (p *Postgres) GetAgent(ctx context.Context, id, userID string) (*AgentConfig, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM voice_agents WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanAgent(row)
}

func (p *Postgres) ListAgents(ctx context.Context, lp ListAgentsParams) ([]AgentSummary, Pagination, error) {
	if lp.Page < 1 {
		lp.Page = 1
	}
	if lp.Limit < 1 {
		lp.Limit = 10
	}

	where := `user_id = $1`
	args := []any{lp.UserID}
	if lp.Provider != "" {
		where += ` AND llm_provider = $2`
		args = append(args, lp.Provider)
	}

	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM voice_agents WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("count agents: %w", err)
	}

	offset := (lp.Page - 1) * lp.Limit
	query := fmt.Sprintf(`
		SELECT a.id, a.name, a.description,
			a.llm_provider, a.llm_model, a.stt_provider, a.stt_model,
			a.tts_provider, a.tts_model, a.target_latency,
			(SELECT count(*) FROM agent_sessions s WHERE s.agent_id = a.id),
			a.created_at, a.updated_at
		FROM voice_agents a
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, lp.Limit, offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var s AgentSummary
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description,
			&s.LLMProvider, &s.LLMModel, &s.STTProvider, &s.STTModel,
			&s.TTSProvider, &s.TTSModel, &s.TargetLatency,
			&s.SessionCount, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, Pagination{}, fmt.Errorf("scan agent summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, fmt.Errorf("list agents: %w", err)
	}

	pages := (total + lp.Limit - 1) / lp.Limit
	return out, Pagination{Page: lp.Page, Limit: lp.Limit, Total: total, Pages: pages}, nil
}

func (p *Postgres) UpdateAgent(ctx context.Context, id, userID string, upd AgentUpdate) (*AgentConfig, error) {
	// Read-modify-write so the merged record can be validated as a whole
	// before anything is persisted.
	current, err := p.GetAgent(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	next := *current
	applyUpdate(&next, upd)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	tag, err := p.pool.Exec(ctx, `
		UPDATE voice_agents SET
			name = $3, description = $4, instructions = $5,
			llm_provider = $6, llm_model = $7, llm_temperature = $8, llm_max_tokens = $9,
			stt_provider = $10, stt_model = $11, stt_language = $12,
			tts_provider = $13, tts_model = $14, tts_voice = $15,
			turn_detection = $16, allow_interruptions = $17, min_interruption_duration = $18,
			resume_false_interruption = $19, false_interruption_timeout = $20,
			min_endpointing_delay = $21, max_endpointing_delay = $22,
			target_latency = $23, session_timeout = $24,
			updated_at = $25
		WHERE id = $1 AND user_id = $2`,
		id, userID,
		next.Name, next.Description, next.Instructions,
		next.LLMProvider, next.LLMModel, next.LLMTemperature, next.LLMMaxTokens,
		next.STTProvider, next.STTModel, next.STTLanguage,
		next.TTSProvider, next.TTSModel, next.TTSVoice,
		next.TurnDetection, next.AllowInterruptions, next.MinInterruptionDuration,
		next.ResumeFalseInterruption, next.FalseInterruptionTimeout,
		next.MinEndpointingDelay, next.MaxEndpointingDelay,
		next.TargetLatency, next.SessionTimeout,
		next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return &next, nil
}

func (p *Postgres) DeleteAgent(ctx context.Context, id, userID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM voice_agents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *Session) error {
	s.ID = uuid.NewString()
	if s.Status == "" {
		s.Status = SessionActive
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}

	// The agent must exist at insert time; sessions created against it
	// remain valid if it is later deleted.
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO agent_sessions (
			id, session_id, room_name, user_id, agent_id, status,
			metadata, started_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM voice_agents WHERE id = $5)`,
		s.ID, s.SessionID, s.RoomName, s.UserID, s.AgentID, s.Status,
		s.Metadata, s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, session_id, room_name, user_id, agent_id, status,
			total_duration, avg_latency, message_count, metadata,
			started_at, ended_at
		FROM agent_sessions WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.SessionID, &s.RoomName, &s.UserID, &s.AgentID, &s.Status,
		&s.TotalDuration, &s.AvgLatency, &s.MessageCount, &s.Metadata,
		&s.StartedAt, &s.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

func (p *Postgres) RecentSessions(ctx context.Context, agentID string, limit int) ([]Session, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, room_name, user_id, agent_id, status,
			total_duration, avg_latency, message_count, metadata,
			started_at, ended_at
		FROM agent_sessions
		WHERE agent_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) EndSession(ctx context.Context, sessionID string, m SessionMetrics) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE agent_sessions SET
			status = $2, total_duration = $3, avg_latency = $4,
			message_count = $5, ended_at = now()
		WHERE session_id = $1`,
		sessionID, SessionEnded, m.TotalDuration, m.AvgLatency, m.MessageCount)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
