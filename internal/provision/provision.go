// Package provision turns an agent config into a joinable LiveKit
// session: it creates (or reuses) the room with the agent config
// embedded in its metadata, mints a join token for the end user, and
// records the session.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/oklog/ulid/v2"

	"github.com/voicedeck/voicedeck/internal/observability"
	"github.com/voicedeck/voicedeck/internal/store"
	"github.com/voicedeck/voicedeck/pkg/job"
)

// ErrAgentNotFound indicates the referenced agent does not exist or is
// not owned by the requesting user.
var ErrAgentNotFound = errors.New("agent not found")

// RoomCreator is the slice of the LiveKit room service the provisioner
// needs. *lksdk.RoomServiceClient satisfies it.
type RoomCreator interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
}

// Config carries the LiveKit credentials and dispatch settings.
type Config struct {
	// ServerURL is the websocket URL handed to clients.
	ServerURL string

	APIKey    string
	APISecret string

	// TokenTTL bounds join token validity.
	TokenTTL time.Duration

	// DispatchAgentName names the worker pool that picks up rooms.
	// Overridden per agent when the config sets one.
	DispatchAgentName string
}

// Provisioner creates voice sessions. The session row is written only
// after the room exists and the join token minted; a failure in either
// step leaves no trace in the store.
type Provisioner struct {
	cfg     Config
	store   store.Store
	rooms   RoomCreator
	metrics *observability.Metrics
	log     *slog.Logger
}

func New(cfg Config, st store.Store, rooms RoomCreator, m *observability.Metrics, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{cfg: cfg, store: st, rooms: rooms, metrics: m, log: log}
}

// Request identifies the agent to run and the user joining it.
type Request struct {
	UserID  string
	AgentID string

	// Test provisions a throwaway room with a unique name instead of
	// the user's stable room.
	Test bool
}

// Result is everything a client needs to join the session.
type Result struct {
	SessionID         string                   `json:"sessionId"`
	RoomName          string                   `json:"roomName"`
	ServerURL         string                   `json:"serverUrl"`
	Token             string                   `json:"accessToken"`
	AgentID           string                   `json:"agentId"`
	AgentName         string                   `json:"agentName"`
	DispatchAgentName string                   `json:"dispatchAgentName"`
	AgentConfig       *job.AgentConfigSnapshot `json:"agentConfig"`
	ExpiresAt         string                   `json:"expiresAt"`
	TestSession       bool                     `json:"testSession,omitempty"`
}

// Provision creates the room, mints the user's join token, and records
// the session. Returns ErrAgentNotFound when the agent is missing or
// foreign.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" || req.AgentID == "" {
		return nil, fmt.Errorf("user and agent IDs are required")
	}
	start := time.Now()

	agent, err := p.store.GetAgent(ctx, req.AgentID, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		p.countError("load_agent")
		return nil, fmt.Errorf("load agent: %w", err)
	}

	roomName := RoomName(req.AgentID, req.UserID, req.Test)
	snap := Snapshot(agent)

	roomMeta, err := job.EncodeRoomMetadata(snap)
	if err != nil {
		p.countError("encode_metadata")
		return nil, err
	}
	jobMeta, err := job.EncodeJobMetadata(agent.Instructions)
	if err != nil {
		p.countError("encode_metadata")
		return nil, err
	}

	dispatchName := p.cfg.DispatchAgentName
	if agent.DispatchAgentName != "" {
		dispatchName = agent.DispatchAgentName
	}

	_, err = p.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            roomName,
		EmptyTimeout:    uint32(agent.SessionTimeout),
		MaxParticipants: 2,
		Metadata:        roomMeta,
		Agents: []*livekit.RoomAgentDispatch{{
			AgentName: dispatchName,
			Metadata:  jobMeta,
		}},
	})
	if err != nil {
		p.countError("create_room")
		return nil, fmt.Errorf("create room %s: %w", roomName, err)
	}

	token, expiresAt, err := p.mintToken(roomName, "user-"+req.UserID)
	if err != nil {
		p.countError("mint_token")
		return nil, fmt.Errorf("mint token: %w", err)
	}

	sess := &store.Session{
		SessionID: "sess_" + ulid.Make().String(),
		RoomName:  roomName,
		UserID:    req.UserID,
		AgentID:   req.AgentID,
		Status:    store.SessionActive,
	}
	if req.Test {
		sess.SessionID = "test_" + ulid.Make().String()
		sess.Metadata = map[string]any{"isTest": true}
	}
	if err := p.store.CreateSession(ctx, sess); err != nil {
		p.countError("persist_session")
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if p.metrics != nil {
		kind := "production"
		if req.Test {
			kind = "test"
		}
		p.metrics.SessionsCreated.WithLabelValues(kind).Inc()
		p.metrics.ActiveSessions.Inc()
		p.metrics.ProvisionDuration.Observe(float64(time.Since(start).Milliseconds()))
	}
	p.log.Info("provisioned session",
		slog.String("session_id", sess.SessionID),
		slog.String("room", roomName),
		slog.String("agent_id", req.AgentID),
		slog.Bool("test", req.Test))

	return &Result{
		SessionID:         sess.SessionID,
		RoomName:          roomName,
		ServerURL:         p.cfg.ServerURL,
		Token:             token,
		AgentID:           agent.ID,
		AgentName:         agent.Name,
		DispatchAgentName: dispatchName,
		AgentConfig:       snap,
		ExpiresAt:         expiresAt.UTC().Format(time.RFC3339),
		TestSession:       req.Test,
	}, nil
}

func (p *Provisioner) mintToken(room, identity string) (string, time.Time, error) {
	ttl := p.cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	at := auth.NewAccessToken(p.cfg.APIKey, p.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(ttl)

	jwt, err := at.ToJWT()
	if err != nil {
		return "", time.Time{}, err
	}
	return jwt, time.Now().Add(ttl), nil
}

func (p *Provisioner) countError(stage string) {
	if p.metrics != nil {
		p.metrics.ProvisionErrors.WithLabelValues(stage).Inc()
	}
}

// RoomName derives the room for a session. Production rooms are stable
// per agent and user so repeat calls land in the same room; test rooms
// are unique every time.
func RoomName(agentID, userID string, test bool) string {
	if test {
		return fmt.Sprintf("test-%s-%s", agentID, ulid.Make().String())
	}
	sum := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("agent-%s-%s", agentID, hex.EncodeToString(sum[:4]))
}

// Snapshot projects an agent config into the worker-facing snapshot
// embedded in room metadata.
func Snapshot(a *store.AgentConfig) *job.AgentConfigSnapshot {
	return &job.AgentConfigSnapshot{
		Instructions:             a.Instructions,
		LLMProvider:              a.LLMProvider,
		LLMModel:                 a.LLMModel,
		LLMTemperature:           a.LLMTemperature,
		LLMMaxTokens:             a.LLMMaxTokens,
		STTProvider:              a.STTProvider,
		STTModel:                 a.STTModel,
		STTLanguage:              a.STTLanguage,
		TTSProvider:              a.TTSProvider,
		TTSModel:                 a.TTSModel,
		TTSVoice:                 a.TTSVoice,
		TurnDetection:            string(a.TurnDetection),
		AllowInterruptions:       a.AllowInterruptions,
		MinInterruptionDuration:  a.MinInterruptionDuration,
		ResumeFalseInterruption:  a.ResumeFalseInterruption,
		FalseInterruptionTimeout: a.FalseInterruptionTimeout,
		MinEndpointingDelay:      a.MinEndpointingDelay,
		MaxEndpointingDelay:      a.MaxEndpointingDelay,
		TargetLatency:            a.TargetLatency,
		SessionTimeout:           a.SessionTimeout,
	}
}
