package provision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"

	"github.com/voicedeck/voicedeck/internal/store"
	"github.com/voicedeck/voicedeck/pkg/job"
)

type fakeRoomService struct {
	created []*livekit.CreateRoomRequest
	err     error
}

func (f *fakeRoomService) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &livekit.Room{Name: req.Name, Metadata: req.Metadata}, nil
}

func testConfig() Config {
	return Config{
		ServerURL:         "wss://lk.example.com",
		APIKey:            "APIxxxxxxxx",
		APISecret:         "secretsecretsecretsecretsecret00",
		TokenTTL:          time.Hour,
		DispatchAgentName: "voicedeck-agent",
	}
}

func seedAgent(t *testing.T, st store.Store, userID string) *store.AgentConfig {
	t.Helper()
	a := &store.AgentConfig{
		UserID:       userID,
		Name:         "Concierge",
		Instructions: "You are a hotel concierge.",
	}
	if err := st.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return a
}

func TestProvision(t *testing.T) {
	st := store.NewMemory()
	rooms := &fakeRoomService{}
	p := New(testConfig(), st, rooms, nil, nil)
	a := seedAgent(t, st, "alice")

	res, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: a.ID})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if res.Token == "" {
		t.Error("expected a join token")
	}
	if res.ServerURL != "wss://lk.example.com" {
		t.Errorf("unexpected server URL %q", res.ServerURL)
	}
	if !strings.HasPrefix(res.SessionID, "sess_") {
		t.Errorf("expected sess_ session id, got %q", res.SessionID)
	}
	if !strings.HasPrefix(res.RoomName, "agent-"+a.ID+"-") {
		t.Errorf("unexpected room name %q", res.RoomName)
	}
	if res.DispatchAgentName != "voicedeck-agent" {
		t.Errorf("unexpected dispatch name %q", res.DispatchAgentName)
	}
	if res.AgentConfig == nil || res.AgentConfig.Instructions != "You are a hotel concierge." {
		t.Errorf("result should carry the config snapshot: %+v", res.AgentConfig)
	}

	if len(rooms.created) != 1 {
		t.Fatalf("expected 1 room, created %d", len(rooms.created))
	}
	req := rooms.created[0]
	if len(req.Agents) != 1 || req.Agents[0].AgentName != "voicedeck-agent" {
		t.Errorf("expected dispatch to voicedeck-agent, got %+v", req.Agents)
	}

	snap, ok := job.ParseSnapshot(req.Metadata)
	if !ok {
		t.Fatal("room metadata should carry the agent config")
	}
	if snap.Instructions != "You are a hotel concierge." {
		t.Errorf("unexpected instructions %q", snap.Instructions)
	}
	if snap.LLMModel != "gpt-4o-mini" {
		t.Errorf("expected defaulted model in snapshot, got %q", snap.LLMModel)
	}

	got, err := job.ResolveInstructions(req.Metadata, req.Agents[0].Metadata)
	if err != nil || got != "You are a hotel concierge." {
		t.Errorf("worker-side resolution failed: %q, %v", got, err)
	}

	sessions, err := st.RecentSessions(context.Background(), a.ID, 10)
	if err != nil {
		t.Fatalf("recent sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != store.SessionActive {
		t.Errorf("expected one active session, got %+v", sessions)
	}
}

func TestProvisionRoomFailureWritesNoSession(t *testing.T) {
	st := store.NewMemory()
	rooms := &fakeRoomService{err: errors.New("twirp unavailable")}
	p := New(testConfig(), st, rooms, nil, nil)
	a := seedAgent(t, st, "alice")

	_, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: a.ID})
	if err == nil {
		t.Fatal("expected error when room creation fails")
	}

	sessions, err := st.RecentSessions(context.Background(), a.ID, 10)
	if err != nil {
		t.Fatalf("recent sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("room failure must leave no session rows, found %d", len(sessions))
	}
}

func TestProvisionUnknownAgent(t *testing.T) {
	st := store.NewMemory()
	p := New(testConfig(), st, &fakeRoomService{}, nil, nil)
	seedAgent(t, st, "alice")

	_, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: "nope"})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestProvisionHidesForeignAgent(t *testing.T) {
	st := store.NewMemory()
	p := New(testConfig(), st, &fakeRoomService{}, nil, nil)
	a := seedAgent(t, st, "alice")

	_, err := p.Provision(context.Background(), Request{UserID: "mallory", AgentID: a.ID})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("foreign agent must look missing, got %v", err)
	}
}

func TestProvisionTestSession(t *testing.T) {
	st := store.NewMemory()
	rooms := &fakeRoomService{}
	p := New(testConfig(), st, rooms, nil, nil)
	a := seedAgent(t, st, "alice")

	first, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: a.ID, Test: true})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	second, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: a.ID, Test: true})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if !strings.HasPrefix(first.SessionID, "test_") {
		t.Errorf("expected test_ session id, got %q", first.SessionID)
	}
	if first.RoomName == second.RoomName {
		t.Error("test sessions must get distinct rooms")
	}
	if !first.TestSession {
		t.Error("result should be flagged as a test session")
	}
}

func TestRoomNameDeterministic(t *testing.T) {
	a := RoomName("agent1", "alice", false)
	b := RoomName("agent1", "alice", false)
	if a != b {
		t.Errorf("production room name must be stable: %q != %q", a, b)
	}
	if c := RoomName("agent1", "bob", false); c == a {
		t.Error("different users must get different rooms")
	}
	if d := RoomName("agent2", "alice", false); d == a {
		t.Error("different agents must get different rooms")
	}
}

func TestProvisionDispatchOverride(t *testing.T) {
	st := store.NewMemory()
	rooms := &fakeRoomService{}
	p := New(testConfig(), st, rooms, nil, nil)

	a := &store.AgentConfig{
		UserID:            "alice",
		Name:              "Custom",
		Instructions:      "Do things.",
		DispatchAgentName: "special-pool",
	}
	if err := st.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	if _, err := p.Provision(context.Background(), Request{UserID: "alice", AgentID: a.ID}); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if got := rooms.created[0].Agents[0].AgentName; got != "special-pool" {
		t.Errorf("expected dispatch override, got %q", got)
	}
}
