package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/httpapi"
	"github.com/voicedeck/voicedeck/internal/provision"
	"github.com/voicedeck/voicedeck/internal/store"
)

type fakeRoomService struct{ created int }

func (f *fakeRoomService) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	f.created++
	return &livekit.Room{Name: req.Name}, nil
}

func newPlatform(t *testing.T) (*httptest.Server, *fakeRoomService) {
	t.Helper()
	st := store.NewMemory()
	rooms := &fakeRoomService{}
	p := provision.New(provision.Config{
		ServerURL:         "wss://lk.example.com",
		APIKey:            "APIxxxxxxxx",
		APISecret:         "secretsecretsecretsecretsecret00",
		TokenTTL:          time.Hour,
		DispatchAgentName: "voicedeck-agent",
	}, st, rooms, nil, nil)
	verifier := httpapi.NewStaticVerifier(map[string]string{"tok": "alice"})
	srv := httptest.NewServer(httpapi.New(config.Config{}, st, p, verifier, nil, nil).Router())
	t.Cleanup(srv.Close)
	return srv, rooms
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cache, err := NewSessionCache(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c, err := New(srv.URL, "tok", WithSessionCache(cache))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAgentLifecycle(t *testing.T) {
	srv, _ := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	created, err := c.CreateAgent(ctx, Agent{Name: "Concierge", Instructions: "Help."})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.LLMModel != "gpt-4o-mini" {
		t.Errorf("defaults not applied: %+v", created)
	}

	got, err := c.GetAgent(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Concierge" {
		t.Errorf("unexpected agent %+v", got)
	}

	updated, err := c.UpdateAgent(ctx, created.ID, map[string]any{"name": "Front Desk"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Front Desk" || updated.Instructions != "Help." {
		t.Errorf("partial update wrong: %+v", updated)
	}

	list, err := c.ListAgents(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Data) != 1 || list.Pagination.Total != 1 {
		t.Errorf("unexpected list %+v", list)
	}

	if err := c.DeleteAgent(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetAgent(ctx, created.ID); err == nil {
		t.Error("expected error after delete")
	}
}

func TestSessionCaching(t *testing.T) {
	srv, rooms := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := c.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	second, err := c.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}

	if first.SessionID != second.SessionID || first.Token != second.Token {
		t.Error("second call must reuse cached credentials")
	}
	if rooms.created != 1 {
		t.Errorf("expected 1 provisioned room, got %d", rooms.created)
	}
}

func TestRefreshSessionInvalidatesCache(t *testing.T) {
	srv, rooms := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := c.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	refreshed, err := c.RefreshSession(ctx, agent.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if refreshed.SessionID == first.SessionID {
		t.Error("refresh must provision a new session")
	}
	if rooms.created != 2 {
		t.Errorf("expected 2 provisioned rooms, got %d", rooms.created)
	}

	cached, err := c.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("session after refresh: %v", err)
	}
	if cached.SessionID != refreshed.SessionID {
		t.Error("refreshed credentials must be the new cached entry")
	}
}

func TestSessionCachePersistsAcrossClients(t *testing.T) {
	srv, rooms := newPlatform(t)
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()

	cache1, err := NewSessionCache(path)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	c1, err := New(srv.URL, "tok", WithSessionCache(cache1))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	agent, err := c1.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := c1.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	cache2, err := NewSessionCache(path)
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	c2, err := New(srv.URL, "tok", WithSessionCache(cache2))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	second, err := c2.Session(ctx, agent.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Error("credentials must survive a client restart")
	}
	if rooms.created != 1 {
		t.Errorf("expected no re-provision after restart, rooms=%d", rooms.created)
	}
}

func TestConnectRecoversFromRejectedToken(t *testing.T) {
	srv, rooms := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var dials int
	var seen []string
	creds, err := c.Connect(ctx, agent.ID, func(_ context.Context, creds *JoinCredentials) error {
		dials++
		seen = append(seen, creds.SessionID)
		if dials == 1 {
			return fmt.Errorf("could not connect: invalid token")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected one retry after rejection, got %d dials", dials)
	}
	if rooms.created != 2 {
		t.Errorf("expected exactly 2 provisioned rooms, got %d", rooms.created)
	}
	if seen[0] == seen[1] {
		t.Error("retry must use freshly provisioned credentials")
	}
	if cached, ok := c.cache.Get(agent.ID); !ok || cached.SessionID != creds.SessionID {
		t.Error("recovered credentials must replace the cached entry")
	}
}

func TestConnectSecondRejectionSurfaces(t *testing.T) {
	srv, rooms := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var dials int
	_, err = c.Connect(ctx, agent.ID, func(context.Context, *JoinCredentials) error {
		dials++
		return fmt.Errorf("could not connect: token expired")
	})
	if err == nil {
		t.Fatal("second rejection must surface")
	}
	if dials != 2 {
		t.Errorf("expected exactly 2 dials, got %d", dials)
	}
	if rooms.created != 2 {
		t.Errorf("re-provision must happen exactly once, rooms=%d", rooms.created)
	}
}

func TestConnectTransportErrorIsNotRetried(t *testing.T) {
	srv, rooms := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var dials int
	_, err = c.Connect(ctx, agent.ID, func(context.Context, *JoinCredentials) error {
		dials++
		return fmt.Errorf("connection refused")
	})
	if err == nil {
		t.Fatal("transport error must surface")
	}
	if dials != 1 {
		t.Errorf("transport errors must not retry, got %d dials", dials)
	}
	if rooms.created != 1 {
		t.Errorf("transport errors must not re-provision, rooms=%d", rooms.created)
	}
}

func TestTestSessionsAreNotCached(t *testing.T) {
	srv, _ := newPlatform(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, Agent{Name: "A", Instructions: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	test1, err := c.TestAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	test2, err := c.TestAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if test1.RoomName == test2.RoomName {
		t.Error("test sessions must get distinct rooms")
	}
}

func TestAuthErrorDetection(t *testing.T) {
	srv, _ := newPlatform(t)
	c, err := New(srv.URL, "wrong-token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.ListAgents(context.Background(), 1, 10)
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}
