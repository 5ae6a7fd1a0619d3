package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/voicedeck/voicedeck/internal/provision"
	"github.com/voicedeck/voicedeck/internal/store"
)

type createSessionRequest struct {
	AgentID string `json:"agentId"`
	IsTest  bool   `json:"isTest"`
}

type endSessionRequest struct {
	TotalDuration int     `json:"totalDuration"`
	AvgLatency    float64 `json:"avgLatency"`
	MessageCount  int     `json:"messageCount"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "agentId is required")
		return
	}
	s.provisionAndRespond(w, r, provision.Request{
		UserID:  UserID(r.Context()),
		AgentID: req.AgentID,
		Test:    req.IsTest,
	})
}

type testAgentResponse struct {
	SessionID   string          `json:"sessionId"`
	RoomName    string          `json:"roomName"`
	AgentConfig testAgentConfig `json:"agentConfig"`
}

type testAgentConfig struct {
	LLMProvider  string `json:"llmProvider"`
	LLMModel     string `json:"llmModel"`
	STTProvider  string `json:"sttProvider"`
	TTSProvider  string `json:"ttsProvider"`
	Instructions string `json:"instructions"`
}

// handleTestAgent records a lightweight test session row without
// provisioning a room or minting credentials. The dashboard uses it to
// smoke-test a config before a full session.
func (s *Server) handleTestAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := UserID(r.Context())

	agent, err := s.store.GetAgent(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		s.log.Error("load agent failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	sess := &store.Session{
		SessionID: "test_" + ulid.Make().String(),
		RoomName:  provision.RoomName(id, userID, true),
		UserID:    userID,
		AgentID:   id,
		Status:    store.SessionActive,
		Metadata:  map[string]any{"isTest": true},
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.respondSessionError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsCreated.WithLabelValues("test").Inc()
	}

	respondJSON(w, http.StatusOK, testAgentResponse{
		SessionID: sess.SessionID,
		RoomName:  sess.RoomName,
		AgentConfig: testAgentConfig{
			LLMProvider:  agent.LLMProvider,
			LLMModel:     agent.LLMModel,
			STTProvider:  agent.STTProvider,
			TTSProvider:  agent.TTSProvider,
			Instructions: agent.Instructions,
		},
	})
}

func (s *Server) provisionAndRespond(w http.ResponseWriter, r *http.Request, req provision.Request) {
	res, err := s.provisioner.Provision(r.Context(), req)
	if err != nil {
		if errors.Is(err, provision.ErrAgentNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		s.log.Error("provision failed", "error", err)
		respondError(w, http.StatusInternalServerError, "provision_failed", "could not create session")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := UserID(r.Context())

	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	// Ownership check before the write; EndSession itself is keyed by
	// session id only.
	sess, err := s.store.GetSession(r.Context(), id, userID)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	if err := s.store.EndSession(r.Context(), id, store.SessionMetrics{
		TotalDuration: req.TotalDuration,
		AvgLatency:    req.AvgLatency,
		MessageCount:  req.MessageCount,
	}); err != nil {
		s.respondSessionError(w, err)
		return
	}
	if s.metrics != nil && sess.Status == store.SessionActive {
		s.metrics.ActiveSessions.Dec()
	}
	respondJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	s.log.Error("session store error", "error", err)
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}
