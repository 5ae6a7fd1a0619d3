package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voicedeck/voicedeck/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	recentSessionCap = 10
)

type listResponse struct {
	Data       []store.AgentSummary `json:"data"`
	Pagination store.Pagination     `json:"pagination"`
}

type agentDetailResponse struct {
	*store.AgentConfig
	RecentSessions []store.Session `json:"recentSessions"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent store.AgentConfig
	if err := decodeJSON(r, &agent); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	agent.UserID = UserID(r.Context())

	if err := s.store.CreateAgent(r.Context(), &agent); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.log.Info("created agent",
		slog.String("agent_id", agent.ID),
		slog.String("user_id", agent.UserID))
	respondJSON(w, http.StatusCreated, &agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	data, pagination, err := s.store.ListAgents(r.Context(), store.ListAgentsParams{
		UserID:   UserID(r.Context()),
		Page:     page,
		Limit:    limit,
		Provider: q.Get("provider"),
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if data == nil {
		data = []store.AgentSummary{}
	}
	respondJSON(w, http.StatusOK, listResponse{Data: data, Pagination: pagination})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := UserID(r.Context())

	agent, err := s.store.GetAgent(r.Context(), id, userID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	sessions, err := s.store.RecentSessions(r.Context(), id, recentSessionCap)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}

	respondJSON(w, http.StatusOK, agentDetailResponse{
		AgentConfig:    agent,
		RecentSessions: sessions,
	})
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var upd agentUpdateRequest
	if err := decodeJSON(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	agent, err := s.store.UpdateAgent(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()), upd.toUpdate())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteAgent(r.Context(), id, UserID(r.Context())); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.log.Info("deleted agent", slog.String("agent_id", id))
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// agentUpdateRequest mirrors the agent JSON shape with pointer fields so
// absent keys are distinguishable from zero values.
type agentUpdateRequest struct {
	Name                     *string              `json:"name"`
	Description              *string              `json:"description"`
	Instructions             *string              `json:"instructions"`
	LLMProvider              *string              `json:"llmProvider"`
	LLMModel                 *string              `json:"llmModel"`
	LLMTemperature           *float64             `json:"llmTemperature"`
	LLMMaxTokens             *int                 `json:"llmMaxTokens"`
	STTProvider              *string              `json:"sttProvider"`
	STTModel                 *string              `json:"sttModel"`
	STTLanguage              *string              `json:"sttLanguage"`
	TTSProvider              *string              `json:"ttsProvider"`
	TTSModel                 *string              `json:"ttsModel"`
	TTSVoice                 *string              `json:"ttsVoice"`
	TurnDetection            *store.TurnDetection `json:"turnDetection"`
	AllowInterruptions       *bool                `json:"allowInterruptions"`
	MinInterruptionDuration  *int                 `json:"minInterruptionDuration"`
	ResumeFalseInterruption  *bool                `json:"resumeFalseInterruption"`
	FalseInterruptionTimeout *int                 `json:"falseInterruptionTimeout"`
	MinEndpointingDelay      *int                 `json:"minEndpointingDelay"`
	MaxEndpointingDelay      *int                 `json:"maxEndpointingDelay"`
	TargetLatency            *int                 `json:"targetLatency"`
	SessionTimeout           *int                 `json:"sessionTimeout"`
}

func (r agentUpdateRequest) toUpdate() store.AgentUpdate {
	return store.AgentUpdate{
		Name:                     r.Name,
		Description:              r.Description,
		Instructions:             r.Instructions,
		LLMProvider:              r.LLMProvider,
		LLMModel:                 r.LLMModel,
		LLMTemperature:           r.LLMTemperature,
		LLMMaxTokens:             r.LLMMaxTokens,
		STTProvider:              r.STTProvider,
		STTModel:                 r.STTModel,
		STTLanguage:              r.STTLanguage,
		TTSProvider:              r.TTSProvider,
		TTSModel:                 r.TTSModel,
		TTSVoice:                 r.TTSVoice,
		TurnDetection:            r.TurnDetection,
		AllowInterruptions:       r.AllowInterruptions,
		MinInterruptionDuration:  r.MinInterruptionDuration,
		ResumeFalseInterruption:  r.ResumeFalseInterruption,
		FalseInterruptionTimeout: r.FalseInterruptionTimeout,
		MinEndpointingDelay:      r.MinEndpointingDelay,
		MaxEndpointingDelay:      r.MaxEndpointingDelay,
		TargetLatency:            r.TargetLatency,
		SessionTimeout:           r.SessionTimeout,
	}
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "agent not found")
	default:
		s.log.Error("store error", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
