package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

type metricsResponse struct {
	AgentID                string  `json:"agent_id"`
	WindowDays             int     `json:"window_days"`
	TotalMessages          int     `json:"total_messages"`
	AutoAnswered           int     `json:"auto_answered"`
	CanonicalReused        int     `json:"canonical_reused"`
	EscalationsOffered     int     `json:"escalations_offered"`
	EscalationsAnswered    int     `json:"escalations_answered"`
	ClarificationRequested int     `json:"clarification_requested"`
	Blocked                int     `json:"blocked"`
	AvgConfidence          float64 `json:"avg_confidence"`
	AvgNovelty             float64 `json:"avg_novelty"`
	AutoAnswerRate         float64 `json:"auto_answer_rate"`
}

func metricsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))

		days := 0
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid days parameter"), http.StatusBadRequest)
				return
			}
			days = parsed
		}

		metrics, err := uc.Metrics.GetMetrics(r.Context(), agentID, days)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, metricsResponse{
			AgentID:                string(metrics.AgentID),
			WindowDays:             metrics.WindowDays,
			TotalMessages:          metrics.TotalMessages,
			AutoAnswered:           metrics.AutoAnswered,
			CanonicalReused:        metrics.CanonicalReused,
			EscalationsOffered:     metrics.EscalationsOffered,
			EscalationsAnswered:    metrics.EscalationsAnswered,
			ClarificationRequested: metrics.ClarificationRequested,
			Blocked:                metrics.Blocked,
			AvgConfidence:          metrics.AvgConfidence,
			AvgNovelty:             metrics.AvgNovelty,
			AutoAnswerRate:         metrics.AutoAnswerRate,
		})
	}
}

type configPayload struct {
	AgentID              string   `json:"agent_id,omitempty"`
	AnswerEnabled        bool     `json:"answer_enabled"`
	ConfidenceThreshold  int      `json:"confidence_threshold"`
	ReuseThreshold       float64  `json:"reuse_threshold"`
	MergeThreshold       float64  `json:"merge_threshold"`
	ClarificationEnabled bool     `json:"clarification_enabled"`
	EscalationEnabled    bool     `json:"escalation_enabled"`
	EscalationDailyCap   int      `json:"escalation_daily_cap"`
	EscalationWeeklyCap  int      `json:"escalation_weekly_cap"`
	BlockedTopics        []string `json:"blocked_topics,omitempty"`
	AllowedTiers         []string `json:"allowed_tiers,omitempty"`
	UpdatedAt            string   `json:"updated_at,omitempty"`
}

func configToPayload(config *model.AgentConfig) configPayload {
	tiers := make([]string, len(config.AllowedTiers))
	for i, tier := range config.AllowedTiers {
		tiers[i] = string(tier)
	}

	payload := configPayload{
		AgentID:              string(config.AgentID),
		AnswerEnabled:        config.AnswerEnabled,
		ConfidenceThreshold:  config.ConfidenceThreshold,
		ReuseThreshold:       config.ReuseThreshold,
		MergeThreshold:       config.MergeThreshold,
		ClarificationEnabled: config.ClarificationEnabled,
		EscalationEnabled:    config.EscalationEnabled,
		EscalationDailyCap:   config.EscalationDailyCap,
		EscalationWeeklyCap:  config.EscalationWeeklyCap,
		BlockedTopics:        config.BlockedTopics,
		AllowedTiers:         tiers,
	}
	if !config.UpdatedAt.IsZero() {
		payload.UpdatedAt = config.UpdatedAt.Format(time.RFC3339)
	}
	return payload
}

func getConfigHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))

		config, err := uc.Config.GetConfig(r.Context(), agentID)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, configToPayload(config))
	}
}

func putConfigHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))

		var req configPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		tiers := make([]types.ViewerTier, len(req.AllowedTiers))
		for i, tier := range req.AllowedTiers {
			tiers[i] = types.ViewerTier(tier)
		}

		config := &model.AgentConfig{
			AgentID:              agentID,
			AnswerEnabled:        req.AnswerEnabled,
			ConfidenceThreshold:  req.ConfidenceThreshold,
			ReuseThreshold:       req.ReuseThreshold,
			MergeThreshold:       req.MergeThreshold,
			ClarificationEnabled: req.ClarificationEnabled,
			EscalationEnabled:    req.EscalationEnabled,
			EscalationDailyCap:   req.EscalationDailyCap,
			EscalationWeeklyCap:  req.EscalationWeeklyCap,
			BlockedTopics:        req.BlockedTopics,
			AllowedTiers:         tiers,
		}

		updated, err := uc.Config.UpdateConfig(r.Context(), config)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, configToPayload(updated))
	}
}

type knowledgeRequest struct {
	Text   string `json:"text"`
	Layer  string `json:"layer"`
	Source string `json:"source,omitempty"`
}

type knowledgeResponse struct {
	ID        string `json:"id"`
	Layer     string `json:"layer"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at"`
}

func ingestKnowledgeHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))

		var req knowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		layer, err := types.ParseKnowledgeLayer(req.Layer)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid layer"), http.StatusBadRequest)
			return
		}

		chunk, err := uc.Ingest.IngestKnowledge(r.Context(), agentID, req.Text, layer, req.Source)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusCreated, knowledgeResponse{
			ID:        string(chunk.ID),
			Layer:     string(chunk.Layer),
			Source:    chunk.Source,
			CreatedAt: chunk.CreatedAt.Format(time.RFC3339),
		})
	}
}

type escalationResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
	Status         string `json:"status"`
	Answer         string `json:"answer,omitempty"`
	CreatedAt      string `json:"created_at"`
	AnsweredAt     string `json:"answered_at,omitempty"`
}

func escalationToResponse(esc *model.Escalation) escalationResponse {
	resp := escalationResponse{
		ID:             string(esc.ID),
		ConversationID: string(esc.ConversationID),
		Question:       esc.Question,
		Status:         esc.Status.String(),
		Answer:         esc.Answer,
		CreatedAt:      esc.CreatedAt.Format(time.RFC3339),
	}
	if !esc.AnsweredAt.IsZero() {
		resp.AnsweredAt = esc.AnsweredAt.Format(time.RFC3339)
	}
	return resp
}

func listEscalationsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))
		status := types.EscalationStatus(r.URL.Query().Get("status"))

		escalations, err := uc.Escalation.List(r.Context(), agentID, status)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		resp := struct {
			Escalations []escalationResponse `json:"escalations"`
		}{
			Escalations: make([]escalationResponse, len(escalations)),
		}
		for i, esc := range escalations {
			resp.Escalations[i] = escalationToResponse(esc)
		}

		respondJSON(r.Context(), w, http.StatusOK, resp)
	}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func answerEscalationHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))
		escalationID := model.EscalationID(chi.URLParam(r, "escalationID"))

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		esc, err := uc.Escalation.Answer(r.Context(), agentID, escalationID, req.Answer)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, escalationToResponse(esc))
	}
}

type grantRequest struct {
	Layer string `json:"layer"`
}

type grantResponse struct {
	AgentID  string `json:"agent_id"`
	ViewerID string `json:"viewer_id"`
	Layer    string `json:"layer"`
}

func putGrantHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))
		viewerID := types.ViewerID(chi.URLParam(r, "viewerID"))

		var req grantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		layer, err := types.ParseKnowledgeLayer(req.Layer)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid layer"), http.StatusBadRequest)
			return
		}

		grant, err := uc.Access.SetGrant(r.Context(), agentID, viewerID, layer)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, grantResponse{
			AgentID:  string(grant.AgentID),
			ViewerID: string(grant.ViewerID),
			Layer:    string(grant.Layer),
		})
	}
}
