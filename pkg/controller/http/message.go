package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

type messageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

type decisionResponse struct {
	Outcome        string `json:"outcome"`
	Reply          string `json:"reply"`
	Confidence     int    `json:"confidence"`
	Novelty        int    `json:"novelty"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	EscalationID   string `json:"escalation_id,omitempty"`
}

// messageHandler runs the decision pipeline for one viewer message
func messageHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := types.AgentID(chi.URLParam(r, "agentID"))

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			errutil.HandleHTTP(r.Context(), w, goerr.New("text is required"), http.StatusBadRequest)
			return
		}

		viewer := viewerFrom(r.Context())
		decision, err := uc.Answer.HandleMessage(r.Context(), agentID, viewer, model.ConversationID(req.ConversationID), req.Text)
		if err != nil {
			handleError(r.Context(), w, err)
			return
		}

		respondJSON(r.Context(), w, http.StatusOK, decisionResponse{
			Outcome:        decision.Outcome.String(),
			Reply:          decision.Reply,
			Confidence:     decision.Confidence,
			Novelty:        decision.Novelty,
			ConversationID: string(decision.ConversationID),
			MessageID:      string(decision.MessageID),
			EscalationID:   string(decision.EscalationID),
		})
	}
}
