package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Dispatcher is the orchestrator surface the handlers call.
type Dispatcher interface {
	Dispatch(ctx context.Context, agendamentoID string) (*dispatch.DispatchResult, error)
}

// StatusReader serves the campaign status view.
type StatusReader interface {
	Status(ctx context.Context, id string) (*domain.CampaignStatusView, error)
}

// Handlers holds the request handlers and their dependencies.
type Handlers struct {
	dispatcher Dispatcher
	status     StatusReader
	apiKey     string
}

// NewHandlers creates the handler set.
func NewHandlers(d Dispatcher, s StatusReader, apiKey string) *Handlers {
	return &Handlers{dispatcher: d, status: s, apiKey: apiKey}
}

// RequireAPIKey rejects requests whose X-API-KEY header does not match.
func (h *Handlers) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"success": false,
				"message": "invalid api key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type dispatchRequest struct {
	AgendamentoID string `json:"agendamento_id"`
}

// HandleDispatch accepts a campaign dispatch request.
//
//	POST /campaigns/dispatch
func (h *Handlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "invalid request body",
		})
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req.AgendamentoID)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"message": err.Error(),
			})
			return
		}
		log.Printf("[API] Dispatch %s: %v", req.AgendamentoID, err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "internal error",
		})
		return
	}

	body := map[string]interface{}{
		"success": result.Accepted,
		"message": result.Message,
	}
	if result.CampaignID != "" {
		body["campaign_id"] = result.CampaignID
	}
	if result.Status != "" {
		body["status"] = result.Status
	}
	respondJSON(w, http.StatusAccepted, body)
}

// HandleStatus returns the aggregate view of one campaign.
//
//	GET /campaigns/{id}/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.status.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"message": "campaign not found",
			})
			return
		}
		log.Printf("[API] Status %s: %v", id, err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "internal error",
		})
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Encode response: %v", err)
	}
}
