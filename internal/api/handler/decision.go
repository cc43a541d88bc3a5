package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/ledger-gate/internal/api/middleware"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/service"
	"github.com/go-chi/chi/v5"
)

type DecisionHandler struct {
	svc      *service.DecisionLedgerService
	location *time.Location
}

func NewDecisionHandler(svc *service.DecisionLedgerService, location *time.Location) *DecisionHandler {
	if location == nil {
		location = time.UTC
	}
	return &DecisionHandler{svc: svc, location: location}
}

func (h *DecisionHandler) LogDecision(w http.ResponseWriter, r *http.Request) {
	var in models.DecisionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	// An agent token names its agent, so the body may leave it out.
	if caller, ok := middleware.CallerFromContext(r.Context()); ok && in.AgentName == "" {
		in.AgentName = caller.AgentName
	}
	id, err := h.svc.LogDecision(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, "log decision", err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]string{"ledger_id": id})
}

func (h *DecisionHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetEntry(r.Context(), chi.URLParam(r, "ledgerID"))
	if err != nil {
		respondServiceError(w, r, "get decision", err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

func (h *DecisionHandler) Search(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseTimeRange(w, r, h.location)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := h.svc.Search(r.Context(), models.AuditSearchFilter{
		CustomerID: q.Get("customer_id"),
		AgentName:  q.Get("agent_name"),
		Action:     q.Get("action"),
		From:       from,
		To:         to,
		Page:       intParam(r, "page"),
		PageSize:   intParam(r, "page_size"),
	})
	if err != nil {
		respondServiceError(w, r, "search decisions", err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

func (h *DecisionHandler) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.GetCustomerHistory(r.Context(), chi.URLParam(r, "id"), intParam(r, "limit"))
	if err != nil {
		respondServiceError(w, r, "customer history", err)
		return
	}
	if entries == nil {
		entries = []models.DecisionLedgerEntry{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *DecisionHandler) CustomerTrail(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.GetDecisionAuditTrail(r.Context(), chi.URLParam(r, "id"), intParam(r, "limit"))
	if err != nil {
		respondServiceError(w, r, "decision trail", err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"decisions": records})
}

func (h *DecisionHandler) AgentInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := h.svc.GetAgentInteractions(r.Context(), chi.URLParam(r, "name"), intParam(r, "limit"))
	if err != nil {
		respondServiceError(w, r, "agent interactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"interactions": interactions})
}

func (h *DecisionHandler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.GetConversationHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, "conversation history", err)
		return
	}
	if entries == nil {
		entries = []models.DecisionLedgerEntry{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
