package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	accounts *service.AccountService
	limits   *service.LimitsService
	location *time.Location
}

func NewAccountHandler(accounts *service.AccountService, limits *service.LimitsService, location *time.Location) *AccountHandler {
	if location == nil {
		location = time.UTC
	}
	return &AccountHandler{accounts: accounts, limits: limits, location: location}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		respondServiceError(w, r, "list accounts", err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, "get account", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseTimeRange(w, r, h.location)
	if !ok {
		return
	}
	txns, err := h.accounts.SearchTransactions(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		respondServiceError(w, r, "search transactions", err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *AccountHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.limits.GetAccountLimits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, "get limits", err)
		return
	}
	RespondJSON(w, http.StatusOK, limits)
}

func (h *AccountHandler) CheckLimits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.limits.CheckLimits(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Currency)
	if err != nil {
		respondServiceError(w, r, "check limits", err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
