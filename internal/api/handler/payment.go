package handler

import (
	"net/http"

	"github.com/ayo6706/ledger-gate/internal/api/middleware"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/service"
)

// ConversationIDHeader links a request to the caller's conversation so the
// decisions the core records can be joined with the caller's own.
const ConversationIDHeader = "X-Conversation-ID"

type PaymentHandler struct {
	svc *service.TransferService
}

func NewPaymentHandler(svc *service.TransferService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// ProcessPayment executes a transfer. The Idempotency-Key doubles as the
// transfer id, so a retry after a lost response replays the committed result.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(middleware.IdempotencyKeyHeader)
	if key == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	var req models.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TransferID = key

	ctx := service.WithConversationID(r.Context(), r.Header.Get(ConversationIDHeader))
	res, err := h.svc.ProcessPayment(ctx, req)
	if err != nil {
		respondServiceError(w, r, "process payment", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	RespondJSON(w, status, res)
}
