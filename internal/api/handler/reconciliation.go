package handler

import (
	"net/http"

	"github.com/ayo6706/ledger-gate/internal/service"
)

type ReconciliationHandler struct {
	svc *service.ReconciliationService
}

func NewReconciliationHandler(svc *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc}
}

// Run performs an on-demand integrity check and returns its findings.
func (h *ReconciliationHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, "reconciliation", err)
		return
	}
	if report.Issues == nil {
		report.Issues = []string{}
	}
	RespondJSON(w, http.StatusOK, report)
}
