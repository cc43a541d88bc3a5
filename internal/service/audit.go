package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit   = 50
	DefaultSearchPageSize = 20
	MaxSearchPageSize     = 100
)

// DecisionLedgerService writes and queries the append-only governance trail.
type DecisionLedgerService struct {
	store DecisionStore
	clock func() time.Time
}

func NewDecisionLedgerService(store DecisionStore, clock func() time.Time) *DecisionLedgerService {
	if clock == nil {
		clock = time.Now
	}
	return &DecisionLedgerService{store: store, clock: clock}
}

// LogDecision appends one immutable entry and returns its generated ledger id.
func (s *DecisionLedgerService) LogDecision(ctx context.Context, in models.DecisionInput) (string, error) {
	if err := validateDecision(in); err != nil {
		observability.IncrementDecisionWrite("invalid")
		return "", err
	}

	entry := models.DecisionLedgerEntry{
		LedgerID:         uuid.NewString(),
		ConversationID:   strings.TrimSpace(in.ConversationID),
		CustomerID:       strings.TrimSpace(in.CustomerID),
		AgentName:        strings.TrimSpace(in.AgentName),
		Action:           strings.TrimSpace(in.Action),
		Timestamp:        s.clock(),
		Input:            in.Input,
		Output:           in.Output,
		PolicyEvaluation: in.PolicyEvaluation,
		Approval:         in.Approval,
		Rationale:        in.Rationale,
		Metadata:         in.Metadata,
	}
	if entry.Input.Kind == "" {
		entry.Input.Kind = models.PayloadGeneric
	}
	if entry.Output.Kind == "" {
		entry.Output.Kind = models.PayloadGeneric
	}

	if err := s.store.Append(ctx, entry); err != nil {
		observability.IncrementDecisionWrite("failed")
		return "", fmt.Errorf("append decision: %w", err)
	}
	observability.IncrementDecisionWrite("ok")
	zap.L().Debug("decision logged",
		zap.String("ledger_id", entry.LedgerID),
		zap.String("agent", entry.AgentName),
		zap.String("action", entry.Action),
	)
	return entry.LedgerID, nil
}

func (s *DecisionLedgerService) GetEntry(ctx context.Context, ledgerID string) (*models.DecisionLedgerEntry, error) {
	if strings.TrimSpace(ledgerID) == "" {
		return nil, models.NewValidationError("ledger_id", "ledger_id is required")
	}
	return s.store.Get(ctx, ledgerID)
}

// GetCustomerHistory returns the newest entries of a customer first.
func (s *DecisionLedgerService) GetCustomerHistory(ctx context.Context, customerID string, limit int) ([]models.DecisionLedgerEntry, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, models.NewValidationError("customer_id", "customer_id is required")
	}
	entries, _, err := s.store.Find(ctx, models.DecisionQuery{CustomerID: customerID, Limit: historyLimit(limit)})
	return entries, err
}

// GetAgentInteractions lists what an agent did, newest first.
func (s *DecisionLedgerService) GetAgentInteractions(ctx context.Context, agentName string, limit int) ([]models.AgentInteraction, error) {
	if strings.TrimSpace(agentName) == "" {
		return nil, models.NewValidationError("agent_name", "agent_name is required")
	}
	entries, _, err := s.store.Find(ctx, models.DecisionQuery{AgentName: agentName, Limit: historyLimit(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]models.AgentInteraction, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.AgentInteraction{
			LedgerID:       e.LedgerID,
			Timestamp:      e.Timestamp,
			AgentName:      e.AgentName,
			Action:         e.Action,
			ConversationID: e.ConversationID,
			CustomerID:     e.CustomerID,
		})
	}
	return out, nil
}

// GetDecisionAuditTrail returns the governed decisions of a customer, those
// carrying a policy evaluation or an approval, newest first.
func (s *DecisionLedgerService) GetDecisionAuditTrail(ctx context.Context, customerID string, limit int) ([]models.DecisionAuditRecord, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, models.NewValidationError("customer_id", "customer_id is required")
	}
	entries, _, err := s.store.Find(ctx, models.DecisionQuery{
		CustomerID:   customerID,
		GovernedOnly: true,
		Limit:        historyLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.DecisionAuditRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.DecisionAuditRecord{
			LedgerID:         e.LedgerID,
			Timestamp:        e.Timestamp,
			AgentName:        e.AgentName,
			Action:           e.Action,
			Rationale:        e.Rationale,
			PolicyEvaluation: e.PolicyEvaluation,
			Approval:         e.Approval,
		})
	}
	return out, nil
}

// Search filters the ledger, sorts newest first, then paginates. TotalCount
// is the size of the filtered set.
func (s *DecisionLedgerService) Search(ctx context.Context, filter models.AuditSearchFilter) (*models.AuditSearchResult, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, models.NewValidationError("to", "to must not be before from")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSearchPageSize
	}
	if pageSize > MaxSearchPageSize {
		pageSize = MaxSearchPageSize
	}
	// Keeps (page-1)*pageSize from overflowing; such a page is empty anyway.
	if maxPage := math.MaxInt32 / pageSize; page > maxPage {
		page = maxPage
	}

	entries, total, err := s.store.Find(ctx, models.DecisionQuery{
		CustomerID: filter.CustomerID,
		AgentName:  filter.AgentName,
		Action:     filter.Action,
		From:       filter.From,
		To:         filter.To,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.DecisionLedgerEntry{}
	}
	return &models.AuditSearchResult{
		Entries:    entries,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// GetConversationHistory returns every entry of a conversation in the order
// it happened.
func (s *DecisionLedgerService) GetConversationHistory(ctx context.Context, conversationID string) ([]models.DecisionLedgerEntry, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, models.NewValidationError("conversation_id", "conversation_id is required")
	}
	entries, _, err := s.store.Find(ctx, models.DecisionQuery{ConversationID: conversationID, Ascending: true})
	return entries, err
}

func validateDecision(in models.DecisionInput) error {
	required := []struct{ field, value string }{
		{"conversation_id", in.ConversationID},
		{"customer_id", in.CustomerID},
		{"agent_name", in.AgentName},
		{"action", in.Action},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return models.NewValidationError(r.field, r.field+" is required")
		}
	}
	if !in.Input.Valid() {
		return models.NewValidationError("input", fmt.Sprintf("input payload of kind %q is incomplete", in.Input.Kind))
	}
	if !in.Output.Valid() {
		return models.NewValidationError("output", fmt.Sprintf("output payload of kind %q is incomplete", in.Output.Kind))
	}
	if ev := in.PolicyEvaluation; ev != nil {
		switch ev.Decision {
		case models.PolicyDecisionApproved, models.PolicyDecisionRejected, models.PolicyDecisionRequiresApproval:
		default:
			return models.NewValidationError("policy_evaluation.decision", fmt.Sprintf("unknown policy decision %q", ev.Decision))
		}
	}
	if ap := in.Approval; ap != nil {
		switch ap.Status {
		case models.ApprovalStatusPending, models.ApprovalStatusApproved, models.ApprovalStatusRejected, models.ApprovalStatusNotRequired:
		default:
			return models.NewValidationError("approval.status", fmt.Sprintf("unknown approval status %q", ap.Status))
		}
	}
	return nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
