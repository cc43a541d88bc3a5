package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload kinds carried by decision ledger input and output.
const (
	PayloadLimitsCheck    = "limits_check"
	PayloadLimitsResult   = "limits_result"
	PayloadPaymentRequest = "payment_request"
	PayloadPaymentResult  = "payment_result"
	PayloadGeneric        = "generic"
)

const (
	PolicyDecisionApproved         = "approved"
	PolicyDecisionRejected         = "rejected"
	PolicyDecisionRequiresApproval = "requires_approval"

	ApprovalStatusPending     = "pending"
	ApprovalStatusApproved    = "approved"
	ApprovalStatusRejected    = "rejected"
	ApprovalStatusNotRequired = "not_required"
)

type LimitsCheckInput struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// ActionPayload is a tagged union over the known action shapes. Exactly the
// field matching Kind is set; Fields is the free-form fallback for
// PayloadGeneric.
type ActionPayload struct {
	Kind          string             `json:"kind"`
	LimitsCheck   *LimitsCheckInput  `json:"limits_check,omitempty"`
	LimitsResult  *LimitsCheckResult `json:"limits_result,omitempty"`
	Payment       *TransferRequest   `json:"payment,omitempty"`
	PaymentResult *TransferResult    `json:"payment_result,omitempty"`
	Fields        map[string]any     `json:"fields,omitempty"`
}

// Valid reports whether the payload carries the variant named by Kind.
func (p ActionPayload) Valid() bool {
	switch p.Kind {
	case PayloadLimitsCheck:
		return p.LimitsCheck != nil
	case PayloadLimitsResult:
		return p.LimitsResult != nil
	case PayloadPaymentRequest:
		return p.Payment != nil
	case PayloadPaymentResult:
		return p.PaymentResult != nil
	case PayloadGeneric, "":
		return true
	default:
		return false
	}
}

func GenericPayload(fields map[string]any) ActionPayload {
	return ActionPayload{Kind: PayloadGeneric, Fields: fields}
}

type PolicyEvaluation struct {
	PolicyName string          `json:"policy_name"`
	Decision   string          `json:"decision"`
	Reasons    []string        `json:"reasons,omitempty"`
	Checks     map[string]bool `json:"checks,omitempty"`
}

type Approval struct {
	Required   bool       `json:"required"`
	Status     string     `json:"status"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// DecisionLedgerEntry is written once and never updated.
type DecisionLedgerEntry struct {
	LedgerID         string            `json:"ledger_id"`
	ConversationID   string            `json:"conversation_id"`
	CustomerID       string            `json:"customer_id"`
	AgentName        string            `json:"agent_name"`
	Action           string            `json:"action"`
	Timestamp        time.Time         `json:"timestamp"`
	Input            ActionPayload     `json:"input"`
	Output           ActionPayload     `json:"output"`
	PolicyEvaluation *PolicyEvaluation `json:"policy_evaluation,omitempty"`
	Approval         *Approval         `json:"approval,omitempty"`
	Rationale        string            `json:"rationale"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// DecisionInput is everything a caller supplies to LogDecision.
type DecisionInput struct {
	ConversationID   string            `json:"conversation_id"`
	CustomerID       string            `json:"customer_id"`
	AgentName        string            `json:"agent_name"`
	Action           string            `json:"action"`
	Input            ActionPayload     `json:"input"`
	Output           ActionPayload     `json:"output"`
	Rationale        string            `json:"rationale"`
	PolicyEvaluation *PolicyEvaluation `json:"policy_evaluation,omitempty"`
	Approval         *Approval         `json:"approval,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// AgentInteraction is the operator view of one agent action.
type AgentInteraction struct {
	LedgerID       string    `json:"ledger_id"`
	Timestamp      time.Time `json:"timestamp"`
	AgentName      string    `json:"agent_name"`
	Action         string    `json:"action"`
	ConversationID string    `json:"conversation_id"`
	CustomerID     string    `json:"customer_id"`
}

// DecisionAuditRecord is the compliance view of a governed decision.
type DecisionAuditRecord struct {
	LedgerID         string            `json:"ledger_id"`
	Timestamp        time.Time         `json:"timestamp"`
	AgentName        string            `json:"agent_name"`
	Action           string            `json:"action"`
	Rationale        string            `json:"rationale"`
	PolicyEvaluation *PolicyEvaluation `json:"policy_evaluation,omitempty"`
	Approval         *Approval         `json:"approval,omitempty"`
}

type AuditSearchFilter struct {
	CustomerID string
	AgentName  string
	Action     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// DecisionQuery is the store-level selection over the decision ledger.
// Results are newest first unless Ascending is set; Limit 0 means no limit.
type DecisionQuery struct {
	CustomerID     string
	AgentName      string
	Action         string
	ConversationID string
	From           time.Time
	To             time.Time
	GovernedOnly   bool
	Ascending      bool
	Offset         int
	Limit          int
}

// Match applies every non-empty criterion. Ordering and paging are ignored.
func (q DecisionQuery) Match(e DecisionLedgerEntry) bool {
	if q.CustomerID != "" && e.CustomerID != q.CustomerID {
		return false
	}
	if q.AgentName != "" && e.AgentName != q.AgentName {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ConversationID != "" && e.ConversationID != q.ConversationID {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	if q.GovernedOnly && e.PolicyEvaluation == nil && e.Approval == nil {
		return false
	}
	return true
}

type AuditSearchResult struct {
	Entries    []DecisionLedgerEntry `json:"entries"`
	TotalCount int                   `json:"total_count"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
