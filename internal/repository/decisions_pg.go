package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const decisionLedgerDDL = `
CREATE TABLE IF NOT EXISTS decision_ledger (
	seq BIGSERIAL,
	ledger_id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	action TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	input JSONB NOT NULL,
	output JSONB NOT NULL,
	policy_evaluation JSONB,
	approval JSONB,
	rationale TEXT NOT NULL DEFAULT '',
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS decision_ledger_customer_ts ON decision_ledger (customer_id, ts DESC);
CREATE INDEX IF NOT EXISTS decision_ledger_conversation_ts ON decision_ledger (conversation_id, ts);
`

const decisionColumns = `ledger_id, conversation_id, customer_id, agent_name, action, ts, input, output, policy_evaluation, approval, rationale, metadata`

// PgDecisionStore keeps the decision ledger in Postgres. The table is
// insert-only; no statement in this file updates or deletes rows.
type PgDecisionStore struct {
	db *pgxpool.Pool
}

func NewPgDecisionStore(pool *pgxpool.Pool) *PgDecisionStore {
	return &PgDecisionStore{db: pool}
}

// EnsureSchema creates the decision_ledger table when missing.
func (s *PgDecisionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, decisionLedgerDDL); err != nil {
		return fmt.Errorf("ensure decision_ledger table: %w", err)
	}
	return nil
}

func (s *PgDecisionStore) Append(ctx context.Context, e models.DecisionLedgerEntry) error {
	input, err := json.Marshal(e.Input)
	if err != nil {
		return models.NewPersistenceError("encode decision input", err)
	}
	output, err := json.Marshal(e.Output)
	if err != nil {
		return models.NewPersistenceError("encode decision output", err)
	}
	policy, err := nullableJSON(e.PolicyEvaluation)
	if err != nil {
		return models.NewPersistenceError("encode policy evaluation", err)
	}
	approval, err := nullableJSON(e.Approval)
	if err != nil {
		return models.NewPersistenceError("encode approval", err)
	}
	metadata, err := nullableJSON(e.Metadata)
	if err != nil {
		return models.NewPersistenceError("encode metadata", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO decision_ledger (`+decisionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.LedgerID, e.ConversationID, e.CustomerID, e.AgentName, e.Action, e.Timestamp, input, output, policy, approval, e.Rationale, metadata)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("append decision %s: %w", e.LedgerID, models.ErrDuplicateLedgerID)
		}
		return models.NewPersistenceError("insert decision", err)
	}
	return nil
}

func (s *PgDecisionStore) Get(ctx context.Context, ledgerID string) (*models.DecisionLedgerEntry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+decisionColumns+` FROM decision_ledger WHERE ledger_id = $1`, ledgerID)
	e, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewNotFoundError(models.ErrDecisionNotFound, ledgerID)
		}
		return nil, models.NewPersistenceError("read decision", err)
	}
	return e, nil
}

func (s *PgDecisionStore) Find(ctx context.Context, q models.DecisionQuery) ([]models.DecisionLedgerEntry, int, error) {
	where, args := decisionWhere(q)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM decision_ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, models.NewPersistenceError("count decisions", err)
	}

	order := " ORDER BY ts DESC, seq DESC"
	if q.Ascending {
		order = " ORDER BY ts ASC, seq ASC"
	}
	query := `SELECT ` + decisionColumns + ` FROM decision_ledger` + where + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, models.NewPersistenceError("query decisions", err)
	}
	defer rows.Close()

	entries := make([]models.DecisionLedgerEntry, 0)
	for rows.Next() {
		e, err := scanDecision(rows)
		if err != nil {
			return nil, 0, models.NewPersistenceError("scan decision", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, models.NewPersistenceError("iterate decisions", err)
	}
	return entries, total, nil
}

func decisionWhere(q models.DecisionQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.CustomerID != "" {
		add("customer_id = $%d", q.CustomerID)
	}
	if q.AgentName != "" {
		add("agent_name = $%d", q.AgentName)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if q.ConversationID != "" {
		add("conversation_id = $%d", q.ConversationID)
	}
	if !q.From.IsZero() {
		add("ts >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("ts <= $%d", q.To)
	}
	if q.GovernedOnly {
		conds = append(conds, "(policy_evaluation IS NOT NULL OR approval IS NOT NULL)")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanDecision(row pgx.Row) (*models.DecisionLedgerEntry, error) {
	var (
		e                                         models.DecisionLedgerEntry
		ts                                        time.Time
		input, output, policy, approval, metadata []byte
	)
	if err := row.Scan(&e.LedgerID, &e.ConversationID, &e.CustomerID, &e.AgentName, &e.Action, &ts,
		&input, &output, &policy, &approval, &e.Rationale, &metadata); err != nil {
		return nil, err
	}
	e.Timestamp = ts.Local()
	if err := json.Unmarshal(input, &e.Input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if err := json.Unmarshal(output, &e.Output); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	if len(policy) > 0 {
		e.PolicyEvaluation = &models.PolicyEvaluation{}
		if err := json.Unmarshal(policy, e.PolicyEvaluation); err != nil {
			return nil, fmt.Errorf("decode policy evaluation: %w", err)
		}
	}
	if len(approval) > 0 {
		e.Approval = &models.Approval{}
		if err := json.Unmarshal(approval, e.Approval); err != nil {
			return nil, fmt.Errorf("decode approval: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}

func nullableJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case *models.PolicyEvaluation:
		if t == nil {
			return nil, nil
		}
	case *models.Approval:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
