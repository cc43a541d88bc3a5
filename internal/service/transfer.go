package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/ayo6706/ledger-gate/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DecisionRecorder appends entries to the decision ledger.
type DecisionRecorder interface {
	LogDecision(ctx context.Context, in models.DecisionInput) (string, error)
}

// TransferService is the only mutating entry point for money movement.
type TransferService struct {
	store     StateStore
	defaults  LimitPolicy
	decisions DecisionRecorder
}

// NewTransferService creates the orchestrator. defaults must be the policy
// the gate applies to accounts without a limits row; decisions may be nil.
func NewTransferService(store StateStore, defaults LimitPolicy, decisions DecisionRecorder) *TransferService {
	return &TransferService{
		store:     store,
		defaults:  defaults,
		decisions: decisions,
	}
}

// ProcessPayment moves req.Amount from the sender to the account holding
// req.RecipientAccountNumber. Balances, both legs, the limit decrement and the
// transfer record commit as one unit. Calling again with a committed
// TransferID returns the stored result with Replayed set, provided sender,
// recipient and amount match the committed transfer; otherwise the call fails
// with a conflict.
//
// Limits are not re-validated here; callers run CheckLimits first.
func (s *TransferService) ProcessPayment(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	res, err := s.processPayment(ctx, req)
	switch {
	case err == nil && res.Replayed:
		observability.IncrementTransfer("replayed")
	case err == nil:
		observability.IncrementTransfer("completed")
	case models.IsValidation(err) || models.IsNotFound(err) || models.IsConflict(err):
		observability.IncrementTransfer("rejected")
	default:
		observability.IncrementTransfer("failed")
	}
	return res, err
}

func (s *TransferService) processPayment(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	if _, err := s.store.ResetDailyLimitsIfStale(ctx); err != nil {
		return nil, fmt.Errorf("reset daily limits: %w", err)
	}

	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	if prior, found, err := s.store.GetTransfer(ctx, req.TransferID); err != nil {
		return nil, err
	} else if found {
		return replay(prior, req)
	}

	recipient, err := s.store.FindAccountByNumber(ctx, req.RecipientAccountNumber)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError(models.ErrRecipientNotFound, req.RecipientAccountNumber)
		}
		return nil, err
	}
	sender, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError(models.ErrSenderNotFound, req.AccountID)
		}
		return nil, err
	}
	if sender.AccountID == recipient.AccountID {
		return nil, models.NewValidationError("recipient_account_number", "cannot transfer to the same account")
	}
	if domain.NormalizeCurrency(sender.Currency) != domain.NormalizeCurrency(recipient.Currency) {
		return nil, models.NewValidationError("recipient_account_number",
			fmt.Sprintf("currency mismatch: sender is %s, recipient is %s", sender.Currency, recipient.Currency))
	}

	var result *models.TransferResult
	err = s.store.RunInTx(ctx, func(tx *repository.Tx) error {
		result = nil
		prior, found, err := tx.Transfer(req.TransferID)
		if err != nil {
			return err
		}
		if found {
			result, err = replay(prior, req)
			return err
		}

		from, err := tx.Account(sender.AccountID)
		if err != nil {
			return models.NewNotFoundError(models.ErrSenderNotFound, sender.AccountID)
		}
		to, err := tx.Account(recipient.AccountID)
		if err != nil {
			return models.NewNotFoundError(models.ErrRecipientNotFound, req.RecipientAccountNumber)
		}

		// 1. Balances
		from.LedgerBalance = domain.Round(from.LedgerBalance.Sub(req.Amount))
		to.LedgerBalance = domain.Round(to.LedgerBalance.Add(req.Amount))
		if err := tx.PutAccount(from); err != nil {
			return err
		}
		if err := tx.PutAccount(to); err != nil {
			return err
		}

		// 2. Double entry
		recipientName := req.RecipientName
		if recipientName == "" {
			recipientName = to.CustomerName
		}
		senderTxnID, err := tx.AppendTransaction(models.Transaction{
			AccountID:                 from.AccountID,
			Type:                      domain.TxTypeOutcome,
			CounterpartyName:          recipientName,
			CounterpartyAccountNumber: to.AccountNumber,
			Category:                  req.PaymentType,
			Description:               req.Description,
			Amount:                    req.Amount,
			Currency:                  from.Currency,
			Timestamp:                 req.Timestamp,
			TransferID:                req.TransferID,
		})
		if err != nil {
			return err
		}
		recipientTxnID, err := tx.AppendTransaction(models.Transaction{
			AccountID:                 to.AccountID,
			Type:                      domain.TxTypeIncome,
			CounterpartyName:          from.CustomerName,
			CounterpartyAccountNumber: from.AccountNumber,
			Category:                  req.PaymentType,
			Description:               req.Description,
			Amount:                    req.Amount,
			Currency:                  to.Currency,
			Timestamp:                 req.Timestamp,
			TransferID:                req.TransferID,
		})
		if err != nil {
			return err
		}

		// 3. Daily limit
		result = &models.TransferResult{
			TransferID:       req.TransferID,
			Status:           domain.TransferStatusCompleted,
			SenderAccountID:  from.AccountID,
			RecipientID:      to.AccountID,
			RecipientNumber:  to.AccountNumber,
			Amount:           req.Amount,
			Currency:         from.Currency,
			SenderTxnID:      senderTxnID,
			RecipientTxnID:   recipientTxnID,
			SenderBalance:    from.LedgerBalance,
			RecipientBalance: to.LedgerBalance,
			Timestamp:        req.Timestamp,
		}
		limits, err := tx.Limits(from.AccountID)
		switch {
		case errors.Is(err, models.ErrLimitsNotFound):
			if !s.defaults.DailyLimit.IsPositive() {
				break
			}
			// The default policy becomes a real row on first use so the
			// daily allowance is consumed like any other.
			limits = models.Limits{
				AccountID:      from.AccountID,
				PerTxnLimit:    s.defaults.PerTxnLimit,
				DailyLimit:     s.defaults.DailyLimit,
				RemainingToday: domain.ClampZero(s.defaults.DailyLimit.Sub(req.Amount)),
				Currency:       from.Currency,
				LastResetDate:  s.store.Now().Format(domain.DateLayout),
			}
			if err := tx.PutLimits(limits); err != nil {
				return err
			}
			result.RemainingToday = limits.RemainingToday
		case err != nil:
			return err
		default:
			if s.store.IsStale(limits) {
				limits.RemainingToday = limits.DailyLimit
				limits.LastResetDate = s.store.Now().Format(domain.DateLayout)
			}
			limits.RemainingToday = domain.ClampZero(limits.RemainingToday.Sub(req.Amount))
			if err := tx.PutLimits(limits); err != nil {
				return err
			}
			result.RemainingToday = limits.RemainingToday
		}

		return tx.PutTransfer(*result)
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}

	zap.L().Info("payment processed",
		zap.String("transfer_id", result.TransferID),
		zap.String("sender", result.SenderAccountID),
		zap.String("recipient", result.RecipientID),
		zap.String("amount", domain.NewMoney(result.Amount, result.Currency).String()),
	)
	s.recordDecision(ctx, req, sender, result)
	return result, nil
}

// replay returns a committed transfer for a retried request. Reusing the id
// for a different payment is a conflict, never a silent success.
func replay(prior *models.TransferResult, req models.TransferRequest) (*models.TransferResult, error) {
	sameRecipient := prior.RecipientNumber == "" || prior.RecipientNumber == req.RecipientAccountNumber
	if prior.SenderAccountID != req.AccountID || !prior.Amount.Equal(req.Amount) || !sameRecipient {
		return nil, models.NewConflictError(models.ErrTransferIDReused, req.TransferID)
	}
	prior.Replayed = true
	return prior, nil
}

func (s *TransferService) normalize(req models.TransferRequest) (models.TransferRequest, error) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.RecipientAccountNumber = strings.TrimSpace(req.RecipientAccountNumber)
	req.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	req.PaymentType = strings.ToLower(strings.TrimSpace(req.PaymentType))
	req.TransferID = strings.TrimSpace(req.TransferID)

	if req.AccountID == "" {
		return req, models.NewValidationError("account_id", "sender account_id is required")
	}
	if !req.Amount.IsPositive() {
		return req, models.NewValidationError("amount", "amount must be greater than zero")
	}
	if !req.Amount.Equal(domain.Round(req.Amount)) {
		return req, models.NewValidationError("amount",
			fmt.Sprintf("amount must have at most %d decimal places", domain.CurrencyScale))
	}
	if req.RecipientAccountNumber == "" {
		return req, models.NewValidationError("recipient_account_number", "recipient_account_number is required")
	}
	if req.PaymentType == "" {
		req.PaymentType = domain.PaymentTypeTransfer
	}
	if !domain.IsKnownPaymentType(req.PaymentType) {
		return req, models.NewValidationError("payment_type", fmt.Sprintf("unknown payment type %q", req.PaymentType))
	}
	if req.PaymentType != domain.PaymentTypeTransfer && req.PaymentMethodID == "" {
		return req, models.NewValidationError("payment_method_id", "payment_method_id is required for "+req.PaymentType+" payments")
	}

	if req.TransferID == "" {
		req.TransferID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.store.Now()
	}
	return req, nil
}

// recordDecision is best effort: a ledger failure is logged, never returned.
func (s *TransferService) recordDecision(ctx context.Context, req models.TransferRequest, sender *models.Account, res *models.TransferResult) {
	if s.decisions == nil {
		return
	}
	conversationID := ConversationIDFromContext(ctx)
	if conversationID == "" {
		conversationID = "transfer:" + res.TransferID
	}
	customerID := sender.CustomerID
	if customerID == "" {
		customerID = sender.AccountID
	}

	_, err := s.decisions.LogDecision(ctx, models.DecisionInput{
		ConversationID: conversationID,
		CustomerID:     customerID,
		AgentName:      domain.CoreAgentName,
		Action:         domain.ActionProcessPayment,
		Input:          models.ActionPayload{Kind: models.PayloadPaymentRequest, Payment: &req},
		Output:         models.ActionPayload{Kind: models.PayloadPaymentResult, PaymentResult: res},
		Rationale:      fmt.Sprintf("transferred %s to %s", domain.NewMoney(res.Amount, res.Currency), req.RecipientAccountNumber),
		Approval:       &models.Approval{Required: false, Status: models.ApprovalStatusNotRequired},
		Metadata: map[string]any{
			"payment_type": req.PaymentType,
			"transfer_id":  res.TransferID,
		},
	})
	if err != nil {
		zap.L().Error("failed to record payment decision",
			zap.String("transfer_id", res.TransferID),
			zap.Error(err),
		)
	}
}
