package domain

const (
	TxTypeIncome  = "income"
	TxTypeOutcome = "outcome"

	// Payment types accepted by the transfer orchestrator. Only direct
	// account-to-account transfers may omit a payment method.
	PaymentTypeTransfer     = "transfer"
	PaymentTypeCard         = "card"
	PaymentTypeDirectDebit  = "direct_debit"
	PaymentTypeBankTransfer = "bank_transfer"

	TransferStatusCompleted = "COMPLETED"

	// Decision ledger actions emitted by the core itself.
	ActionCheckLimits    = "check_limits"
	ActionProcessPayment = "process_payment"

	// Agent name used when the core records its own decisions.
	CoreAgentName = "ledger-core"

	DateLayout = "2006-01-02"
)

var paymentTypes = map[string]struct{}{
	PaymentTypeTransfer:     {},
	PaymentTypeCard:         {},
	PaymentTypeDirectDebit:  {},
	PaymentTypeBankTransfer: {},
}

// IsKnownPaymentType reports whether t is one of the accepted payment types.
func IsKnownPaymentType(t string) bool {
	_, ok := paymentTypes[t]
	return ok
}
