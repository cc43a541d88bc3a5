package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the core.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindPersistence ErrorKind = "persistence"
	KindConflict    ErrorKind = "conflict"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrSenderNotFound    = errors.New("sender account not found")
	ErrRecipientNotFound = errors.New("recipient account not found")
	ErrLimitsNotFound    = errors.New("limits not found")
	ErrDecisionNotFound  = errors.New("decision ledger entry not found")
	ErrDuplicateLedgerID = errors.New("decision ledger id already exists")
	ErrTransferIDReused  = errors.New("transfer id already used for a different payment")
)

// DomainError is a typed failure carrying its kind and, for validation
// failures, the offending field.
type DomainError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a missing or malformed field.
func NewValidationError(field, message string) error {
	return &DomainError{Kind: KindValidation, Field: field, Message: message}
}

// NewNotFoundError wraps a not-found sentinel with the looked up key.
func NewNotFoundError(sentinel error, key string) error {
	return &DomainError{Kind: KindNotFound, Message: key, Err: sentinel}
}

// NewPersistenceError wraps a durable-write or read failure.
func NewPersistenceError(op string, err error) error {
	return &DomainError{Kind: KindPersistence, Message: op, Err: err}
}

// NewConflictError reports a request that contradicts committed state.
func NewConflictError(sentinel error, key string) error {
	return &DomainError{Kind: KindConflict, Message: key, Err: sentinel}
}

func kindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

func IsPersistence(err error) bool {
	return kindOf(err) == KindPersistence
}

func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}
