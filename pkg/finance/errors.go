package finance

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateRecord = errors.New("record already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrClassifier      = errors.New("classifier failed")
	ErrProviderCall    = errors.New("provider call failed")
)

// ProviderCallError is a failed call to the aggregation provider (network, auth, rate limit).
type ProviderCallError struct {
	Op  string
	Err error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() []error { return []error{ErrProviderCall, e.Err} }

// DuplicateRecordError is a create that hit the external id uniqueness constraint.
type DuplicateRecordError struct {
	ExternalID string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("transaction %s already exists", e.ExternalID)
}

func (e *DuplicateRecordError) Unwrap() error { return ErrDuplicateRecord }

// NotFoundOnModifyError is a "modified" report for an external id that was never ingested.
type NotFoundOnModifyError struct {
	ExternalID string
}

func (e *NotFoundOnModifyError) Error() string {
	return fmt.Sprintf("modified transaction %s not found", e.ExternalID)
}

func (e *NotFoundOnModifyError) Unwrap() error { return ErrNotFound }

// NotFoundOnRemoveError is a "removed" report for an external id that is already gone.
type NotFoundOnRemoveError struct {
	ExternalID string
}

func (e *NotFoundOnRemoveError) Error() string {
	return fmt.Sprintf("removed transaction %s not found", e.ExternalID)
}

func (e *NotFoundOnRemoveError) Unwrap() error { return ErrNotFound }

// ClassifierError is a failed categorization of one transaction.
type ClassifierError struct {
	TransactionID int64
	Err           error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifying transaction %d: %v", e.TransactionID, e.Err)
}

func (e *ClassifierError) Unwrap() []error { return []error{ErrClassifier, e.Err} }

// ValidationError is a malformed provider record or caller input.
type ValidationError struct {
	ExternalID string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s on %s: %s", e.Field, e.ExternalID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnauthorizedError is a caller asking for an account it does not own.
type UnauthorizedError struct {
	UserID    string
	AccountID string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %q is not entitled to account %q", e.UserID, e.AccountID)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// SyncError aborts the batch of a single account.
type SyncError struct {
	AccountID string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync account %s: %v", e.AccountID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
