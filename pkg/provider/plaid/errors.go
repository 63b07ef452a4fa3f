package plaid

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the client id or secret is missing.
	ErrNotConfigured = errors.New("plaid: client id and secret are required")

	ErrInvalidToken      = errors.New("plaid: invalid or expired access token")
	ErrRateLimited       = errors.New("plaid: rate limit exceeded")
	ErrItemLoginRequired = errors.New("plaid: item requires user re-authentication")

	// errSyncMutation asks the caller to restart pagination from the first cursor.
	errSyncMutation = errors.New("plaid: transactions changed during pagination")
)

const (
	codeSyncMutation         = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
	codeProductsNotSupported = "PRODUCTS_NOT_SUPPORTED"
	codeProductNotEnabled    = "PRODUCT_NOT_ENABLED"
	codeInvalidProduct       = "INVALID_PRODUCT"
)

// APIError is an error body returned by the Plaid API.
type APIError struct {
	StatusCode   int
	ErrorType    string
	ErrorCode    string
	ErrorMessage string
	RequestID    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid API error: %s (status=%d, type=%s, code=%s, request_id=%s)",
		e.ErrorMessage, e.StatusCode, e.ErrorType, e.ErrorCode, e.RequestID)
}

func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// cursorUnsupported reports whether the item can't be served by /transactions/sync.
func (e *APIError) cursorUnsupported() bool {
	switch e.ErrorCode {
	case codeProductsNotSupported, codeProductNotEnabled, codeInvalidProduct:
		return true
	}
	return false
}
