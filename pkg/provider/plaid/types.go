package plaid

import (
	"time"

	"github.com/bcaldwell/plaidsync/pkg/provider"
)

type AccountsGetResponse struct {
	Accounts  []provider.Account
	Item      Item
	RequestID string
}

type Item struct {
	ItemID        string
	InstitutionID string
}

type TransactionsGetResponse struct {
	Transactions      []provider.Transaction
	TotalTransactions int
	RequestID         string
}

type TransactionsSyncResponse struct {
	Added      []provider.Transaction
	Modified   []provider.Transaction
	Removed    []provider.Removed
	NextCursor string
	HasMore    bool
	RequestID  string
}

type ItemPublicTokenExchangeResponse struct {
	AccessToken string
	ItemID      string
	RequestID   string
}

type LinkTokenCreateResponse struct {
	LinkToken  string    `json:"linkToken"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"requestId"`
}

type SandboxPublicTokenCreateResponse struct {
	PublicToken string
	RequestID   string
}

// errorResponse is the body of a non-2xx Plaid response.
type errorResponse struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id"`
}

const (
	// maxPageSize is the largest count /transactions/get and /transactions/sync accept.
	maxPageSize = 500
	// maxSyncRestarts bounds pagination restarts after a mutation error.
	maxSyncRestarts = 3

	defaultRetryBackoff = 500 * time.Millisecond
)
