// Package store persists linked accounts, transactions and sync cursors.
//
// Every create and update is a single atomic write. The external transaction id is unique
// across the whole store: when two creates race for the same id exactly one succeeds and the
// other fails with finance.ErrDuplicateRecord.
package store

import (
	"context"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

type AccountRegistry interface {
	CreateAccount(ctx context.Context, userID, accessToken, itemID string) (finance.ExternalAccount, error)
	// ListAccounts is total: an unknown user has no accounts.
	ListAccounts(ctx context.Context, userID string) ([]finance.ExternalAccount, error)
	// GetAccount returns finance.ErrNotFound for an unknown id.
	GetAccount(ctx context.Context, accountID string) (finance.ExternalAccount, error)
}

type TransactionStore interface {
	// CreateTransaction inserts tx, failing with finance.ErrDuplicateRecord when tx.PlaidID exists.
	CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error)
	// UpsertByExternalID creates the row or overwrites its provider owned fields. created
	// reports which happened. AICategory is never touched.
	UpsertByExternalID(ctx context.Context, userID, accountID, externalID string, fields finance.TransactionFields) (tx finance.Transaction, created bool, err error)
	// UpdateByExternalID overwrites the provider owned fields of an existing row,
	// failing with finance.ErrNotFound when there is none.
	UpdateByExternalID(ctx context.Context, externalID string, fields finance.TransactionFields) (finance.Transaction, error)
	// DeleteByExternalID reports whether a row was removed.
	DeleteByExternalID(ctx context.Context, externalID string) (bool, error)
	// ListForUser orders by date descending, ties by insertion order.
	ListForUser(ctx context.Context, userID string, query finance.TransactionQuery) ([]finance.Transaction, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	CountForAccount(ctx context.Context, accountID string) (int, error)
	// ListUnclassified returns the user's rows with no ai category, in insertion order.
	ListUnclassified(ctx context.Context, userID string) ([]finance.Transaction, error)
	SetAICategory(ctx context.Context, transactionID int64, label string) error
}

// CursorStore remembers the provider delta cursor per account. An account that was never
// synced has the empty cursor.
type CursorStore interface {
	GetCursor(ctx context.Context, accountID string) (string, error)
	SaveCursor(ctx context.Context, accountID, cursor string) error
}

// Store is everything the sync pipeline persists.
type Store interface {
	AccountRegistry
	TransactionStore
	CursorStore
}
