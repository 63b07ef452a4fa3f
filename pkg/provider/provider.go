// Package provider is the contract with the external bank aggregation service.
package provider

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ErrCursorUnavailable means the provider can't serve a delta for this item and the caller
// has to fall back to a windowed re-fetch.
var ErrCursorUnavailable = errors.New("provider: delta cursor unavailable")

// SignConvention is how a provider signs transaction amounts.
type SignConvention int

const (
	// DebitPositive reports money leaving the account as a positive amount.
	DebitPositive SignConvention = iota
	// CreditPositive reports money entering the account as a positive amount.
	CreditPositive
)

func (c SignConvention) String() string {
	switch c {
	case DebitPositive:
		return "debit-positive"
	case CreditPositive:
		return "credit-positive"
	}
	return "unknown"
}

// Provider is implemented by aggregation backends. Failing calls return a
// *finance.ProviderCallError.
type Provider interface {
	ExchangeToken(ctx context.Context, publicToken string) (Exchange, error)
	ListAccountsForToken(ctx context.Context, accessToken string) ([]Account, error)
	// FetchTransactionsDelta returns every change since cursor. The empty cursor asks for the
	// full history available to the item.
	FetchTransactionsDelta(ctx context.Context, accessToken, cursor string) (Delta, error)
	// FetchTransactionsWindow returns every transaction dated in [start, end].
	FetchTransactionsWindow(ctx context.Context, accessToken string, start, end civil.Date) ([]Transaction, error)
	SignConvention() SignConvention
}

type Exchange struct {
	AccessToken string
	ItemID      string
}

type Account struct {
	ID      string `json:"account_id"`
	Name    string `json:"name"`
	Mask    string `json:"mask"`
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// Transaction is a provider record as reported, before sign or category normalization.
type Transaction struct {
	ID                      string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  decimal.Decimal          `json:"amount"`
	Date                    string                   `json:"date"`
	Name                    string                   `json:"name"`
	MerchantName            string                   `json:"merchant_name"`
	Pending                 bool                     `json:"pending"`
	Category                []string                 `json:"category"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category,omitempty"`
}

type PersonalFinanceCategory struct {
	Primary  string `json:"primary"`
	Detailed string `json:"detailed"`
}

// Removed is the provider's reference to a deleted transaction.
type Removed struct {
	TransactionID string `json:"transaction_id"`
}

type Delta struct {
	Added      []Transaction
	Modified   []Transaction
	Removed    []string
	NextCursor string
}
