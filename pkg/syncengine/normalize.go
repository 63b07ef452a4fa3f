package syncengine

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/provider"
)

const unknownTransactionName = "Unknown Transaction"

// NormalizeAmount converts a provider amount to the stored convention, where money leaving
// the account is negative. Every ingestion path goes through here.
func NormalizeAmount(amount decimal.Decimal, convention provider.SignConvention) decimal.Decimal {
	if convention == provider.DebitPositive {
		return amount.Neg()
	}
	return amount
}

// NormalizeCategory flattens the structured taxonomy (primary, then detailed) when present,
// otherwise keeps the legacy list. It never returns nil.
func NormalizeCategory(tx provider.Transaction) []string {
	if pfc := tx.PersonalFinanceCategory; pfc != nil && pfc.Primary != "" {
		category := []string{pfc.Primary}
		if pfc.Detailed != "" {
			category = append(category, pfc.Detailed)
		}
		return category
	}

	category := make([]string, 0, len(tx.Category))
	for _, c := range tx.Category {
		if c != "" {
			category = append(category, c)
		}
	}
	return category
}

// normalizeRecord validates a provider record and maps it onto the provider owned columns.
func normalizeRecord(tx provider.Transaction, convention provider.SignConvention) (finance.TransactionFields, error) {
	if tx.ID == "" {
		return finance.TransactionFields{}, &finance.ValidationError{Field: "transaction_id", Reason: "missing"}
	}

	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return finance.TransactionFields{}, &finance.ValidationError{ExternalID: tx.ID, Field: "date", Reason: err.Error()}
	}

	name := strings.TrimSpace(tx.Name)
	if name == "" {
		name = unknownTransactionName
	}

	return finance.TransactionFields{
		Amount:       NormalizeAmount(tx.Amount, convention),
		Date:         date,
		Name:         name,
		MerchantName: finance.StringPtr(strings.TrimSpace(tx.MerchantName)),
		Category:     NormalizeCategory(tx),
		Pending:      tx.Pending,
	}, nil
}
