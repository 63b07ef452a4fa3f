// Package classifier assigns category labels to transactions that don't have an ai category yet.
package classifier

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

// Input is what a classifier gets to see of a transaction.
type Input struct {
	Name         string
	Amount       decimal.Decimal
	MerchantName string
}

func InputFor(tx finance.Transaction) Input {
	in := Input{Name: tx.Name, Amount: tx.Amount}
	if tx.MerchantName != nil {
		in.MerchantName = *tx.MerchantName
	}
	return in
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (string, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(ctx context.Context, in Input) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, in Input) (string, error) {
	return f(ctx, in)
}
