// Package aggregate computes spending breakdowns from stored transactions.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

// IncomeCategory is reported first with a zero percentage and left out of total spending.
const IncomeCategory = finance.IncomeCategory

var hundred = decimal.NewFromInt(100)

// Lister is the read side of the transaction store.
type Lister interface {
	ListForUser(ctx context.Context, userID string, query finance.TransactionQuery) ([]finance.Transaction, error)
}

type Engine struct {
	store Lister
}

func NewEngine(s Lister) *Engine {
	return &Engine{store: s}
}

// CategorySpending is one group of the breakdown. Amount keeps its sign.
type CategorySpending struct {
	Category   string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

type Summary struct {
	Range         finance.DateRange
	TotalIncome   decimal.Decimal
	TotalSpending decimal.Decimal
	Net           decimal.Decimal
	Categories    []CategorySpending
}

// SpendingByCategory groups the user's transactions in [start, end] by effective category.
func (e *Engine) SpendingByCategory(ctx context.Context, userID string, start, end civil.Date) ([]CategorySpending, error) {
	summary, err := e.Summarize(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return summary.Categories, nil
}

// Summarize computes the breakdown plus income and spending totals from a single read.
func (e *Engine) Summarize(ctx context.Context, userID string, start, end civil.Date) (Summary, error) {
	r := finance.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Summary{}, err
	}

	transactions, err := e.store.ListForUser(ctx, userID, finance.TransactionQuery{Range: &r})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	summary := Summarize(transactions)
	summary.Range = r

	return summary, nil
}

// Summarize is the pure computation behind Engine.Summarize.
func Summarize(transactions []finance.Transaction) Summary {
	totals := map[string]decimal.Decimal{}
	order := []string{}

	for _, tx := range transactions {
		category := tx.EffectiveCategory()
		if isIncome(category) {
			category = IncomeCategory
		}

		if _, ok := totals[category]; !ok {
			order = append(order, category)
		}
		totals[category] = totals[category].Add(tx.Amount)
	}

	summary := Summary{
		TotalIncome:   decimal.Zero,
		TotalSpending: decimal.Zero,
		Categories:    make([]CategorySpending, 0, len(order)),
	}

	for _, category := range order {
		if category == IncomeCategory {
			summary.TotalIncome = totals[category].Abs()
			continue
		}
		summary.TotalSpending = summary.TotalSpending.Add(totals[category].Abs())
	}

	for _, category := range order {
		amount := totals[category]
		percentage := decimal.Zero
		if category != IncomeCategory && !summary.TotalSpending.IsZero() {
			percentage = amount.Abs().Div(summary.TotalSpending).Mul(hundred).Round(1)
		}

		summary.Categories = append(summary.Categories, CategorySpending{
			Category:   category,
			Amount:     amount,
			Percentage: percentage,
		})
	}

	sort.SliceStable(summary.Categories, func(i, j int) bool {
		a, b := summary.Categories[i], summary.Categories[j]
		if (a.Category == IncomeCategory) != (b.Category == IncomeCategory) {
			return a.Category == IncomeCategory
		}
		if c := a.Amount.Abs().Cmp(b.Amount.Abs()); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	summary.Net = summary.TotalIncome.Sub(summary.TotalSpending)

	return summary
}

func isIncome(category string) bool {
	return strings.EqualFold(category, IncomeCategory)
}
