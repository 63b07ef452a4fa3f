package finance

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Uncategorized is the label used for transactions with neither an ai category nor a provider category.
const Uncategorized = "Uncategorized"

// IncomeCategory is the canonical label for money coming in.
const IncomeCategory = "Income"

// ExternalAccount is one linked item at the aggregation provider.
type ExternalAccount struct {
	ID     string
	UserID string
	// AccessToken authorizes provider calls for this item. It is never serialized.
	AccessToken string `json:"-"`
	ItemID      string
	CreatedAt   time.Time
}

// Transaction is a normalized transaction row.
// Amount follows the stored convention: negative is money out, positive is money in.
type Transaction struct {
	ID           int64
	UserID       string
	AccountID    string
	PlaidID      string
	Amount       decimal.Decimal
	Date         civil.Date
	Name         string
	MerchantName *string
	Category     []string
	AICategory   *string
	Pending      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransactionFields are the columns the provider owns. A "modified" report overwrites all of them.
type TransactionFields struct {
	Amount       decimal.Decimal
	Date         civil.Date
	Name         string
	MerchantName *string
	Category     []string
	Pending      bool
}

// Fields returns the provider owned columns of t.
func (t Transaction) Fields() TransactionFields {
	return TransactionFields{
		Amount:       t.Amount,
		Date:         t.Date,
		Name:         t.Name,
		MerchantName: t.MerchantName,
		Category:     t.Category,
		Pending:      t.Pending,
	}
}

// Apply overwrites the provider owned columns of t, leaving ids and AICategory alone.
func (t *Transaction) Apply(f TransactionFields) {
	t.Amount = f.Amount
	t.Date = f.Date
	t.Name = f.Name
	t.MerchantName = f.MerchantName
	t.Category = f.Category
	t.Pending = f.Pending
}

// EffectiveCategory is aiCategory, then the primary provider category, then Uncategorized.
func (t Transaction) EffectiveCategory() string {
	if t.AICategory != nil && *t.AICategory != "" {
		return *t.AICategory
	}

	if len(t.Category) > 0 && t.Category[0] != "" {
		return t.Category[0]
	}

	return Uncategorized
}

// IsProviderIncome reports whether the provider filed t under income.
func (t Transaction) IsProviderIncome() bool {
	return len(t.Category) > 0 && strings.EqualFold(t.Category[0], IncomeCategory)
}

// HasCategory reports whether label appears anywhere in the provider category list.
func (t Transaction) HasCategory(label string) bool {
	for _, c := range t.Category {
		if strings.EqualFold(c, label) {
			return true
		}
	}

	return false
}

// Clone returns a deep copy so callers can't mutate shared slices or pointers.
func (t Transaction) Clone() Transaction {
	c := t
	if t.Category != nil {
		c.Category = append([]string(nil), t.Category...)
	}
	if t.MerchantName != nil {
		m := *t.MerchantName
		c.MerchantName = &m
	}
	if t.AICategory != nil {
		a := *t.AICategory
		c.AICategory = &a
	}
	return c
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// TrailingWindow returns the window of the given number of days ending on end.
func TrailingWindow(end civil.Date, days int) DateRange {
	return DateRange{Start: end.AddDays(-days), End: end}
}

func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return &ValidationError{Field: "dateRange", Reason: "start and end must be valid dates"}
	}
	if r.End.Before(r.Start) {
		return &ValidationError{Field: "dateRange", Reason: "end is before start"}
	}
	return nil
}

// TransactionQuery filters ListForUser. Zero values mean no filter.
type TransactionQuery struct {
	Range    *DateRange
	Category string
}

// Matches reports whether t passes the query filters.
func (q TransactionQuery) Matches(t Transaction) bool {
	if q.Range != nil && !q.Range.Contains(t.Date) {
		return false
	}
	if q.Category != "" && !t.HasCategory(q.Category) {
		return false
	}
	return true
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
