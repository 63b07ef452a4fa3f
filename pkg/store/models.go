package store

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

type SQLExternalAccount struct {
	bun.BaseModel `bun:"table:external_accounts"`
	ID            string `bun:",pk,type:uuid"`
	UserID        string `bun:",notnull"`
	AccessToken   string `bun:",notnull"`
	ItemID        string
	CreatedAt     time.Time `bun:",notnull"`
}

type SQLTransaction struct {
	bun.BaseModel `bun:"table:transactions"`
	ID            int64           `bun:",pk,autoincrement"`
	UserID        string          `bun:",notnull"`
	AccountID     string          `bun:",notnull"`
	PlaidID       string          `bun:",unique,notnull"`
	Amount        decimal.Decimal `bun:"type:numeric(14,2),notnull"`
	Date          time.Time       `bun:"type:date,notnull"`
	Name          string          `bun:",notnull"`
	MerchantName  *string
	Category      []string `bun:",array"`
	AICategory    *string
	Pending       bool `bun:",notnull"`
	CreatedAt     time.Time `bun:",notnull"`
	UpdatedAt     time.Time `bun:",notnull"`

	// Inserted is true when an upsert created the row rather than updating it
	Inserted bool `bun:",scanonly"`
}

// SQLSyncCursor is the per account resume point for delta syncs.
type SQLSyncCursor struct {
	bun.BaseModel `bun:"table:sync_cursors"`
	AccountID     string `bun:",pk,type:uuid"`
	Cursor        string `bun:",notnull"`
	UpdatedAt     time.Time
}

var providerOwnedColumns = []string{"amount", "date", "name", "merchant_name", "category", "pending", "updated_at"}

func newSQLAccount(a finance.ExternalAccount) *SQLExternalAccount {
	return &SQLExternalAccount{
		ID:          a.ID,
		UserID:      a.UserID,
		AccessToken: a.AccessToken,
		ItemID:      a.ItemID,
		CreatedAt:   a.CreatedAt,
	}
}

func (r SQLExternalAccount) toAccount() finance.ExternalAccount {
	return finance.ExternalAccount{
		ID:          r.ID,
		UserID:      r.UserID,
		AccessToken: r.AccessToken,
		ItemID:      r.ItemID,
		CreatedAt:   r.CreatedAt,
	}
}

func newSQLTransaction(tx finance.Transaction) *SQLTransaction {
	row := &SQLTransaction{
		ID:         tx.ID,
		UserID:     tx.UserID,
		AccountID:  tx.AccountID,
		PlaidID:    tx.PlaidID,
		AICategory: tx.AICategory,
		CreatedAt:  tx.CreatedAt,
		UpdatedAt:  tx.UpdatedAt,
	}
	row.applyFields(tx.Fields())

	return row
}

func (r *SQLTransaction) applyFields(f finance.TransactionFields) {
	r.Amount = f.Amount
	r.Date = f.Date.In(time.UTC)
	r.Name = f.Name
	r.MerchantName = f.MerchantName
	r.Category = f.Category
	if r.Category == nil {
		r.Category = []string{}
	}
	r.Pending = f.Pending
}

func (r SQLTransaction) toTransaction() finance.Transaction {
	return finance.Transaction{
		ID:           r.ID,
		UserID:       r.UserID,
		AccountID:    r.AccountID,
		PlaidID:      r.PlaidID,
		Amount:       r.Amount,
		Date:         civil.DateOf(r.Date),
		Name:         r.Name,
		MerchantName: r.MerchantName,
		Category:     r.Category,
		AICategory:   r.AICategory,
		Pending:      r.Pending,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toTransactions(rows []SQLTransaction) []finance.Transaction {
	transactions := make([]finance.Transaction, 0, len(rows))
	for _, r := range rows {
		transactions = append(transactions, r.toTransaction())
	}
	return transactions
}
