package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/postgresutils"
)

// PostgresStore implements Store on postgres through bun.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the tables and indexes if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	models := []interface{}{
		(*SQLExternalAccount)(nil),
		(*SQLTransaction)(nil),
		(*SQLSyncCursor)(nil),
	}

	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("error creating table: %w", err)
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*SQLTransaction)(nil)).
		Index("transactions_user_id_date_idx").
		Column("user_id", "date").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*SQLTransaction)(nil)).
		Index("transactions_account_id_idx").
		Column("account_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}

	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, userID, accessToken, itemID string) (finance.ExternalAccount, error) {
	account := finance.ExternalAccount{
		ID:          uuid.New().String(),
		UserID:      userID,
		AccessToken: accessToken,
		ItemID:      itemID,
		CreatedAt:   s.now().UTC(),
	}

	if _, err := s.db.NewInsert().Model(newSQLAccount(account)).Exec(ctx); err != nil {
		return finance.ExternalAccount{}, fmt.Errorf("error writing account to sql: %w", err)
	}

	return account, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, userID string) ([]finance.ExternalAccount, error) {
	rows := []SQLExternalAccount{}

	err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("created_at ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing accounts: %w", err)
	}

	accounts := make([]finance.ExternalAccount, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, r.toAccount())
	}

	return accounts, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (finance.ExternalAccount, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return finance.ExternalAccount{}, finance.ErrNotFound
	}

	row := SQLExternalAccount{}

	err := s.db.NewSelect().Model(&row).Where("id = ?", accountID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.ExternalAccount{}, finance.ErrNotFound
	} else if err != nil {
		return finance.ExternalAccount{}, fmt.Errorf("error reading account %s: %w", accountID, err)
	}

	return row.toAccount(), nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	now := s.now().UTC()
	tx.ID = 0
	tx.CreatedAt = now
	tx.UpdatedAt = now

	row := newSQLTransaction(tx)

	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	if postgresutils.IsUniqueViolation(err) {
		return finance.Transaction{}, &finance.DuplicateRecordError{ExternalID: tx.PlaidID}
	} else if err != nil {
		return finance.Transaction{}, fmt.Errorf("error writing transaction %s: %w", tx.PlaidID, err)
	}

	return row.toTransaction(), nil
}

func (s *PostgresStore) UpsertByExternalID(ctx context.Context, userID, accountID, externalID string, fields finance.TransactionFields) (finance.Transaction, bool, error) {
	now := s.now().UTC()

	row := &SQLTransaction{
		UserID:    userID,
		AccountID: accountID,
		PlaidID:   externalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	row.applyFields(fields)

	set := postgresutils.TableSetString(s.db, (*SQLTransaction)(nil), "id", "user_id", "account_id", "plaid_id", "ai_category", "created_at")

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (plaid_id) DO UPDATE").
		Set(set).
		Returning("*, (xmax = 0) AS inserted").
		Exec(ctx)
	if err != nil {
		return finance.Transaction{}, false, fmt.Errorf("error upserting transaction %s: %w", externalID, err)
	}

	return row.toTransaction(), row.Inserted, nil
}

func (s *PostgresStore) UpdateByExternalID(ctx context.Context, externalID string, fields finance.TransactionFields) (finance.Transaction, error) {
	row := &SQLTransaction{UpdatedAt: s.now().UTC()}
	row.applyFields(fields)

	res, err := s.db.NewUpdate().
		Model(row).
		Column(providerOwnedColumns...).
		Where("plaid_id = ?", externalID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return finance.Transaction{}, fmt.Errorf("error updating transaction %s: %w", externalID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return finance.Transaction{}, finance.ErrNotFound
	}

	return row.toTransaction(), nil
}

func (s *PostgresStore) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	res, err := s.db.NewDelete().Model((*SQLTransaction)(nil)).Where("plaid_id = ?", externalID).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("error deleting transaction %s: %w", externalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string, query finance.TransactionQuery) ([]finance.Transaction, error) {
	rows := []SQLTransaction{}

	q := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID)
	if query.Range != nil {
		q = q.Where("date BETWEEN ? AND ?", query.Range.Start.In(time.UTC), query.Range.End.In(time.UTC))
	}
	if query.Category != "" {
		q = q.Where("EXISTS (SELECT 1 FROM unnest(category) AS c WHERE lower(c) = lower(?))", query.Category)
	}

	if err := q.OrderExpr("date DESC, id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}

	return toTransactions(rows), nil
}

func (s *PostgresStore) CountForUser(ctx context.Context, userID string) (int, error) {
	return s.db.NewSelect().Model((*SQLTransaction)(nil)).Where("user_id = ?", userID).Count(ctx)
}

func (s *PostgresStore) CountForAccount(ctx context.Context, accountID string) (int, error) {
	return s.db.NewSelect().Model((*SQLTransaction)(nil)).Where("account_id = ?", accountID).Count(ctx)
}

func (s *PostgresStore) ListUnclassified(ctx context.Context, userID string) ([]finance.Transaction, error) {
	rows := []SQLTransaction{}

	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("ai_category IS NULL").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing unclassified transactions: %w", err)
	}

	return toTransactions(rows), nil
}

func (s *PostgresStore) SetAICategory(ctx context.Context, transactionID int64, label string) error {
	res, err := s.db.NewUpdate().
		Model((*SQLTransaction)(nil)).
		Set("ai_category = ?", label).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", transactionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error setting category on %d: %w", transactionID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return finance.ErrNotFound
	}

	return nil
}

func (s *PostgresStore) GetCursor(ctx context.Context, accountID string) (string, error) {
	row := SQLSyncCursor{}

	err := s.db.NewSelect().Model(&row).Where("account_id = ?", accountID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("error reading cursor for %s: %w", accountID, err)
	}

	return row.Cursor, nil
}

func (s *PostgresStore) SaveCursor(ctx context.Context, accountID, cursor string) error {
	row := &SQLSyncCursor{AccountID: accountID, Cursor: cursor, UpdatedAt: s.now().UTC()}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (account_id) DO UPDATE").
		Set("cursor = EXCLUDED.cursor").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error saving cursor for %s: %w", accountID, err)
	}

	return nil
}
