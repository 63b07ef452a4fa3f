package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

// runStoreTests exercises behaviour every Store implementation shares.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("create rejects duplicates", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("concurrent creates", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("update and delete", func(t *testing.T) { testUpdateDelete(t, newStore(t)) })
	t.Run("upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("list ordering and filters", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("classification", func(t *testing.T) { testClassification(t, newStore(t)) })
	t.Run("cursors", func(t *testing.T) { testCursors(t, newStore(t)) })
}

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTx(account finance.ExternalAccount, plaidID, amount, day string, category ...string) finance.Transaction {
	return finance.Transaction{
		UserID:    account.UserID,
		AccountID: account.ID,
		PlaidID:   plaidID,
		Amount:    decimal.RequireFromString(amount),
		Date:      date(day),
		Name:      "txn " + plaidID,
		Category:  category,
	}
}

func testAccounts(t *testing.T, s Store) {
	ctx := context.Background()

	a1, err := s.CreateAccount(ctx, "u1", "access-1", "item-1")
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, "u2", "access-2", "item-2")
	require.NoError(t, err)
	a3, err := s.CreateAccount(ctx, "u1", "access-3", "item-3")
	require.NoError(t, err)

	assert.NotEqual(t, a1.ID, a3.ID)

	accounts, err := s.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.ElementsMatch(t, []string{a1.ID, a3.ID}, []string{accounts[0].ID, accounts[1].ID})

	none, err := s.ListAccounts(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := s.GetAccount(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "item-1", got.ItemID)

	_, err = s.GetAccount(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, finance.ErrNotFound))
}

func testCreateDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	created, err := s.CreateTransaction(ctx, newTx(account, "p1", "-12.50", "2024-03-01"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = s.CreateTransaction(ctx, newTx(account, "p1", "-99.00", "2024-03-02"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrDuplicateRecord))

	var dup *finance.DuplicateRecordError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "p1", dup.ExternalID)

	n, err := s.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testConcurrentCreate(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTransaction(ctx, newTx(account, "race", "-1.00", "2024-03-01"))

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, finance.ErrDuplicateRecord) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicates)

	n, err := s.CountForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUpdateDelete(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	_, err = s.CreateTransaction(ctx, newTx(account, "p1", "-10.00", "2024-03-01", "Food and Drink"))
	require.NoError(t, err)

	fields := finance.TransactionFields{
		Amount:       decimal.RequireFromString("-11.25"),
		Date:         date("2024-03-02"),
		Name:         "corrected",
		MerchantName: finance.StringPtr("Cafe"),
		Category:     []string{"Food and Drink", "Coffee"},
		Pending:      true,
	}

	updated, err := s.UpdateByExternalID(ctx, "p1", fields)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("-11.25").Equal(updated.Amount))
	assert.Equal(t, date("2024-03-02"), updated.Date)
	assert.Equal(t, "corrected", updated.Name)
	require.NotNil(t, updated.MerchantName)
	assert.Equal(t, "Cafe", *updated.MerchantName)
	assert.Equal(t, []string{"Food and Drink", "Coffee"}, updated.Category)
	assert.True(t, updated.Pending)
	assert.Equal(t, account.ID, updated.AccountID)

	_, err = s.UpdateByExternalID(ctx, "missing", fields)
	assert.True(t, errors.Is(err, finance.ErrNotFound))

	deleted, err := s.DeleteByExternalID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteByExternalID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := s.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	fields := finance.TransactionFields{
		Amount: decimal.RequireFromString("-5.00"),
		Date:   date("2024-03-05"),
		Name:   "first",
	}

	first, created, err := s.UpsertByExternalID(ctx, "u1", account.ID, "p1", fields)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, s.SetAICategory(ctx, first.ID, "groceries"))

	fields.Name = "second"
	second, created, err := s.UpsertByExternalID(ctx, "u1", account.ID, "p1", fields)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "second", second.Name)
	require.NotNil(t, second.AICategory)
	assert.Equal(t, "groceries", *second.AICategory)

	n, err := s.CountForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)
	other, err := s.CreateAccount(ctx, "u2", "access", "item")
	require.NoError(t, err)

	for _, tx := range []finance.Transaction{
		newTx(account, "a", "-1.00", "2024-03-01", "Travel"),
		newTx(account, "b", "-2.00", "2024-03-03", "Food and Drink", "Groceries"),
		newTx(account, "c", "-3.00", "2024-03-03", "Food and Drink"),
		newTx(account, "d", "-4.00", "2024-02-15"),
		newTx(other, "e", "-5.00", "2024-03-03", "Food and Drink"),
	} {
		_, err := s.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	all, err := s.ListForUser(ctx, "u1", finance.TransactionQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, plaidIDs(all))

	march := finance.DateRange{Start: date("2024-03-01"), End: date("2024-03-31")}
	inMarch, err := s.ListForUser(ctx, "u1", finance.TransactionQuery{Range: &march})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, plaidIDs(inMarch))

	groceries, err := s.ListForUser(ctx, "u1", finance.TransactionQuery{Category: "groceries"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, plaidIDs(groceries))

	none, err := s.ListForUser(ctx, "nobody", finance.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testClassification(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	first, err := s.CreateTransaction(ctx, newTx(account, "a", "-1.00", "2024-03-01"))
	require.NoError(t, err)
	second, err := s.CreateTransaction(ctx, newTx(account, "b", "-2.00", "2024-03-02"))
	require.NoError(t, err)

	unclassified, err := s.ListUnclassified(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID, second.ID}, []int64{unclassified[0].ID, unclassified[1].ID})

	require.NoError(t, s.SetAICategory(ctx, first.ID, "dining"))

	unclassified, err = s.ListUnclassified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unclassified, 1)
	assert.Equal(t, second.ID, unclassified[0].ID)

	err = s.SetAICategory(ctx, 987654, "dining")
	assert.True(t, errors.Is(err, finance.ErrNotFound))
}

func testCursors(t *testing.T, s Store) {
	ctx := context.Background()
	account, err := s.CreateAccount(ctx, "u1", "access", "item")
	require.NoError(t, err)

	cursor, err := s.GetCursor(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, s.SaveCursor(ctx, account.ID, "c1"))
	require.NoError(t, s.SaveCursor(ctx, account.ID, "c2"))

	cursor, err = s.GetCursor(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor)
}

func plaidIDs(transactions []finance.Transaction) []string {
	ids := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		ids = append(ids, tx.PlaidID)
	}
	return ids
}
