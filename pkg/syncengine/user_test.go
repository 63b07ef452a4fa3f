package syncengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/provider"
	"github.com/bcaldwell/plaidsync/pkg/store"
)

func TestSyncUserIsolatesFailingAccounts(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{delta: func(token, cursor string) (provider.Delta, error) {
		if token == "broken" {
			return provider.Delta{}, &finance.ProviderCallError{Op: "sync transactions", Err: errors.New("ITEM_LOGIN_REQUIRED")}
		}
		return provider.Delta{Added: []provider.Transaction{record("t-"+token, "10.00", "2024-03-10", "Shop")}}, nil
	}}
	e, s := newTestEngine(t, p)

	good1, err := s.CreateAccount(ctx, "u1", "one", "item-1")
	require.NoError(t, err)
	bad, err := s.CreateAccount(ctx, "u1", "broken", "item-2")
	require.NoError(t, err)
	good2, err := s.CreateAccount(ctx, "u1", "two", "item-3")
	require.NoError(t, err)

	result, err := e.SyncUser(ctx, "u1", IncrementalOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, bad.ID, result.Failures[0].AccountID)
	assert.ErrorIs(t, result.Failures[0], finance.ErrProviderCall)

	synced := []string{}
	for _, a := range result.Accounts {
		synced = append(synced, a.AccountID)
	}
	assert.ElementsMatch(t, []string{good1.ID, good2.ID}, synced)
	assert.Equal(t, 2, result.Totals().Added)
	assert.Equal(t, 2, countFor(t, s, "u1"))
}

func TestSyncUserConcurrentDuplicateAdds(t *testing.T) {
	ctx := context.Background()
	shared := record("shared", "9.99", "2024-03-10", "Streaming")
	p := &fakeProvider{delta: staticDelta(provider.Delta{Added: []provider.Transaction{shared}})}
	e, s := newTestEngine(t, p)

	for i := 0; i < 6; i++ {
		_, err := s.CreateAccount(ctx, "u1", "access", "item")
		require.NoError(t, err)
	}

	result, err := e.SyncUser(ctx, "u1", IncrementalOptions{})
	require.NoError(t, err)
	require.Empty(t, result.Failures)

	totals := result.Totals()
	assert.Equal(t, 1, totals.Added)
	assert.Equal(t, 5, totals.Duplicates)
	assert.Equal(t, 0, totals.Errors)
	assert.Equal(t, 1, countFor(t, s, "u1"))
}

func TestSyncUserWithoutAccounts(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})

	result, err := e.SyncUser(context.Background(), "nobody", IncrementalOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Accounts)
	assert.Empty(t, result.Failures)
}

func TestLinkCreatesAccountAndRunsInitialSync(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		exchange: provider.Exchange{AccessToken: "access-1", ItemID: "item-1"},
		accounts: []provider.Account{{ID: "checking"}, {ID: "savings"}},
		window:   staticWindow(record("t1", "25.00", "2024-03-10", "Coffee")),
	}
	e, s := newTestEngine(t, p)

	result, err := e.Link(ctx, "u1", "public-1")
	require.NoError(t, err)
	require.NoError(t, result.InitialErr)

	assert.Len(t, result.ProviderAccounts, 2)
	assert.Equal(t, "item-1", result.Account.ItemID)
	assert.Equal(t, 1, result.Initial.Created)

	stored, err := s.GetAccount(ctx, result.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "u1", stored.UserID)
	assert.True(t, decimal.RequireFromString("-25.00").Equal(mustGet(t, s, "u1", "t1").Amount))
}

func TestLinkSurvivesFailedInitialSync(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		exchange: provider.Exchange{AccessToken: "access-1", ItemID: "item-1"},
		window: func(string, civil.Date, civil.Date) ([]provider.Transaction, error) {
			return nil, &finance.ProviderCallError{Op: "get transactions", Err: errors.New("PRODUCT_NOT_READY")}
		},
	}
	e, s := newTestEngine(t, p)

	result, err := e.Link(ctx, "u1", "public-1")
	require.NoError(t, err)

	var syncErr *finance.SyncError
	require.True(t, errors.As(result.InitialErr, &syncErr))
	assert.Equal(t, result.Account.ID, syncErr.AccountID)

	accounts, err := s.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

// slowExchangeProvider spends part of the call budget on the exchange and records how much
// budget the account listing gets.
type slowExchangeProvider struct {
	*fakeProvider
	listBudget time.Duration
}

func (p *slowExchangeProvider) ExchangeToken(ctx context.Context, publicToken string) (provider.Exchange, error) {
	time.Sleep(150 * time.Millisecond)
	return p.fakeProvider.ExchangeToken(ctx, publicToken)
}

func (p *slowExchangeProvider) ListAccountsForToken(ctx context.Context, accessToken string) ([]provider.Account, error) {
	if deadline, ok := ctx.Deadline(); ok {
		p.listBudget = time.Until(deadline)
	}
	return p.fakeProvider.ListAccountsForToken(ctx, accessToken)
}

func TestLinkBoundsEachProviderCall(t *testing.T) {
	ctx := context.Background()
	p := &slowExchangeProvider{fakeProvider: &fakeProvider{
		exchange: provider.Exchange{AccessToken: "access-1", ItemID: "item-1"},
	}}
	e := New(store.NewMemoryStore(), p, Config{ProviderTimeout: 300 * time.Millisecond, Now: func() time.Time { return testNow }})

	_, err := e.Link(ctx, "u1", "public-1")
	require.NoError(t, err)

	assert.Greater(t, p.listBudget, 200*time.Millisecond)
}

func TestLinkFailsWhenExchangeFails(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{exchangeErr: &finance.ProviderCallError{Op: "exchange token", Err: errors.New("INVALID_PUBLIC_TOKEN")}}
	e, s := newTestEngine(t, p)

	_, err := e.Link(ctx, "u1", "public-1")
	assert.ErrorIs(t, err, finance.ErrProviderCall)

	accounts, err := s.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestEnsurePopulatedOnlyFetchesEmptyAccounts(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{window: func(token string, start, end civil.Date) ([]provider.Transaction, error) {
		return []provider.Transaction{record("w-"+token, "4.00", "2024-03-20", "Snack")}, nil
	}}
	e, s := newTestEngine(t, p)

	populated, err := s.CreateAccount(ctx, "u1", "full", "item-1")
	require.NoError(t, err)
	empty, err := s.CreateAccount(ctx, "u1", "empty", "item-2")
	require.NoError(t, err)

	_, err = s.CreateTransaction(ctx, finance.Transaction{
		UserID: "u1", AccountID: populated.ID, PlaidID: "existing",
		Amount: decimal.RequireFromString("-1.00"), Date: civil.Date{Year: 2024, Month: 3, Day: 2}, Name: "Existing",
	})
	require.NoError(t, err)

	result, err := e.EnsurePopulated(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, empty.ID, result.Accounts[0].AccountID)
	assert.Equal(t, 1, p.windowCalls)

	again, err := e.EnsurePopulated(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again.Accounts)
	assert.Equal(t, 1, p.windowCalls)
}

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		name string
		tx   provider.Transaction
		want []string
	}{
		{
			name: "structured with detail",
			tx: provider.Transaction{
				Category:                []string{"Food and Drink"},
				PersonalFinanceCategory: &provider.PersonalFinanceCategory{Primary: "FOOD_AND_DRINK", Detailed: "FOOD_AND_DRINK_COFFEE"},
			},
			want: []string{"FOOD_AND_DRINK", "FOOD_AND_DRINK_COFFEE"},
		},
		{
			name: "structured primary only",
			tx:   provider.Transaction{PersonalFinanceCategory: &provider.PersonalFinanceCategory{Primary: "TRANSPORTATION"}},
			want: []string{"TRANSPORTATION"},
		},
		{
			name: "legacy list",
			tx:   provider.Transaction{Category: []string{"Travel", "Taxi"}, PersonalFinanceCategory: &provider.PersonalFinanceCategory{}},
			want: []string{"Travel", "Taxi"},
		},
		{
			name: "nothing",
			tx:   provider.Transaction{},
			want: []string{},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, NormalizeCategory(c.tx))
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	amounts := []string{"25.00", "-25.00", "0"}
	got := []string{}
	for _, a := range amounts {
		got = append(got, NormalizeAmount(decimal.RequireFromString(a), provider.DebitPositive).StringFixed(2))
	}
	assert.Equal(t, []string{"-25.00", "25.00", "0.00"}, got)

	credit := NormalizeAmount(decimal.RequireFromString("25.00"), provider.CreditPositive)
	assert.Equal(t, "25.00", credit.StringFixed(2))
}

func TestNormalizeRecordValidation(t *testing.T) {
	_, err := normalizeRecord(provider.Transaction{Date: "2024-03-01"}, provider.DebitPositive)
	assert.ErrorIs(t, err, finance.ErrValidation)

	_, err = normalizeRecord(provider.Transaction{ID: "t1"}, provider.DebitPositive)
	var validation *finance.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "date", validation.Field)
	assert.Equal(t, "t1", validation.ExternalID)

	fields, err := normalizeRecord(provider.Transaction{ID: "t1", Date: "2024-03-01", Name: "  ", MerchantName: ""}, provider.DebitPositive)
	require.NoError(t, err)
	assert.Equal(t, unknownTransactionName, fields.Name)
	assert.Nil(t, fields.MerchantName)
}

func TestAccountLocksSerialize(t *testing.T) {
	locks := newAccountLocks()
	order := []int{}
	done := make(chan struct{})

	unlock := locks.lock("a")
	go func() {
		u := locks.lock("a")
		order = append(order, 2)
		u()
		close(done)
	}()

	// a different account is never blocked
	locks.lock("b")()

	order = append(order, 1)
	unlock()
	<-done

	assert.Equal(t, []int{1, 2}, order)
}
