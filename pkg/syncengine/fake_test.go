package syncengine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/plaidsync/pkg/provider"
	"github.com/bcaldwell/plaidsync/pkg/store"
)

var testNow = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

// fakeProvider answers from per access token scripts.
type fakeProvider struct {
	mu sync.Mutex

	exchange    provider.Exchange
	exchangeErr error
	accounts    []provider.Account

	delta  func(accessToken, cursor string) (provider.Delta, error)
	window func(accessToken string, start, end civil.Date) ([]provider.Transaction, error)

	deltaCursors []string
	windowCalls  int
}

func (f *fakeProvider) SignConvention() provider.SignConvention { return provider.DebitPositive }

func (f *fakeProvider) ExchangeToken(ctx context.Context, publicToken string) (provider.Exchange, error) {
	return f.exchange, f.exchangeErr
}

func (f *fakeProvider) ListAccountsForToken(ctx context.Context, accessToken string) ([]provider.Account, error) {
	return f.accounts, nil
}

func (f *fakeProvider) FetchTransactionsDelta(ctx context.Context, accessToken, cursor string) (provider.Delta, error) {
	f.mu.Lock()
	f.deltaCursors = append(f.deltaCursors, cursor)
	f.mu.Unlock()

	if f.delta == nil {
		return provider.Delta{}, nil
	}
	return f.delta(accessToken, cursor)
}

func (f *fakeProvider) FetchTransactionsWindow(ctx context.Context, accessToken string, start, end civil.Date) ([]provider.Transaction, error) {
	f.mu.Lock()
	f.windowCalls++
	f.mu.Unlock()

	if f.window == nil {
		return nil, nil
	}
	return f.window(accessToken, start, end)
}

func staticDelta(d provider.Delta) func(string, string) (provider.Delta, error) {
	return func(string, string) (provider.Delta, error) { return d, nil }
}

func staticWindow(records ...provider.Transaction) func(string, civil.Date, civil.Date) ([]provider.Transaction, error) {
	return func(string, civil.Date, civil.Date) ([]provider.Transaction, error) { return records, nil }
}

func record(id, amount, date, name string, category ...string) provider.Transaction {
	return provider.Transaction{
		ID:       id,
		Amount:   decimal.RequireFromString(amount),
		Date:     date,
		Name:     name,
		Category: category,
	}
}

func newTestEngine(t *testing.T, p *fakeProvider) (*Engine, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	e := New(s, p, Config{
		ProviderTimeout: time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:             func() time.Time { return testNow },
	})

	return e, s
}
