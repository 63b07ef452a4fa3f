// Package syncengine pulls transactions from the aggregation provider and reconciles them
// into the transaction store.
package syncengine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/provider"
	"github.com/bcaldwell/plaidsync/pkg/store"
)

const (
	DefaultInitialWindowDays     = 30
	DefaultProviderTimeout       = 30 * time.Second
	DefaultMaxConcurrentAccounts = 4
)

type Config struct {
	// InitialWindowDays is how far back the initial fetch reaches.
	InitialWindowDays int
	// ProviderTimeout bounds every provider call. Expiry is a SyncError for that account.
	ProviderTimeout       time.Duration
	MaxConcurrentAccounts int

	Logger *slog.Logger
	Now    func() time.Time
}

type Engine struct {
	store    store.Store
	provider provider.Provider
	conf     Config
	log      *slog.Logger
	locks    *accountLocks
}

func New(s store.Store, p provider.Provider, conf Config) *Engine {
	if conf.InitialWindowDays <= 0 {
		conf.InitialWindowDays = DefaultInitialWindowDays
	}
	if conf.ProviderTimeout <= 0 {
		conf.ProviderTimeout = DefaultProviderTimeout
	}
	if conf.MaxConcurrentAccounts <= 0 {
		conf.MaxConcurrentAccounts = DefaultMaxConcurrentAccounts
	}
	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}

	return &Engine{
		store:    s,
		provider: p,
		conf:     conf,
		log:      conf.Logger,
		locks:    newAccountLocks(),
	}
}

// IncrementalOptions tunes RunIncrementalSync.
type IncrementalOptions struct {
	// Window is re-fetched when the provider can't serve a delta. Without it a missing
	// cursor is a SyncError.
	Window *finance.DateRange
}

// RunInitialSync fetches the trailing window for a freshly linked account and creates every
// record in it. accessToken must be the one stored for the account.
func (e *Engine) RunInitialSync(ctx context.Context, accountID, accessToken string) (InitialSyncResult, error) {
	result := InitialSyncResult{AccountID: accountID}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	if subtle.ConstantTimeCompare([]byte(account.AccessToken), []byte(accessToken)) != 1 {
		return result, &finance.UnauthorizedError{UserID: account.UserID, AccountID: accountID}
	}

	unlock := e.locks.lock(accountID)
	defer unlock()

	window := finance.TrailingWindow(civil.DateOf(e.conf.Now()), e.conf.InitialWindowDays)

	records, err := e.fetchWindow(ctx, account, window)
	if err != nil {
		return result, err
	}

	convention := e.provider.SignConvention()
	log := e.log.With("account_id", accountID, "flow", "initial")

	for _, record := range records {
		fields, err := normalizeRecord(record, convention)
		if err != nil {
			log.Warn("skipping malformed transaction", "plaid_id", record.ID, "error", err)
			result.Errors++
			continue
		}

		if !window.Contains(fields.Date) {
			log.Debug("skipping transaction outside window", "plaid_id", record.ID, "date", fields.Date.String())
			result.Skipped++
			continue
		}

		switch e.applyAdded(ctx, log, account, record.ID, fields) {
		case outcomeApplied:
			result.Created++
		case outcomeDuplicate:
			result.Duplicates++
		default:
			result.Errors++
		}
	}

	klog.Infof("Wrote %d transactions to sql for account %s\n", result.Created, accountID)

	return result, nil
}

// RunIncrementalSync reconciles the provider delta since the stored cursor. With
// opts.Window set it falls back to a windowed re-fetch when no delta is available.
func (e *Engine) RunIncrementalSync(ctx context.Context, userID, accountID string, opts IncrementalOptions) (IncrementalSyncResult, error) {
	result := IncrementalSyncResult{AccountID: accountID, Mode: ModeDelta}

	account, err := e.store.GetAccount(ctx, accountID)
	if errors.Is(err, finance.ErrNotFound) {
		return result, &finance.UnauthorizedError{UserID: userID, AccountID: accountID}
	} else if err != nil {
		return result, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	if account.UserID != userID {
		return result, &finance.UnauthorizedError{UserID: userID, AccountID: accountID}
	}

	if opts.Window != nil {
		if err := opts.Window.Validate(); err != nil {
			return result, err
		}
	}

	unlock := e.locks.lock(accountID)
	defer unlock()

	cursor, err := e.store.GetCursor(ctx, accountID)
	if err != nil {
		return result, &finance.SyncError{AccountID: accountID, Err: err}
	}

	delta, err := e.fetchDelta(ctx, account, cursor)
	if errors.Is(err, provider.ErrCursorUnavailable) && opts.Window != nil {
		e.log.Info("delta unavailable, re-fetching window", "account_id", accountID,
			"start", opts.Window.Start.String(), "end", opts.Window.End.String())
		return e.refetchWindow(ctx, account, *opts.Window)
	} else if err != nil {
		return result, err
	}

	storeFailures := e.reconcile(ctx, account, delta, &result)

	// A store failure keeps the old cursor so the next run replays the delta. Replayed adds
	// land as duplicates and replayed removals are no-ops.
	if storeFailures > 0 {
		e.log.Warn("keeping cursor after store failures", "account_id", accountID, "failures", storeFailures)
	} else if delta.NextCursor != "" && delta.NextCursor != cursor {
		if err := e.store.SaveCursor(ctx, accountID, delta.NextCursor); err != nil {
			return result, &finance.SyncError{AccountID: accountID, Err: fmt.Errorf("failed to save cursor: %w", err)}
		}
	}

	klog.Infof("Synced account %s: %d added, %d modified, %d removed, %d errors\n",
		accountID, result.Added, result.Modified, result.Removed, result.Errors)

	return result, nil
}

// reconcile applies one delta: adds, then modifications, then removals. It returns how many
// records failed in the store. Malformed records are counted in result but not returned.
func (e *Engine) reconcile(ctx context.Context, account finance.ExternalAccount, delta provider.Delta, result *IncrementalSyncResult) int {
	storeFailures := 0

	convention := e.provider.SignConvention()
	log := e.log.With("account_id", account.ID, "flow", "incremental")

	batches := []struct {
		kind    batchKind
		records []provider.Transaction
	}{
		{batchAdded, delta.Added},
		{batchModified, delta.Modified},
	}

	for _, batch := range batches {
		for _, record := range batch.records {
			fields, err := normalizeRecord(record, convention)
			if err != nil {
				log.Warn("skipping malformed transaction", "batch", batch.kind.String(), "plaid_id", record.ID, "error", err)
				result.Errors++
				continue
			}

			var o outcome
			if batch.kind == batchAdded {
				o = e.applyAdded(ctx, log, account, record.ID, fields)
			} else {
				o = e.applyModified(ctx, log, record.ID, fields)
			}
			if o == outcomeFailed {
				storeFailures++
			}
			result.count(batch.kind, o)
		}
	}

	for _, externalID := range delta.Removed {
		o := e.applyRemoved(ctx, log, externalID)
		if o == outcomeFailed {
			storeFailures++
		}
		result.count(batchRemoved, o)
	}

	return storeFailures
}

func (e *Engine) refetchWindow(ctx context.Context, account finance.ExternalAccount, window finance.DateRange) (IncrementalSyncResult, error) {
	result := IncrementalSyncResult{AccountID: account.ID, Mode: ModeWindow}

	records, err := e.fetchWindow(ctx, account, window)
	if err != nil {
		return result, err
	}

	convention := e.provider.SignConvention()
	log := e.log.With("account_id", account.ID, "flow", "window")

	for _, record := range records {
		fields, err := normalizeRecord(record, convention)
		if err != nil {
			log.Warn("skipping malformed transaction", "plaid_id", record.ID, "error", err)
			result.Errors++
			continue
		}

		_, created, err := e.store.UpsertByExternalID(ctx, account.UserID, account.ID, record.ID, fields)
		switch {
		case err != nil:
			log.Error("failed to upsert transaction", "plaid_id", record.ID, "error", err)
			result.Errors++
		case created:
			result.Added++
		default:
			result.Modified++
		}
	}

	klog.Infof("Re-fetched account %s: %d added, %d updated, %d errors\n", account.ID, result.Added, result.Modified, result.Errors)

	return result, nil
}

func (e *Engine) applyAdded(ctx context.Context, log *slog.Logger, account finance.ExternalAccount, externalID string, fields finance.TransactionFields) outcome {
	tx := finance.Transaction{UserID: account.UserID, AccountID: account.ID, PlaidID: externalID}
	tx.Apply(fields)

	_, err := e.store.CreateTransaction(ctx, tx)
	switch {
	case errors.Is(err, finance.ErrDuplicateRecord):
		log.Debug("skipping duplicate transaction", "plaid_id", externalID)
		return outcomeDuplicate
	case err != nil:
		log.Error("failed to create transaction", "plaid_id", externalID, "error", err)
		return outcomeFailed
	}
	return outcomeApplied
}

func (e *Engine) applyModified(ctx context.Context, log *slog.Logger, externalID string, fields finance.TransactionFields) outcome {
	_, err := e.store.UpdateByExternalID(ctx, externalID, fields)
	switch {
	case errors.Is(err, finance.ErrNotFound):
		log.Warn("skipping modification", "error", &finance.NotFoundOnModifyError{ExternalID: externalID})
		return outcomeSkipped
	case err != nil:
		log.Error("failed to update transaction", "plaid_id", externalID, "error", err)
		return outcomeFailed
	}
	return outcomeApplied
}

func (e *Engine) applyRemoved(ctx context.Context, log *slog.Logger, externalID string) outcome {
	deleted, err := e.store.DeleteByExternalID(ctx, externalID)
	switch {
	case err != nil:
		log.Error("failed to delete transaction", "plaid_id", externalID, "error", err)
		return outcomeFailed
	case !deleted:
		log.Debug("removal is a no-op", "error", &finance.NotFoundOnRemoveError{ExternalID: externalID})
		return outcomeNoop
	}
	return outcomeApplied
}

func (e *Engine) fetchWindow(ctx context.Context, account finance.ExternalAccount, window finance.DateRange) ([]provider.Transaction, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.conf.ProviderTimeout)
	defer cancel()

	records, err := e.provider.FetchTransactionsWindow(callCtx, account.AccessToken, window.Start, window.End)
	if err != nil {
		return nil, &finance.SyncError{AccountID: account.ID, Err: err}
	}
	return records, nil
}

func (e *Engine) fetchDelta(ctx context.Context, account finance.ExternalAccount, cursor string) (provider.Delta, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.conf.ProviderTimeout)
	defer cancel()

	delta, err := e.provider.FetchTransactionsDelta(callCtx, account.AccessToken, cursor)
	if err != nil {
		return provider.Delta{}, &finance.SyncError{AccountID: account.ID, Err: err}
	}
	return delta, nil
}

// accountLocks serializes reconciliation per account.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) lock(accountID string) func() {
	l.mu.Lock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[accountID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
