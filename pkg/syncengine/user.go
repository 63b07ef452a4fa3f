package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

// Link exchanges a public token, records the new account and runs its initial fetch. A failed
// initial fetch leaves the account linked and is reported in LinkResult.InitialErr.
func (e *Engine) Link(ctx context.Context, userID, publicToken string) (LinkResult, error) {
	result := LinkResult{}

	exchangeCtx, cancel := context.WithTimeout(ctx, e.conf.ProviderTimeout)
	exchange, err := e.provider.ExchangeToken(exchangeCtx, publicToken)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to exchange public token: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, e.conf.ProviderTimeout)
	result.ProviderAccounts, err = e.provider.ListAccountsForToken(listCtx, exchange.AccessToken)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to list accounts for item %s: %w", exchange.ItemID, err)
	}

	e.log.Info("exchanged public token", "user_id", userID, "item_id", exchange.ItemID, "provider_accounts", len(result.ProviderAccounts))

	result.Account, err = e.store.CreateAccount(ctx, userID, exchange.AccessToken, exchange.ItemID)
	if err != nil {
		return result, fmt.Errorf("failed to save account: %w", err)
	}

	result.Initial, result.InitialErr = e.RunInitialSync(ctx, result.Account.ID, exchange.AccessToken)
	if result.InitialErr != nil {
		e.log.Warn("initial fetch failed, account stays linked", "account_id", result.Account.ID, "error", result.InitialErr)
	}

	return result, nil
}

// SyncUser runs RunIncrementalSync for every account of userID, at most
// MaxConcurrentAccounts at a time. A failing account never stops the others.
func (e *Engine) SyncUser(ctx context.Context, userID string, opts IncrementalOptions) (UserSyncResult, error) {
	result := UserSyncResult{UserID: userID, RunID: uuid.New().String()}

	accounts, err := e.store.ListAccounts(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to list accounts for %s: %w", userID, err)
	}

	log := e.log.With("user_id", userID, "run_id", result.RunID)
	log.Info("starting sync", "accounts", len(accounts))

	var (
		wg        sync.WaitGroup
		resultMux sync.Mutex
		authErr   error
		sem       = make(chan struct{}, e.conf.MaxConcurrentAccounts)
		perAcct   = make([]*IncrementalSyncResult, len(accounts))
	)

	for i, account := range accounts {
		wg.Add(1)
		go func(i int, account finance.ExternalAccount) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			r, err := e.RunIncrementalSync(ctx, userID, account.ID, opts)

			resultMux.Lock()
			defer resultMux.Unlock()

			var unauthorized *finance.UnauthorizedError
			var syncErr *finance.SyncError
			switch {
			case err == nil:
				perAcct[i] = &r
			case errors.As(err, &unauthorized):
				authErr = err
			case errors.As(err, &syncErr):
				log.Error("account sync failed", "account_id", account.ID, "error", err)
				result.Failures = append(result.Failures, syncErr)
			default:
				log.Error("account sync failed", "account_id", account.ID, "error", err)
				result.Failures = append(result.Failures, &finance.SyncError{AccountID: account.ID, Err: err})
			}
		}(i, account)
	}

	wg.Wait()

	if authErr != nil {
		return UserSyncResult{UserID: userID, RunID: result.RunID}, authErr
	}

	for _, r := range perAcct {
		if r != nil {
			result.Accounts = append(result.Accounts, *r)
		}
	}

	totals := result.Totals()
	log.Info("finished sync", "added", totals.Added, "modified", totals.Modified, "removed", totals.Removed,
		"errors", totals.Errors, "failed_accounts", len(result.Failures))

	return result, nil
}

// EnsurePopulated runs the initial fetch for every account of userID that has no stored
// transactions yet. Callers use it before reading so a fresh link isn't reported as empty.
func (e *Engine) EnsurePopulated(ctx context.Context, userID string) (PopulateResult, error) {
	result := PopulateResult{}

	accounts, err := e.store.ListAccounts(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to list accounts for %s: %w", userID, err)
	}

	for _, account := range accounts {
		n, err := e.store.CountForAccount(ctx, account.ID)
		if err != nil {
			return result, fmt.Errorf("failed to count transactions for %s: %w", account.ID, err)
		}
		if n > 0 {
			continue
		}

		e.log.Info("account has no transactions, running initial fetch", "user_id", userID, "account_id", account.ID)

		r, err := e.RunInitialSync(ctx, account.ID, account.AccessToken)
		if err != nil {
			result.Failures = append(result.Failures, err)
			continue
		}
		result.Accounts = append(result.Accounts, r)
	}

	return result, nil
}
