package plaid

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/provider"
)

// Provider adapts Client to provider.Provider.
type Provider struct {
	client *Client
}

var _ provider.Provider = (*Provider)(nil)

func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// SignConvention is debit-positive: Plaid reports purchases as positive amounts.
func (p *Provider) SignConvention() provider.SignConvention {
	return provider.DebitPositive
}

func (p *Provider) ExchangeToken(ctx context.Context, publicToken string) (provider.Exchange, error) {
	resp, err := p.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return provider.Exchange{}, &finance.ProviderCallError{Op: "exchange token", Err: err}
	}

	return provider.Exchange{AccessToken: resp.AccessToken, ItemID: resp.ItemID}, nil
}

func (p *Provider) ListAccountsForToken(ctx context.Context, accessToken string) ([]provider.Account, error) {
	resp, err := p.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, &finance.ProviderCallError{Op: "list accounts", Err: err}
	}

	return resp.Accounts, nil
}

// FetchTransactionsDelta follows has_more until the delta is complete. A mutation during
// pagination restarts from the original cursor.
func (p *Provider) FetchTransactionsDelta(ctx context.Context, accessToken, cursor string) (provider.Delta, error) {
	var lastErr error

	for attempt := 0; attempt < maxSyncRestarts; attempt++ {
		delta, err := p.fetchDeltaPages(ctx, accessToken, cursor)
		if err == nil {
			return delta, nil
		}

		if !errors.Is(err, errSyncMutation) {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.cursorUnsupported() {
				return provider.Delta{}, fmt.Errorf("%w: %w", provider.ErrCursorUnavailable, err)
			}
			return provider.Delta{}, &finance.ProviderCallError{Op: "sync transactions", Err: err}
		}

		lastErr = err
	}

	return provider.Delta{}, &finance.ProviderCallError{Op: "sync transactions", Err: lastErr}
}

func (p *Provider) fetchDeltaPages(ctx context.Context, accessToken, cursor string) (provider.Delta, error) {
	delta := provider.Delta{NextCursor: cursor}

	for {
		resp, err := p.client.SyncTransactions(ctx, accessToken, delta.NextCursor)
		if err != nil {
			return provider.Delta{}, err
		}

		delta.Added = append(delta.Added, resp.Added...)
		delta.Modified = append(delta.Modified, resp.Modified...)
		for _, r := range resp.Removed {
			delta.Removed = append(delta.Removed, r.TransactionID)
		}
		delta.NextCursor = resp.NextCursor

		if !resp.HasMore {
			return delta, nil
		}
	}
}

// FetchTransactionsWindow pages /transactions/get until total_transactions are collected.
func (p *Provider) FetchTransactionsWindow(ctx context.Context, accessToken string, start, end civil.Date) ([]provider.Transaction, error) {
	transactions := []provider.Transaction{}

	for {
		resp, err := p.client.GetTransactions(ctx, accessToken, start, end, len(transactions))
		if err != nil {
			return nil, &finance.ProviderCallError{Op: "get transactions", Err: err}
		}

		transactions = append(transactions, resp.Transactions...)

		if len(resp.Transactions) == 0 || len(transactions) >= resp.TotalTransactions {
			return transactions, nil
		}
	}
}
