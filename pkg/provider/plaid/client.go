// Package plaid implements provider.Provider on the plaid-go API client.
package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/plaid/plaid-go/v29/plaid"
	"github.com/shopspring/decimal"

	"github.com/bcaldwell/plaidsync/pkg/provider"
)

const developmentBaseURL = "https://development.plaid.com"

// Client wraps the plaid-go APIClient for the endpoints the sync pipeline uses and converts
// its models into provider payloads.
type Client struct {
	api      *plaid.PlaidApiService
	pageSize int

	maxRetries   int
	retryBackoff time.Duration
}

type ClientConfig struct {
	// sandbox, development or production
	Environment string
	// BaseURL overrides the environment host, mostly for tests
	BaseURL  string
	ClientID string
	Secret   string
	// HTTPClient overrides the default client, mostly for tests
	HTTPClient *http.Client
	Timeout    time.Duration
	// PageSize is the count requested per transactions page
	PageSize int
	// MaxRetries bounds retries of 429 and 5xx responses
	MaxRetries   int
	RetryBackoff time.Duration
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.ClientID == "" || config.Secret == "" {
		return nil, ErrNotConfigured
	}

	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", config.ClientID)
	cfg.AddDefaultHeader("PLAID-SECRET", config.Secret)

	switch {
	case config.BaseURL != "":
		cfg.UseEnvironment(plaid.Environment(strings.TrimRight(config.BaseURL, "/")))
	case strings.EqualFold(config.Environment, "production"):
		cfg.UseEnvironment(plaid.Production)
	case strings.EqualFold(config.Environment, "development"):
		cfg.UseEnvironment(plaid.Environment(developmentBaseURL))
	default:
		cfg.UseEnvironment(plaid.Sandbox)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient

	c := &Client{
		api:          plaid.NewAPIClient(cfg).PlaidApi,
		pageSize:     config.PageSize,
		maxRetries:   config.MaxRetries,
		retryBackoff: config.RetryBackoff,
	}
	if c.pageSize <= 0 || c.pageSize > maxPageSize {
		c.pageSize = maxPageSize
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}

	return c, nil
}

func (c *Client) CreateLinkToken(ctx context.Context, userID, clientName string, countryCodes []string) (*LinkTokenCreateResponse, error) {
	codes := make([]plaid.CountryCode, 0, len(countryCodes))
	for _, code := range countryCodes {
		codes = append(codes, plaid.CountryCode(strings.ToUpper(code)))
	}

	req := plaid.NewLinkTokenCreateRequest(clientName, "en", codes, plaid.LinkTokenCreateRequestUser{ClientUserId: userID})
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_AUTH, plaid.PRODUCTS_TRANSACTIONS})

	resp, err := call(ctx, c, func() (plaid.LinkTokenCreateResponse, *http.Response, error) {
		return c.api.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	return &LinkTokenCreateResponse{
		LinkToken:  resp.GetLinkToken(),
		Expiration: resp.GetExpiration(),
		RequestID:  resp.GetRequestId(),
	}, nil
}

// CreateSandboxPublicToken skips the Link UI in the sandbox environment.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string) (*SandboxPublicTokenCreateResponse, error) {
	req := plaid.NewSandboxPublicTokenCreateRequest(institutionID, []plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, err := call(ctx, c, func() (plaid.SandboxPublicTokenCreateResponse, *http.Response, error) {
		return c.api.SandboxPublicTokenCreate(ctx).SandboxPublicTokenCreateRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	return &SandboxPublicTokenCreateResponse{PublicToken: resp.GetPublicToken(), RequestID: resp.GetRequestId()}, nil
}

// FireSandboxWebhook makes the sandbox send a DEFAULT_UPDATE transactions webhook for the item.
func (c *Client) FireSandboxWebhook(ctx context.Context, accessToken string) (bool, error) {
	req := plaid.NewSandboxItemFireWebhookRequest(accessToken, "DEFAULT_UPDATE")

	resp, err := call(ctx, c, func() (plaid.SandboxItemFireWebhookResponse, *http.Response, error) {
		return c.api.SandboxItemFireWebhook(ctx).SandboxItemFireWebhookRequest(*req).Execute()
	})
	if err != nil {
		return false, err
	}

	return resp.GetWebhookFired(), nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ItemPublicTokenExchangeResponse, error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)

	resp, err := call(ctx, c, func() (plaid.ItemPublicTokenExchangeResponse, *http.Response, error) {
		return c.api.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	return &ItemPublicTokenExchangeResponse{
		AccessToken: resp.GetAccessToken(),
		ItemID:      resp.GetItemId(),
		RequestID:   resp.GetRequestId(),
	}, nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsGetResponse, error) {
	req := plaid.NewAccountsGetRequest(accessToken)

	resp, err := call(ctx, c, func() (plaid.AccountsGetResponse, *http.Response, error) {
		return c.api.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	out := &AccountsGetResponse{RequestID: resp.GetRequestId()}
	for _, a := range resp.GetAccounts() {
		out.Accounts = append(out.Accounts, provider.Account{
			ID:      a.GetAccountId(),
			Name:    a.GetName(),
			Mask:    a.GetMask(),
			Type:    string(a.GetType()),
			Subtype: string(a.GetSubtype()),
		})
	}
	item := resp.GetItem()
	out.Item = Item{ItemID: item.GetItemId(), InstitutionID: item.GetInstitutionId()}

	return out, nil
}

// GetTransactions fetches one page of /transactions/get.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, start, end civil.Date, offset int) (*TransactionsGetResponse, error) {
	req := plaid.NewTransactionsGetRequest(accessToken, start.String(), end.String())
	req.SetOptions(plaid.TransactionsGetRequestOptions{
		Count:                          plaid.PtrInt32(int32(c.pageSize)),
		Offset:                         plaid.PtrInt32(int32(offset)),
		IncludePersonalFinanceCategory: plaid.PtrBool(true),
	})

	resp, err := call(ctx, c, func() (plaid.TransactionsGetResponse, *http.Response, error) {
		return c.api.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	return &TransactionsGetResponse{
		Transactions:      convertTransactions(resp.GetTransactions()),
		TotalTransactions: int(resp.GetTotalTransactions()),
		RequestID:         resp.GetRequestId(),
	}, nil
}

// SyncTransactions fetches one page of /transactions/sync. The empty cursor asks for the
// full history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*TransactionsSyncResponse, error) {
	req := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		req.SetCursor(cursor)
	}
	req.SetCount(int32(c.pageSize))
	req.SetOptions(plaid.TransactionsSyncRequestOptions{IncludePersonalFinanceCategory: plaid.PtrBool(true)})

	resp, err := call(ctx, c, func() (plaid.TransactionsSyncResponse, *http.Response, error) {
		return c.api.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
	})
	if err != nil {
		return nil, err
	}

	out := &TransactionsSyncResponse{
		Added:      convertTransactions(resp.GetAdded()),
		Modified:   convertTransactions(resp.GetModified()),
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
		RequestID:  resp.GetRequestId(),
	}
	for _, r := range resp.GetRemoved() {
		out.Removed = append(out.Removed, provider.Removed{TransactionID: r.GetTransactionId()})
	}

	return out, nil
}

// call runs one request, retrying 429 and 5xx responses up to maxRetries times.
func call[Resp any](ctx context.Context, c *Client, do func() (Resp, *http.Response, error)) (Resp, error) {
	for attempt := 0; ; attempt++ {
		resp, httpResp, err := do()
		if err == nil {
			return resp, nil
		}

		err = parseError(httpResp, err)

		var apiErr *APIError
		if attempt >= c.maxRetries || !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			var zero Resp
			return zero, err
		}

		select {
		case <-ctx.Done():
			var zero Resp
			return zero, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-time.After(c.retryBackoff << attempt):
		}
	}
}

// parseError maps a plaid-go error into an APIError wrapped in the matching sentinel.
func parseError(httpResp *http.Response, err error) error {
	var openAPIErr plaid.GenericOpenAPIError
	if !errors.As(err, &openAPIErr) {
		return fmt.Errorf("request failed: %w", err)
	}

	apiErr := &APIError{}
	if httpResp != nil {
		apiErr.StatusCode = httpResp.StatusCode
	}

	var errResp errorResponse
	if body := openAPIErr.Body(); json.Unmarshal(body, &errResp) == nil {
		apiErr.ErrorType = errResp.ErrorType
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.ErrorMessage = errResp.ErrorMessage
		apiErr.RequestID = errResp.RequestID
	} else if len(body) > 0 {
		apiErr.ErrorMessage = string(body)
	} else {
		apiErr.ErrorMessage = openAPIErr.Error()
	}

	switch {
	case apiErr.ErrorCode == codeSyncMutation:
		return fmt.Errorf("%w: %w", errSyncMutation, apiErr)
	case apiErr.ErrorType == "INVALID_ACCESS_TOKEN" || apiErr.ErrorCode == "INVALID_ACCESS_TOKEN":
		return fmt.Errorf("%w: %w", ErrInvalidToken, apiErr)
	case apiErr.ErrorType == "RATE_LIMIT_EXCEEDED":
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	case apiErr.ErrorCode == "ITEM_LOGIN_REQUIRED":
		return fmt.Errorf("%w: %w", ErrItemLoginRequired, apiErr)
	}

	return apiErr
}

func convertTransactions(in []plaid.Transaction) []provider.Transaction {
	out := make([]provider.Transaction, 0, len(in))
	for _, t := range in {
		tx := provider.Transaction{
			ID:           t.GetTransactionId(),
			AccountID:    t.GetAccountId(),
			Amount:       decimal.NewFromFloat(t.GetAmount()),
			Date:         t.GetDate(),
			Name:         t.GetName(),
			MerchantName: t.GetMerchantName(),
			Pending:      t.GetPending(),
			Category:     t.GetCategory(),
		}
		if t.HasPersonalFinanceCategory() {
			pfc := t.GetPersonalFinanceCategory()
			tx.PersonalFinanceCategory = &provider.PersonalFinanceCategory{
				Primary:  pfc.GetPrimary(),
				Detailed: pfc.GetDetailed(),
			}
		}
		out = append(out, tx)
	}
	return out
}
