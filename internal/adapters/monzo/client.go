// Package monzo talks to the Monzo banking API.
package monzo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/SscSPs/bank_importers/internal/utils/pagination"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	rateLimitKey = "monzo"
	// maxErrorBody bounds how much of an error response ends up in HTTPError.
	maxErrorBody = 4 << 10
)

// TokenRefresher issues a new access token after the API rejected the current one.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is a read-only client for the banking API.
type Client struct {
	httpClient *http.Client
	apiRoot    string
	refresher  TokenRefresher

	mu    sync.Mutex
	token string
}

// Ensure Client implements ports.BankAPI
var _ ports.BankAPI = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithTransport sets the innermost transport. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient creates a Client authorised with token. On a 401 response the
// client asks refresher for a new token once and retries the request.
func NewClient(cfg *config.Config, token string, refresher TokenRefresher, opts ...ClientOption) (*Client, error) {
	o := clientOptions{transport: http.DefaultTransport, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	rate, err := limiter.NewRateFromFormatted(cfg.MonzoRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.MonzoRateLimit, err)
	}
	limiterInstance := limiter.New(memory.NewStore(), rate)

	transport := middleware.StructuredLogging(o.transport, o.logger)
	transport = middleware.RateLimit(transport, limiterInstance, rateLimitKey)

	apiRoot := cfg.MonzoAPIRoot
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		apiRoot:    apiRoot,
		refresher:  refresher,
		token:      token,
	}, nil
}

type accountsResponse struct {
	Accounts []domain.BankAccount `json:"accounts"`
}

type potsResponse struct {
	Pots []domain.Pot `json:"pots"`
}

type transactionsResponse struct {
	Transactions []domain.RawTransaction `json:"transactions"`
}

type transactionResponse struct {
	Transaction json.RawMessage `json:"transaction"`
}

// ListAccounts returns every account of the authorised user, closed ones included.
func (c *Client) ListAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	var resp accountsResponse
	if err := c.get(ctx, "accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// ListPots returns every pot attached to the account, closed ones included.
func (c *Client) ListPots(ctx context.Context, accountID string) ([]domain.Pot, error) {
	var resp potsResponse
	params := url.Values{"current_account_id": {accountID}}
	if err := c.get(ctx, "pots", params, &resp); err != nil {
		return nil, err
	}
	return resp.Pots, nil
}

// ListTransactions returns one page of transactions with merchants expanded.
func (c *Client) ListTransactions(ctx context.Context, q ports.TransactionPageQuery) ([]domain.RawTransaction, error) {
	params := url.Values{
		"account_id": {q.AccountID},
		"since":      {pagination.EncodeSince(q.Since)},
		"expand[]":   {"merchant"},
	}
	if q.Before != nil {
		params.Set("before", pagination.EncodeSince(*q.Before))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var resp transactionsResponse
	if err := c.get(ctx, "transactions", params, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// GetTransaction returns a single transaction exactly as the API sent it.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (json.RawMessage, error) {
	var resp transactionResponse
	params := url.Values{"expand[]": {"merchant"}}
	if err := c.get(ctx, "transactions/"+url.PathEscape(transactionID), params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Transaction) == 0 || string(resp.Transaction) == "null" {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, apperrors.ErrNotFound)
	}
	return resp.Transaction, nil
}

// get performs a GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.apiRoot + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	resp, err := c.send(ctx, endpoint, c.currentToken())
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.refresher != nil {
		drain(resp)
		middleware.GetLoggerFromCtx(ctx).InfoContext(ctx, "Access token rejected, refreshing", slog.String("url", endpoint))

		token, err := c.refresher.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("GET %s: %w", endpoint, err)
		}
		c.setToken(token)

		resp, err = c.send(ctx, endpoint, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &apperrors.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        endpoint,
			Body:       strings.TrimSpace(string(body)),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, httpErr)
		}
		return httpErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, endpoint, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return resp, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
