// Package ynab is the ledger.Store backed by the YNAB REST API.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/money"
)

// DefaultBaseURL is the public YNAB API root.
const DefaultBaseURL = "https://api.ynab.com/v1"

// APIError is a non-2xx answer from YNAB.
type APIError struct {
	StatusCode int
	ID         string
	Name       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ynab: HTTP %d %s: %s", e.StatusCode, e.Name, e.Detail)
	}
	return fmt.Sprintf("ynab: HTTP %d", e.StatusCode)
}

// Client talks to one YNAB account using a personal access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL means DefaultBaseURL.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListTransactions fetches the full transaction history of the budget.
func (c *Client) ListTransactions(ctx context.Context, budgetID string) ([]*ledger.Transaction, error) {
	var resp transactionsResponse
	if err := c.do(ctx, http.MethodGet, c.transactionsPath(budgetID), nil, &resp); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	txs := make([]*ledger.Transaction, 0, len(resp.Data.Transactions))
	for i, detail := range resp.Data.Transactions {
		tx, err := toLedger(detail)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("budget_id", budgetID).
		Int("transaction_count", len(txs)).
		Int64("server_knowledge", resp.Data.ServerKnowledge).
		Msg("Fetched ledger transactions")

	return txs, nil
}

// UpdateTransactions applies all updates in one PATCH request.
func (c *Client) UpdateTransactions(ctx context.Context, budgetID string, updates []ledger.Update) error {
	if len(updates) == 0 {
		return nil
	}

	payload := patchTransactionsPayload{Transactions: make([]saveTransaction, 0, len(updates))}
	for _, u := range updates {
		payload.Transactions = append(payload.Transactions, fromUpdate(u))
	}

	var resp patchTransactionsResponse
	if err := c.do(ctx, http.MethodPatch, c.transactionsPath(budgetID), payload, &resp); err != nil {
		return fmt.Errorf("UpdateTransactions: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("budget_id", budgetID).
		Int("updated", len(resp.Data.TransactionIDs)).
		Msg("Patched ledger transactions")

	return nil
}

func (c *Client) transactionsPath(budgetID string) string {
	return "/budgets/" + url.PathEscape(budgetID) + "/transactions"
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var er errorResponse
		if err := json.NewDecoder(res.Body).Decode(&er); err == nil {
			apiErr.ID = er.Error.ID
			apiErr.Name = er.Error.Name
			apiErr.Detail = er.Error.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// toLedger is the read boundary: dates become civil.Date and amounts become
// signed milliunits.
func toLedger(d transactionDetail) (*ledger.Transaction, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	date, err := civil.ParseDate(d.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: invalid date %q: %w", d.ID, d.Date, err)
	}

	tx := &ledger.Transaction{
		ID:         d.ID,
		Date:       date,
		Amount:     money.Milliunits(d.Amount),
		PayeeID:    deref(d.PayeeID),
		PayeeName:  deref(d.PayeeName),
		CategoryID: deref(d.CategoryID),
		Memo:       deref(d.Memo),
		Deleted:    d.Deleted,
	}
	for _, s := range d.Subtransactions {
		if s.Deleted {
			continue
		}
		tx.Subtransactions = append(tx.Subtransactions, ledger.Split{
			Amount:     money.Milliunits(s.Amount),
			PayeeID:    deref(s.PayeeID),
			PayeeName:  deref(s.PayeeName),
			CategoryID: deref(s.CategoryID),
			Memo:       deref(s.Memo),
		})
	}
	return tx, nil
}

func fromUpdate(u ledger.Update) saveTransaction {
	st := saveTransaction{ID: u.TransactionID, Memo: u.Memo}
	for _, s := range u.Splits {
		st.Subtransactions = append(st.Subtransactions, saveSubTransaction{
			Amount:     int64(s.Amount),
			PayeeID:    ref(s.PayeeID),
			PayeeName:  ref(s.PayeeName),
			CategoryID: ref(s.CategoryID),
			Memo:       ref(s.Memo),
		})
	}
	return st
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ ledger.Store = (*Client)(nil)
