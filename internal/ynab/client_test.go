package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBody = `{
  "data": {
    "server_knowledge": 17,
    "transactions": [
      {
        "id": "t-1",
        "date": "2024-03-02",
        "amount": -42170,
        "memo": null,
        "payee_id": "p-1",
        "payee_name": "Supervalu",
        "category_id": "c-1",
        "deleted": false,
        "subtransactions": []
      },
      {
        "id": "t-2",
        "date": "2024-03-03",
        "amount": -3000,
        "memo": "already done",
        "payee_id": "p-1",
        "payee_name": "Supervalu",
        "category_id": null,
        "deleted": false,
        "subtransactions": [
          {"id": "s-1", "transaction_id": "t-2", "amount": -1000, "memo": "Milk", "payee_id": null, "payee_name": null, "category_id": "c-1", "deleted": false},
          {"id": "s-2", "transaction_id": "t-2", "amount": -2000, "memo": "Bread", "payee_id": null, "payee_name": null, "category_id": "c-1", "deleted": true}
        ]
      }
    ]
  }
}`

func TestListTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/budgets/budget-1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, listBody)
	}))
	defer srv.Close()

	txs, err := NewClient("secret", srv.URL).ListTransactions(context.Background(), "budget-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, &ledger.Transaction{
		ID:         "t-1",
		Date:       civil.Date{Year: 2024, Month: 3, Day: 2},
		Amount:     money.Milliunits(-42170),
		PayeeID:    "p-1",
		PayeeName:  "Supervalu",
		CategoryID: "c-1",
	}, txs[0])

	assert.Equal(t, "already done", txs[1].Memo)
	assert.Equal(t, "", txs[1].CategoryID)
	require.Len(t, txs[1].Subtransactions, 1, "deleted subtransactions are dropped")
	assert.Equal(t, money.Milliunits(-1000), txs[1].Subtransactions[0].Amount)
}

func TestListTransactions_InvalidDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"transactions":[{"id":"t-1","date":"03/02/2024","amount":-1}]}}`)
	}))
	defer srv.Close()

	_, err := NewClient("secret", srv.URL).ListTransactions(context.Background(), "budget-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestListTransactions_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"id":"401","name":"unauthorized","detail":"Unauthorized"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("bad", srv.URL).ListTransactions(context.Background(), "budget-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Name)
}

func TestUpdateTransactions(t *testing.T) {
	var got map[string][]map[string]interface{}
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/budgets/budget-1/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"transaction_ids":["t-1","t-2"]}}`)
	}))
	defer srv.Close()

	memo := "Milk"
	updates := []ledger.Update{
		{TransactionID: "t-1", Memo: &memo},
		{TransactionID: "t-2", Splits: []ledger.Split{
			{Amount: -2000, PayeeID: "p-1", CategoryID: "c-1", Memo: "Bread"},
			{Amount: -1000, PayeeID: "p-1", CategoryID: "c-1", Memo: "2x Apple"},
		}},
	}

	err := NewClient("secret", srv.URL).UpdateTransactions(context.Background(), "budget-1", updates)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	txs := got["transactions"]
	require.Len(t, txs, 2)
	assert.Equal(t, "t-1", txs[0]["id"])
	assert.Equal(t, "Milk", txs[0]["memo"])
	assert.NotContains(t, txs[0], "subtransactions")

	assert.Equal(t, "t-2", txs[1]["id"])
	assert.NotContains(t, txs[1], "memo")
	subs := txs[1]["subtransactions"].([]interface{})
	require.Len(t, subs, 2)
	first := subs[0].(map[string]interface{})
	assert.Equal(t, float64(-2000), first["amount"])
	assert.Equal(t, "Bread", first["memo"])
	assert.Equal(t, "p-1", first["payee_id"])
	assert.NotContains(t, first, "payee_name")
}

func TestUpdateTransactions_NoUpdatesNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	require.NoError(t, NewClient("secret", srv.URL).UpdateTransactions(context.Background(), "budget-1", nil))
}

func TestClient_LogsThroughContextLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			_, _ = io.WriteString(w, `{"data":{"transaction_ids":["t-1"]}}`)
			return
		}
		_, _ = io.WriteString(w, listBody)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	client := NewClient("secret", srv.URL)

	_, err := client.ListTransactions(ctx, "budget-1")
	require.NoError(t, err)
	memo := "Milk"
	require.NoError(t, client.UpdateTransactions(ctx, "budget-1", []ledger.Update{{TransactionID: "t-1", Memo: &memo}}))

	out := buf.String()
	assert.Contains(t, out, `"message":"Fetched ledger transactions"`)
	assert.Contains(t, out, `"transaction_count":2`)
	assert.Contains(t, out, `"message":"Patched ledger transactions"`)
	assert.Contains(t, out, `"updated":1`)
}
