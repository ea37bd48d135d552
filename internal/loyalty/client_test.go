package loyalty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "tok", APIKey: "key", RatePerSec: 1000})
	require.NoError(t, err)
	return c
}

func TestFetchBaskets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("apikey"))

		switch r.URL.Path {
		case "/baskets":
			_, _ = io.WriteString(w, `{"baskets":[
				{"id":"b-1","type":"instore","date":"2024-03-01T10:00:00Z","storeName":"Ranelagh","total":10.5,"paid":"9.95"},
				{"id":"b-2","type":"online","date":"2024-03-02T11:00:00Z","total":3,"paid":3}
			]}`)
		case "/baskets/instore/b-1":
			_, _ = io.WriteString(w, `{"view":"<div class=\"row\">one</div>"}`)
		case "/baskets/online/b-2":
			_, _ = io.WriteString(w, `{"view":"<div class=\"row\">two</div>"}`)
		default:
			http.NotFound(w, r)
		}
	})

	baskets, err := c.FetchBaskets(context.Background())
	require.NoError(t, err)
	require.Len(t, baskets, 2)

	assert.Equal(t, "b-1", baskets[0].ID)
	assert.Equal(t, "Ranelagh", baskets[0].StoreName)
	assert.True(t, decimal.RequireFromString("10.5").Equal(baskets[0].Total))
	assert.True(t, decimal.RequireFromString("9.95").Equal(baskets[0].Paid))
	assert.Contains(t, baskets[0].View, "one")
	assert.Equal(t, "b-2", baskets[1].ID)
	assert.Contains(t, baskets[1].View, "two")
}

func TestFetchBaskets_DetailFailureAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/baskets" {
			_, _ = io.WriteString(w, `{"baskets":[{"id":"b-1","type":"instore"},{"id":"b-2","type":"instore"}]}`)
			return
		}
		if r.URL.Path == "/baskets/instore/b-2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"view":""}`)
	})

	_, err := c.FetchBaskets(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "/baskets/instore/b-2", apiErr.Path)
}

func TestFetchBaskets_ListFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchBaskets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing baskets")
}

func TestFetchBaskets_BoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	const n = 12

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/baskets" {
			_, _ = io.WriteString(w, `{"baskets":[`)
			for i := 0; i < n; i++ {
				if i > 0 {
					_, _ = io.WriteString(w, ",")
				}
				fmt.Fprintf(w, `{"id":"b-%d","type":"instore"}`, i)
			}
			_, _ = io.WriteString(w, `]}`)
			return
		}
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		defer atomic.AddInt32(&inFlight, -1)
		_, _ = io.WriteString(w, `{"view":"ok"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Concurrency: 2, RatePerSec: 1000})
	require.NoError(t, err)

	baskets, err := c.FetchBaskets(context.Background())
	require.NoError(t, err)
	require.Len(t, baskets, n)
	for i, b := range baskets {
		assert.Equal(t, fmt.Sprintf("b-%d", i), b.ID)
		assert.Equal(t, "ok", b.View)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
