// Package loyalty fetches basket history from the SuperValu loyalty API.
//
// Signing in happens elsewhere (the portal only hands out tokens to a browser
// session); this client takes the resulting bearer token and API key as
// given.
package loyalty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/receipt"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production loyalty API root.
	DefaultBaseURL = "https://supervalu-loyalty-web.api.prod.musgrave.io/v2"

	defaultConcurrency = 4
	defaultRatePerSec  = 5
)

// Config holds the session credentials and fetch tuning.
type Config struct {
	BaseURL     string
	Token       string // bearer token of a signed-in portal session
	APIKey      string
	Concurrency int     // parallel basket detail requests
	RatePerSec  float64 // request ceiling across all workers
}

// APIError is a non-2xx answer from the loyalty API.
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("loyalty: HTTP %d for %s", e.StatusCode, e.Path)
}

// Client is a BasketSource backed by the loyalty HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

type basketsResponse struct {
	Baskets []receipt.RawBasket `json:"baskets"`
}

type basketDetailResponse struct {
	View string `json:"view"`
}

// NewClient creates a Client, filling zero Config fields with defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("NewClient: cookie jar: %w", err)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}, nil
}

// FetchBaskets lists every basket and fills in its rendered view. Detail
// requests run concurrently; the result keeps the listing order. Any failure
// aborts the whole fetch.
func (c *Client) FetchBaskets(ctx context.Context) ([]receipt.RawBasket, error) {
	log := logger.FromContext(ctx)

	var list basketsResponse
	if err := c.get(ctx, "/baskets", &list); err != nil {
		return nil, fmt.Errorf("FetchBaskets: listing baskets: %w", err)
	}

	log.Info().Int("basket_count", len(list.Baskets)).Msg("Retrieved basket list")

	baskets := list.Baskets
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i := range baskets {
		i := i
		g.Go(func() error {
			b := baskets[i]
			path := "/baskets/" + url.PathEscape(b.Type) + "/" + url.PathEscape(b.ID)

			var detail basketDetailResponse
			if err := c.get(gctx, path, &detail); err != nil {
				return fmt.Errorf("basket %s: %w", b.ID, err)
			}
			baskets[i].View = detail.View
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("FetchBaskets: %w", err)
	}

	return baskets, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Path: path}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
