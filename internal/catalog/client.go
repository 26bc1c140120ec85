// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package catalog is the read-only client for the bookstore catalog service.
// The engine hydrates recommendation item IDs into book records here; it
// never writes to the catalog. Calls are rate limited, circuit broken, and
// cached so a slow catalog cannot stall the serving path.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/shelfwise/shelfwise/internal/cache"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
)

const breakerName = "catalog-api"

// Config holds the catalog client configuration.
type Config struct {
	// BaseURL is the catalog service root, e.g. http://catalog:8081.
	BaseURL string

	// APIKey, when set, is sent as the X-Api-Key header.
	APIKey string

	// Timeout bounds one HTTP request. Default: 5s.
	Timeout time.Duration

	// RateLimit is requests per second toward the catalog. Default: 20.
	RateLimit float64

	// Burst is the rate limiter burst. Default: 10.
	Burst int

	// CacheTTL is how long hydrated books stay cached. Default: 5m.
	CacheTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Client talks to the catalog service.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]models.Book]
	cache   *cache.Cache
}

// New creates a catalog client. The cache is injected so the owner controls
// its bounds and lifetime; nil disables caching.
func New(cfg Config, c *cache.Cache) *Client {
	cfg.applyDefaults()

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]models.Book](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("catalog circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cb:      cb,
		cache:   c,
	}
}

// GetBooks resolves item IDs into catalog book records. Unknown IDs are
// simply absent from the result. Cached books are served without touching
// the catalog; only the misses go over the wire.
func (c *Client) GetBooks(ctx context.Context, ids []int64) ([]models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	books := make([]models.Book, 0, len(ids))
	var misses []int64
	for _, id := range ids {
		if c.cache != nil {
			if v, ok := c.cache.Get(bookCacheKey(id)); ok {
				metrics.RecordCacheAccess("catalog", true)
				books = append(books, v.(models.Book))
				continue
			}
			metrics.RecordCacheAccess("catalog", false)
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return books, nil
	}

	fetched, err := c.fetchBooks(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, book := range fetched {
		if c.cache != nil {
			c.cache.SetWithTTL(bookCacheKey(book.ID), book, c.cfg.CacheTTL)
		}
	}
	return append(books, fetched...), nil
}

func (c *Client) fetchBooks(ctx context.Context, ids []int64) ([]models.Book, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, recerr.Wrap(recerr.KindUpstream, err)
	}

	start := time.Now()
	books, err := c.cb.Execute(func() ([]models.Book, error) {
		return c.doFetch(ctx, ids)
	})
	metrics.CatalogRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CatalogErrors.Inc()
		return nil, recerr.Wrap(recerr.KindUpstream, err)
	}
	return books, nil
}

func (c *Client) doFetch(ctx context.Context, ids []int64) ([]models.Book, error) {
	idsParam := make([]string, len(ids))
	for i, id := range ids {
		idsParam[i] = strconv.FormatInt(id, 10)
	}

	u, err := url.Parse(c.cfg.BaseURL + "/api/v1/books")
	if err != nil {
		return nil, fmt.Errorf("catalog url: %w", err)
	}
	q := u.Query()
	q.Set("ids", strings.Join(idsParam, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var books []models.Book
	if err := json.NewDecoder(resp.Body).Decode(&books); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return books, nil
}

// Ping verifies catalog connectivity.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return recerr.Wrap(recerr.KindUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return recerr.Newf(recerr.KindUpstream, "catalog health returned status %d", resp.StatusCode)
	}
	return nil
}

func bookCacheKey(id int64) string {
	return "book:" + strconv.FormatInt(id, 10)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
