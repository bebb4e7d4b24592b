package serpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pricepilot/backend/internal/domain"
	g "github.com/serpapi/google-search-results-golang"
	"golang.org/x/time/rate"
)

// Client defaults
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
	DefaultMaxRetries        = 3
)

// SerpAPI reports an empty result set as an error with this text
const noResultsMessage = "hasn't returned any results"

// FetchFunc performs one SerpAPI search and returns the decoded JSON document
type FetchFunc func(ctx context.Context, params map[string]string) (map[string]interface{}, error)

// ClientConfig holds configuration for the SerpAPI client
type ClientConfig struct {
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// Client handles communication with SerpAPI, shared by every engine provider
type Client struct {
	apiKey      string
	fetch       FetchFunc
	rateLimiter *rate.Limiter
	maxRetries  int
	backoff     func(attempt int) time.Duration
}

// NewClient creates a new SerpAPI client
func NewClient(config ClientConfig) *Client {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := config.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	retries := config.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	c := &Client{
		apiKey:      config.APIKey,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:  retries,
		backoff:     exponentialBackoff,
	}
	c.fetch = c.libraryFetch
	return c
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// libraryFetch runs the blocking SerpAPI library call so that ctx can abandon it
func (c *Client) libraryFetch(ctx context.Context, params map[string]string) (map[string]interface{}, error) {
	type result struct {
		data map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		search := g.NewGoogleSearch(params, c.apiKey)
		data, err := search.GetJSON()
		ch <- result{data: data, err: err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Search runs one engine query with rate limiting and retries on transient failures.
// An empty result set is returned as an empty document, not an error.
func (c *Client) Search(ctx context.Context, provider domain.ProviderName, params map[string]string) (map[string]interface{}, error) {
	log.Printf("[SERPAPI] %s search: engine=%s", provider, params["engine"])

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			log.Printf("[SERPAPI] Rate limiter error: %v", err)
			return nil, classifyError(ctx, provider, err)
		}

		data, err := c.fetch(ctx, params)
		if err == nil {
			if msg, ok := data["error"].(string); ok && msg != "" {
				err = errors.New(msg)
			}
		}
		if err == nil {
			return data, nil
		}

		if strings.Contains(err.Error(), noResultsMessage) {
			log.Printf("[SERPAPI] %s returned no results", provider)
			return map[string]interface{}{}, nil
		}

		perr := classifyError(ctx, provider, err)
		if perr.Kind != domain.ProviderUnavailable {
			return nil, perr
		}

		log.Printf("[SERPAPI] %s request error (attempt %d): %v", provider, attempt, err)
		lastErr = perr
		if attempt == c.maxRetries {
			break
		}

		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, classifyError(ctx, provider, ctx.Err())
		}
	}

	log.Printf("[SERPAPI] All retries failed for %s", provider)
	return nil, lastErr
}

// classifyError maps a SerpAPI or transport error onto a provider error kind
func classifyError(ctx context.Context, provider domain.ProviderName, err error) *domain.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewProviderError(provider, domain.ProviderTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "401"):
		return domain.NewProviderError(provider, domain.ProviderUnauthorized, err)
	case strings.Contains(msg, "run out of searches"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "429"):
		return domain.NewProviderError(provider, domain.ProviderRateLimited, err)
	default:
		return domain.NewProviderError(provider, domain.ProviderUnavailable, fmt.Errorf("serpapi: %w", err))
	}
}

// exponentialBackoff returns the wait before retry attempt n: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}
