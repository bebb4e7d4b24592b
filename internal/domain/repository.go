package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ProviderClient is one shopping-search backend.
// Search must honor the ctx deadline and return an empty slice, not an error,
// when the upstream has no results. Failures are *ProviderError.
type ProviderClient interface {
	Name() ProviderName
	Supports(country *Country) bool
	Search(ctx context.Context, country *Country, query string) ([]RawRecord, error)
}

// CountryCatalog resolves supported countries and currencies
type CountryCatalog interface {
	Lookup(code string) (*Country, bool)
	Countries() []Country
	Currency(code string) (Currency, bool)
	Currencies() []Currency
}

// ChatRequest is a single-turn prompt sent to a language model
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// LLMClient completes a chat prompt. Transport failures wrap ErrModelUnavailable.
type LLMClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Model() string
}

// EventPublisher emits search lifecycle events
type EventPublisher interface {
	PublishSearchCompleted(ctx context.Context, event SearchCompletedEvent) error
}

// Search outcomes reported to MetricsRecorder
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// MetricsRecorder receives pipeline observations. Implementations must be goroutine-safe.
type MetricsRecorder interface {
	ObserveProviderCall(provider ProviderName, outcome string, duration time.Duration)
	ObserveAIBatch(outcome string)
	ObserveSearch(mode SearchMode, outcome string, duration time.Duration, stats PipelineStats)
}
