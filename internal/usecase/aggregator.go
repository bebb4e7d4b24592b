package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pricepilot/backend/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultProviderTimeout bounds a single provider call
const DefaultProviderTimeout = 5 * time.Second

// AggregatorConfig holds configuration for the aggregator
type AggregatorConfig struct {
	ProviderTimeout time.Duration
}

// AggregateResult is the merged, normalized output of one fan-out
type AggregateResult struct {
	Candidates []domain.CandidateProduct
	Failures   []*domain.ProviderError
	Providers  []domain.ProviderName
}

// AllFailed reports whether providers were queried and none succeeded
func (r *AggregateResult) AllFailed() bool {
	return len(r.Providers) > 0 && len(r.Failures) == len(r.Providers)
}

// Aggregator fans a query out to every provider serving a country and
// joins their normalized results.
type Aggregator struct {
	providers       []domain.ProviderClient
	normalizer      *Normalizer
	metrics         domain.MetricsRecorder
	providerTimeout time.Duration
}

// NewAggregator creates an aggregator over the registered providers.
// Registration order is the order candidates are emitted in.
func NewAggregator(
	providers []domain.ProviderClient,
	normalizer *Normalizer,
	metrics domain.MetricsRecorder,
	config AggregatorConfig,
) *Aggregator {
	timeout := config.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Aggregator{
		providers:       providers,
		normalizer:      normalizer,
		metrics:         metrics,
		providerTimeout: timeout,
	}
}

// ProvidersFor returns the providers enabled for and supporting a country
func (a *Aggregator) ProvidersFor(country *domain.Country) []domain.ProviderClient {
	var selected []domain.ProviderClient
	for _, p := range a.providers {
		if country.SupportsProvider(p.Name()) && p.Supports(country) {
			selected = append(selected, p)
		}
	}
	return selected
}

// providerOutcome is one provider's slot in the join barrier
type providerOutcome struct {
	records []domain.RawRecord
	err     error
	done    bool
}

// Aggregate queries all providers concurrently and returns whatever
// completed before ctx expired. Provider failures are recorded, never returned.
func (a *Aggregator) Aggregate(ctx context.Context, country *domain.Country, query string) *AggregateResult {
	result := &AggregateResult{}

	selected := a.ProvidersFor(country)
	if len(selected) == 0 {
		log.Printf("[AGGREGATE] No providers configured for %s", country.Code)
		return result
	}

	outcomes := make([]providerOutcome, len(selected))
	var mu sync.Mutex

	var g errgroup.Group
	for i, p := range selected {
		i, p := i, p
		g.Go(func() error {
			records, err := a.callProvider(ctx, p, country, query)

			mu.Lock()
			outcomes[i] = providerOutcome{records: records, err: err, done: true}
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[AGGREGATE] Request deadline reached for %q in %s, returning partial results", query, country.Code)
	}

	mu.Lock()
	snapshot := make([]providerOutcome, len(outcomes))
	copy(snapshot, outcomes)
	mu.Unlock()

	for i, p := range selected {
		name := p.Name()
		result.Providers = append(result.Providers, name)
		o := snapshot[i]

		if !o.done {
			result.Failures = append(result.Failures,
				domain.NewProviderError(name, domain.ProviderTimeout, ctx.Err()))
			continue
		}
		if o.err != nil {
			var perr *domain.ProviderError
			if !errors.As(o.err, &perr) {
				perr = domain.NewProviderError(name, domain.ProviderUnavailable, o.err)
			}
			result.Failures = append(result.Failures, perr)
			continue
		}

		for _, raw := range o.records {
			c := a.normalizer.Normalize(country, name, raw)
			if c.Name == "" {
				continue
			}
			c.Position = len(result.Candidates)
			result.Candidates = append(result.Candidates, c)
		}
	}

	log.Printf("[AGGREGATE] %q in %s: %d candidates from %d providers (%d failed)",
		query, country.Code, len(result.Candidates), len(result.Providers), len(result.Failures))

	return result
}

// callProvider runs one provider call under its own deadline and classifies failures
func (a *Aggregator) callProvider(
	ctx context.Context,
	p domain.ProviderClient,
	country *domain.Country,
	query string,
) (records []domain.RawRecord, err error) {
	name := p.Name()
	pctx, cancel := context.WithTimeout(ctx, a.providerTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = domain.NewProviderError(name, domain.ProviderUnavailable, fmt.Errorf("panic: %v", r))
		}
		outcome := "ok"
		if err != nil {
			outcome = domain.ProviderErrorLabel(err)
			log.Printf("[AGGREGATE] Provider %s failed: %v", name, err)
		}
		a.metrics.ObserveProviderCall(name, outcome, time.Since(start))
	}()

	records, err = p.Search(pctx, country, query)
	if err == nil {
		return records, nil
	}

	var perr *domain.ProviderError
	switch {
	case errors.As(err, &perr):
		return nil, perr
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded):
		return nil, domain.NewProviderError(name, domain.ProviderTimeout, err)
	default:
		return nil, domain.NewProviderError(name, domain.ProviderUnavailable, err)
	}
}

// noopMetrics discards observations when no recorder is configured
type noopMetrics struct{}

func (noopMetrics) ObserveProviderCall(domain.ProviderName, string, time.Duration) {}
func (noopMetrics) ObserveAIBatch(string)                                          {}
func (noopMetrics) ObserveSearch(domain.SearchMode, string, time.Duration, domain.PipelineStats) {
}
