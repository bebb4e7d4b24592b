package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/pricepilot/backend/internal/domain"
)

// Search defaults
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxQueryLength = 200
	DefaultEventTimeout   = 2 * time.Second
)

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	RequestTimeout time.Duration
	MaxQueryLength int
	EventTimeout   time.Duration
}

// SearchPipeline groups the stages a search runs through
type SearchPipeline struct {
	Aggregator   *Aggregator
	Validator    *AIValidator
	Deduplicator *Deduplicator
	Scorer       *Scorer
}

// SearchService validates requests and runs them through the pipeline
type SearchService struct {
	catalog        domain.CountryCatalog
	pipeline       SearchPipeline
	publisher      domain.EventPublisher
	metrics        domain.MetricsRecorder
	requestTimeout time.Duration
	maxQueryLength int
	eventTimeout   time.Duration
}

// NewSearchService creates a search service. publisher and metrics may be nil.
func NewSearchService(
	catalog domain.CountryCatalog,
	pipeline SearchPipeline,
	publisher domain.EventPublisher,
	metrics domain.MetricsRecorder,
	config SearchServiceConfig,
) *SearchService {
	s := &SearchService{
		catalog:        catalog,
		pipeline:       pipeline,
		publisher:      publisher,
		metrics:        metrics,
		requestTimeout: config.RequestTimeout,
		maxQueryLength: config.MaxQueryLength,
		eventTimeout:   config.EventTimeout,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = DefaultRequestTimeout
	}
	if s.maxQueryLength <= 0 {
		s.maxQueryLength = DefaultMaxQueryLength
	}
	if s.eventTimeout <= 0 {
		s.eventTimeout = DefaultEventTimeout
	}
	if s.pipeline.Deduplicator == nil {
		s.pipeline.Deduplicator = NewDeduplicator(DedupConfig{})
	}
	if s.pipeline.Scorer == nil {
		s.pipeline.Scorer = NewScorer(ScorerConfig{})
	}
	if s.pipeline.Validator == nil {
		s.pipeline.Validator = NewAIValidator(nil, s.metrics, ValidatorConfig{})
	}
	return s
}

// AIAvailable reports whether searches can be AI enhanced
func (s *SearchService) AIAvailable() bool {
	return s.pipeline.Validator.Enabled()
}

// Countries lists the supported countries
func (s *SearchService) Countries() []domain.Country {
	return s.catalog.Countries()
}

// Search runs the full pipeline.
// Flow: validate -> aggregate -> AI validate -> deduplicate -> score and rank.
// Only an *domain.InputError is returned; every other failure is reported
// inside the response.
func (s *SearchService) Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()

	country, query, err := s.ValidateRequest(request)
	if err != nil {
		s.metrics.ObserveSearch(domain.SearchModeAI, domain.OutcomeRejected, time.Since(start), domain.PipelineStats{})
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	agg := s.pipeline.Aggregator.Aggregate(ctx, country, query)
	resp := newResponse(ctx, country, query, agg)
	resp.PipelineStats.RawProducts = len(agg.Candidates)

	if agg.AllFailed() {
		resp.Success = false
		resp.Message = fmt.Sprintf("All %d providers failed for '%s' in %s", len(agg.Providers), query, country.Name)
		s.finish(ctx, domain.SearchModeAI, domain.OutcomeFailed, resp, start)
		return resp, nil
	}

	outcome := s.pipeline.Validator.Validate(ctx, query, country, agg.Candidates)
	resp.AIEnhanced = outcome.Enhanced()
	if resp.AIEnhanced {
		resp.PipelineStats.AIValidated = len(outcome.Candidates)
	}

	deduped := s.pipeline.Deduplicator.Deduplicate(outcome.Candidates)
	resp.PipelineStats.AfterDeduplication = len(deduped)

	resp.Results = s.pipeline.Scorer.ScoreAndRank(deduped)
	resp.PipelineStats.FinalResults = len(resp.Results)

	degraded := !resp.AIEnhanced && len(agg.Candidates) > 0
	resp.Message = searchMessage(len(resp.Results), query, country, degraded)

	result := domain.OutcomeSuccess
	if degraded {
		result = domain.OutcomeDegraded
	}
	s.finish(ctx, domain.SearchModeAI, result, resp, start)
	return resp, nil
}

// SearchBasic skips the model: exact-match dedup and a price sort only
func (s *SearchService) SearchBasic(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()

	country, query, err := s.ValidateRequest(request)
	if err != nil {
		s.metrics.ObserveSearch(domain.SearchModeBasic, domain.OutcomeRejected, time.Since(start), domain.PipelineStats{})
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	agg := s.pipeline.Aggregator.Aggregate(ctx, country, query)
	resp := newResponse(ctx, country, query, agg)
	resp.PipelineStats.RawProducts = len(agg.Candidates)

	if agg.AllFailed() {
		resp.Success = false
		resp.Message = fmt.Sprintf("All %d providers failed for '%s' in %s", len(agg.Providers), query, country.Name)
		s.finish(ctx, domain.SearchModeBasic, domain.OutcomeFailed, resp, start)
		return resp, nil
	}

	results := ExactDeduplicate(agg.Candidates)
	SortByPrice(results)
	resp.Results = results
	resp.PipelineStats.AfterDeduplication = len(results)
	resp.PipelineStats.FinalResults = len(results)
	resp.Message = searchMessage(len(results), query, country, false)

	s.finish(ctx, domain.SearchModeBasic, domain.OutcomeSuccess, resp, start)
	return resp, nil
}

// SearchDebug runs only the provider fan-out and reports each provider's
// normalized candidates. It records no stats and publishes no event.
func (s *SearchService) SearchDebug(ctx context.Context, request *domain.SearchRequest) (*domain.DebugResponse, error) {
	country, query, err := s.ValidateRequest(request)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	agg := s.pipeline.Aggregator.Aggregate(ctx, country, query)

	counts := make(map[domain.ProviderName]int)
	for _, c := range agg.Candidates {
		counts[c.SourceProvider]++
	}
	failures := make(map[domain.ProviderName]*domain.ProviderError)
	for _, f := range agg.Failures {
		failures[f.Provider] = f
	}

	resp := &domain.DebugResponse{
		Success:    !agg.AllFailed(),
		Country:    country.Code,
		Query:      query,
		Providers:  make([]domain.ProviderDebug, 0, len(agg.Providers)),
		Candidates: agg.Candidates,
		RequestID:  domain.RequestIDFromContext(ctx),
	}
	if resp.Candidates == nil {
		resp.Candidates = []domain.CandidateProduct{}
	}
	for _, name := range agg.Providers {
		entry := domain.ProviderDebug{Provider: name, Candidates: counts[name]}
		if f, ok := failures[name]; ok {
			entry.Failure = &domain.ProviderFailure{Provider: f.Provider, Kind: f.Kind, Message: f.Error()}
		}
		resp.Providers = append(resp.Providers, entry)
	}

	log.Printf("[SEARCH] debug search %q in %s: %d candidates from %d providers (%d failed)",
		query, country.Code, len(agg.Candidates), len(agg.Providers), len(agg.Failures))
	return resp, nil
}

// ValidateRequest checks a request and resolves its country.
// The returned query is trimmed with inner whitespace collapsed.
func (s *SearchService) ValidateRequest(request *domain.SearchRequest) (*domain.Country, string, error) {
	if request == nil {
		return nil, "", &domain.InputError{Kind: domain.InputEmptyQuery}
	}

	code := strings.ToUpper(strings.TrimSpace(request.Country))
	query := collapseSpaces(request.Query)

	var country *domain.Country
	errs := validation.Errors{
		"country": validation.Validate(code,
			validation.Required,
			validation.By(func(value interface{}) error {
				c, ok := s.catalog.Lookup(value.(string))
				if !ok {
					return errors.New("is not supported")
				}
				country = c
				return nil
			}),
		),
		"query": validation.Validate(query,
			validation.Required,
			validation.RuneLength(1, s.maxQueryLength),
		),
	}.Filter()
	if errs == nil {
		return country, query, nil
	}

	fields := errs.(validation.Errors)
	switch {
	case fields["country"] != nil:
		log.Printf("[SEARCH] Rejected country %q: %v", request.Country, fields["country"])
		return nil, "", &domain.InputError{Kind: domain.InputUnsupportedCountry, Value: request.Country}
	case query == "":
		return nil, "", &domain.InputError{Kind: domain.InputEmptyQuery}
	default:
		return nil, "", &domain.InputError{Kind: domain.InputQueryTooLong, Value: strconv.Itoa(utf8.RuneCountInString(query))}
	}
}

func newResponse(ctx context.Context, country *domain.Country, query string, agg *AggregateResult) *domain.SearchResponse {
	resp := &domain.SearchResponse{
		Success:   true,
		Results:   []domain.CandidateProduct{},
		Country:   country.Code,
		Query:     query,
		RequestID: domain.RequestIDFromContext(ctx),
	}
	for _, f := range agg.Failures {
		resp.ProviderFailures = append(resp.ProviderFailures, domain.ProviderFailure{
			Provider: f.Provider,
			Kind:     f.Kind,
			Message:  f.Error(),
		})
	}
	return resp
}

func searchMessage(n int, query string, country *domain.Country, degraded bool) string {
	if n == 0 {
		return fmt.Sprintf("No products found for '%s' in %s", query, country.Name)
	}
	msg := fmt.Sprintf("Found %d products for '%s' in %s", n, query, country.Name)
	if degraded {
		msg += " (AI validation unavailable, results are unverified)"
	}
	return msg
}

// finish stamps timing, records metrics and publishes the completion event
func (s *SearchService) finish(ctx context.Context, mode domain.SearchMode, outcome string, resp *domain.SearchResponse, start time.Time) {
	elapsed := time.Since(start)
	resp.TotalResults = len(resp.Results)
	resp.SearchTimeSeconds = math.Round(elapsed.Seconds()*1000) / 1000

	s.metrics.ObserveSearch(mode, outcome, elapsed, resp.PipelineStats)

	log.Printf("[SEARCH] %s search %q in %s: %s, %d results in %.3fs (raw=%d ai=%d dedup=%d)",
		mode, resp.Query, resp.Country, outcome, resp.TotalResults, resp.SearchTimeSeconds,
		resp.PipelineStats.RawProducts, resp.PipelineStats.AIValidated, resp.PipelineStats.AfterDeduplication)

	if s.publisher == nil {
		return
	}

	event := domain.SearchCompletedEvent{
		EventID:          uuid.NewString(),
		RequestID:        resp.RequestID,
		Country:          resp.Country,
		Query:            resp.Query,
		Mode:             mode,
		Success:          resp.Success,
		AIEnhanced:       resp.AIEnhanced,
		Stats:            resp.PipelineStats,
		ProviderFailures: resp.ProviderFailures,
		DurationSeconds:  resp.SearchTimeSeconds,
		OccurredAt:       time.Now().UTC(),
	}

	// The request deadline may already be spent; the event gets its own budget
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	if err := s.publisher.PublishSearchCompleted(pctx, event); err != nil {
		log.Printf("[SEARCH] Failed to publish search event %s: %v", event.EventID, err)
	}
}
