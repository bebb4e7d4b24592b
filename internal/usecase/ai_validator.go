package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pricepilot/backend/internal/domain"
	"golang.org/x/sync/errgroup"
)

// AI validation defaults
const (
	DefaultBatchSize         = 10
	DefaultBatchConcurrency  = 3
	DefaultMinRelevanceScore = 70.0
	DefaultTemperature       = 0.1
	DefaultMaxTokens         = 2000

	// Clean names this short are usually truncated model output
	minCleanNameLength = 5
)

// Batch outcomes reported to metrics
const (
	batchValidated   = "validated"
	batchMalformed   = "malformed"
	batchUnavailable = "unavailable"
)

var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

const validationSystemPrompt = "You are a product matching expert for a price comparison service. " +
	"You judge whether e-commerce listings match what a shopper searched for. " +
	"Respond with JSON only."

// ValidatorConfig holds configuration for the AI validator
type ValidatorConfig struct {
	BatchSize         int
	Concurrency       int
	MinRelevanceScore float64
	Temperature       float64
	MaxTokens         int
}

// ValidationOutcome is the result of running all batches for one request
type ValidationOutcome struct {
	Candidates       []domain.CandidateProduct
	ValidatedBatches int
	FailedBatches    int
	Dropped          int
	Errors           []*domain.ValidationError
}

// Enhanced reports whether at least one batch was judged by the model
func (o *ValidationOutcome) Enhanced() bool {
	return o.ValidatedBatches > 0
}

// AIValidator filters candidates through a language model in bounded batches
type AIValidator struct {
	llm               domain.LLMClient
	metrics           domain.MetricsRecorder
	batchSize         int
	concurrency       int
	minRelevanceScore float64
	temperature       float64
	maxTokens         int
}

// NewAIValidator creates a validator. A nil llm yields a disabled validator
// that passes every candidate through unvalidated.
func NewAIValidator(llm domain.LLMClient, metrics domain.MetricsRecorder, config ValidatorConfig) *AIValidator {
	v := &AIValidator{
		llm:               llm,
		metrics:           metrics,
		batchSize:         config.BatchSize,
		concurrency:       config.Concurrency,
		minRelevanceScore: config.MinRelevanceScore,
		temperature:       config.Temperature,
		maxTokens:         config.MaxTokens,
	}
	if v.metrics == nil {
		v.metrics = noopMetrics{}
	}
	if v.batchSize <= 0 {
		v.batchSize = DefaultBatchSize
	}
	if v.concurrency <= 0 {
		v.concurrency = DefaultBatchConcurrency
	}
	if v.minRelevanceScore <= 0 {
		v.minRelevanceScore = DefaultMinRelevanceScore
	}
	if v.temperature <= 0 {
		v.temperature = DefaultTemperature
	}
	if v.maxTokens <= 0 {
		v.maxTokens = DefaultMaxTokens
	}
	return v
}

// Enabled reports whether a model is configured
func (v *AIValidator) Enabled() bool {
	return v != nil && v.llm != nil
}

type batchResult struct {
	candidates []domain.CandidateProduct
	dropped    int
	err        *domain.ValidationError
}

// Validate judges candidates batch by batch. A failed batch passes its
// candidates through unvalidated; it never fails the request.
func (v *AIValidator) Validate(
	ctx context.Context,
	query string,
	country *domain.Country,
	candidates []domain.CandidateProduct,
) *ValidationOutcome {
	outcome := &ValidationOutcome{}
	if !v.Enabled() || len(candidates) == 0 {
		outcome.Candidates = passThrough(candidates)
		return outcome
	}

	var batches [][]domain.CandidateProduct
	for start := 0; start < len(candidates); start += v.batchSize {
		end := min(start+v.batchSize, len(candidates))
		batches = append(batches, candidates[start:end])
	}

	results := make([]batchResult, len(batches))
	g := new(errgroup.Group)
	g.SetLimit(v.concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = v.validateBatch(ctx, query, country, i, batch)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.err != nil {
			outcome.FailedBatches++
			outcome.Errors = append(outcome.Errors, r.err)
			outcome.Candidates = append(outcome.Candidates, passThrough(batches[i])...)
			continue
		}
		outcome.ValidatedBatches++
		outcome.Dropped += r.dropped
		outcome.Candidates = append(outcome.Candidates, r.candidates...)
	}

	log.Printf("[AI] %q: %d batches validated, %d failed, %d candidates dropped, %d kept",
		query, outcome.ValidatedBatches, outcome.FailedBatches, outcome.Dropped, len(outcome.Candidates))

	return outcome
}

func (v *AIValidator) validateBatch(
	ctx context.Context,
	query string,
	country *domain.Country,
	index int,
	batch []domain.CandidateProduct,
) batchResult {
	prompt, err := buildValidationPrompt(query, country, batch)
	if err != nil {
		v.metrics.ObserveAIBatch(batchMalformed)
		return batchResult{err: &domain.ValidationError{Kind: domain.ValidationMalformedJudgment, Batch: index, Err: err}}
	}

	raw, err := v.llm.Complete(ctx, domain.ChatRequest{
		System:      validationSystemPrompt,
		User:        prompt,
		Temperature: v.temperature,
		MaxTokens:   v.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		log.Printf("[AI] Batch %d: model call failed: %v", index, err)
		v.metrics.ObserveAIBatch(batchUnavailable)
		return batchResult{err: &domain.ValidationError{Kind: domain.ValidationModelUnavailable, Batch: index, Err: err}}
	}

	judgments, err := ParseJudgments(raw, len(batch))
	if err != nil {
		log.Printf("[AI] Batch %d: %v", index, err)
		v.metrics.ObserveAIBatch(batchMalformed)
		return batchResult{err: &domain.ValidationError{Kind: domain.ValidationMalformedJudgment, Batch: index, Err: err}}
	}

	v.metrics.ObserveAIBatch(batchValidated)

	var result batchResult
	for i, c := range batch {
		j, ok := judgments[i]
		if !ok {
			// The model skipped this one; keep it, unjudged
			result.candidates = append(result.candidates, passThrough([]domain.CandidateProduct{c})...)
			continue
		}
		if !j.IsRelevant || j.RelevanceScore < v.minRelevanceScore {
			result.dropped++
			continue
		}

		judged := j
		c.AIValidated = true
		c.AI = &judged
		if clean := strings.TrimSpace(j.CleanName); utf8.RuneCountInString(clean) > minCleanNameLength {
			c.Name = CleanProductName(clean)
		}
		result.candidates = append(result.candidates, c)
	}
	return result
}

// promptProduct is the compact view of a candidate shown to the model
type promptProduct struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Price    string  `json:"price,omitempty"`
	Numeric  float64 `json:"price_numeric,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Website  string  `json:"website,omitempty"`
	Source   string  `json:"source"`
}

func buildValidationPrompt(query string, country *domain.Country, batch []domain.CandidateProduct) (string, error) {
	products := make([]promptProduct, len(batch))
	for i, c := range batch {
		products[i] = promptProduct{
			Index:    i,
			Name:     c.RawName,
			Price:    c.PriceRaw,
			Numeric:  c.Price(),
			Currency: c.Currency,
			Website:  c.Website,
			Source:   string(c.SourceProvider),
		}
	}
	listing, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode products: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The shopper searched for %q in %s (currency %s).\n\n", query, country.Name, country.Currency)
	b.WriteString("Decide which of these listings are the product the shopper wants.\n")
	b.WriteString("Accessories, cases, refurbished parts and different models are NOT relevant.\n\n")
	b.WriteString("Products:\n")
	b.Write(listing)
	b.WriteString("\n\nFor every product return an object with:\n")
	b.WriteString("- original_index: the index from the list above\n")
	b.WriteString("- is_relevant: true or false\n")
	b.WriteString("- relevance_score: 0-100, how well it matches the search\n")
	b.WriteString("- confidence_score: 0-100, how sure you are about the match and its price\n")
	b.WriteString("- clean_name: the product name without seller or marketing text\n")
	b.WriteString("- reason: one short sentence\n\n")
	b.WriteString(`Return exactly one entry per product as {"judgments": [...]}.`)
	return b.String(), nil
}

// judgmentWire mirrors the judgment schema with every field required
type judgmentWire struct {
	OriginalIndex   *int     `json:"original_index"`
	IsRelevant      *bool    `json:"is_relevant"`
	RelevanceScore  *float64 `json:"relevance_score"`
	ConfidenceScore *float64 `json:"confidence_score"`
	CleanName       *string  `json:"clean_name"`
	Reason          *string  `json:"reason"`
}

// ParseJudgments strictly decodes a model response for a batch of size n.
// Any schema violation rejects the whole response with ErrMalformedJudgment;
// indexes the model did not answer are simply absent from the map.
func ParseJudgments(raw string, n int) (map[int]domain.AIJudgment, error) {
	body := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrMalformedJudgment)
	}

	var entries []judgmentWire
	switch body[0] {
	case '[':
		if err := decodeStrict(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
		}
	case '{':
		var envelope map[string]json.RawMessage
		if err := decodeStrict(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
		}
		list, ok := envelope["judgments"]
		if !ok {
			for _, key := range []string{"results", "products"} {
				if list, ok = envelope[key]; ok {
					break
				}
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: no judgments array", domain.ErrMalformedJudgment)
		}
		if err := decodeStrict(string(list), &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
		}
	default:
		return nil, fmt.Errorf("%w: response is not JSON", domain.ErrMalformedJudgment)
	}

	judgments := make(map[int]domain.AIJudgment, len(entries))
	for i, e := range entries {
		if err := e.check(n); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", domain.ErrMalformedJudgment, i, err)
		}
		idx := *e.OriginalIndex
		if _, dup := judgments[idx]; dup {
			return nil, fmt.Errorf("%w: duplicate original_index %d", domain.ErrMalformedJudgment, idx)
		}
		judgments[idx] = domain.AIJudgment{
			IsRelevant:      *e.IsRelevant,
			RelevanceScore:  *e.RelevanceScore,
			ConfidenceScore: *e.ConfidenceScore,
			CleanName:       strings.TrimSpace(*e.CleanName),
			Reason:          *e.Reason,
		}
	}
	return judgments, nil
}

func (e *judgmentWire) check(n int) error {
	switch {
	case e.OriginalIndex == nil:
		return errors.New("missing original_index")
	case e.IsRelevant == nil:
		return errors.New("missing is_relevant")
	case e.RelevanceScore == nil:
		return errors.New("missing relevance_score")
	case e.ConfidenceScore == nil:
		return errors.New("missing confidence_score")
	case e.CleanName == nil:
		return errors.New("missing clean_name")
	case e.Reason == nil:
		return errors.New("missing reason")
	}
	if *e.OriginalIndex < 0 || *e.OriginalIndex >= n {
		return fmt.Errorf("original_index %d out of range [0,%d)", *e.OriginalIndex, n)
	}
	if *e.RelevanceScore < 0 || *e.RelevanceScore > 100 {
		return fmt.Errorf("relevance_score %v out of range", *e.RelevanceScore)
	}
	if *e.ConfidenceScore < 0 || *e.ConfidenceScore > 100 {
		return fmt.Errorf("confidence_score %v out of range", *e.ConfidenceScore)
	}
	return nil
}

// decodeStrict decodes a single JSON value and rejects trailing data
func decodeStrict(s string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// passThrough marks candidates as not judged by the model
func passThrough(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	out := make([]domain.CandidateProduct, len(candidates))
	for i, c := range candidates {
		c.AIValidated = false
		c.AI = nil
		out[i] = c
	}
	return out
}
