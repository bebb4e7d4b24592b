package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pricepilot/backend/internal/domain"
)

// fakeProvider is a scripted ProviderClient
type fakeProvider struct {
	name        domain.ProviderName
	records     []domain.RawRecord
	err         error
	delay       time.Duration
	ignoreCtx   bool
	unsupported bool
	panics      bool
	calls       atomic.Int32
}

func (f *fakeProvider) Name() domain.ProviderName { return f.name }

func (f *fakeProvider) Supports(country *domain.Country) bool { return !f.unsupported }

func (f *fakeProvider) Search(ctx context.Context, country *domain.Country, query string) ([]domain.RawRecord, error) {
	f.calls.Add(1)
	if f.panics {
		panic("provider exploded")
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.records, f.err
}

// fakeLLM answers prompts with a scripted function
type fakeLLM struct {
	mu       sync.Mutex
	prompts  []domain.ChatRequest
	respond  func(req domain.ChatRequest) (string, error)
	failWith error
}

func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()

	if f.failWith != nil {
		return "", f.failWith
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return f.respond(req)
}

func (f *fakeLLM) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// unreachableLLM simulates a model endpoint that cannot be reached
func unreachableLLM() *fakeLLM {
	return &fakeLLM{failWith: fmt.Errorf("%w: connection refused", domain.ErrModelUnavailable)}
}

// judgmentsFor builds a JSON judgments document for the given batch-local indexes
func judgmentsFor(entries ...string) string {
	return `{"judgments":[` + strings.Join(entries, ",") + `]}`
}

func judgment(index int, relevant bool, relevance, confidence float64, cleanName string) string {
	return fmt.Sprintf(`{"original_index":%d,"is_relevant":%t,"relevance_score":%g,"confidence_score":%g,"clean_name":%q,"reason":"test"}`,
		index, relevant, relevance, confidence, cleanName)
}

// recordingMetrics captures observations for assertions
type recordingMetrics struct {
	mu        sync.Mutex
	providers map[string]int
	batches   map[string]int
	searches  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		providers: make(map[string]int),
		batches:   make(map[string]int),
		searches:  make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveProviderCall(provider domain.ProviderName, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[string(provider)+":"+outcome]++
}

func (m *recordingMetrics) ObserveAIBatch(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[outcome]++
}

func (m *recordingMetrics) ObserveSearch(mode domain.SearchMode, outcome string, _ time.Duration, _ domain.PipelineStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[string(mode)+":"+outcome]++
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.SearchCompletedEvent
	err    error
}

func (p *fakePublisher) PublishSearchCompleted(ctx context.Context, event domain.SearchCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) published() []domain.SearchCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SearchCompletedEvent, len(p.events))
	copy(out, p.events)
	return out
}

var errBoom = errors.New("boom")

func record(title, price string) domain.RawRecord {
	return domain.RawRecord{"title": title, "price": price, "link": "https://shop.example/" + strings.ReplaceAll(strings.ToLower(title), " ", "-")}
}
