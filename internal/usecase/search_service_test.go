package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pricepilot/backend/internal/domain"
)

func newTestService(t *testing.T, llm domain.LLMClient, config SearchServiceConfig, providers ...domain.ProviderClient) (*SearchService, *recordingMetrics, *fakePublisher) {
	t.Helper()
	cat := testCatalog(t)
	metrics := newRecordingMetrics()
	publisher := &fakePublisher{}

	pipeline := SearchPipeline{
		Aggregator:   NewAggregator(providers, NewNormalizer(cat), metrics, AggregatorConfig{ProviderTimeout: time.Second}),
		Validator:    NewAIValidator(llm, metrics, ValidatorConfig{}),
		Deduplicator: NewDeduplicator(DedupConfig{}),
		Scorer:       NewScorer(ScorerConfig{}),
	}
	return NewSearchService(cat, pipeline, publisher, metrics, config), metrics, publisher
}

// acceptAll judges every candidate in a batch relevant with the given confidence
func acceptAll(cleanName string, confidence func(index int) float64) *fakeLLM {
	return &fakeLLM{respond: func(req domain.ChatRequest) (string, error) {
		n := strings.Count(req.User, `"index":`)
		entries := make([]string, n)
		for i := 0; i < n; i++ {
			entries[i] = judgment(i, true, 95, confidence(i), cleanName)
		}
		return judgmentsFor(entries...), nil
	}}
}

func shoppingRecord(title, source string, price float64, priceText string) domain.RawRecord {
	return domain.RawRecord{
		"title":           title,
		"source":          source,
		"price":           priceText,
		"extracted_price": price,
		"link":            "https://" + strings.ToLower(strings.ReplaceAll(source, " ", "")) + ".example/p",
	}
}

// Scenario: Apple Store and a marketplace list the same phone at the same price
func TestSearch_OverlappingListingsMerge(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		{
			"title":           "Apple iPhone 16 Pro 128GB",
			"source":          "Apple",
			"price":           "$999.00",
			"extracted_price": 999.0,
			"link":            "https://www.apple.com/shop/buy-iphone/iphone-16-pro",
		},
	}}
	amazon := &fakeProvider{name: domain.ProviderAmazon, records: []domain.RawRecord{
		{
			"title": "Apple iPhone 16 Pro 128GB",
			"price": "$999",
			"link":  "https://www.amazon.com/dp/B0DHJ",
		},
	}}

	llm := acceptAll("Apple iPhone 16 Pro 128GB", func(int) float64 { return 95 })
	svc, metrics, _ := newTestService(t, llm, SearchServiceConfig{}, shopping, amazon)

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "iPhone 16 Pro, 128GB"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if !resp.Success || !resp.AIEnhanced {
		t.Fatalf("Success=%v AIEnhanced=%v, want both true", resp.Success, resp.AIEnhanced)
	}
	if resp.PipelineStats.FinalResults != 1 || len(resp.Results) != 1 {
		t.Fatalf("final results = %d, want 1 merged candidate", resp.PipelineStats.FinalResults)
	}

	top := resp.Results[0]
	if top.ConfidenceLevel != domain.ConfidenceVeryHigh {
		t.Errorf("ConfidenceLevel = %q (score %v), want Very High", top.ConfidenceLevel, top.FinalConfidenceScore)
	}
	if top.Price() != 999 || top.Currency != "USD" {
		t.Errorf("price = %v %s, want 999 USD", top.Price(), top.Currency)
	}
	if top.DuplicateInfo == nil || top.DuplicateInfo.TotalDuplicates != 1 {
		t.Errorf("DuplicateInfo = %+v, want one merged duplicate", top.DuplicateInfo)
	}

	want := domain.PipelineStats{RawProducts: 2, AIValidated: 2, AfterDeduplication: 1, FinalResults: 1}
	if resp.PipelineStats != want {
		t.Errorf("PipelineStats = %+v, want %+v", resp.PipelineStats, want)
	}
	if resp.TotalResults != 1 || resp.Country != "US" || resp.Query != "iPhone 16 Pro, 128GB" {
		t.Errorf("response echo = %+v", resp)
	}
	if metrics.searches["ai:success"] != 1 {
		t.Errorf("search metrics = %v", metrics.searches)
	}
}

// Scenario: near-duplicates 2% apart; the more confident, pricier listing wins
func TestSearch_ConfidenceBeatsLowerPrice(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("boAt Airdopes 311 Pro", "Amazon.in", 1299, "₹1,299"),
		shoppingRecord("boAt Airdopes 311 Pro", "Flipkart", 1325, "₹1,325"),
	}}

	llm := acceptAll("boAt Airdopes 311 Pro", func(i int) float64 {
		if i == 1 {
			return 95
		}
		return 80
	})
	svc, _, _ := newTestService(t, llm, SearchServiceConfig{}, shopping)

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "IN", Query: "boAt Airdopes 311 Pro"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1 cluster", len(resp.Results))
	}

	rep := resp.Results[0]
	if rep.Website != "Flipkart" || rep.Price() != 1325 {
		t.Errorf("representative = %s @ %v, want Flipkart @ 1325", rep.Website, rep.Price())
	}
	if rep.Currency != "INR" {
		t.Errorf("Currency = %q, want INR", rep.Currency)
	}
	if rep.DuplicateInfo == nil || rep.DuplicateInfo.PriceRange.Min != 1299 {
		t.Errorf("DuplicateInfo = %+v, want range starting at 1299", rep.DuplicateInfo)
	}
}

// Scenario: unsupported country is rejected before any provider is called
func TestSearch_InputErrors(t *testing.T) {
	provider := &fakeProvider{name: domain.ProviderGoogleShopping}
	svc, metrics, publisher := newTestService(t, nil, SearchServiceConfig{}, provider)

	tests := []struct {
		name    string
		request *domain.SearchRequest
		wantErr error
	}{
		{"unsupported country", &domain.SearchRequest{Country: "ZZ", Query: "kindle"}, domain.ErrUnsupportedCountry},
		{"missing country", &domain.SearchRequest{Query: "kindle"}, domain.ErrUnsupportedCountry},
		{"empty query", &domain.SearchRequest{Country: "US", Query: "   "}, domain.ErrEmptyQuery},
		{"nil request", nil, domain.ErrEmptyQuery},
		{"query too long", &domain.SearchRequest{Country: "US", Query: strings.Repeat("a", DefaultMaxQueryLength+1)}, domain.ErrQueryTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Search(context.Background(), tt.request)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Search() error = %v, want %v", err, tt.wantErr)
			}
			var inputErr *domain.InputError
			if !errors.As(err, &inputErr) {
				t.Errorf("error %T is not an InputError", err)
			}
			if resp != nil {
				t.Errorf("response = %+v, want nil", resp)
			}
		})
	}

	if calls := provider.calls.Load(); calls != 0 {
		t.Errorf("provider calls = %d, want 0", calls)
	}
	if metrics.searches["ai:rejected"] != len(tests) {
		t.Errorf("rejected searches = %d, want %d", metrics.searches["ai:rejected"], len(tests))
	}
	if len(publisher.published()) != 0 {
		t.Error("rejected requests must not publish events")
	}
}

func TestValidateRequest_QueryTooLongReportsLength(t *testing.T) {
	svc, _, _ := newTestService(t, nil, SearchServiceConfig{MaxQueryLength: 10})

	query := strings.Repeat("é", 12)
	_, _, err := svc.ValidateRequest(&domain.SearchRequest{Country: "US", Query: query})
	if !errors.Is(err, domain.ErrQueryTooLong) {
		t.Fatalf("ValidateRequest() error = %v, want %v", err, domain.ErrQueryTooLong)
	}
	if got, want := err.Error(), "query too long (12 characters)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if strings.Contains(err.Error(), query) {
		t.Error("error message echoes the query")
	}
}

func TestValidateRequest_Normalizes(t *testing.T) {
	svc, _, _ := newTestService(t, nil, SearchServiceConfig{})

	country, query, err := svc.ValidateRequest(&domain.SearchRequest{Country: " uk ", Query: "  Sony   WH-1000XM5 "})
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if country.Code != "GB" {
		t.Errorf("country = %s, want GB", country.Code)
	}
	if query != "Sony WH-1000XM5" {
		t.Errorf("query = %q, want collapsed whitespace", query)
	}
}

func TestSearch_DegradedModeGuarantee(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("Kindle Paperwhite 16GB", "Amazon", 149.99, "$149.99"),
		shoppingRecord("Kindle Paperwhite 16GB", "Best Buy", 149.99, "$149.99"),
		shoppingRecord("Kindle Scribe", "Target", 339.99, "$339.99"),
	}}

	svc, metrics, _ := newTestService(t, unreachableLLM(), SearchServiceConfig{}, shopping)

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "kindle"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true in degraded mode")
	}
	if resp.AIEnhanced {
		t.Error("AIEnhanced = true, want false")
	}
	if resp.PipelineStats.AIValidated != 0 {
		t.Errorf("AIValidated = %d, want 0", resp.PipelineStats.AIValidated)
	}
	if resp.PipelineStats.AfterDeduplication != 2 || len(resp.Results) != 2 {
		t.Errorf("stats = %+v, want duplicates still merged", resp.PipelineStats)
	}
	for _, c := range resp.Results {
		if c.AIValidated {
			t.Errorf("%s marked validated in degraded mode", c.Name)
		}
		if c.ConfidenceLevel == "" {
			t.Errorf("%s has no confidence level", c.Name)
		}
	}
	if !strings.Contains(resp.Message, "unavailable") {
		t.Errorf("Message = %q, want degraded notice", resp.Message)
	}
	if metrics.searches["ai:degraded"] != 1 {
		t.Errorf("search metrics = %v", metrics.searches)
	}
}

func TestSearch_MonotonicNarrowing(t *testing.T) {
	records := []domain.RawRecord{
		shoppingRecord("Sony WH-1000XM5 Headphones", "Sony", 399.99, "$399.99"),
		shoppingRecord("Sony WH-1000XM5 Headphones", "Best Buy", 398, "$398.00"),
		shoppingRecord("Sony WH-1000XM5 Case", "Walmart", 19.99, "$19.99"),
		shoppingRecord("Sony WH-1000XM4 Headphones", "Target", 279.99, "$279.99"),
		shoppingRecord("Sony WH-1000XM5 Headphones Refurbished", "eBay", 249, "$249.00"),
	}

	tests := []struct {
		name string
		llm  domain.LLMClient
	}{
		{"all relevant", acceptAll("", func(int) float64 { return 90 })},
		{"some irrelevant", &fakeLLM{respond: func(req domain.ChatRequest) (string, error) {
			return judgmentsFor(
				judgment(0, true, 95, 90, "Sony WH-1000XM5"),
				judgment(1, true, 95, 85, "Sony WH-1000XM5"),
				judgment(2, false, 5, 95, "Case"),
				judgment(3, true, 60, 80, "Sony WH-1000XM4"),
				judgment(4, true, 80, 60, "Sony WH-1000XM5 Refurbished"),
			), nil
		}}},
		{"model unreachable", unreachableLLM()},
		{"no model", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: records}
			svc, _, _ := newTestService(t, tt.llm, SearchServiceConfig{}, shopping)

			resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "sony wh-1000xm5"})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}

			s := resp.PipelineStats
			if resp.AIEnhanced {
				if !(s.RawProducts >= s.AIValidated && s.AIValidated >= s.AfterDeduplication && s.AfterDeduplication >= s.FinalResults) {
					t.Errorf("stats not narrowing: %+v", s)
				}
			} else {
				if s.AIValidated != 0 || s.RawProducts < s.AfterDeduplication || s.AfterDeduplication < s.FinalResults {
					t.Errorf("degraded stats not narrowing: %+v", s)
				}
			}
			if s.FinalResults != resp.TotalResults {
				t.Errorf("final_results %d != total_results %d", s.FinalResults, resp.TotalResults)
			}
		})
	}
}

func TestSearch_AllProvidersFailed(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, err: errBoom}
	amazon := &fakeProvider{name: domain.ProviderAmazon, err: domain.NewProviderError(domain.ProviderAmazon, domain.ProviderRateLimited, errBoom)}

	llm := acceptAll("", func(int) float64 { return 90 })
	svc, metrics, publisher := newTestService(t, llm, SearchServiceConfig{}, shopping, amazon)

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "kindle"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Success {
		t.Error("Success = true, want false when every provider failed")
	}
	if resp.Message == "" {
		t.Error("Message is empty")
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("Results = %v, want empty non-nil slice", resp.Results)
	}
	if len(resp.ProviderFailures) != 2 {
		t.Fatalf("len(ProviderFailures) = %d, want 2", len(resp.ProviderFailures))
	}
	if resp.ProviderFailures[1].Kind != domain.ProviderRateLimited {
		t.Errorf("ProviderFailures[1].Kind = %s, want rate_limited", resp.ProviderFailures[1].Kind)
	}
	if llm.promptCount() != 0 {
		t.Error("model must not be called without candidates")
	}
	if metrics.searches["ai:failed"] != 1 {
		t.Errorf("search metrics = %v", metrics.searches)
	}

	events := publisher.published()
	if len(events) != 1 || events[0].Success {
		t.Errorf("events = %+v, want one failed search event", events)
	}
}

func TestSearch_NoResultsIsSuccess(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping}
	svc, _, _ := newTestService(t, acceptAll("", func(int) float64 { return 90 }), SearchServiceConfig{}, shopping)

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "nonexistent gadget"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !resp.Success || resp.TotalResults != 0 {
		t.Errorf("resp = %+v, want successful empty result", resp)
	}
	if !strings.HasPrefix(resp.Message, "No products found") {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestSearch_OuterDeadlineReturnsPartialResults(t *testing.T) {
	fast := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("Nintendo Switch OLED", "Target", 349.99, "$349.99"),
	}}
	stuck := &fakeProvider{name: domain.ProviderAmazon, delay: 2 * time.Second, ignoreCtx: true}

	svc, _, _ := newTestService(t, acceptAll("", func(int) float64 { return 90 }),
		SearchServiceConfig{RequestTimeout: 100 * time.Millisecond}, fast, stuck)

	start := time.Now()
	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "switch oled"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if elapsed >= time.Second {
		t.Errorf("Search() took %v, want it bounded by the request timeout", elapsed)
	}
	if !resp.Success || resp.PipelineStats.RawProducts != 1 {
		t.Errorf("resp = %+v, want the fast provider's result", resp)
	}
	if len(resp.ProviderFailures) != 1 || resp.ProviderFailures[0].Kind != domain.ProviderTimeout {
		t.Errorf("ProviderFailures = %+v, want one timeout", resp.ProviderFailures)
	}
}

func TestSearchBasic(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("Kindle Paperwhite", "Amazon", 149.99, "$149.99"),
		shoppingRecord("Kindle Paperwhite", "Target", 139.99, "$139.99"),
		shoppingRecord("Kindle Paperwhite", "Amazon", 149.99, "$149.99"),
		{"title": "Kindle Paperwhite Cover", "source": "Etsy"},
	}}
	llm := acceptAll("", func(int) float64 { return 90 })
	svc, metrics, publisher := newTestService(t, llm, SearchServiceConfig{}, shopping)

	ctx := domain.WithRequestID(context.Background(), "req-123")
	resp, err := svc.SearchBasic(ctx, &domain.SearchRequest{Country: "US", Query: "kindle paperwhite"})
	if err != nil {
		t.Fatalf("SearchBasic() error = %v", err)
	}

	if resp.AIEnhanced || llm.promptCount() != 0 {
		t.Error("basic search must not call the model")
	}
	want := []string{"Kindle Paperwhite", "Kindle Paperwhite", "Kindle Paperwhite Cover"}
	if got := names(resp.Results); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("results = %v, want %v", got, want)
	}
	if resp.Results[0].Price() != 139.99 || resp.Results[2].HasPrice() {
		t.Errorf("results not sorted by price, unknown last: %+v", resp.Results)
	}

	wantStats := domain.PipelineStats{RawProducts: 4, AIValidated: 0, AfterDeduplication: 3, FinalResults: 3}
	if resp.PipelineStats != wantStats {
		t.Errorf("PipelineStats = %+v, want %+v", resp.PipelineStats, wantStats)
	}
	if resp.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want req-123", resp.RequestID)
	}
	if metrics.searches["basic:success"] != 1 {
		t.Errorf("search metrics = %v", metrics.searches)
	}

	events := publisher.published()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Mode != domain.SearchModeBasic || events[0].RequestID != "req-123" || events[0].EventID == "" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestSearch_PublishFailureIsIgnored(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("Kindle Paperwhite", "Amazon", 149.99, "$149.99"),
	}}
	svc, _, publisher := newTestService(t, nil, SearchServiceConfig{}, shopping)
	publisher.err = errBoom

	resp, err := svc.Search(context.Background(), &domain.SearchRequest{Country: "US", Query: "kindle"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !resp.Success || resp.TotalResults != 1 {
		t.Errorf("resp = %+v, want success despite publish failure", resp)
	}
}

func TestSearchDebug_ReportsEachProvider(t *testing.T) {
	shopping := &fakeProvider{name: domain.ProviderGoogleShopping, records: []domain.RawRecord{
		shoppingRecord("Kindle Paperwhite", "Amazon", 149.99, "$149.99"),
		shoppingRecord("Kindle Paperwhite", "Amazon", 149.99, "$149.99"),
	}}
	amazon := &fakeProvider{
		name: domain.ProviderAmazon,
		err:  domain.NewProviderError(domain.ProviderAmazon, domain.ProviderRateLimited, errors.New("429")),
	}
	llm := acceptAll("", func(int) float64 { return 90 })
	svc, metrics, publisher := newTestService(t, llm, SearchServiceConfig{}, shopping, amazon)

	resp, err := svc.SearchDebug(context.Background(), &domain.SearchRequest{Country: "US", Query: "kindle"})
	if err != nil {
		t.Fatalf("SearchDebug() error = %v", err)
	}

	if !resp.Success {
		t.Error("Success = false, want true with one provider answering")
	}
	// Raw fan-out output: the exact duplicate is still there
	if len(resp.Candidates) != 2 {
		t.Errorf("len(Candidates) = %d, want 2", len(resp.Candidates))
	}
	if len(resp.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(resp.Providers))
	}
	if p := resp.Providers[0]; p.Provider != domain.ProviderGoogleShopping || p.Candidates != 2 || p.Failure != nil {
		t.Errorf("Providers[0] = %+v", p)
	}
	if p := resp.Providers[1]; p.Provider != domain.ProviderAmazon || p.Failure == nil || p.Failure.Kind != domain.ProviderRateLimited {
		t.Errorf("Providers[1] = %+v, want rate limited failure", p)
	}

	if llm.promptCount() != 0 {
		t.Error("debug search must not call the model")
	}
	if len(metrics.searches) != 0 {
		t.Errorf("debug search recorded search metrics: %v", metrics.searches)
	}
	if len(publisher.published()) != 0 {
		t.Error("debug search must not publish events")
	}

	if _, err := svc.SearchDebug(context.Background(), &domain.SearchRequest{Country: "ZZ", Query: "kindle"}); !errors.Is(err, domain.ErrUnsupportedCountry) {
		t.Errorf("SearchDebug() error = %v, want %v", err, domain.ErrUnsupportedCountry)
	}
}
