package usecase

import (
	"testing"

	"github.com/pricepilot/backend/internal/domain"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.ConfidenceLevel
	}{
		{100, domain.ConfidenceVeryHigh},
		{90, domain.ConfidenceVeryHigh},
		{89.9, domain.ConfidenceHigh},
		{75, domain.ConfidenceHigh},
		{74.9, domain.ConfidenceMedium},
		{50, domain.ConfidenceMedium},
		{49.9, domain.ConfidenceLow},
		{0, domain.ConfidenceLow},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScore_AIMode(t *testing.T) {
	s := NewScorer(ScorerConfig{})

	c := domain.CandidateProduct{
		SourceProvider: domain.ProviderGoogleShopping,
		Website:        "Apple",
		Name:           "Apple iPhone 16 Pro",
		PriceNumeric:   domain.Float64Ptr(999),
		Currency:       "USD",
		AIValidated:    true,
		AI:             &domain.AIJudgment{IsRelevant: true, RelevanceScore: 95, ConfidenceScore: 95},
	}

	// 0.35*95 + 0.45*95 + 0.10*100 + 0.10*100
	got := s.Score(&c, 999)
	if got != 96 {
		t.Errorf("Score() = %v, want 96", got)
	}
	if LevelFor(got) != domain.ConfidenceVeryHigh {
		t.Errorf("level = %s, want Very High", LevelFor(got))
	}
}

func TestScore_HeuristicMode(t *testing.T) {
	s := NewScorer(ScorerConfig{})

	tests := []struct {
		name string
		c    domain.CandidateProduct
		want float64
	}{
		{
			name: "priced, rated, trusted, consistent",
			c: domain.CandidateProduct{
				SourceProvider: domain.ProviderAmazon,
				Link:           "https://www.amazon.com/dp/1",
				PriceNumeric:   domain.Float64Ptr(100),
				Rating:         domain.Float64Ptr(4.5),
			},
			// 35 + 20*0.9 + 35*0.9 + 10
			want: 94.5,
		},
		{
			name: "no price, no rating, unknown seller",
			c: domain.CandidateProduct{
				SourceProvider: domain.ProviderName("mystery"),
				Link:           "https://unknown.example/x",
			},
			want: 10.5,
		},
		{
			name: "price far from median",
			c: domain.CandidateProduct{
				SourceProvider: domain.ProviderEbay,
				Link:           "https://www.ebay.com/itm/1",
				PriceNumeric:   domain.Float64Ptr(20),
			},
			// 35 + 35*0.5
			want: 52.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(&tt.c, 100); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_CustomWeightsAreNormalized(t *testing.T) {
	s := NewScorer(ScorerConfig{AIWeights: ScoringWeights{Relevance: 2, Confidence: 2}})

	c := domain.CandidateProduct{
		AIValidated: true,
		AI:          &domain.AIJudgment{RelevanceScore: 80, ConfidenceScore: 60},
	}
	if got := s.Score(&c, 0); got != 70 {
		t.Errorf("Score() = %v, want 70", got)
	}
}

func TestSourceReliability(t *testing.T) {
	s := NewScorer(ScorerConfig{})

	tests := []struct {
		name string
		c    domain.CandidateProduct
		want float64
	}{
		{"seller name", domain.CandidateProduct{Website: "Best Buy"}, 0.8},
		{"link host", domain.CandidateProduct{Link: "https://www.flipkart.com/p/1"}, 0.8},
		{"provider fallback", domain.CandidateProduct{SourceProvider: domain.ProviderGoogleLocal, Website: "localshop.in"}, 0.5},
		{"unknown", domain.CandidateProduct{SourceProvider: "other"}, unknownSourceReliability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SourceReliability(&tt.c); got != tt.want {
				t.Errorf("SourceReliability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank_TotalOrder(t *testing.T) {
	in := []domain.CandidateProduct{
		{Name: "a", FinalConfidenceScore: 80, PriceNumeric: domain.Float64Ptr(300)},
		{Name: "b", FinalConfidenceScore: 90},
		{Name: "c", FinalConfidenceScore: 80},
		{Name: "d", FinalConfidenceScore: 80, PriceNumeric: domain.Float64Ptr(100)},
		{Name: "e", FinalConfidenceScore: 80},
		{Name: "f", FinalConfidenceScore: 95, PriceNumeric: domain.Float64Ptr(999)},
	}

	Rank(in)

	want := []string{"f", "b", "d", "a", "c", "e"}
	for i, name := range want {
		if in[i].Name != name {
			t.Fatalf("Rank order = %v, want %v", names(in), want)
		}
	}

	for i := 1; i < len(in); i++ {
		if in[i-1].FinalConfidenceScore < in[i].FinalConfidenceScore {
			t.Errorf("score not descending at %d", i)
		}
	}
}

func TestSortByPrice(t *testing.T) {
	in := []domain.CandidateProduct{
		{Name: "unknown-1"},
		{Name: "mid", PriceNumeric: domain.Float64Ptr(50)},
		{Name: "cheap", PriceNumeric: domain.Float64Ptr(10)},
		{Name: "unknown-2"},
	}
	SortByPrice(in)

	want := []string{"cheap", "mid", "unknown-1", "unknown-2"}
	for i, name := range want {
		if in[i].Name != name {
			t.Fatalf("SortByPrice order = %v, want %v", names(in), want)
		}
	}
}

func TestScoreAndRank_FiltersAndLimits(t *testing.T) {
	s := NewScorer(ScorerConfig{MaxResults: 2, MinConfidenceScore: 40})

	in := []domain.CandidateProduct{
		{Name: "weak", SourceProvider: "other"},
		{Name: "good", SourceProvider: domain.ProviderAmazon, PriceNumeric: domain.Float64Ptr(100), Rating: domain.Float64Ptr(5)},
		{Name: "ok", SourceProvider: domain.ProviderEbay, PriceNumeric: domain.Float64Ptr(110)},
		{Name: "fine", SourceProvider: domain.ProviderGoogleShopping, PriceNumeric: domain.Float64Ptr(105)},
	}

	out := s.ScoreAndRank(in)

	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Name != "good" || out[1].Name != "fine" {
		t.Errorf("order = %v, want [good fine]", names(out))
	}
	for _, c := range out {
		if c.ConfidenceLevel == "" {
			t.Errorf("%s has no confidence level", c.Name)
		}
	}
	if in[0].FinalConfidenceScore != 0 {
		t.Error("ScoreAndRank must not modify its input")
	}
}

func TestMedianPrice(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"none", nil, 0},
		{"odd", []float64{5, 1, 3}, 3},
		{"even", []float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in []domain.CandidateProduct
			for _, p := range tt.prices {
				in = append(in, domain.CandidateProduct{PriceNumeric: domain.Float64Ptr(p)})
			}
			in = append(in, domain.CandidateProduct{})
			if got := medianPrice(in); got != tt.want {
				t.Errorf("medianPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func names(cs []domain.CandidateProduct) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
