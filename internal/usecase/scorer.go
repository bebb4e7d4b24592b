package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/pricepilot/backend/internal/domain"
)

// Confidence level cut points on the 0-100 final score
const (
	VeryHighConfidenceCutoff = 90.0
	HighConfidenceCutoff     = 75.0
	MediumConfidenceCutoff   = 50.0
)

// Ranking defaults
const (
	DefaultMaxResults = 20

	unknownSourceReliability = 0.3

	// A price within this distance of the set median counts as consistent
	consistentPriceBand = 0.25
	plausiblePriceBand  = 0.50
)

// ScoringWeights weight the AI-mode signals; they are normalized to sum to 1
type ScoringWeights struct {
	Relevance  float64
	Confidence float64
	Source     float64
	Price      float64
}

// HeuristicWeights are the point budgets of the non-AI signals; normalized to sum to 100
type HeuristicWeights struct {
	Price       float64
	Rating      float64
	Source      float64
	Consistency float64
}

// DefaultAIWeights favors the model's own confidence, then relevance
var DefaultAIWeights = ScoringWeights{Relevance: 0.35, Confidence: 0.45, Source: 0.10, Price: 0.10}

// DefaultHeuristicWeights score listings when no model judgment exists
var DefaultHeuristicWeights = HeuristicWeights{Price: 35, Rating: 20, Source: 35, Consistency: 10}

// DefaultTrustedDomains rates well-known sellers on a 0-10 scale
var DefaultTrustedDomains = map[string]float64{
	"apple":    10,
	"amazon":   9,
	"bestbuy":  8,
	"walmart":  8,
	"flipkart": 8,
	"target":   7,
	"myntra":   7,
	"argos":    7,
	"currys":   6,
	"ebay":     5,
}

// DefaultProviderReliability applies when the seller is not a trusted domain
var DefaultProviderReliability = map[domain.ProviderName]float64{
	domain.ProviderAmazon:         0.9,
	domain.ProviderGoogleShopping: 0.6,
	domain.ProviderRetailer:       0.6,
	domain.ProviderGoogleLocal:    0.5,
	domain.ProviderEbay:           0.5,
}

// ScorerConfig holds configuration for the scorer
type ScorerConfig struct {
	AIWeights           ScoringWeights
	HeuristicWeights    HeuristicWeights
	TrustedDomains      map[string]float64
	ProviderReliability map[domain.ProviderName]float64
	MaxResults          int
	MinConfidenceScore  float64
}

// Scorer computes final confidence scores and ranks candidates
type Scorer struct {
	ai                  ScoringWeights
	heuristic           HeuristicWeights
	trustedDomains      []trustedDomain
	providerReliability map[domain.ProviderName]float64
	maxResults          int
	minConfidence       float64
}

type trustedDomain struct {
	key   string
	score float64
}

// NewScorer creates a scorer, defaulting unset weights and tables
func NewScorer(config ScorerConfig) *Scorer {
	s := &Scorer{
		ai:                  normalizeAIWeights(config.AIWeights),
		heuristic:           normalizeHeuristicWeights(config.HeuristicWeights),
		providerReliability: config.ProviderReliability,
		maxResults:          config.MaxResults,
		minConfidence:       config.MinConfidenceScore,
	}
	if s.providerReliability == nil {
		s.providerReliability = DefaultProviderReliability
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultMaxResults
	}

	domains := config.TrustedDomains
	if domains == nil {
		domains = DefaultTrustedDomains
	}
	for key, score := range domains {
		s.trustedDomains = append(s.trustedDomains, trustedDomain{key: strings.ToLower(key), score: score})
	}
	// Longest key first so "bestbuy" is not shadowed by a shorter match
	sort.Slice(s.trustedDomains, func(i, j int) bool {
		if len(s.trustedDomains[i].key) != len(s.trustedDomains[j].key) {
			return len(s.trustedDomains[i].key) > len(s.trustedDomains[j].key)
		}
		return s.trustedDomains[i].key < s.trustedDomains[j].key
	})

	return s
}

func normalizeAIWeights(w ScoringWeights) ScoringWeights {
	sum := w.Relevance + w.Confidence + w.Source + w.Price
	if sum <= 0 {
		return DefaultAIWeights
	}
	return ScoringWeights{
		Relevance:  w.Relevance / sum,
		Confidence: w.Confidence / sum,
		Source:     w.Source / sum,
		Price:      w.Price / sum,
	}
}

func normalizeHeuristicWeights(w HeuristicWeights) HeuristicWeights {
	sum := w.Price + w.Rating + w.Source + w.Consistency
	if sum <= 0 {
		return DefaultHeuristicWeights
	}
	scale := 100 / sum
	return HeuristicWeights{
		Price:       w.Price * scale,
		Rating:      w.Rating * scale,
		Source:      w.Source * scale,
		Consistency: w.Consistency * scale,
	}
}

// ScoreAndRank scores every candidate, drops those under the minimum
// confidence, orders the rest and caps the list at MaxResults.
// The input slice is not modified.
func (s *Scorer) ScoreAndRank(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	median := medianPrice(candidates)

	scored := make([]domain.CandidateProduct, 0, len(candidates))
	for _, c := range candidates {
		c.FinalConfidenceScore = s.Score(&c, median)
		c.ConfidenceLevel = LevelFor(c.FinalConfidenceScore)
		if c.FinalConfidenceScore < s.minConfidence {
			continue
		}
		scored = append(scored, c)
	}

	Rank(scored)

	if len(scored) > s.maxResults {
		scored = scored[:s.maxResults]
	}
	return scored
}

// Score computes the 0-100 final confidence of one candidate. median is the
// median known price of the candidate set, or 0 if none is known.
func (s *Scorer) Score(c *domain.CandidateProduct, median float64) float64 {
	source := s.SourceReliability(c)
	consistency := priceConsistency(c, median)

	var score float64
	if c.AIValidated && c.AI != nil {
		priceSignal := 0.0
		if c.HasPrice() {
			priceSignal += 50
			if c.Currency != "" {
				priceSignal += 10
			}
			priceSignal += 40 * consistency
		}
		score = s.ai.Relevance*c.AI.RelevanceScore +
			s.ai.Confidence*c.AI.ConfidenceScore +
			s.ai.Source*source*100 +
			s.ai.Price*priceSignal
	} else {
		if c.HasPrice() {
			score += s.heuristic.Price
		}
		if c.Rating != nil {
			score += s.heuristic.Rating * math.Min(*c.Rating/5, 1)
		}
		score += s.heuristic.Source * source
		score += s.heuristic.Consistency * consistency
	}

	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10
}

// SourceReliability rates the seller on 0-1 from the trusted-domain table,
// falling back to the provider's reliability.
func (s *Scorer) SourceReliability(c *domain.CandidateProduct) float64 {
	haystacks := []string{
		strings.ReplaceAll(strings.ToLower(c.Website), " ", ""),
		WebsiteFromURL(c.Link),
	}
	for _, td := range s.trustedDomains {
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, td.key) {
				return math.Min(td.score/10, 1)
			}
		}
	}
	if r, ok := s.providerReliability[c.SourceProvider]; ok {
		return r
	}
	return unknownSourceReliability
}

// LevelFor buckets a final score into a confidence level
func LevelFor(score float64) domain.ConfidenceLevel {
	switch {
	case score >= VeryHighConfidenceCutoff:
		return domain.ConfidenceVeryHigh
	case score >= HighConfidenceCutoff:
		return domain.ConfidenceHigh
	case score >= MediumConfidenceCutoff:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Rank orders candidates in place: score descending, then known price
// ascending with unknown prices last. Ties keep their current order.
func Rank(candidates []domain.CandidateProduct) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if a.FinalConfidenceScore != b.FinalConfidenceScore {
			return a.FinalConfidenceScore > b.FinalConfidenceScore
		}
		return lessByPrice(a, b)
	})
}

// SortByPrice orders candidates in place by price ascending, unknown prices last
func SortByPrice(candidates []domain.CandidateProduct) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessByPrice(&candidates[i], &candidates[j])
	})
}

func lessByPrice(a, b *domain.CandidateProduct) bool {
	if a.HasPrice() != b.HasPrice() {
		return a.HasPrice()
	}
	if !a.HasPrice() {
		return false
	}
	return a.Price() < b.Price()
}

// priceConsistency is 1 near the set median, 0.5 when plausible, 0 otherwise
func priceConsistency(c *domain.CandidateProduct, median float64) float64 {
	if !c.HasPrice() || median <= 0 {
		return 0
	}
	deviation := math.Abs(c.Price()-median) / median
	switch {
	case deviation <= consistentPriceBand:
		return 1
	case deviation <= plausiblePriceBand:
		return 0.5
	default:
		return 0
	}
}

func medianPrice(candidates []domain.CandidateProduct) float64 {
	var prices []float64
	for i := range candidates {
		if candidates[i].HasPrice() {
			prices = append(prices, candidates[i].Price())
		}
	}
	if len(prices) == 0 {
		return 0
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}
