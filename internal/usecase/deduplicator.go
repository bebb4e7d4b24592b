package usecase

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"

	"github.com/pricepilot/backend/internal/domain"
)

// Deduplication defaults
const (
	DefaultNameSimilarityThreshold = 0.85
	DefaultPriceTolerance          = 0.05

	// UnvalidatedConfidence stands in for the AI confidence of candidates the model never judged
	UnvalidatedConfidence = 50.0
)

// Anything that is not a letter, digit or space separates tokens
var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// listingNoiseWords never distinguish one product from another
var listingNoiseWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"for": true, "with": true, "in": true, "by": true, "to": true,
	"buy": true, "online": true, "shop": true, "official": true, "store": true,
	"new": true, "latest": true, "sale": true, "deal": true, "offer": true,
	"free": true, "shipping": true, "delivery": true, "genuine": true, "original": true,
}

// DedupConfig holds configuration for the deduplicator
type DedupConfig struct {
	NameSimilarityThreshold float64
	PriceTolerance          float64
}

// Deduplicator collapses listings of the same product into one representative
type Deduplicator struct {
	nameThreshold  float64
	priceTolerance float64
}

// NewDeduplicator creates a deduplicator, defaulting unset thresholds
func NewDeduplicator(config DedupConfig) *Deduplicator {
	d := &Deduplicator{
		nameThreshold:  config.NameSimilarityThreshold,
		priceTolerance: config.PriceTolerance,
	}
	if d.nameThreshold <= 0 || d.nameThreshold > 1 {
		d.nameThreshold = DefaultNameSimilarityThreshold
	}
	if d.priceTolerance <= 0 {
		d.priceTolerance = DefaultPriceTolerance
	}
	return d
}

// Deduplicate clusters candidates by name similarity and price agreement and
// returns one representative per cluster, in first-seen cluster order.
//
// A candidate joins the first cluster whose every member is compatible with
// it, so two listings whose prices disagree are never merged, even through a
// third listing priced between them.
func (d *Deduplicator) Deduplicate(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	if len(candidates) == 0 {
		return []domain.CandidateProduct{}
	}

	tokens := make([][]string, len(candidates))
	for i := range candidates {
		tokens[i] = tokenize(candidates[i].Name)
	}

	var clusters [][]int
	for i := range candidates {
		placed := false
		for ci, members := range clusters {
			if d.fitsCluster(candidates, tokens, members, i) {
				clusters[ci] = append(members, i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}

	out := make([]domain.CandidateProduct, 0, len(clusters))
	for _, members := range clusters {
		out = append(out, representative(candidates, members))
	}

	if merged := len(candidates) - len(out); merged > 0 {
		log.Printf("[DEDUP] Merged %d duplicates: %d -> %d candidates", merged, len(candidates), len(out))
	}
	return out
}

func (d *Deduplicator) fitsCluster(candidates []domain.CandidateProduct, tokens [][]string, members []int, i int) bool {
	for _, m := range members {
		if !d.compatible(&candidates[m], &candidates[i], tokens[m], tokens[i]) {
			return false
		}
	}
	return true
}

// Compatible reports whether two candidates describe the same product listing
func (d *Deduplicator) Compatible(a, b *domain.CandidateProduct) bool {
	return d.compatible(a, b, tokenize(a.Name), tokenize(b.Name))
}

func (d *Deduplicator) compatible(a, b *domain.CandidateProduct, ta, tb []string) bool {
	if tokenSimilarity(ta, tb, a.Name, b.Name) < d.nameThreshold {
		return false
	}
	if a.HasPrice() && b.HasPrice() {
		if a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
			return false
		}
		if relativeDifference(a.Price(), b.Price()) > d.priceTolerance {
			return false
		}
	}
	return true
}

// NameSimilarity is the Jaccard index of the normalized token sets of two names
func NameSimilarity(a, b string) float64 {
	return tokenSimilarity(tokenize(a), tokenize(b), a, b)
}

func tokenSimilarity(ta, tb []string, a, b string) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		if normalizeForComparison(a) == normalizeForComparison(b) {
			return 1
		}
		return 0
	}
	union := findUnion(ta, tb)
	if union == 0 {
		return 0
	}
	common, _ := findIntersection(ta, tb)
	return float64(common) / float64(union)
}

// relativeDifference is |a-b| relative to the larger of the two
func relativeDifference(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}

// representative picks the best member of a cluster and records what was merged
func representative(candidates []domain.CandidateProduct, members []int) domain.CandidateProduct {
	best := members[0]
	for _, m := range members[1:] {
		if preferCandidate(&candidates[m], &candidates[best]) {
			best = m
		}
	}

	rep := candidates[best]
	if len(members) == 1 {
		return rep
	}

	info := &domain.DuplicateInfo{TotalDuplicates: len(members) - 1}
	seenSource := make(map[string]bool)
	seenProvider := make(map[domain.ProviderName]bool)
	for _, m := range members {
		c := &candidates[m]
		source := c.Website
		if source == "" {
			source = string(c.SourceProvider)
		}
		if !seenSource[source] {
			seenSource[source] = true
			info.SourcesMerged = append(info.SourcesMerged, source)
		}
		if !seenProvider[c.SourceProvider] {
			seenProvider[c.SourceProvider] = true
			info.Providers = append(info.Providers, c.SourceProvider)
		}
		if c.HasPrice() {
			if info.PriceRange == nil {
				info.PriceRange = &domain.PriceRange{Min: c.Price(), Max: c.Price()}
			} else {
				info.PriceRange.Min = math.Min(info.PriceRange.Min, c.Price())
				info.PriceRange.Max = math.Max(info.PriceRange.Max, c.Price())
			}
		}
	}
	rep.DuplicateInfo = info
	return rep
}

// preferCandidate orders cluster members: higher confidence, then lower
// known price, then earlier first-seen position.
func preferCandidate(a, b *domain.CandidateProduct) bool {
	ca, cb := candidateConfidence(a), candidateConfidence(b)
	if ca != cb {
		return ca > cb
	}
	if a.HasPrice() != b.HasPrice() {
		return a.HasPrice()
	}
	if a.HasPrice() && a.Price() != b.Price() {
		return a.Price() < b.Price()
	}
	return a.Position < b.Position
}

// candidateConfidence is the AI confidence, or a conservative default when unjudged
func candidateConfidence(c *domain.CandidateProduct) float64 {
	if c.AIValidated && c.AI != nil {
		return c.AI.ConfidenceScore
	}
	return UnvalidatedConfidence
}

// ExactDeduplicate drops candidates whose normalized name, price and currency
// repeat an earlier candidate. Used by the price-only baseline.
func ExactDeduplicate(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	seen := make(map[string]bool, len(candidates))
	out := make([]domain.CandidateProduct, 0, len(candidates))
	for _, c := range candidates {
		price := "unknown"
		if c.HasPrice() {
			price = fmt.Sprintf("%.2f", c.Price())
		}
		key := normalizeForComparison(c.Name) + "|" + price + "|" + c.Currency
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// normalizeForComparison lowercases and strips punctuation and extra whitespace
func normalizeForComparison(s string) string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// tokenize splits a name into lowercase tokens without punctuation or noise words.
// Digits are kept: model numbers and capacities tell products apart.
func tokenize(s string) []string {
	words := strings.Fields(normalizeForComparison(s))

	var tokens []string
	for _, word := range words {
		if listingNoiseWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}
