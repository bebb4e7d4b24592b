package domain

// ProviderName identifies a shopping-search backend
type ProviderName string

const (
	ProviderGoogleShopping ProviderName = "google_shopping"
	ProviderAmazon         ProviderName = "amazon"
	ProviderEbay           ProviderName = "ebay"
	ProviderGoogleLocal    ProviderName = "google_local"
	ProviderRetailer       ProviderName = "retailer"
)

// RawRecord is a provider result as returned by the upstream API.
// Shapes differ per provider; the normalizer knows the keys.
type RawRecord map[string]interface{}

// ConfidenceLevel is the bucketed label of a final confidence score
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "Very High"
	ConfidenceHigh     ConfidenceLevel = "High"
	ConfidenceMedium   ConfidenceLevel = "Medium"
	ConfidenceLow      ConfidenceLevel = "Low"
)

// AIJudgment holds the language model's verdict on one candidate
type AIJudgment struct {
	IsRelevant      bool    `json:"is_relevant"`
	RelevanceScore  float64 `json:"relevance_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	CleanName       string  `json:"clean_name"`
	Reason          string  `json:"reason"`
}

// DuplicateInfo describes the cluster a representative was chosen from
type DuplicateInfo struct {
	TotalDuplicates int            `json:"total_duplicates_found"`
	SourcesMerged   []string       `json:"sources_merged"`
	PriceRange      *PriceRange    `json:"price_range,omitempty"`
	Providers       []ProviderName `json:"providers"`
}

// PriceRange is the min/max known price inside a duplicate cluster
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CandidateProduct is the canonical shape every provider record is normalized into
type CandidateProduct struct {
	SourceProvider ProviderName `json:"source_provider"`
	Website        string       `json:"website"`
	RawName        string       `json:"raw_name"`
	Name           string       `json:"product_name"`
	Link           string       `json:"link"`
	ImageURL       string       `json:"image_url,omitempty"`
	PriceRaw       string       `json:"price_raw"`
	PriceNumeric   *float64     `json:"price_numeric"`
	Currency       string       `json:"currency,omitempty"`
	Rating         *float64     `json:"rating"`
	Availability   string       `json:"availability,omitempty"`

	AIValidated bool        `json:"ai_validated"`
	AI          *AIJudgment `json:"ai,omitempty"`

	FinalConfidenceScore float64         `json:"final_confidence_score"`
	ConfidenceLevel      ConfidenceLevel `json:"confidence_level,omitempty"`

	DuplicateInfo *DuplicateInfo `json:"duplicate_info,omitempty"`

	// Position is the first-seen order assigned by the aggregator
	Position int `json:"-"`
}

// HasPrice reports whether a numeric price was extracted
func (c *CandidateProduct) HasPrice() bool {
	return c.PriceNumeric != nil
}

// Price returns the numeric price, or zero if unknown
func (c *CandidateProduct) Price() float64 {
	if c.PriceNumeric == nil {
		return 0
	}
	return *c.PriceNumeric
}

// Float64Ptr is a small helper for optional numeric fields
func Float64Ptr(v float64) *float64 {
	return &v
}
