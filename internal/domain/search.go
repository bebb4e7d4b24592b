package domain

import "time"

// SearchMode distinguishes the full pipeline from the price-only baseline
type SearchMode string

const (
	SearchModeAI    SearchMode = "ai"
	SearchModeBasic SearchMode = "basic"
)

// SearchRequest represents a price search for one product in one country
type SearchRequest struct {
	Country string `json:"country"`
	Query   string `json:"query"`
}

// PipelineStats counts candidates leaving each pipeline stage
type PipelineStats struct {
	RawProducts        int `json:"raw_products"`
	AIValidated        int `json:"ai_validated"`
	AfterDeduplication int `json:"after_deduplication"`
	FinalResults       int `json:"final_results"`
}

// ProviderFailure is the response-facing summary of a ProviderError
type ProviderFailure struct {
	Provider ProviderName      `json:"provider"`
	Kind     ProviderErrorKind `json:"kind"`
	Message  string            `json:"message"`
}

// SearchResponse is the body returned for every search, successful or not
type SearchResponse struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	Results           []CandidateProduct `json:"results"`
	TotalResults      int                `json:"total_results"`
	SearchTimeSeconds float64            `json:"search_time_seconds"`
	Country           string             `json:"country"`
	Query             string             `json:"query"`
	AIEnhanced        bool               `json:"ai_enhanced"`
	PipelineStats     PipelineStats      `json:"pipeline_stats"`
	ProviderFailures  []ProviderFailure  `json:"provider_failures,omitempty"`
	RequestID         string             `json:"request_id,omitempty"`
}

// ProviderDebug summarizes one provider's share of a fan-out
type ProviderDebug struct {
	Provider   ProviderName     `json:"provider"`
	Candidates int              `json:"candidates"`
	Failure    *ProviderFailure `json:"failure,omitempty"`
}

// DebugResponse is the normalized fan-out output before validation,
// deduplication and ranking
type DebugResponse struct {
	Success    bool               `json:"success"`
	Country    string             `json:"country"`
	Query      string             `json:"query"`
	Providers  []ProviderDebug    `json:"providers"`
	Candidates []CandidateProduct `json:"candidates"`
	RequestID  string             `json:"request_id,omitempty"`
}

// SearchCompletedEvent is published after every search
type SearchCompletedEvent struct {
	EventID          string            `json:"event_id"`
	RequestID        string            `json:"request_id,omitempty"`
	Country          string            `json:"country"`
	Query            string            `json:"query"`
	Mode             SearchMode        `json:"mode"`
	Success          bool              `json:"success"`
	AIEnhanced       bool              `json:"ai_enhanced"`
	Stats            PipelineStats     `json:"pipeline_stats"`
	ProviderFailures []ProviderFailure `json:"provider_failures,omitempty"`
	DurationSeconds  float64           `json:"duration_seconds"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

// StatsSnapshot is the process-wide counter view served by the stats endpoint
type StatsSnapshot struct {
	TotalSearches     int64            `json:"total_searches"`
	BasicSearches     int64            `json:"basic_searches"`
	DegradedSearches  int64            `json:"degraded_searches"`
	FailedSearches    int64            `json:"failed_searches"`
	RejectedRequests  int64            `json:"rejected_requests"`
	ProviderFailures  map[string]int64 `json:"provider_failures"`
	AIBatchesFailed   int64            `json:"ai_batches_failed"`
	AIBatchesComplete int64            `json:"ai_batches_validated"`
}
