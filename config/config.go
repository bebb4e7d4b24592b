package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	SerpAPI  SerpAPIConfig  `mapstructure:"serpapi"`
	Retailer RetailerConfig `mapstructure:"retailer"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Events   EventsConfig   `mapstructure:"events"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SerpAPIConfig holds SerpAPI credentials and client limits
type SerpAPIConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// RetailerConfig configures direct retailer page scraping
type RetailerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	UserAgent       string        `mapstructure:"user_agent"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxItemsPerSite int           `mapstructure:"max_items_per_site"`
}

// LLMConfig selects the language model backend and the validation batch settings
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"` // "openai" or "cohere"
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Organization      string        `mapstructure:"organization"`
	Timeout           time.Duration `mapstructure:"timeout"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	MinRelevanceScore float64       `mapstructure:"min_relevance_score"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
}

// SearchConfig holds pipeline-wide limits
type SearchConfig struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxQueryLength  int           `mapstructure:"max_query_length"`
	MaxResults      int           `mapstructure:"max_results"`
}

// DedupConfig holds duplicate detection thresholds
type DedupConfig struct {
	NameSimilarityThreshold float64 `mapstructure:"name_similarity_threshold"`
	PriceTolerance          float64 `mapstructure:"price_tolerance"`
}

// ScoringConfig holds confidence scoring weights
type ScoringConfig struct {
	AIWeights          AIWeightsConfig        `mapstructure:"ai_weights"`
	HeuristicWeights   HeuristicWeightsConfig `mapstructure:"heuristic_weights"`
	MinConfidenceScore float64                `mapstructure:"min_confidence_score"`
	TrustedDomains     map[string]float64     `mapstructure:"trusted_domains"`
}

// AIWeightsConfig weights the signals used when a model judgment exists
type AIWeightsConfig struct {
	Relevance  float64 `mapstructure:"relevance"`
	Confidence float64 `mapstructure:"confidence"`
	Source     float64 `mapstructure:"source"`
	Price      float64 `mapstructure:"price"`
}

// HeuristicWeightsConfig holds the point budgets of the fallback score
type HeuristicWeightsConfig struct {
	Price       float64 `mapstructure:"price"`
	Rating      float64 `mapstructure:"rating"`
	Source      float64 `mapstructure:"source"`
	Consistency float64 `mapstructure:"consistency"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type          string        `mapstructure:"type"` // "memory", "redis" or "none"
	Size          int           `mapstructure:"size"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// EventsConfig holds the search event publisher configuration
type EventsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Brokers  []string      `mapstructure:"brokers"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CatalogConfig points at an alternative country catalog file
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricepilot/")

	// PRICEPILOT_SERPAPI_API_KEY -> serpapi.api_key
	v.SetEnvPrefix("PRICEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	v.SetDefault("serpapi.api_key", "")
	v.SetDefault("serpapi.requests_per_second", 5)
	v.SetDefault("serpapi.burst", 10)
	v.SetDefault("serpapi.max_retries", 3)

	v.SetDefault("retailer.enabled", true)
	v.SetDefault("retailer.user_agent", "")
	v.SetDefault("retailer.request_timeout", "4s")
	v.SetDefault("retailer.max_items_per_site", 10)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.organization", "")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.batch_size", 10)
	v.SetDefault("llm.concurrency", 3)
	v.SetDefault("llm.min_relevance_score", 70)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)

	v.SetDefault("search.provider_timeout", "5s")
	v.SetDefault("search.request_timeout", "10s")
	v.SetDefault("search.max_query_length", 200)
	v.SetDefault("search.max_results", 20)

	v.SetDefault("dedup.name_similarity_threshold", 0.85)
	v.SetDefault("dedup.price_tolerance", 0.05)

	v.SetDefault("scoring.ai_weights.relevance", 0.35)
	v.SetDefault("scoring.ai_weights.confidence", 0.45)
	v.SetDefault("scoring.ai_weights.source", 0.10)
	v.SetDefault("scoring.ai_weights.price", 0.10)
	v.SetDefault("scoring.heuristic_weights.price", 35)
	v.SetDefault("scoring.heuristic_weights.rating", 20)
	v.SetDefault("scoring.heuristic_weights.source", 35)
	v.SetDefault("scoring.heuristic_weights.consistency", 10)
	v.SetDefault("scoring.min_confidence_score", 0)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "pricepilot.search.completed")
	v.SetDefault("events.client_id", "pricepilot")
	v.SetDefault("events.timeout", "2s")

	v.SetDefault("catalog.path", "")
}

// Validate checks every section
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.SerpAPI),
		validation.Field(&c.LLM),
		validation.Field(&c.Search),
		validation.Field(&c.Dedup),
		validation.Field(&c.Cache),
		validation.Field(&c.Events),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required),
		validation.Field(&s.Environment, validation.Required, validation.In("development", "production", "test")),
	)
}

func (s SerpAPIConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.APIKey, validation.Required.Error("is required (set PRICEPILOT_SERPAPI_API_KEY)")),
		validation.Field(&s.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&s.MaxRetries, validation.Min(0)),
	)
}

func (l LLMConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Provider, validation.Required, validation.In("openai", "cohere")),
		validation.Field(&l.BatchSize, validation.Min(1)),
		validation.Field(&l.MinRelevanceScore, validation.Min(0.0), validation.Max(100.0)),
	)
}

func (s SearchConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ProviderTimeout, validation.Required),
		validation.Field(&s.RequestTimeout, validation.Required),
		validation.Field(&s.MaxQueryLength, validation.Required, validation.Min(1)),
		validation.Field(&s.MaxResults, validation.Min(1)),
	)
}

func (d DedupConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.NameSimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&d.PriceTolerance, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In("memory", "redis", "none")),
		validation.Field(&c.RedisAddr, validation.When(c.Type == "redis", validation.Required.Error("is required when cache type is 'redis'"))),
		validation.Field(&c.Size, validation.Min(0)),
	)
}

func (e EventsConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Brokers, validation.When(e.Enabled, validation.Required.Error("are required when events are enabled"))),
		validation.Field(&e.Topic, validation.When(e.Enabled, validation.Required)),
	)
}
