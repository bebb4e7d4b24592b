package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pricepilot/backend/config"
	httpDelivery "github.com/pricepilot/backend/internal/delivery/http"
	"github.com/pricepilot/backend/internal/domain"
	"github.com/pricepilot/backend/internal/infrastructure/cache"
	"github.com/pricepilot/backend/internal/infrastructure/catalog"
	"github.com/pricepilot/backend/internal/infrastructure/events"
	"github.com/pricepilot/backend/internal/infrastructure/llm"
	"github.com/pricepilot/backend/internal/infrastructure/metrics"
	"github.com/pricepilot/backend/internal/infrastructure/retailer"
	"github.com/pricepilot/backend/internal/infrastructure/serpapi"
	"github.com/pricepilot/backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting PricePilot Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Cache Type: %s", cfg.Cache.Type)

	countries, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to load country catalog: %v", err)
	}
	log.Printf("Country catalog: %d countries", len(countries.Countries()))

	recorder := metrics.New()

	store, closeStore := newCacheStore(cfg.Cache)
	defer closeStore()

	providers := newProviders(cfg, store)
	providerNames := make([]domain.ProviderName, len(providers))
	for i, p := range providers {
		providerNames[i] = p.Name()
	}
	log.Printf("Providers: %v", providerNames)

	model, err := llm.New(llm.Config{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		Organization: cfg.LLM.Organization,
		Timeout:      cfg.LLM.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to configure LLM: %v", err)
	}
	if model != nil {
		log.Printf("AI validation: %s (%s)", cfg.LLM.Provider, model.Model())
	} else {
		log.Printf("WARNING: AI validation disabled, every search runs in degraded mode")
	}

	pipeline := usecase.SearchPipeline{
		Aggregator: usecase.NewAggregator(providers, usecase.NewNormalizer(countries), recorder, usecase.AggregatorConfig{
			ProviderTimeout: cfg.Search.ProviderTimeout,
		}),
		Validator: usecase.NewAIValidator(model, recorder, usecase.ValidatorConfig{
			BatchSize:         cfg.LLM.BatchSize,
			Concurrency:       cfg.LLM.Concurrency,
			MinRelevanceScore: cfg.LLM.MinRelevanceScore,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
		}),
		Deduplicator: usecase.NewDeduplicator(usecase.DedupConfig{
			NameSimilarityThreshold: cfg.Dedup.NameSimilarityThreshold,
			PriceTolerance:          cfg.Dedup.PriceTolerance,
		}),
		Scorer: usecase.NewScorer(scorerConfig(cfg)),
	}

	var publisher domain.EventPublisher
	if cfg.Events.Enabled {
		kafka, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Events.Brokers,
			Topic:    cfg.Events.Topic,
			ClientID: cfg.Events.ClientID,
		})
		if err != nil {
			log.Printf("WARNING: search events disabled: %v", err)
		} else {
			publisher = kafka
			defer kafka.Close()
		}
	}

	searchService := usecase.NewSearchService(countries, pipeline, publisher, recorder, usecase.SearchServiceConfig{
		RequestTimeout: cfg.Search.RequestTimeout,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		EventTimeout:   cfg.Events.Timeout,
	})

	handler := httpDelivery.NewHandler(searchService, countries, recorder, providerNames)
	router := httpDelivery.SetupRouter(cfg, handler, recorder.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

// newCacheStore builds the provider response cache. A Redis failure falls
// back to memory; type "none" disables caching.
func newCacheStore(cfg config.CacheConfig) (domain.CacheRepository, func()) {
	newMemory := func() (domain.CacheRepository, func()) {
		memoryCache, err := cache.NewMemoryCache(cfg.Size)
		if err != nil {
			log.Fatalf("Failed to create memory cache: %v", err)
		}
		return memoryCache, func() { memoryCache.Close() }
	}

	switch cfg.Type {
	case "none":
		return nil, func() {}
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "pricepilot:",
		})
		if err != nil {
			log.Printf("WARNING: %v, falling back to memory cache", err)
			return newMemory()
		}
		log.Printf("Redis cache: %s (TTL %s)", cfg.RedisAddr, cfg.TTL)
		return redisCache, func() { redisCache.Close() }
	default:
		log.Printf("Memory cache: %d entries (TTL %s)", cfg.Size, cfg.TTL)
		return newMemory()
	}
}

// newProviders registers every provider in response order, wrapped with the
// response cache when one is configured
func newProviders(cfg *config.Config, store domain.CacheRepository) []domain.ProviderClient {
	client := serpapi.NewClient(serpapi.ClientConfig{
		APIKey:            cfg.SerpAPI.APIKey,
		RequestsPerSecond: cfg.SerpAPI.RequestsPerSecond,
		Burst:             cfg.SerpAPI.Burst,
		MaxRetries:        cfg.SerpAPI.MaxRetries,
	})

	providers := []domain.ProviderClient{
		serpapi.NewGoogleShoppingProvider(client),
		serpapi.NewAmazonProvider(client),
		serpapi.NewEbayProvider(client),
		serpapi.NewGoogleLocalProvider(client),
	}
	if cfg.Retailer.Enabled {
		providers = append(providers, retailer.NewProvider(retailer.Config{
			UserAgent:       cfg.Retailer.UserAgent,
			RequestTimeout:  cfg.Retailer.RequestTimeout,
			MaxItemsPerSite: cfg.Retailer.MaxItemsPerSite,
		}))
	}

	if store == nil {
		return providers
	}
	for i, p := range providers {
		providers[i] = cache.NewCachedProvider(p, store, cfg.Cache.TTL)
	}
	return providers
}

func scorerConfig(cfg *config.Config) usecase.ScorerConfig {
	sc := usecase.ScorerConfig{
		AIWeights: usecase.ScoringWeights{
			Relevance:  cfg.Scoring.AIWeights.Relevance,
			Confidence: cfg.Scoring.AIWeights.Confidence,
			Source:     cfg.Scoring.AIWeights.Source,
			Price:      cfg.Scoring.AIWeights.Price,
		},
		HeuristicWeights: usecase.HeuristicWeights{
			Price:       cfg.Scoring.HeuristicWeights.Price,
			Rating:      cfg.Scoring.HeuristicWeights.Rating,
			Source:      cfg.Scoring.HeuristicWeights.Source,
			Consistency: cfg.Scoring.HeuristicWeights.Consistency,
		},
		MaxResults:         cfg.Search.MaxResults,
		MinConfidenceScore: cfg.Scoring.MinConfidenceScore,
	}
	if len(cfg.Scoring.TrustedDomains) > 0 {
		sc.TrustedDomains = cfg.Scoring.TrustedDomains
	}
	return sc
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
