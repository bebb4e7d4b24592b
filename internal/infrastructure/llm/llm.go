package llm

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pricepilot/backend/internal/domain"
)

// Supported backends
const (
	ProviderOpenAI = "openai"
	ProviderCohere = "cohere"
)

// Config selects and configures a language model backend
type Config struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	Timeout      time.Duration
}

// New builds the configured backend. It returns nil, nil when no API key is
// set, which leaves AI validation disabled.
func New(config Config) (domain.LLMClient, error) {
	if config.APIKey == "" {
		log.Printf("[AI] No LLM API key configured, AI validation disabled")
		return nil, nil
	}

	switch strings.ToLower(config.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderCohere:
		return NewCohereClient(config), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}
