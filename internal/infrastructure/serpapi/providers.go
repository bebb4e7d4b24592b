package serpapi

import (
	"context"
	"strings"

	"github.com/pricepilot/backend/internal/domain"
)

const (
	shoppingResultsLimit = "20"
	localResultsLimit    = "10"
)

// Provider adapts one SerpAPI engine to domain.ProviderClient
type Provider struct {
	client     *Client
	name       domain.ProviderName
	resultsKey string
	supports   func(country *domain.Country) bool
	params     func(country *domain.Country, query string) map[string]string
}

// NewGoogleShoppingProvider searches Google Shopping in every country
func NewGoogleShoppingProvider(client *Client) *Provider {
	return &Provider{
		client:     client,
		name:       domain.ProviderGoogleShopping,
		resultsKey: "shopping_results",
		supports:   func(*domain.Country) bool { return true },
		params: func(country *domain.Country, query string) map[string]string {
			return map[string]string{
				"engine": "google_shopping",
				"q":      query,
				"gl":     country.GL,
				"hl":     country.HL,
				"num":    shoppingResultsLimit,
			}
		},
	}
}

// NewAmazonProvider searches the country's Amazon storefront
func NewAmazonProvider(client *Client) *Provider {
	return &Provider{
		client:     client,
		name:       domain.ProviderAmazon,
		resultsKey: "organic_results",
		supports:   func(country *domain.Country) bool { return country.AmazonDomain != "" },
		params: func(country *domain.Country, query string) map[string]string {
			return map[string]string{
				"engine":        "amazon",
				"amazon_domain": country.AmazonDomain,
				"k":             query,
			}
		},
	}
}

// NewEbayProvider searches the country's eBay site
func NewEbayProvider(client *Client) *Provider {
	return &Provider{
		client:     client,
		name:       domain.ProviderEbay,
		resultsKey: "organic_results",
		supports:   func(country *domain.Country) bool { return country.EbayDomain != "" },
		params: func(country *domain.Country, query string) map[string]string {
			return map[string]string{
				"engine":      "ebay",
				"ebay_domain": country.EbayDomain,
				"_nkw":        query,
			}
		},
	}
}

// NewGoogleLocalProvider runs a general Google search restricted to the
// country's local retailer sites
func NewGoogleLocalProvider(client *Client) *Provider {
	return &Provider{
		client:     client,
		name:       domain.ProviderGoogleLocal,
		resultsKey: "organic_results",
		supports:   func(country *domain.Country) bool { return len(country.LocalSites) > 0 },
		params: func(country *domain.Country, query string) map[string]string {
			return map[string]string{
				"engine": "google",
				"q":      LocalSiteQuery(query, country.LocalSites),
				"gl":     country.GL,
				"hl":     country.HL,
				"num":    localResultsLimit,
			}
		},
	}
}

// LocalSiteQuery appends a site: filter over the given domains to query
func LocalSiteQuery(query string, sites []string) string {
	if len(sites) == 0 {
		return query
	}
	filters := make([]string, len(sites))
	for i, site := range sites {
		filters[i] = "site:" + site
	}
	return query + " (" + strings.Join(filters, " OR ") + ")"
}

// Name returns the provider name
func (p *Provider) Name() domain.ProviderName {
	return p.name
}

// Supports reports whether this engine can serve the country
func (p *Provider) Supports(country *domain.Country) bool {
	return country != nil && p.supports(country)
}

// Search queries the engine and returns its result records unchanged
func (p *Provider) Search(ctx context.Context, country *domain.Country, query string) ([]domain.RawRecord, error) {
	data, err := p.client.Search(ctx, p.name, p.params(country, query))
	if err != nil {
		return nil, err
	}
	return extractRecords(data, p.resultsKey), nil
}

func extractRecords(data map[string]interface{}, key string) []domain.RawRecord {
	items, ok := data[key].([]interface{})
	if !ok {
		return []domain.RawRecord{}
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, domain.RawRecord(m))
		}
	}
	return records
}
