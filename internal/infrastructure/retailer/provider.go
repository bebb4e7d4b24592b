package retailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/pricepilot/backend/internal/domain"
)

// Provider defaults
const (
	DefaultUserAgent       = "PricePilot/1.0 (+https://pricepilot.dev/bot)"
	DefaultRequestTimeout  = 4 * time.Second
	DefaultMaxItemsPerSite = 10
)

// Config holds configuration for the retailer scraper
type Config struct {
	UserAgent       string
	RequestTimeout  time.Duration
	MaxItemsPerSite int
	// Transport replaces the HTTP transport of every collector when set
	Transport http.RoundTripper
}

// Provider scrapes the search pages of a country's configured retailer sites
type Provider struct {
	userAgent      string
	requestTimeout time.Duration
	maxItems       int
	transport      http.RoundTripper
}

// NewProvider creates a retailer scraping provider
func NewProvider(config Config) *Provider {
	p := &Provider{
		userAgent:      config.UserAgent,
		requestTimeout: config.RequestTimeout,
		maxItems:       config.MaxItemsPerSite,
		transport:      config.Transport,
	}
	if p.userAgent == "" {
		p.userAgent = DefaultUserAgent
	}
	if p.requestTimeout <= 0 {
		p.requestTimeout = DefaultRequestTimeout
	}
	if p.maxItems <= 0 {
		p.maxItems = DefaultMaxItemsPerSite
	}
	return p
}

// Name returns the provider name
func (p *Provider) Name() domain.ProviderName {
	return domain.ProviderRetailer
}

// Supports reports whether the country has retailer sites configured
func (p *Provider) Supports(country *domain.Country) bool {
	return country != nil && len(country.Retailers) > 0
}

type siteResult struct {
	records []domain.RawRecord
	err     error
	status  int
}

// Search scrapes every retailer site concurrently. Records keep site order.
// The call fails only when every site failed.
func (p *Provider) Search(ctx context.Context, country *domain.Country, query string) ([]domain.RawRecord, error) {
	sites := country.Retailers
	results := make([]siteResult, len(sites))

	var wg sync.WaitGroup
	for i, site := range sites {
		i, site := i, site
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.scrape(site, query)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, domain.NewProviderError(domain.ProviderRetailer, domain.ProviderTimeout, ctx.Err())
	}

	records := []domain.RawRecord{}
	var firstErr *domain.ProviderError
	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			perr := classifyError(r.err, r.status)
			log.Printf("[RETAILER] %s failed: %v", sites[i].Name, perr)
			if firstErr == nil {
				firstErr = perr
			}
			continue
		}
		records = append(records, r.records...)
	}

	if len(sites) > 0 && failed == len(sites) {
		return nil, firstErr
	}
	log.Printf("[RETAILER] %d records from %d sites for %q", len(records), len(sites)-failed, query)
	return records, nil
}

// scrape visits one site's search page and extracts item records
func (p *Provider) scrape(site domain.RetailerSite, query string) siteResult {
	collector := colly.NewCollector(colly.UserAgent(p.userAgent))
	collector.SetRequestTimeout(p.requestTimeout)
	if p.transport != nil {
		collector.WithTransport(p.transport)
	}

	var result siteResult
	collector.OnHTML(site.ItemSelector, func(e *colly.HTMLElement) {
		if len(result.records) >= p.maxItems {
			return
		}
		if record := extractRecord(e, site); record != nil {
			result.records = append(result.records, record)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		result.err = err
		if r != nil {
			result.status = r.StatusCode
		}
	})

	target := fmt.Sprintf(site.SearchURL, url.QueryEscape(query))
	if err := collector.Visit(target); err != nil && result.err == nil {
		result.err = err
	}
	return result
}

func extractRecord(e *colly.HTMLElement, site domain.RetailerSite) domain.RawRecord {
	title := strings.TrimSpace(e.ChildText(site.TitleSelector))
	if title == "" {
		return nil
	}

	record := domain.RawRecord{
		"title":  title,
		"source": site.Name,
	}
	if price := strings.TrimSpace(e.ChildText(site.PriceSelector)); price != "" {
		record["price"] = price
	}
	if site.LinkSelector != "" {
		if href := e.ChildAttr(site.LinkSelector, "href"); href != "" {
			record["link"] = e.Request.AbsoluteURL(href)
		}
	}
	if site.ImageSelector != "" {
		if src := e.ChildAttr(site.ImageSelector, "src"); src != "" {
			record["thumbnail"] = e.Request.AbsoluteURL(src)
		}
	}
	return record
}

// classifyError maps a scrape failure onto a provider error kind
func classifyError(err error, status int) *domain.ProviderError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewProviderError(domain.ProviderRetailer, domain.ProviderTimeout, err)
	case status == http.StatusTooManyRequests:
		return domain.NewProviderError(domain.ProviderRetailer, domain.ProviderRateLimited, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.NewProviderError(domain.ProviderRetailer, domain.ProviderUnauthorized, err)
	default:
		return domain.NewProviderError(domain.ProviderRetailer, domain.ProviderUnavailable, err)
	}
}
