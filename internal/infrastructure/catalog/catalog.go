package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pricepilot/backend/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var defaultCatalog []byte

// file mirrors the YAML layout of a catalog document
type file struct {
	Currencies []domain.Currency `yaml:"currencies"`
	Countries  []domain.Country  `yaml:"countries"`
}

// Catalog is a read-only, in-memory table of supported countries and currencies.
// It is safe for concurrent use once loaded.
type Catalog struct {
	countries  []domain.Country
	byCode     map[string]int
	currencies map[string]domain.Currency
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded default when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		byCode:     make(map[string]int),
		currencies: make(map[string]domain.Currency),
	}

	for _, cur := range doc.Currencies {
		code := strings.ToUpper(cur.Code)
		if code == "" {
			return nil, fmt.Errorf("catalog currency without code")
		}
		cur.Code = code
		c.currencies[code] = cur
	}

	for _, country := range doc.Countries {
		country.Code = strings.ToUpper(strings.TrimSpace(country.Code))
		country.Currency = strings.ToUpper(country.Currency)
		if country.Code == "" {
			return nil, fmt.Errorf("catalog country without code")
		}
		if _, ok := c.currencies[country.Currency]; !ok {
			return nil, fmt.Errorf("country %s references unknown currency %q", country.Code, country.Currency)
		}
		if country.DecimalSeparator == "" {
			country.DecimalSeparator = "."
		}
		if country.GL == "" {
			country.GL = strings.ToLower(country.Code)
		}
		if country.HL == "" {
			country.HL = "en"
		}

		idx := len(c.countries)
		c.countries = append(c.countries, country)
		for _, key := range append([]string{country.Code}, country.Aliases...) {
			key = strings.ToUpper(strings.TrimSpace(key))
			if _, dup := c.byCode[key]; dup {
				return nil, fmt.Errorf("duplicate country code or alias %q", key)
			}
			c.byCode[key] = idx
		}
	}

	if len(c.countries) == 0 {
		return nil, fmt.Errorf("catalog has no countries")
	}

	return c, nil
}

// Lookup resolves a country code or alias, case-insensitively
func (c *Catalog) Lookup(code string) (*domain.Country, bool) {
	idx, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, false
	}
	country := c.countries[idx]
	return &country, true
}

// Countries returns all supported countries sorted by code
func (c *Catalog) Countries() []domain.Country {
	out := make([]domain.Country, len(c.countries))
	copy(out, c.countries)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Currency returns the currency definition for an ISO code
func (c *Catalog) Currency(code string) (domain.Currency, bool) {
	cur, ok := c.currencies[strings.ToUpper(code)]
	return cur, ok
}

// Currencies returns every currency definition
func (c *Catalog) Currencies() []domain.Currency {
	out := make([]domain.Currency, 0, len(c.currencies))
	for _, cur := range c.currencies {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
