package domain

// Country describes a supported market: currency, locale and which providers serve it
type Country struct {
	Code             string         `yaml:"code" json:"code"`
	Name             string         `yaml:"name" json:"name"`
	Aliases          []string       `yaml:"aliases" json:"aliases,omitempty"`
	Currency         string         `yaml:"currency" json:"currency"`
	DecimalSeparator string         `yaml:"decimal_separator" json:"-"`
	GL               string         `yaml:"gl" json:"-"`
	HL               string         `yaml:"hl" json:"-"`
	AmazonDomain     string         `yaml:"amazon_domain" json:"amazon_domain,omitempty"`
	EbayDomain       string         `yaml:"ebay_domain" json:"ebay_domain,omitempty"`
	LocalSites       []string       `yaml:"local_sites" json:"local_sites,omitempty"`
	Retailers        []RetailerSite `yaml:"retailers" json:"-"`
	Providers        []ProviderName `yaml:"providers" json:"providers"`
}

// SupportsProvider reports whether the country enables the named provider
func (c *Country) SupportsProvider(name ProviderName) bool {
	for _, p := range c.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// RetailerSite is an HTML search page scraped directly with CSS selectors
type RetailerSite struct {
	Name          string `yaml:"name"`
	SearchURL     string `yaml:"search_url"` // contains a single %s for the escaped query
	ItemSelector  string `yaml:"item_selector"`
	TitleSelector string `yaml:"title_selector"`
	PriceSelector string `yaml:"price_selector"`
	LinkSelector  string `yaml:"link_selector"`
	ImageSelector string `yaml:"image_selector"`
}

// Currency describes how a currency is written in price strings
type Currency struct {
	Code       string   `yaml:"code" json:"code"`
	Symbols    []string `yaml:"symbols" json:"symbols"`
	MinorUnits int      `yaml:"minor_units" json:"minor_units"`
}
