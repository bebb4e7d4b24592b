package usecase

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pricepilot/backend/internal/domain"
)

// amountExpr is a numeric price token: space-grouped thousands or a digit run with separators
const amountExpr = `\d{1,3}(?:[\x{00A0}\x{202F} ]\d{3})+(?:[.,]\d{1,2})?|\d(?:[\d.,']*\d)?`

// formerPriceWords introduce a struck-through price ("was $1,299", "RRP: £99")
const formerPriceWords = `(?i:\b(?:was|list price|regular price|reg|msrp|rrp)\b\.?)\s*:?\s*`

// textAmount is an amount as written in free text, allowing space-grouped thousands
const textAmount = `(?:\d{1,3}(?:[\x{00A0}\x{202F} ]\d{3})+(?:[.,]\d{1,2})?|\d[\d.,]*\d|\d)`

// Compiled regex patterns for result normalization
var (
	// Marketing words that precede or follow the actual amount ("from $9.99", "save 20% off")
	priceNoisePattern = regexp.MustCompile(`(?i)\b(from|starting at|starting|as low as|up to|save|off|now|only|each)\b`)

	// A price amount: space-grouped thousands ("1 299,00") or any digit run with separators
	amountPattern = regexp.MustCompile(amountExpr)

	// Seller and marketing suffixes appended to listing titles.
	// A pipe segment is dropped only when it names a seller or a site; variant
	// segments such as "| 256GB | Black" are kept.
	nameNoisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*[-–:|]\s*(buy online|shop now|best price|free shipping|free delivery|online at best prices?|at best price|in stock|sale)\b.*$`),
		regexp.MustCompile(`(?i)\s*\|\s*(?:(?:www\.)?[a-z0-9-]+(?:\.[a-z]{2,})+|` + sellerNames + `)(?:\.[a-z]{2,})*\s*$`),
		regexp.MustCompile(`(?i)\s+[-–:]\s*(amazon|ebay|walmart|flipkart|best buy|target)\b.*$`),
		regexp.MustCompile(`^[\s,;:|\-–]+|[\s,;:|\-–]+$`),
	}

	// Shopping-style price inside free text ("... now $1,299.00 at ...")
	textPricePattern = regexp.MustCompile(`(?:[$£€¥₹]|R\$|Rs\.?|\b(?:USD|EUR|GBP|INR|JPY|CAD|AUD|BRL|MXN)\b)\s*` + textAmount + `|` + textAmount + `\s*(?:€|£|¥|円|\b(?:USD|EUR|GBP|INR|JPY|CAD|AUD|BRL|MXN)\b)`)
)

// sellerNames are storefronts that append their name to listing titles
const sellerNames = `amazon|ebay|walmart|flipkart|best buy|target|currys|argos|john lewis|newegg|costco|` +
	`croma|reliance digital|mediamarkt|saturn|otto|fnac|darty|cdiscount|mercado livre|mercado libre|` +
	`magazine luiza|rakuten|yodobashi|bic camera|jb hi-fi|officeworks|harvey norman|canada computers|the source`

// symbolMatcher maps one written currency marker to its ISO code
type symbolMatcher struct {
	symbol  string
	code    string
	pattern *regexp.Regexp
}

// Normalizer maps provider records into CandidateProducts.
// It holds only read-only tables and is safe for concurrent use.
type Normalizer struct {
	catalog     domain.CountryCatalog
	codePattern *regexp.Regexp
	symbols     []symbolMatcher

	// markedAmount matches an amount written next to a currency symbol or code;
	// group 1 holds a prefixed amount, group 2 a suffixed one
	markedAmount *regexp.Regexp
	formerPrice  *regexp.Regexp
}

// NewNormalizer builds the locale tables from the country catalog
func NewNormalizer(catalog domain.CountryCatalog) *Normalizer {
	currencies := catalog.Currencies()

	codes := make([]string, 0, len(currencies))
	var symbols []symbolMatcher
	for _, cur := range currencies {
		codes = append(codes, regexp.QuoteMeta(cur.Code))
		for _, sym := range cur.Symbols {
			if sym == "" {
				continue
			}
			expr := regexp.QuoteMeta(sym)
			if first := sym[0]; (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z') {
				expr = `\b` + expr
			}
			symbols = append(symbols, symbolMatcher{
				symbol:  sym,
				code:    cur.Code,
				pattern: regexp.MustCompile(expr),
			})
		}
	}

	// Longest marker first so "CA$" wins over "$"
	sort.SliceStable(symbols, func(i, j int) bool {
		return len(symbols[i].symbol) > len(symbols[j].symbol)
	})

	n := &Normalizer{
		catalog: catalog,
		symbols: symbols,
	}
	if len(codes) > 0 {
		n.codePattern = regexp.MustCompile(fmt.Sprintf(`\b(%s)\b`, strings.Join(codes, "|")))
	}

	markers := make([]string, 0, len(symbols)+len(codes))
	for _, s := range symbols {
		markers = append(markers, s.pattern.String())
	}
	for _, code := range codes {
		markers = append(markers, `\b`+code+`\b`)
	}
	if len(markers) > 0 {
		marker := `(?:` + strings.Join(markers, "|") + `)`
		marked := marker + `\s*(` + amountExpr + `)|(` + amountExpr + `)\s*` + marker
		n.markedAmount = regexp.MustCompile(marked)
		n.formerPrice = regexp.MustCompile(formerPriceWords + `(?:` + marked + `)`)
	}
	return n
}

// Normalize converts one raw provider record into a canonical candidate.
// It never drops a record: unparseable prices leave PriceNumeric nil.
func (n *Normalizer) Normalize(country *domain.Country, provider domain.ProviderName, raw domain.RawRecord) domain.CandidateProduct {
	c := domain.CandidateProduct{
		SourceProvider: provider,
		RawName:        stringField(raw, "title", "name"),
		Link:           stringField(raw, "link", "product_link", "url"),
		ImageURL:       stringField(raw, "thumbnail", "image", "image_url"),
		Currency:       strings.ToUpper(stringField(raw, "currency")),
		Rating:         floatField(raw, "rating"),
		Availability:   stringField(raw, "delivery", "availability", "condition", "stock"),
	}

	switch provider {
	case domain.ProviderGoogleShopping:
		c.Website = stringField(raw, "source", "seller")
		c.PriceRaw = stringField(raw, "price")
		c.PriceNumeric = positive(floatField(raw, "extracted_price"))

	case domain.ProviderAmazon:
		c.PriceRaw = stringField(raw, "price", "price_string", "price_upper")
		c.PriceNumeric = positive(floatField(raw, "extracted_price"))

	case domain.ProviderEbay:
		// eBay prices are objects: {"raw": "$10.00", "extracted": 10} or a from/to range
		if price, ok := raw["price"].(map[string]interface{}); ok {
			if from, ok := price["from"].(map[string]interface{}); ok {
				price = from
			}
			c.PriceRaw = stringField(price, "raw")
			c.PriceNumeric = positive(floatField(price, "extracted"))
		} else {
			c.PriceRaw = stringField(raw, "price")
		}
		c.Website = stringField(raw, "seller")

	case domain.ProviderGoogleLocal:
		// General web results carry the price in free text or a rich snippet
		c.PriceRaw = textPricePattern.FindString(stringField(raw, "title") + " " + stringField(raw, "snippet"))
		if rich, ok := nested(raw, "rich_snippet", "top", "detected_extensions"); ok {
			c.PriceNumeric = positive(floatField(rich, "price"))
			if c.Currency == "" {
				c.Currency = strings.ToUpper(stringField(rich, "currency"))
			}
		}

	default:
		c.Website = stringField(raw, "source", "website")
		c.PriceRaw = stringField(raw, "price")
		c.PriceNumeric = positive(floatField(raw, "extracted_price"))
	}

	c.Name = c.RawName
	return n.Canonicalize(country, c)
}

// Canonicalize applies the normalization rules to an existing candidate.
// Applying it twice yields the same candidate as applying it once.
func (n *Normalizer) Canonicalize(country *domain.Country, c domain.CandidateProduct) domain.CandidateProduct {
	c.RawName = collapseSpaces(c.RawName)
	c.Link = strings.TrimSpace(c.Link)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	c.PriceRaw = collapseSpaces(c.PriceRaw)
	c.Availability = collapseSpaces(c.Availability)

	if c.Name == "" {
		c.Name = c.RawName
	}
	c.Name = CleanProductName(c.Name)

	if c.Website == "" {
		c.Website = WebsiteFromURL(c.Link)
	}
	c.Website = collapseSpaces(c.Website)

	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = n.DetectCurrency(c.PriceRaw, country)
	}

	if c.PriceNumeric == nil && c.PriceRaw != "" {
		c.PriceNumeric = n.ParsePrice(c.PriceRaw, country, c.Currency)
	}

	if c.Rating != nil && (*c.Rating < 0 || *c.Rating > 5) {
		c.Rating = nil
	}

	return c
}

// DetectCurrency infers an ISO code from a price string, falling back to the
// country's default currency.
func (n *Normalizer) DetectCurrency(text string, country *domain.Country) string {
	fallback := ""
	if country != nil {
		fallback = country.Currency
	}
	if text == "" {
		return fallback
	}

	if n.codePattern != nil {
		if m := n.codePattern.FindString(strings.ToUpper(text)); m != "" {
			return m
		}
	}

	for _, s := range n.symbols {
		if !s.pattern.MatchString(text) {
			continue
		}
		// A bare "$" is written by every dollar currency
		if s.symbol == "$" && fallback != "" && n.usesDollarSign(fallback) {
			return fallback
		}
		return s.code
	}

	return fallback
}

func (n *Normalizer) usesDollarSign(code string) bool {
	cur, ok := n.catalog.Currency(code)
	if !ok {
		return false
	}
	for _, sym := range cur.Symbols {
		if strings.Contains(sym, "$") {
			return true
		}
	}
	return false
}

// ParsePrice extracts the amount in text using the country's separator
// conventions. The first amount written next to a currency symbol or code
// wins, ignoring struck-through "was" prices; otherwise the first number is
// used. Returns nil when no positive amount is found.
func (n *Normalizer) ParsePrice(text string, country *domain.Country, currency string) *float64 {
	token := n.priceToken(text)
	if token == "" {
		return nil
	}

	decimalSep := "."
	if country != nil && country.DecimalSeparator != "" {
		decimalSep = country.DecimalSeparator
	}
	minorUnits := 2
	if cur, ok := n.catalog.Currency(currency); ok {
		minorUnits = cur.MinorUnits
	}

	value, ok := parseAmount(token, decimalSep, minorUnits)
	if !ok || value <= 0 {
		return nil
	}
	return &value
}

func (n *Normalizer) priceToken(text string) string {
	if n.markedAmount != nil {
		current := n.formerPrice.ReplaceAllString(text, " ")
		if m := n.markedAmount.FindStringSubmatch(current); m != nil {
			if m[1] != "" {
				return m[1]
			}
			return m[2]
		}
	}
	cleaned := priceNoisePattern.ReplaceAllString(text, " ")
	return amountPattern.FindString(cleaned)
}

// parseAmount resolves thousands and decimal separators in a numeric token.
//
//   - both "." and "," present: the rightmost one is the decimal point
//   - the locale decimal separator appearing once is the decimal point
//   - any other separator appearing once followed by one or two digits is the decimal point
//   - everything else is digit grouping
//   - currencies without minor units never have a decimal point
func parseAmount(token, decimalSep string, minorUnits int) (float64, bool) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "").Replace(token)
	if s == "" {
		return 0, false
	}

	decimal := ""
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case minorUnits == 0:
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimal = "."
		} else {
			decimal = ","
		}
	case lastDot >= 0 || lastComma >= 0:
		sep, idx := ".", lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(s, sep) == 1 {
			digitsAfter := len(s) - idx - 1
			if sep == decimalSep || digitsAfter <= 2 {
				decimal = sep
			}
		}
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteByte(ch)
		case decimal != "" && ch == decimal[0] && i == strings.LastIndex(s, decimal):
			b.WriteByte('.')
		}
	}

	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// CleanProductName strips seller and marketing suffixes from a listing title.
// The result is a fixpoint: cleaning it again changes nothing.
func CleanProductName(name string) string {
	original := collapseSpaces(name)
	current := original
	for {
		next := current
		for _, p := range nameNoisePatterns {
			next = p.ReplaceAllString(next, "")
		}
		next = collapseSpaces(next)
		if next == current {
			break
		}
		current = next
	}
	if current == "" {
		return original
	}
	return current
}

// WebsiteFromURL returns the host of a link without "www." or "m." prefixes
func WebsiteFromURL(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "smile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stringField returns the first non-empty string among keys.
// Arrays of strings are joined, numbers are formatted.
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// floatField returns the first numeric value among keys, parsing numeric strings
func floatField(raw map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func nested(raw map[string]interface{}, path ...string) (map[string]interface{}, bool) {
	current := raw
	for _, key := range path {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}
