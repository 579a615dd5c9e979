package scraper

import (
	"strings"

	"github.com/maltedev/price-tracker/internal/models"
)

// Rules are the ordered extraction selectors for one retailer. Earlier
// selectors win; later ones cover older or regional layouts.
type Rules struct {
	Site              models.Site
	PriceSelectors    []string
	CurrencySelectors []string
	TitleSelector     string
	// Domains are the registrable hosts the rules apply to. Subdomains match.
	Domains []string
}

var AmazonRules = Rules{
	Site: models.SiteAmazon,
	PriceSelectors: []string{
		"span.a-price-whole",
		".a-price .a-offscreen",
		"#price_inside_buybox",
		".a-price-range",
		".a-color-price",
		"#_price.olpWrapper.a-size-small",
	},
	CurrencySelectors: []string{
		"span.a-price-symbol",
	},
	// the bare #productTitle also matches a hidden input
	TitleSelector: "span#productTitle",
	Domains: []string{
		"amazon.com", "amazon.ca", "amazon.com.mx", "amazon.co.uk", "amazon.de",
		"amazon.fr", "amazon.it", "amazon.es", "amazon.nl", "amazon.co.jp",
		"amazon.com.au", "amazon.in",
	},
}

var WalmartRules = Rules{
	Site: models.SiteWalmart,
	PriceSelectors: []string{
		`[data-automation-id="product-price"]`,
		`[itemprop="price"]`,
		".price-now",
		".prod-price",
	},
	TitleSelector: "h1",
	Domains:       []string{"walmart.com", "walmart.ca", "walmart.com.mx"},
}

// RulesFor returns the built-in rules for site.
func RulesFor(site models.Site) (Rules, bool) {
	switch site {
	case models.SiteAmazon:
		return AmazonRules, true
	case models.SiteWalmart:
		return WalmartRules, true
	}
	return Rules{}, false
}

// MatchesHost reports whether host is one of the rules' domains or a
// subdomain of one.
func (r Rules) MatchesHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, domain := range r.Domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// SiteForHost returns the retailer whose domains include host.
func SiteForHost(host string) (models.Site, bool) {
	for _, rules := range []Rules{AmazonRules, WalmartRules} {
		if rules.MatchesHost(host) {
			return rules.Site, true
		}
	}
	return "", false
}
