package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/price-tracker/internal/models"
)

func TestSiteForHost(t *testing.T) {
	tests := []struct {
		host string
		site models.Site
		ok   bool
	}{
		{host: "www.amazon.com", site: models.SiteAmazon, ok: true},
		{host: "amazon.co.uk", site: models.SiteAmazon, ok: true},
		{host: "WWW.AMAZON.DE.", site: models.SiteAmazon, ok: true},
		{host: "www.walmart.com", site: models.SiteWalmart, ok: true},
		{host: "amazon.com.evil.example", ok: false},
		{host: "notamazon.com", ok: false},
		{host: "walmart.internal", ok: false},
		{host: "localhost", ok: false},
		{host: "169.254.169.254", ok: false},
		{host: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			site, ok := SiteForHost(tt.host)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.site, site)
		})
	}
}

func TestRulesForCoversDomains(t *testing.T) {
	for _, site := range []models.Site{models.SiteAmazon, models.SiteWalmart} {
		rules, ok := RulesFor(site)
		assert.True(t, ok)
		assert.NotEmpty(t, rules.Domains, "site %s", site)
	}

	_, ok := RulesFor(models.Site("Target"))
	assert.False(t, ok)
}
