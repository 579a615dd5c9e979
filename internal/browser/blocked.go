package browser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultBlockPhrases are matched against the visible page text.
var DefaultBlockPhrases = []string{
	"verify you are human",
	"are you a robot",
	"robot check",
	"captcha",
	"access denied",
	"unusual traffic",
	"please confirm",
	"security check",
	"automated access",
	"too many requests",
	"403 forbidden",
	"ddos",
	"bot detected",
}

// DefaultBlockURLFragments are matched against the current URL.
var DefaultBlockURLFragments = []string{
	"captcha",
	"robot",
	"verify",
	"denied",
	"blocked",
}

// BlockDetector decides whether a page is a bot challenge instead of content.
// When FailClosed is false an unreadable page counts as not blocked.
type BlockDetector struct {
	Phrases      []string
	URLFragments []string
	FailClosed   bool
	logger       *slog.Logger
}

func NewBlockDetector(logger *slog.Logger) *BlockDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockDetector{
		Phrases:      DefaultBlockPhrases,
		URLFragments: DefaultBlockURLFragments,
		logger:       logger.With("component", "block_detector"),
	}
}

// Match returns the first indicator found in the content or URL.
func (d *BlockDetector) Match(content, currentURL string) (string, bool) {
	text := VisibleText(content)
	for _, phrase := range d.Phrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return phrase, true
		}
	}

	lowerURL := strings.ToLower(currentURL)
	for _, fragment := range d.URLFragments {
		if fragment != "" && strings.Contains(lowerURL, strings.ToLower(fragment)) {
			return fragment, true
		}
	}

	return "", false
}

func (d *BlockDetector) IsBlocked(content, currentURL string) bool {
	indicator, blocked := d.Match(content, currentURL)
	if blocked {
		d.logger.Warn("block detected", "indicator", indicator, "url", currentURL)
	}
	return blocked
}

// Check reads the page and applies IsBlocked. Read failures follow the
// fail-open/fail-closed policy.
func (d *BlockDetector) Check(page Page) bool {
	content, err := page.Content()
	if err != nil {
		d.logger.Warn("failed to read page content", "error", err, "fail_closed", d.FailClosed)
		return d.FailClosed
	}
	return d.IsBlocked(content, page.CurrentURL())
}

// VisibleText returns the lowercased text of an HTML document without
// script and style bodies. Text nodes are joined by single spaces, so
// adjacent elements never run together. Non-HTML input is lowercased as-is.
func VisibleText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.ToLower(content)
	}
	doc.Find("script, style, noscript, template").Remove()

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.ToLower(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

var productContentIndicators = []string{
	"price",
	"product",
	"add to cart",
	"buy now",
	"item",
	"in stock",
}

// HasProductContent reports whether the page text looks like a product page.
func HasProductContent(content string) bool {
	text := VisibleText(content)
	for _, indicator := range productContentIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}
