package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage serves a fixed HTML document through the Page interface. It backs
// selector checks against saved pages and the scraper tests.
type HTMLPage struct {
	html   string
	doc    *goquery.Document
	url    string
	status int

	// RedirectURL, when set, becomes the current URL after Navigate.
	RedirectURL string
	// NavigateErr is returned from Navigate when set.
	NavigateErr error
	// ContentErr is returned from Content when set.
	ContentErr error

	Navigations []string
}

func NewHTMLPage(html string) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &HTMLPage{
		html:   html,
		doc:    doc,
		status: http.StatusOK,
	}, nil
}

// WithStatus sets the HTTP status reported by Navigate.
func (p *HTMLPage) WithStatus(status int) *HTMLPage {
	p.status = status
	return p
}

func (p *HTMLPage) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.Navigations = append(p.Navigations, url)
	if p.NavigateErr != nil {
		return 0, p.NavigateErr
	}
	p.url = url
	if p.RedirectURL != "" {
		p.url = p.RedirectURL
	}
	return p.status, nil
}

func (p *HTMLPage) FindFirst(selector string) (Element, error) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &selectionElement{sel: sel}, nil
}

func (p *HTMLPage) CurrentURL() string {
	return p.url
}

func (p *HTMLPage) Content() (string, error) {
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	return p.html, nil
}

type selectionElement struct {
	sel *goquery.Selection
}

func (e *selectionElement) Text() (string, error) {
	return e.sel.Text(), nil
}
