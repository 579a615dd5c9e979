package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrSessionClosed     = errors.New("browser session closed")
)

// Page is the subset of page automation the scrapers depend on. Implementations
// exist for a live Playwright page and for static HTML.
type Page interface {
	// Navigate loads url and returns the HTTP status of the main response,
	// or zero when no response was observed.
	Navigate(ctx context.Context, url string, timeout time.Duration) (int, error)
	// FindFirst returns the first element matching selector, or nil when absent.
	FindFirst(selector string) (Element, error)
	CurrentURL() string
	Content() (string, error)
}

// Element is a handle to a located element.
type Element interface {
	Text() (string, error)
}

// Evaluator runs JavaScript in the page.
type Evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// NetworkIdler waits until the page stops issuing network requests.
type NetworkIdler interface {
	WaitForNetworkIdle(timeout time.Duration) bool
}
