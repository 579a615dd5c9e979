package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/models"
)

var (
	ErrBlocked        = errors.New("Blocked")
	ErrPriceNotFound  = errors.New("Price not found")
	ErrNotStarted     = errors.New("scraper not started")
	ErrAlreadyStarted = errors.New("scraper already started")
)

// Scraper extracts prices for a single retailer. GetPrice never returns an
// error; failures are encoded in the result.
type Scraper interface {
	Site() models.Site
	Start(ctx context.Context) error
	GetPrice(ctx context.Context, url string) *models.ExtractionResult
	Close() error
}

// Session is the browser state a scraper owns between Start and Close.
type Session interface {
	Page() browser.Page
	Close() error
}

// Launcher opens a new Session.
type Launcher func(ctx context.Context) (Session, error)

// BrowserLauncher launches Playwright sessions with opts.
func BrowserLauncher(opts *browser.Options) Launcher {
	return func(ctx context.Context) (Session, error) {
		s, err := browser.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// StaticLauncher serves an already-loaded page, such as a saved HTML
// snapshot, instead of launching a browser.
func StaticLauncher(page browser.Page) Launcher {
	return func(ctx context.Context) (Session, error) {
		return staticSession{page: page}, nil
	}
}

type staticSession struct {
	page browser.Page
}

func (s staticSession) Page() browser.Page { return s.page }

func (s staticSession) Close() error { return nil }

// Cause maps a failed result back to the sentinel it was built from, or nil.
func Cause(r *models.ExtractionResult) error {
	if r == nil || r.Success {
		return nil
	}
	switch r.Error {
	case ErrBlocked.Error():
		return ErrBlocked
	case ErrPriceNotFound.Error():
		return ErrPriceNotFound
	case ErrNotStarted.Error():
		return ErrNotStarted
	}
	return errors.New(r.Error)
}
