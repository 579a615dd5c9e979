package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/price-tracker/internal/browser"
)

const DefaultNavigationTimeout = 30 * time.Second

// StatusError reports a main response with status >= 400.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// Navigation error classes used as metric labels.
const (
	ClassTimeout    = "timeout"
	ClassHTTPStatus = "http_status"
	ClassCanceled   = "canceled"
	ClassNavigation = "navigation"
)

// Navigate loads url on page. It returns a *StatusError for responses with
// status >= 400 and the page error otherwise. A missing response is not an error.
func Navigate(ctx context.Context, page browser.Page, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}

	status, err := page.Navigate(ctx, url, timeout)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return &StatusError{Status: status}
	}
	return nil
}

// SafeNavigate is Navigate reduced to a success flag. Failures are logged, never returned.
func SafeNavigate(ctx context.Context, page browser.Page, url string, timeout time.Duration, logger *slog.Logger) bool {
	if err := Navigate(ctx, page, url, timeout); err != nil {
		if logger != nil {
			logger.Warn("navigation failed", "url", url, "class", Classify(err), "error", err)
		}
		return false
	}
	return true
}

// Classify maps a navigation error to its class.
func Classify(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return ClassHTTPStatus
	case errors.Is(err, browser.ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}
	return ClassNavigation
}
