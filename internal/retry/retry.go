package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/ratelimit"
)

// MaxRetriesMessage is the result error once every attempt failed.
const MaxRetriesMessage = "Max retries exceeded"

var ErrMaxRetries = errors.New(MaxRetriesMessage)

// Operation is one extraction attempt.
type Operation func(ctx context.Context) *models.ExtractionResult

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	Sleep      ratelimit.SleepFunc
	Logger     *slog.Logger
	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(attempt int, result *models.ExtractionResult)
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
	}
}

// Delay is the pause after failed attempt k (1-indexed). The schedule is
// linear in k.
func Delay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// Do runs op until it returns a successful result or MaxRetries attempts have
// been made. A panic inside op counts as a failed attempt. There is no pause
// after the final attempt.
func Do(ctx context.Context, op Operation, opts Options) *models.ExtractionResult {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var last *models.ExtractionResult

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		result, err := call(ctx, op)
		if err != nil {
			logger.Warn("attempt panicked", "attempt", attempt, "error", err)
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, result)
		}
		if result != nil {
			if result.Success {
				return result
			}
			last = result
			logger.Info("attempt failed", "attempt", attempt, "url", result.URL, "error", result.Error)
		}

		if attempt < opts.MaxRetries {
			if err := opts.Sleep(ctx, Delay(opts.BaseDelay, attempt)); err != nil {
				return failure(last, err.Error())
			}
		}
	}

	return failure(last, ErrMaxRetries.Error())
}

func call(ctx context.Context, op Operation) (result *models.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx), nil
}

func failure(last *models.ExtractionResult, msg string) *models.ExtractionResult {
	if last == nil {
		return models.NewFailure("", "", msg)
	}
	return models.NewFailure(last.Site, last.URL, msg)
}
