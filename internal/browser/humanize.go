package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// HumanScroll scrolls to a random point between 20% and 80% of the page
// height and pauses briefly, the way a reader skims a product page.
func HumanScroll(ctx context.Context, ev Evaluator, rng *rand.Rand) error {
	raw, err := ev.Evaluate(`() => document.body.scrollHeight`)
	if err != nil {
		return fmt.Errorf("failed to read page height: %w", err)
	}

	height, ok := toInt(raw)
	if !ok || height <= 0 {
		return nil
	}

	low := height * 2 / 10
	high := height * 8 / 10
	position := low
	if high > low {
		position = low + rng.Intn(high-low)
	}

	if _, err := ev.Evaluate(fmt.Sprintf(`() => window.scrollTo({top: %d, behavior: "smooth"})`, position)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}

	pause := 500*time.Millisecond + time.Duration(rng.Int63n(int64(time.Second)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pause):
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
