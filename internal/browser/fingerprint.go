package browser

import (
	"math/rand"
	"sync"
	"time"
)

type Viewport struct {
	Width  int
	Height int
}

// Fingerprint is the user agent and screen size presented to a site.
type Fingerprint struct {
	UserAgent string
	Viewport  Viewport
}

var DefaultUserAgents = []string{
	// Windows Chrome
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	// Windows Firefox
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:119.0) Gecko/20100101 Firefox/119.0",
	// Mac Chrome
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	// Mac Safari
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

var DefaultViewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

// NewRand returns a seeded generator that is safe for concurrent use. A zero
// seed uses the current time.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(&lockedSource{src: rand.NewSource(seed).(rand.Source64)})
}

// lockedSource serializes access to a math/rand source, which is not
// goroutine-safe on its own.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// Fingerprinter samples fingerprints uniformly, with replacement, from fixed pools.
type Fingerprinter struct {
	mu         sync.Mutex
	rng        *rand.Rand
	userAgents []string
	viewports  []Viewport
}

func NewFingerprinter(rng *rand.Rand) *Fingerprinter {
	return NewFingerprinterWithPools(rng, DefaultUserAgents, DefaultViewports)
}

// NewFingerprinterWithPools uses custom pools. Empty pools fall back to the defaults.
func NewFingerprinterWithPools(rng *rand.Rand, userAgents []string, viewports []Viewport) *Fingerprinter {
	if rng == nil {
		rng = NewRand(0)
	}
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	if len(viewports) == 0 {
		viewports = DefaultViewports
	}
	return &Fingerprinter{
		rng:        rng,
		userAgents: userAgents,
		viewports:  viewports,
	}
}

func (f *Fingerprinter) Random() Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Fingerprint{
		UserAgent: f.userAgents[f.rng.Intn(len(f.userAgents))],
		Viewport:  f.viewports[f.rng.Intn(len(f.viewports))],
	}
}
