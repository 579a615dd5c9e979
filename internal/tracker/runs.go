package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-tracker/internal/models"
)

var (
	ErrRunInProgress = errors.New("a tracking run is already in progress")
	ErrRunNotFound   = errors.New("run not found")
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

type Run struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Products    int        `json:"products"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
}

// ProductSource loads the product list for each run.
type ProductSource func() ([]models.ProductSpec, error)

// RunManager starts tracking runs in the background, one at a time, and
// keeps their status in memory.
type RunManager struct {
	tracker  *Tracker
	products ProductSource
	logger   *slog.Logger

	mu      sync.Mutex
	runs    map[string]*Run
	active  string
	wg      sync.WaitGroup
	baseCtx context.Context
}

// NewRunManager ties background runs to ctx; cancelling it stops active runs.
func NewRunManager(ctx context.Context, t *Tracker, products ProductSource, logger *slog.Logger) *RunManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunManager{
		tracker:  t,
		products: products,
		logger:   logger.With("component", "run_manager"),
		runs:     make(map[string]*Run),
		baseCtx:  ctx,
	}
}

// Start launches a new run unless one is already active.
func (m *RunManager) Start() (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return Run{}, ErrRunInProgress
	}

	products, err := m.products()
	if err != nil {
		return Run{}, err
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Products:  len(products),
		CreatedAt: time.Now(),
	}
	m.runs[run.ID] = run
	m.active = run.ID

	m.wg.Add(1)
	go m.execute(run.ID, products)

	m.logger.Info("run started", "id", run.ID, "products", len(products))
	return *run, nil
}

func (m *RunManager) execute(id string, products []models.ProductSpec) {
	defer m.wg.Done()

	summary := m.tracker.Run(m.baseCtx, products)

	m.mu.Lock()
	defer m.mu.Unlock()

	run := m.runs[id]
	now := time.Now()
	run.CompletedAt = &now
	run.Summary = &summary
	run.Status = RunStatusCompleted
	if err := m.baseCtx.Err(); err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	}
	m.active = ""

	m.logger.Info("run finished", "id", id, "status", run.Status)
}

func (m *RunManager) Get(id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

// List returns runs newest first.
func (m *RunManager) List() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Wait blocks until every started run has finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}
