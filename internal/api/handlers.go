package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/scraper"
	"github.com/maltedev/price-tracker/internal/storage"
	"github.com/maltedev/price-tracker/internal/tracker"
)

// PriceChecker performs a single on-demand price check.
type PriceChecker interface {
	Check(ctx context.Context, site models.Site, url string) (*models.ExtractionResult, error)
}

// RunController starts and reports background tracking runs.
type RunController interface {
	Start() (tracker.Run, error)
	Get(id string) (tracker.Run, error)
	List() []tracker.Run
}

// OutboxStats reports queued alert events by status.
type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	store   storage.HistoryStore
	checker PriceChecker
	runs    RunController
	outbox  OutboxStats
	logger  *slog.Logger
}

// NewHandlers wires the HTTP handlers. outbox may be nil when alerts are not
// queued in Postgres.
func NewHandlers(store storage.HistoryStore, checker PriceChecker, runs RunController, outbox OutboxStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:   store,
		checker: checker,
		runs:    runs,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// Health reports service status and, when available, outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}

	status := http.StatusOK
	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to count outbox events", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		} else {
			health["outbox"] = counts
			if counts["dead_letter"] > 100 {
				health["status"] = "warning"
				health["message"] = "High number of dead letter events"
			}
		}
	}

	h.respondJSON(w, status, health)
}

// LatestPrices returns the most recent record per product.
func (h *Handlers) LatestPrices(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Latest(r.Context())
	if err != nil {
		h.logger.Error("failed to load latest prices", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load latest prices")
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

// PriceHistory returns every record for one product, oldest first.
func (h *Handlers) PriceHistory(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		h.respondError(w, http.StatusBadRequest, "product is required")
		return
	}

	records, err := h.store.History(r.Context(), product)
	if err != nil {
		h.logger.Error("failed to load price history", "error", err, "product", product)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

// CheckRequest asks for an immediate price check of one URL.
type CheckRequest struct {
	URL  string `json:"url"`
	Site string `json:"site"`
}

// CheckPrice runs an on-demand check. Extraction failures are reported in the
// result body with status 200.
func (h *Handlers) CheckPrice(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	site, err := checkTarget(req.URL, models.ParseSite(req.Site))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checker.Check(r.Context(), site, req.URL)
	if err != nil {
		if errors.Is(err, tracker.ErrUnsupportedSite) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to check price", "error", err, "site", site, "url", req.URL)
		h.respondError(w, http.StatusBadGateway, "failed to start scraper")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// StartRun launches a tracking run over the configured products.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Start()
	if err != nil {
		if errors.Is(err, tracker.ErrRunInProgress) {
			h.respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, run)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.List())
}

var (
	errInvalidURL      = errors.New("url must be an absolute http or https URL")
	errUnknownRetailer = errors.New("url host is not a supported retailer")
	errSiteMismatch    = errors.New("url host does not match site")
)

// checkTarget only lets retailer product URLs reach the browser. The site
// is taken from the host and must agree with an explicit site.
func checkTarget(raw string, site models.Site) (models.Site, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errInvalidURL
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return "", errInvalidURL
	}
	if u.Hostname() == "" {
		return "", errInvalidURL
	}

	hostSite, ok := scraper.SiteForHost(u.Hostname())
	if !ok {
		return "", errUnknownRetailer
	}
	if site != "" && site != hostSite {
		return "", errSiteMismatch
	}
	return hostSite, nil
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
