package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/tracker"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Append(ctx context.Context, rec models.PriceRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStore) Latest(ctx context.Context) ([]models.PriceRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]models.PriceRecord)
	return records, args.Error(1)
}

func (m *MockStore) History(ctx context.Context, product string) ([]models.PriceRecord, error) {
	args := m.Called(ctx, product)
	records, _ := args.Get(0).([]models.PriceRecord)
	return records, args.Error(1)
}

func (m *MockStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Close() error {
	return nil
}

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) Check(ctx context.Context, site models.Site, url string) (*models.ExtractionResult, error) {
	args := m.Called(ctx, site, url)
	result, _ := args.Get(0).(*models.ExtractionResult)
	return result, args.Error(1)
}

type MockRuns struct {
	mock.Mock
}

func (m *MockRuns) Start() (tracker.Run, error) {
	args := m.Called()
	return args.Get(0).(tracker.Run), args.Error(1)
}

func (m *MockRuns) Get(id string) (tracker.Run, error) {
	args := m.Called(id)
	return args.Get(0).(tracker.Run), args.Error(1)
}

func (m *MockRuns) List() []tracker.Run {
	return m.Called().Get(0).([]tracker.Run)
}

type fakeOutbox struct {
	counts map[string]int64
	err    error
}

func (f fakeOutbox) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

type testServer struct {
	store   *MockStore
	checker *MockChecker
	runs    *MockRuns
	handler http.Handler
}

func newTestServer(t *testing.T, outbox OutboxStats, registry *prometheus.Registry) *testServer {
	t.Helper()
	s := &testServer{
		store:   &MockStore{},
		checker: &MockChecker{},
		runs:    &MockRuns{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(s.store, s.checker, s.runs, outbox, logger)
	s.handler = NewRouter(h, RouterOptions{Registry: registry})
	return s
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	t.Run("Without outbox", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		rec := s.do(http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("With outbox counts", func(t *testing.T) {
		s := newTestServer(t, fakeOutbox{counts: map[string]int64{"pending": 2}}, nil)
		rec := s.do(http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","outbox":{"pending":2}}`, rec.Body.String())
	})

	t.Run("Dead letters", func(t *testing.T) {
		s := newTestServer(t, fakeOutbox{counts: map[string]int64{"dead_letter": 101}}, nil)
		rec := s.do(http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"warning"`)
	})

	t.Run("Outbox error", func(t *testing.T) {
		s := newTestServer(t, fakeOutbox{err: errors.New("connection refused")}, nil)
		rec := s.do(http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestLatestPrices(t *testing.T) {
	s := newTestServer(t, nil, nil)
	records := []models.PriceRecord{
		{ProductName: "Echo Dot (5th Gen)", Price: 27.99, Site: models.SiteAmazon, Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	s.store.On("Latest", mock.Anything).Return(records, nil)

	rec := s.do(http.MethodGet, "/api/v1/prices/latest", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.PriceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Echo Dot (5th Gen)", got[0].ProductName)
	assert.Equal(t, 27.99, got[0].Price)
	s.store.AssertExpectations(t)
}

func TestLatestPricesError(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.store.On("Latest", mock.Anything).Return(nil, errors.New("disk full"))

	rec := s.do(http.MethodGet, "/api/v1/prices/latest", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to load latest prices", decodeError(t, rec))
}

func TestPriceHistory(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.store.On("History", mock.Anything, "Xbox Series X").Return([]models.PriceRecord{
		{ProductName: "Xbox Series X", Price: 499},
		{ProductName: "Xbox Series X", Price: 479},
	}, nil)

	rec := s.do(http.MethodGet, "/api/v1/prices/history?product=Xbox+Series+X", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.PriceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	s.store.AssertExpectations(t)
}

func TestPriceHistoryRequiresProduct(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/api/v1/prices/history", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "product is required", decodeError(t, rec))
	s.store.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}

func TestCheckPrice(t *testing.T) {
	price := 27.99
	result := &models.ExtractionResult{
		Success:  true,
		Price:    &price,
		Currency: "$",
		Title:    "Echo Dot",
		URL:      "https://www.amazon.com/dp/B09B8V1LZ3",
		Site:     models.SiteAmazon,
	}

	t.Run("Explicit site", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.checker.On("Check", mock.Anything, models.SiteAmazon, result.URL).Return(result, nil)

		rec := s.do(http.MethodPost, "/api/v1/check", `{"url":"https://www.amazon.com/dp/B09B8V1LZ3","site":"amazon"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.ExtractionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Success)
		assert.Equal(t, 27.99, got.PriceValue())
		s.checker.AssertExpectations(t)
	})

	t.Run("Site inferred from URL", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		url := "https://www.walmart.com/ip/Xbox-Series-X-Console/443574645"
		failed := models.NewFailure(models.SiteWalmart, url, "Blocked")
		s.checker.On("Check", mock.Anything, models.SiteWalmart, url).Return(failed, nil)

		rec := s.do(http.MethodPost, "/api/v1/check", `{"url":"`+url+`"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"Blocked"`)
		s.checker.AssertExpectations(t)
	})
}

func TestCheckPriceBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "Invalid JSON", body: `{"url":`, message: "invalid request body"},
		{name: "Missing URL", body: `{"site":"Amazon"}`, message: "url is required"},
		{name: "Unknown retailer", body: `{"url":"https://www.example.com/item/1"}`, message: errUnknownRetailer.Error()},
		{name: "File scheme", body: `{"url":"file:///etc/passwd","site":"Amazon"}`, message: errInvalidURL.Error()},
		{name: "Browser scheme", body: `{"url":"chrome://settings","site":"Amazon"}`, message: errInvalidURL.Error()},
		{name: "Relative URL", body: `{"url":"/dp/B09B8V1LZ3","site":"Amazon"}`, message: errInvalidURL.Error()},
		{name: "Internal host with site", body: `{"url":"http://169.254.169.254/latest/meta-data","site":"Amazon"}`, message: errUnknownRetailer.Error()},
		{name: "Localhost with site", body: `{"url":"http://localhost:8080/health","site":"Walmart"}`, message: errUnknownRetailer.Error()},
		{name: "Lookalike host", body: `{"url":"https://www.amazon.com.attacker.example/dp/X"}`, message: errUnknownRetailer.Error()},
		{name: "Userinfo trick", body: `{"url":"https://www.amazon.com@10.0.0.1/dp/X"}`, message: errUnknownRetailer.Error()},
		{name: "Site mismatch", body: `{"url":"https://www.walmart.com/ip/443574645","site":"Amazon"}`, message: errSiteMismatch.Error()},
		{name: "Unsupported site", body: `{"url":"https://www.target.com/p/1","site":"Target"}`, message: errUnknownRetailer.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)

			rec := s.do(http.MethodPost, "/api/v1/check", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
			s.checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCheckPriceErrors(t *testing.T) {
	t.Run("Unsupported site", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.checker.On("Check", mock.Anything, models.SiteWalmart, "https://www.walmart.ca/ip/1").
			Return(nil, tracker.ErrUnsupportedSite)

		rec := s.do(http.MethodPost, "/api/v1/check", `{"url":"https://www.walmart.ca/ip/1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Launch failure", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.checker.On("Check", mock.Anything, models.SiteAmazon, "https://www.amazon.com/dp/X").
			Return(nil, errors.New("failed to start scraper: no browser"))

		rec := s.do(http.MethodPost, "/api/v1/check", `{"url":"https://www.amazon.com/dp/X"}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestRuns(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := tracker.Run{ID: "run-1", Status: tracker.RunStatusRunning, Products: 5, CreatedAt: created}

	t.Run("Start", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("Start").Return(run, nil)

		rec := s.do(http.MethodPost, "/api/v1/runs", "")

		require.Equal(t, http.StatusAccepted, rec.Code)
		var got tracker.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.ID)
		assert.Equal(t, 5, got.Products)
	})

	t.Run("Start while running", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("Start").Return(tracker.Run{}, tracker.ErrRunInProgress)

		rec := s.do(http.MethodPost, "/api/v1/runs", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Start failure", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("Start").Return(tracker.Run{}, errors.New("failed to read products file"))

		rec := s.do(http.MethodPost, "/api/v1/runs", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Get", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("Get", "run-1").Return(run, nil)

		rec := s.do(http.MethodGet, "/api/v1/runs/run-1", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"run-1"`)
	})

	t.Run("Get unknown", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("Get", "missing").Return(tracker.Run{}, tracker.ErrRunNotFound)

		rec := s.do(http.MethodGet, "/api/v1/runs/missing", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("List", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		s.runs.On("List").Return([]tracker.Run{run})

		rec := s.do(http.MethodGet, "/api/v1/runs", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var got []tracker.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got, 1)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_checks_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	s := newTestServer(t, nil, registry)
	rec := s.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "price_checks_total 1")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckTarget(t *testing.T) {
	site, err := checkTarget("https://www.Amazon.com/dp/B0863TXGM3", "")
	assert.NoError(t, err)
	assert.Equal(t, models.SiteAmazon, site)

	site, err = checkTarget("HTTP://www.walmart.com:443/ip/326316961", models.SiteWalmart)
	assert.NoError(t, err)
	assert.Equal(t, models.SiteWalmart, site)

	_, err = checkTarget("https://www.bestbuy.com/site/1", "")
	assert.ErrorIs(t, err, errUnknownRetailer)

	_, err = checkTarget("://bad", "")
	assert.ErrorIs(t, err, errInvalidURL)
}
