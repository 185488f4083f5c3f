package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/usecase"
)

type MockStatusService struct {
	mock.Mock
}

func (m *MockStatusService) GetStatus(ctx context.Context, platform, sourceID string) (*entity.ItemStatus, error) {
	args := m.Called(ctx, platform, sourceID)
	if s := args.Get(0); s != nil {
		return s.(*entity.ItemStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestRouter(t *testing.T, status usecase.StatusService, run usecase.RunFunc) (http.Handler, *usecase.RunTracker) {
	logger := zaptest.NewLogger(t)
	tracker := usecase.NewRunTracker(context.Background(), []string{"news"}, run, logger)
	h := NewHandler(status, tracker, logger)

	r := chi.NewRouter()
	r.Get("/api/health", h.HandleHealthCheck)
	r.Get("/api/status", h.HandleGetItemStatus)
	r.Post("/api/crawl", h.HandleSubmitCrawl)
	r.Get("/api/runs/{source}", h.HandleGetRun)
	return r, tracker
}

func doneRun(ctx context.Context, source string) (*entity.RunReport, error) {
	return &entity.RunReport{
		Source:   source,
		RunID:    "r1",
		State:    entity.StateDone,
		Counters: entity.RunCounters{Total: 3, Processed: 1, Success: 1, Skipped: 2},
		Started:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Finished: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	}, nil
}

func TestHandleGetItemStatus(t *testing.T) {
	status := new(MockStatusService)
	itemURL := "https://news.example.edu/info/1.htm"
	status.On("GetStatus", mock.Anything, "news", itemURL).
		Return(&entity.ItemStatus{SourceID: itemURL, Platform: "news", Status: entity.ItemStatusStored, Title: "t"}, nil)
	status.On("GetStatus", mock.Anything, "news", "https://news.example.edu/missing").
		Return(&entity.ItemStatus{Status: entity.ItemStatusNotFound}, nil)

	r, _ := newTestRouter(t, status, doneRun)

	t.Run("stored", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?source=news&url="+itemURL, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "stored", body["status"])
		assert.Equal(t, "t", body["title"])
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?source=news&url=https://news.example.edu/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?source=news", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	status.AssertExpectations(t)
}

func TestHandleSubmitCrawl(t *testing.T) {
	release := make(chan struct{})
	r, tracker := newTestRouter(t, new(MockStatusService), func(ctx context.Context, source string) (*entity.RunReport, error) {
		<-release
		return doneRun(ctx, source)
	})

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/crawl", strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, post("not json").Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"source":"unknown"}`).Code)
	assert.Equal(t, http.StatusAccepted, post(`{"source":"news"}`).Code)
	assert.Equal(t, http.StatusConflict, post(`{"source":"news"}`).Code)

	close(release)
	tracker.Wait()
}

func TestHandleGetRun(t *testing.T) {
	r, tracker := newTestRouter(t, new(MockStatusService), doneRun)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/news", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, tracker.Start("news"))
	tracker.Wait()

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/news", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DONE", body["state"])
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["skipped"])
	assert.Equal(t, false, body["running"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t, new(MockStatusService), doneRun)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"news"`)
}
