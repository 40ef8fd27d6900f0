package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/ingest"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/rotation"
	"github.com/deusflow/newsdesk/internal/storage"
)

type stubIngester struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (s *stubIngester) Run(ctx context.Context) (ingest.Report, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return ingest.Report{CycleID: "test", Drafts: 2}, s.err
}

type stubPublisher struct {
	calls int
}

func (s *stubPublisher) RunCycle(ctx context.Context) (rotation.Result, error) {
	s.calls++
	return rotation.Result{Outcome: rotation.OutcomeIdle}, nil
}

// fakeStore overrides the calls the app makes directly.
type fakeStore struct {
	storage.Repository
	cutoff time.Time
	stats  map[string]int
}

func (f *fakeStore) Cleanup(_ context.Context, olderThan time.Time) (int64, error) {
	f.cutoff = olderThan
	return 3, nil
}

func (f *fakeStore) Stats(context.Context) (map[string]int, error) {
	return f.stats, nil
}

func newTestApp(ing ingester, pub cyclePublisher) (*App, *fakeStore) {
	store := &fakeStore{stats: map[string]int{"draft": 4, "published": 1}}
	return &App{
		cfg:       &config.Config{RetentionDays: 7, ScrapeInterval: 20 * time.Minute, PublishInterval: 15 * time.Minute},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:     store,
		ingest:    ing,
		publisher: pub,
		baseCtx:   context.Background(),
	}, store
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(&stubIngester{}, &stubPublisher{})
	router := a.Router()

	metrics.Global.SetLastRun()
	rec, body := do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	metrics.Global.SetError("boom")
	rec, body = do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", body["status"])
	metrics.Global.SetLastRun()
}

func TestStatsIncludesStoreCounts(t *testing.T) {
	a, _ := newTestApp(&stubIngester{}, &stubPublisher{})
	rec, body := do(t, a.Router(), http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	items, ok := body["items"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 4, items["draft"])
	assert.Contains(t, body, "metrics")
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newTestApp(&stubIngester{}, &stubPublisher{})
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsdesk_is_leader")
}

func TestTriggerRequiresLeadership(t *testing.T) {
	a, _ := newTestApp(&stubIngester{}, &stubPublisher{})
	rec, body := do(t, a.Router(), http.MethodPost, "/trigger/scrape")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not leader", body["status"])
}

func TestTriggerScrapeRejectsOverlap(t *testing.T) {
	ing := &stubIngester{started: make(chan struct{}, 1), release: make(chan struct{})}
	a, _ := newTestApp(ing, &stubPublisher{})
	a.leading.Store(true)
	router := a.Router()

	rec, _ := do(t, router, http.MethodPost, "/trigger/scrape")
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-ing.started

	rec, body := do(t, router, http.MethodGet, "/trigger/scrape")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrBusy.Error(), body["status"])

	_, err := a.RunIngest(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(ing.release)
	assert.Eventually(t, func() bool {
		if !a.ingestMu.TryLock() {
			return false
		}
		a.ingestMu.Unlock()
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestRunIngestRecordsFailure(t *testing.T) {
	a, _ := newTestApp(&stubIngester{err: errors.New("collect failed")}, &stubPublisher{})
	_, err := a.RunIngest(context.Background())
	require.Error(t, err)
	assert.False(t, metrics.Global.Healthy())
	metrics.Global.SetLastRun()
}

func TestRunPublish(t *testing.T) {
	pub := &stubPublisher{}
	a, _ := newTestApp(&stubIngester{}, pub)
	res, err := a.RunPublish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rotation.OutcomeIdle, res.Outcome)
	assert.Equal(t, 1, pub.calls)
}

func TestSweepUsesRetention(t *testing.T) {
	a, store := newTestApp(&stubIngester{}, &stubPublisher{})
	a.Sweep(context.Background())
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), store.cutoff, time.Minute)

	store.cutoff = time.Time{}
	a.cfg.RetentionDays = 0
	a.Sweep(context.Background())
	assert.True(t, store.cutoff.IsZero())
}

func TestSchedulerEntries(t *testing.T) {
	a, _ := newTestApp(&stubIngester{}, &stubPublisher{})
	c, err := a.newScheduler(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 3)
}
