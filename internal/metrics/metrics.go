// Package metrics exposes Prometheus collectors and an in-process health
// snapshot for the /health and /stats endpoints.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "candidates_total",
			Help:      "Candidates returned by source adapters",
		},
		[]string{"source"},
	)

	AdmissionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "admission_rejections_total",
			Help:      "Candidates dropped by the admission filter",
		},
		[]string{"reason"},
	)

	DraftsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "drafts_created_total",
			Help:      "Drafts persisted by ingestion",
		},
	)

	PublicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "publications_total",
			Help:      "Publication cycle results",
		},
		[]string{"language", "outcome"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdesk",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	IsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "newsdesk",
			Name:      "is_leader",
			Help:      "1 when this replica runs the scheduled jobs",
		},
	)
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CandidatesSeen      int64
	DuplicatesFiltered  int64
	DraftsCreated       int64
	PostsPublished      int64
	PublicationFailures int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddCandidates(source string, n int) {
	CandidatesTotal.WithLabelValues(source).Add(float64(n))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesSeen += int64(n)
}

func (m *Metrics) IncrementRejected(reason string) {
	AdmissionRejectionsTotal.WithLabelValues(reason).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementDraftsCreated() {
	DraftsCreatedTotal.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DraftsCreated++
}

// RecordPublication counts one publication cycle that touched a draft.
func (m *Metrics) RecordPublication(language, outcome string) {
	PublicationsTotal.WithLabelValues(language, outcome).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	switch outcome {
	case "published":
		m.PostsPublished++
	case "error":
		m.PublicationFailures++
	}
}

func (m *Metrics) RecordProcessingTime(job string, duration time.Duration) {
	CycleDuration.WithLabelValues(job).Observe(duration.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
}

func (m *Metrics) SetLeader(leader bool) {
	if leader {
		IsLeader.Set(1)
	} else {
		IsLeader.Set(0)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"candidates_seen":            m.CandidatesSeen,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"drafts_created":             m.DraftsCreated,
		"posts_published":            m.PostsPublished,
		"publication_failures":       m.PublicationFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
