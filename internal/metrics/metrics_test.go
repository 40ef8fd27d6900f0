package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotAndCollectors(t *testing.T) {
	m := &Metrics{IsHealthy: true}

	before := testutil.ToFloat64(PublicationsTotal.WithLabelValues("kz", "published"))
	m.RecordPublication("kz", "published")
	m.RecordPublication("ru", "error")
	m.RecordPublication("ru", "skipped")
	assert.Equal(t, before+1, testutil.ToFloat64(PublicationsTotal.WithLabelValues("kz", "published")))

	m.AddCandidates("Kapital.kz", 4)
	m.IncrementRejected("duplicate_url")
	m.IncrementDraftsCreated()
	m.RecordProcessingTime("ingest", 2*time.Second)
	m.RecordProcessingTime("ingest", 4*time.Second)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats["posts_published"])
	assert.Equal(t, int64(1), stats["publication_failures"])
	assert.Equal(t, int64(4), stats["candidates_seen"])
	assert.Equal(t, int64(3000), stats["average_processing_time_ms"])

	m.SetError("boom")
	assert.False(t, m.Healthy())
	m.SetLastRun()
	assert.True(t, m.Healthy())
}

func TestSetLeader(t *testing.T) {
	Global.SetLeader(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(IsLeader))
	Global.SetLeader(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(IsLeader))
}
