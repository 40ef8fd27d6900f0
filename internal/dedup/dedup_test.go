package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdesk/internal/news"
)

type memStore struct {
	urls   map[string]bool
	titles map[string]bool
	recent []string
	err    error
}

func (m *memStore) ExistsURL(_ context.Context, url string) (bool, error) {
	return m.urls[url], m.err
}

func (m *memStore) ExistsNormalizedTitle(_ context.Context, n string) (bool, error) {
	return m.titles[n], m.err
}

func (m *memStore) RecentTitles(_ context.Context, _ time.Time) ([]string, error) {
	return m.recent, m.err
}

func TestRatio(t *testing.T) {
	assert.InDelta(t, 26.0/35.0, Ratio("Tenge falls 3%", "Tenge falls 3 percent"), 0.0001)
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 1.0, Ratio("Тенге  УКРЕПИЛСЯ", "тенге укрепился"))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.Less(t, Ratio("Бюджет на 2025 год утверждён", "В Алматы открылся новый парк"), 0.65)
}

func newFilter(store Store, opts Options) *Filter {
	if opts.FuzzyThreshold == 0 {
		opts.FuzzyThreshold = 0.65
	}
	if opts.FuzzyWindow == 0 {
		opts.FuzzyWindow = 72 * time.Hour
	}
	return NewFilter(store, opts)
}

func TestCheckIdentity_Order(t *testing.T) {
	store := &memStore{
		urls:   map[string]bool{"https://a.kz/1": true},
		titles: map[string]bool{"тенге укрепился": true},
		recent: []string{"tenge falls 3%"},
	}
	f := newFilter(store, Options{})
	require.NoError(t, f.BeginCycle(context.Background()))
	ctx := context.Background()

	tests := []struct {
		name string
		cand news.Candidate
		want Reason
	}{
		{"url wins over title", news.Candidate{Title: "Тенге укрепился", Link: "https://a.kz/1"}, ReasonDuplicateURL},
		{"exact normalized title", news.Candidate{Title: "  ТЕНГЕ  укрепился ", Link: "https://b.kz/2"}, ReasonDuplicateTitle},
		{"fuzzy", news.Candidate{Title: "Tenge falls 3 percent", Link: "https://c.kz/3"}, ReasonSimilarTitle},
		{"fresh", news.Candidate{Title: "Нефть подорожала", Link: "https://d.kz/4"}, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.CheckIdentity(ctx, tt.cand)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Reason)
		})
	}
}

func TestFuzzyDuplicateIdempotence(t *testing.T) {
	f := newFilter(&memStore{}, Options{})
	ctx := context.Background()
	require.NoError(t, f.BeginCycle(ctx))

	first := news.Candidate{Title: "Tenge falls 3%", Link: "https://a.kz/1"}
	second := news.Candidate{Title: "Tenge falls 3 percent", Link: "https://b.kz/2"}

	v, err := f.CheckIdentity(ctx, first)
	require.NoError(t, err)
	require.True(t, v.Admitted())
	f.Admit(first)

	v, err = f.CheckIdentity(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, ReasonSimilarTitle, v.Reason)

	v, err = f.CheckIdentity(ctx, news.Candidate{Title: "Other", Link: first.Link})
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicateURL, v.Reason, "same url within a cycle")
}

func TestBeginCycleResetsState(t *testing.T) {
	f := newFilter(&memStore{}, Options{})
	ctx := context.Background()
	c := news.Candidate{Title: "Tenge falls 3%", Link: "https://a.kz/1"}

	require.NoError(t, f.BeginCycle(ctx))
	f.Admit(c)
	require.NoError(t, f.BeginCycle(ctx))

	v, err := f.CheckIdentity(ctx, c)
	require.NoError(t, err)
	assert.True(t, v.Admitted())
}

func TestCheckIdentity_StoreError(t *testing.T) {
	f := newFilter(&memStore{err: errors.New("db down")}, Options{})
	_, err := f.CheckIdentity(context.Background(), news.Candidate{Title: "x", Link: "https://x.kz"})
	assert.Error(t, err)
	assert.Error(t, f.BeginCycle(context.Background()))
}

func TestCheckContent_Freshness(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	f := newFilter(&memStore{}, Options{MaxAge: 48 * time.Hour})
	f.now = func() time.Time { return now }

	old := news.Article{Candidate: news.Candidate{Title: "x"}, PublishedAt: now.AddDate(0, 0, -5), DateResolved: true}
	assert.Equal(t, ReasonStale, f.CheckContent(old).Reason)

	recent := news.Article{Candidate: news.Candidate{Title: "x"}, PublishedAt: now.Add(-time.Hour), DateResolved: true}
	assert.True(t, f.CheckContent(recent).Admitted())

	unresolved := news.Article{Candidate: news.Candidate{Title: "x"}, PublishedAt: now.AddDate(0, 0, -5)}
	assert.True(t, f.CheckContent(unresolved).Admitted(), "unresolved dates pass")
}

func TestCheckContent_Topic(t *testing.T) {
	f := newFilter(&memStore{}, Options{TopicKeywords: []string{"Банк", "тенге", " "}})

	on := news.Article{Candidate: news.Candidate{Title: "Нацбанк повысил ставку"}, Text: "..."}
	assert.True(t, f.CheckContent(on).Admitted())

	inText := news.Article{Candidate: news.Candidate{Title: "Курс"}, Text: "Тенге ослаб к доллару"}
	assert.True(t, f.CheckContent(inText).Admitted())

	off := news.Article{Candidate: news.Candidate{Title: "Футбол"}, Text: "Счёт 2:1"}
	assert.Equal(t, ReasonOffTopic, f.CheckContent(off).Reason)

	noTopics := newFilter(&memStore{}, Options{})
	assert.True(t, noTopics.CheckContent(off).Admitted())
}
