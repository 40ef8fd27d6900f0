// Package dedup decides which candidates become drafts: exact URL and
// title matches, fuzzy title similarity, topic and freshness.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/deusflow/newsdesk/internal/news"
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDuplicateURL   Reason = "duplicate_url"
	ReasonDuplicateTitle Reason = "duplicate_title"
	ReasonSimilarTitle   Reason = "similar_title"
	ReasonOffTopic       Reason = "off_topic"
	ReasonStale          Reason = "stale"
)

// Verdict is the outcome of a check. Rejection is not an error.
type Verdict struct {
	Reason Reason
	Detail string
}

func (v Verdict) Admitted() bool { return v.Reason == ReasonNone }

var admit = Verdict{}

// Store is the read side of storage the filter needs.
type Store interface {
	ExistsURL(ctx context.Context, url string) (bool, error)
	ExistsNormalizedTitle(ctx context.Context, normalized string) (bool, error)
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)
}

type Options struct {
	FuzzyThreshold float64
	FuzzyWindow    time.Duration
	TopicKeywords  []string
	MaxAge         time.Duration
}

// Filter holds per-cycle state: titles loaded from storage at the start
// of the cycle plus everything admitted since.
type Filter struct {
	store   Store
	opts    Options
	matcher *ahocorasick.Matcher
	now     func() time.Time

	mu       sync.Mutex
	window   []string
	urls     map[string]struct{}
	admitted map[string]struct{}
}

func NewFilter(store Store, opts Options) *Filter {
	f := &Filter{
		store:    store,
		opts:     opts,
		now:      time.Now,
		urls:     make(map[string]struct{}),
		admitted: make(map[string]struct{}),
	}
	var keywords []string
	for _, k := range opts.TopicKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) > 0 {
		f.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return f
}

// BeginCycle resets in-cycle state and loads the fuzzy comparison window.
func (f *Filter) BeginCycle(ctx context.Context) error {
	titles, err := f.store.RecentTitles(ctx, f.now().Add(-f.opts.FuzzyWindow))
	if err != nil {
		return fmt.Errorf("load recent titles: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = titles
	f.urls = make(map[string]struct{})
	f.admitted = make(map[string]struct{})
	return nil
}

// CheckIdentity runs the cheap checks that need only the candidate:
// exact URL, exact normalized title, fuzzy title.
func (f *Filter) CheckIdentity(ctx context.Context, c news.Candidate) (Verdict, error) {
	normalized := news.NormalizeTitle(c.Title)

	f.mu.Lock()
	_, seenURL := f.urls[c.Link]
	_, seenTitle := f.admitted[normalized]
	f.mu.Unlock()
	if seenURL {
		return Verdict{Reason: ReasonDuplicateURL, Detail: c.Link}, nil
	}

	exists, err := f.store.ExistsURL(ctx, c.Link)
	if err != nil {
		return Verdict{}, fmt.Errorf("check url: %w", err)
	}
	if exists {
		return Verdict{Reason: ReasonDuplicateURL, Detail: c.Link}, nil
	}

	if seenTitle {
		return Verdict{Reason: ReasonDuplicateTitle, Detail: normalized}, nil
	}
	exists, err = f.store.ExistsNormalizedTitle(ctx, normalized)
	if err != nil {
		return Verdict{}, fmt.Errorf("check title: %w", err)
	}
	if exists {
		return Verdict{Reason: ReasonDuplicateTitle, Detail: normalized}, nil
	}

	if match, ratio := f.mostSimilar(normalized); ratio > f.opts.FuzzyThreshold {
		return Verdict{Reason: ReasonSimilarTitle, Detail: fmt.Sprintf("%.2f vs %q", ratio, match)}, nil
	}
	return admit, nil
}

func (f *Filter) mostSimilar(normalized string) (string, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	best, bestRatio := "", 0.0
	check := func(title string) {
		if r := Ratio(normalized, title); r > bestRatio {
			best, bestRatio = title, r
		}
	}
	for _, t := range f.window {
		check(t)
	}
	for t := range f.admitted {
		check(t)
	}
	return best, bestRatio
}

// CheckContent runs the checks that need the enriched article.
func (f *Filter) CheckContent(a news.Article) Verdict {
	if f.matcher != nil {
		text := strings.ToLower(a.Title + " " + a.Text)
		if len(f.matcher.MatchThreadSafe([]byte(text))) == 0 {
			return Verdict{Reason: ReasonOffTopic}
		}
	}
	if a.DateResolved && f.opts.MaxAge > 0 {
		if age := f.now().Sub(a.PublishedAt); age > f.opts.MaxAge {
			return Verdict{Reason: ReasonStale, Detail: age.Round(time.Minute).String()}
		}
	}
	return admit
}

// Admit records an accepted candidate so later candidates in the same
// cycle are compared against it.
func (f *Filter) Admit(c news.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[c.Link] = struct{}{}
	f.admitted[news.NormalizeTitle(c.Title)] = struct{}{}
}
