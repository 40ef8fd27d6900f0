// Package ingest runs one ingestion cycle: collect candidates, filter,
// enrich, score and persist the best as drafts.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/dedup"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/sources"
)

type Collector interface {
	Collect(ctx context.Context, srcs []config.Source) sources.Result
}

type Enricher interface {
	Enrich(ctx context.Context, c news.Candidate) (news.Article, error)
}

type DraftStore interface {
	InsertDraft(ctx context.Context, item news.Item) (bool, error)
}

type Options struct {
	MaxEnrich   int // enrichments per cycle
	MaxDrafts   int // drafts persisted per cycle
	Concurrency int // parallel page fetches
}

// Report summarizes one cycle.
type Report struct {
	CycleID        string
	Candidates     int
	FailedSources  []string
	Rejected       map[dedup.Reason]int
	Enriched       int
	EnrichFailures int
	Drafts         int
	Duration       time.Duration
}

type Job struct {
	sources   []config.Source
	collector Collector
	filter    *dedup.Filter
	enricher  Enricher
	store     DraftStore
	opts      Options
	log       *slog.Logger
}

func NewJob(srcs []config.Source, collector Collector, filter *dedup.Filter, enricher Enricher, store DraftStore, opts Options, log *slog.Logger) *Job {
	if opts.MaxEnrich <= 0 {
		opts.MaxEnrich = 30
	}
	if opts.MaxDrafts <= 0 {
		opts.MaxDrafts = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Job{
		sources:   srcs,
		collector: collector,
		filter:    filter,
		enricher:  enricher,
		store:     store,
		opts:      opts,
		log:       log,
	}
}

func (j *Job) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{CycleID: uuid.NewString(), Rejected: make(map[dedup.Reason]int)}
	log := j.log.With("cycle", rep.CycleID)

	if err := j.filter.BeginCycle(ctx); err != nil {
		return rep, fmt.Errorf("begin cycle: %w", err)
	}

	res := j.collector.Collect(ctx, j.sources)
	rep.Candidates = len(res.Candidates)
	rep.FailedSources = res.Failed
	for name, n := range res.PerSource {
		metrics.Global.AddCandidates(name, n)
	}
	log.Info("candidates collected", "count", rep.Candidates, "failed_sources", len(res.Failed))

	selected := j.screen(ctx, res.Candidates, &rep, log)
	articles := j.enrich(ctx, selected, &rep, log)

	var admitted []news.Article
	for _, a := range articles {
		if v := j.filter.CheckContent(a); !v.Admitted() {
			j.reject(&rep, v, a.Link, log)
			continue
		}
		a.Score = news.Score(a.Title, a.Text)
		admitted = append(admitted, a)
	}

	for _, a := range news.TopByScore(admitted, j.opts.MaxDrafts) {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		inserted, err := j.store.InsertDraft(ctx, a.Draft())
		if err != nil {
			log.Error("failed to save draft", "url", a.Link, "error", err)
			continue
		}
		if inserted {
			rep.Drafts++
			metrics.Global.IncrementDraftsCreated()
			log.Debug("draft saved", "title", a.Title, "score", a.Score, "language", a.Language)
		}
	}

	rep.Duration = time.Since(start)
	log.Info("ingestion finished",
		"candidates", rep.Candidates,
		"enriched", rep.Enriched,
		"drafts", rep.Drafts,
		"duration", rep.Duration.Round(time.Millisecond))
	return rep, nil
}

// screen applies the identity checks and keeps at most MaxEnrich
// candidates. A storage error skips the candidate.
func (j *Job) screen(ctx context.Context, cands []news.Candidate, rep *Report, log *slog.Logger) []news.Candidate {
	var out []news.Candidate
	for _, c := range cands {
		if len(out) >= j.opts.MaxEnrich || ctx.Err() != nil {
			break
		}
		v, err := j.filter.CheckIdentity(ctx, c)
		if err != nil {
			log.Warn("identity check failed, skipping", "url", c.Link, "error", err)
			continue
		}
		if !v.Admitted() {
			j.reject(rep, v, c.Link, log)
			continue
		}
		j.filter.Admit(c)
		out = append(out, c)
	}
	return out
}

func (j *Job) enrich(ctx context.Context, cands []news.Candidate, rep *Report, log *slog.Logger) []news.Article {
	articles := make([]news.Article, len(cands))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Concurrency)
	for i, c := range cands {
		g.Go(func() error {
			a, err := j.enricher.Enrich(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.EnrichFailures++
				log.Warn("enrichment degraded", "url", c.Link, "error", err)
			}
			rep.Enriched++
			articles[i] = a
			return nil
		})
	}
	_ = g.Wait()
	return articles
}

func (j *Job) reject(rep *Report, v dedup.Verdict, link string, log *slog.Logger) {
	rep.Rejected[v.Reason]++
	metrics.Global.IncrementRejected(string(v.Reason))
	log.Debug("candidate rejected", "reason", v.Reason, "detail", v.Detail, "url", link)
}
