package sources

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/deusflow/newsdesk/internal/browser"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/news"
)

type CollectorOptions struct {
	BatchSize        int
	RequestDelay     time.Duration
	BatchPause       time.Duration
	CredentialMaxAge time.Duration
}

// Collector runs every source once per cycle. Static and feed sources run
// one after another. Dynamic sources are grouped by site and run in batches
// that share a single credential bundle.
type Collector struct {
	static   Fetcher
	feed     Fetcher
	dynamic  *DynamicAdapter
	acquirer browser.Acquirer
	opts     CollectorOptions
	log      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Result is what one collection pass produced.
type Result struct {
	Candidates []news.Candidate
	PerSource  map[string]int
	Failed     []string
}

func NewCollector(static, feed Fetcher, dynamic *DynamicAdapter, acquirer browser.Acquirer, opts CollectorOptions, log *slog.Logger) *Collector {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	return &Collector{
		static:   static,
		feed:     feed,
		dynamic:  dynamic,
		acquirer: acquirer,
		opts:     opts,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Collect never fails as a whole: a broken source is logged and skipped.
// Cancellation stops the pass and returns what was gathered so far.
func (c *Collector) Collect(ctx context.Context, srcs []config.Source) Result {
	res := Result{PerSource: make(map[string]int)}

	var dynamic []config.Source
	for _, src := range srcs {
		if ctx.Err() != nil {
			return res
		}
		var f Fetcher
		switch src.Kind {
		case config.KindStatic:
			f = c.static
		case config.KindFeed:
			f = c.feed
		case config.KindDynamic:
			dynamic = append(dynamic, src)
			continue
		default:
			c.log.Warn("unknown source kind", "source", src.Name, "kind", src.Kind)
			continue
		}
		_ = c.run(ctx, &res, src, func() ([]news.Candidate, error) { return f.FetchCandidates(ctx, src) })
	}

	if len(dynamic) > 0 {
		c.collectDynamic(ctx, &res, dynamic)
	}

	c.log.Info("collection finished", "candidates", len(res.Candidates), "sources", len(srcs), "failed", len(res.Failed))
	return res
}

func (c *Collector) collectDynamic(ctx context.Context, res *Result, srcs []config.Source) {
	if c.dynamic == nil || c.acquirer == nil {
		c.log.Warn("dynamic sources configured without a browser", "count", len(srcs))
		for _, src := range srcs {
			res.Failed = append(res.Failed, src.Name)
		}
		return
	}

	for n, batch := range c.batches(srcs) {
		if n > 0 {
			if err := c.sleep(ctx, c.opts.BatchPause); err != nil {
				return
			}
		}

		bundle, err := c.acquirer.Acquire(ctx, browser.SeedFor(batch[0]))
		if err != nil {
			c.log.Warn("credential acquisition failed, skipping batch", "seed", batch[0].SeedURL, "sources", len(batch), "error", err)
			for _, src := range batch {
				res.Failed = append(res.Failed, src.Name)
			}
			continue
		}

		for i, src := range batch {
			if i > 0 {
				if err := c.sleep(ctx, c.opts.RequestDelay); err != nil {
					return
				}
			}
			if bundle.IsStale(c.now(), c.opts.CredentialMaxAge) {
				fresh, err := c.acquirer.Acquire(ctx, browser.SeedFor(src))
				if err != nil {
					c.log.Warn("credential refresh failed, skipping rest of batch", "source", src.Name, "error", err)
					for _, rest := range batch[i:] {
						res.Failed = append(res.Failed, rest.Name)
					}
					break
				}
				bundle = fresh
			}

			current := bundle
			err := c.run(ctx, res, src, func() ([]news.Candidate, error) {
				return c.dynamic.FetchWith(ctx, current, src)
			})
			if errors.Is(err, ErrCredentialsRejected) {
				// nil is stale, so the next source triggers a fresh capture.
				bundle = nil
			}
		}
	}
}

// batches groups dynamic sources by seed so a bundle is only ever replayed
// against the site it was captured from, then cuts each group to BatchSize.
func (c *Collector) batches(srcs []config.Source) [][]config.Source {
	type seedKey struct{ url, apiMatch string }
	var order []seedKey
	groups := make(map[seedKey][]config.Source)
	for _, src := range srcs {
		k := seedKey{src.SeedURL, src.APIMatch}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], src)
	}

	var out [][]config.Source
	for _, k := range order {
		group := groups[k]
		for start := 0; start < len(group); start += c.opts.BatchSize {
			out = append(out, group[start:min(start+c.opts.BatchSize, len(group))])
		}
	}
	return out
}

func (c *Collector) run(ctx context.Context, res *Result, src config.Source, fetch func() ([]news.Candidate, error)) error {
	started := c.now()
	items, err := fetch()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("source failed", "source", src.Name, "kind", src.Kind, "error", err)
		}
		res.Failed = append(res.Failed, src.Name)
		return err
	}
	res.PerSource[src.Name] += len(items)
	res.Candidates = append(res.Candidates, items...)
	c.log.Debug("source fetched", "source", src.Name, "count", len(items), "took", c.now().Sub(started))
	return nil
}
