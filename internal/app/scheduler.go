package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// newScheduler registers the recurring jobs. Overlapping runs of the same
// entry are skipped.
func (a *App) newScheduler(ctx context.Context) (*cron.Cron, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(a.log.Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLocation(a.cfg.Location()),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	entries := []struct {
		name string
		spec string
		fn   func()
	}{
		{"ingest", "@every " + a.cfg.ScrapeInterval.String(), func() { a.ingestJob(ctx) }},
		{"publish", "@every " + a.cfg.PublishInterval.String(), func() { a.publishJob(ctx) }},
		{"sweep", "@daily", func() { a.Sweep(ctx) }},
	}
	for _, e := range entries {
		if _, err := c.AddFunc(e.spec, e.fn); err != nil {
			return nil, fmt.Errorf("schedule %s (%s): %w", e.name, e.spec, err)
		}
		a.log.Info("job scheduled", "job", e.name, "spec", e.spec)
	}
	return c, nil
}
