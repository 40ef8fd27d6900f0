// Package app wires the components together and runs the scheduled jobs
// and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/ingest"
	"github.com/deusflow/newsdesk/internal/leader"
	"github.com/deusflow/newsdesk/internal/metrics"
	"github.com/deusflow/newsdesk/internal/ratelimit"
	"github.com/deusflow/newsdesk/internal/rotation"
	"github.com/deusflow/newsdesk/internal/storage"
)

// ErrBusy is returned when a job is triggered while it is still running.
var ErrBusy = errors.New("job already running")

type ingester interface {
	Run(ctx context.Context) (ingest.Report, error)
}

type cyclePublisher interface {
	RunCycle(ctx context.Context) (rotation.Result, error)
}

type App struct {
	cfg       *config.Config
	log       *slog.Logger
	store     storage.Repository
	ingest    ingester
	publisher cyclePublisher
	elector   *leader.Elector
	limiter   *ratelimit.CallLimiter
	closers   []func()

	baseCtx   context.Context
	leading   atomic.Bool
	ingestMu  sync.Mutex
	publishMu sync.Mutex
}

// RunIngest runs one ingestion cycle unless one is already running.
func (a *App) RunIngest(ctx context.Context) (ingest.Report, error) {
	if !a.ingestMu.TryLock() {
		return ingest.Report{}, ErrBusy
	}
	defer a.ingestMu.Unlock()
	return a.ingestLocked(ctx)
}

func (a *App) ingestLocked(ctx context.Context) (ingest.Report, error) {
	start := time.Now()
	rep, err := a.ingest.Run(ctx)
	metrics.Global.RecordProcessingTime("ingest", time.Since(start))
	if err != nil {
		metrics.Global.SetError(err.Error())
		return rep, fmt.Errorf("ingest: %w", err)
	}
	metrics.Global.SetLastRun()
	return rep, nil
}

// RunPublish runs one publication cycle unless one is already running.
func (a *App) RunPublish(ctx context.Context) (rotation.Result, error) {
	if !a.publishMu.TryLock() {
		return rotation.Result{}, ErrBusy
	}
	defer a.publishMu.Unlock()
	return a.publishLocked(ctx)
}

func (a *App) publishLocked(ctx context.Context) (rotation.Result, error) {
	start := time.Now()
	res, err := a.publisher.RunCycle(ctx)
	metrics.Global.RecordProcessingTime("publish", time.Since(start))
	if err != nil {
		metrics.Global.SetError(err.Error())
		return res, fmt.Errorf("publish: %w", err)
	}
	metrics.Global.SetLastRun()
	return res, nil
}

// StoreStats returns item counts per status.
func (a *App) StoreStats(ctx context.Context) (map[string]int, error) {
	return a.store.Stats(ctx)
}

// Sweep deletes finished items past the retention period.
func (a *App) Sweep(ctx context.Context) {
	if a.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
	n, err := a.store.Cleanup(ctx, cutoff)
	if err != nil {
		a.log.Error("retention sweep failed", "error", err)
		return
	}
	a.log.Info("retention sweep done", "removed", n, "cutoff", cutoff.Format(time.DateOnly))
}

// Serve starts the HTTP server, waits for leadership, then schedules the
// jobs until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.baseCtx = ctx

	srv := &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      a.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting HTTP server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()
	defer a.shutdown(srv)

	handle, ok := a.elector.TryBecomeLeader(ctx)
	if !ok {
		return ctx.Err()
	}
	defer func() {
		a.leading.Store(false)
		metrics.Global.SetLeader(false)
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.Release(releaseCtx); err != nil {
			a.log.Warn("leader release failed", "error", err)
		}
	}()
	a.leading.Store(true)
	metrics.Global.SetLeader(true)
	a.log.Info("running scheduled jobs", "forced", handle.Forced, "fail_open", handle.FailOpen)

	a.Sweep(ctx)

	sched, err := a.newScheduler(ctx)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if a.cfg.ScrapeOnStart {
		go a.ingestJob(ctx)
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown", "error", err)
	}
}

func (a *App) ingestJob(ctx context.Context) {
	if _, err := a.RunIngest(ctx); err != nil && !errors.Is(err, ErrBusy) {
		a.log.Error("ingestion failed", "error", err)
	}
}

func (a *App) publishJob(ctx context.Context) {
	if _, err := a.RunPublish(ctx); err != nil && !errors.Is(err, ErrBusy) {
		a.log.Error("publication failed", "error", err)
	}
}

// Close releases clients in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
