package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/newsdesk/internal/metrics"
)

// Router exposes health, stats, Prometheus metrics and manual triggers.
func (a *App) Router() *gin.Engine {
	if !a.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.log))

	r.GET("/", a.handleIndex)
	r.GET("/health", a.handleHealth)
	r.GET("/stats", a.handleStats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	trigger := r.Group("/trigger")
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		trigger.Handle(m, "/scrape", a.handleTriggerScrape)
		trigger.Handle(m, "/publish", a.handleTriggerPublish)
	}
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (a *App) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "newsdesk",
		"leader":    a.leading.Load(),
		"endpoints": []string{"/health", "/stats", "/metrics", "/trigger/scrape", "/trigger/publish"},
	})
}

func (a *App) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if !metrics.Global.Healthy() {
		status, code = "error", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"leader":    a.leading.Load(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *App) handleStats(c *gin.Context) {
	out := gin.H{
		"metrics": metrics.Global.GetStats(),
		"leader":  a.leading.Load(),
	}
	if a.limiter != nil {
		out["rewrite_calls"] = a.limiter.Stats()
	}
	items, err := a.store.Stats(c.Request.Context())
	if err != nil {
		a.log.Warn("store stats failed", "error", err)
		out["items_error"] = err.Error()
	} else {
		out["items"] = items
	}
	c.JSON(http.StatusOK, out)
}

func (a *App) handleTriggerScrape(c *gin.Context) {
	a.trigger(c, "ingest", &a.ingestMu, func(ctx context.Context) error {
		_, err := a.ingestLocked(ctx)
		return err
	})
}

func (a *App) handleTriggerPublish(c *gin.Context) {
	a.trigger(c, "publish", &a.publishMu, func(ctx context.Context) error {
		_, err := a.publishLocked(ctx)
		return err
	})
}

type tryLocker interface {
	TryLock() bool
	Unlock()
}

// trigger starts run in the background with mu held. Only the leader may
// trigger jobs.
func (a *App) trigger(c *gin.Context, job string, mu tryLocker, run func(context.Context) error) {
	if !a.leading.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not leader", "job": job})
		return
	}
	if !mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"status": ErrBusy.Error(), "job": job})
		return
	}
	ctx := a.baseCtx
	go func() {
		defer mu.Unlock()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("triggered job failed", "job", job, "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "job": job})
}
