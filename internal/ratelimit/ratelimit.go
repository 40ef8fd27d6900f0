// Package ratelimit throttles calls to the rewrite backend: a minimum
// interval between calls plus a daily budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrBudgetExhausted = errors.New("daily call budget exhausted")

// CallLimiter spaces calls by interval and caps them per day.
type CallLimiter struct {
	limiter *rate.Limiter
	log     *slog.Logger

	mu        sync.Mutex
	maxPerDay int
	used      int
	resetTime time.Time
	loc       *time.Location
	now       func() time.Time
}

// NewCallLimiter creates a limiter. interval <= 0 disables spacing,
// maxPerDay <= 0 disables the budget. The budget resets at midnight in loc.
func NewCallLimiter(interval time.Duration, maxPerDay int, loc *time.Location, log *slog.Logger) *CallLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := &CallLimiter{
		limiter:   rate.NewLimiter(limit, 1),
		log:       log,
		maxPerDay: maxPerDay,
		loc:       loc,
		now:       time.Now,
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	l.resetTime = l.nextMidnight()
	return l
}

// Wait reserves one call, blocking until the interval allows it.
func (l *CallLimiter) Wait(ctx context.Context) error {
	if err := l.take(); err != nil {
		return err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

func (l *CallLimiter) take() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if l.maxPerDay > 0 && l.used >= l.maxPerDay {
		l.log.Warn("rewrite call budget reached", "used", l.used, "limit", l.maxPerDay)
		return ErrBudgetExhausted
	}
	l.used++
	return nil
}

// Stats reports usage for the stats endpoint.
func (l *CallLimiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]any{
		"used":       l.used,
		"limit":      l.maxPerDay,
		"reset_time": l.resetTime,
	}
}

// checkReset resets counters if reset time has passed
func (l *CallLimiter) checkReset() {
	if !l.now().Before(l.resetTime) {
		l.log.Info("resetting rewrite call budget", "used", l.used)
		l.used = 0
		l.resetTime = l.nextMidnight()
	}
}

func (l *CallLimiter) nextMidnight() time.Time {
	local := l.now().In(l.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, l.loc)
}
