// Package leader decides which replica runs the periodic jobs.
package leader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotHeld is returned by Release when this process does not hold the lock.
var ErrNotHeld = errors.New("leader lock not held")

// Locker is a non-blocking exclusive lock shared between replicas.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Handle is the result of an election. Forced and FailOpen mark handles
// granted without actually holding the lock.
type Handle struct {
	Forced   bool
	FailOpen bool

	locker Locker
	held   bool
	once   sync.Once
}

// Release gives the lock back. Calling it more than once is a no-op.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		if h.held {
			err = h.locker.Release(ctx)
		}
	})
	return err
}

type Elector struct {
	locker   Locker
	attempts int
	interval time.Duration
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewElector(locker Locker, attempts int, interval time.Duration, log *slog.Logger) *Elector {
	if attempts < 1 {
		attempts = 1
	}
	return &Elector{
		locker:   locker,
		attempts: attempts,
		interval: interval,
		log:      log,
		sleep:    sleepCtx,
	}
}

// TryBecomeLeader polls the lock. It returns true when the lock was taken,
// when every attempt found it busy (forced start), and when the lock backend
// failed (fail open). It returns false only if ctx is cancelled.
func (e *Elector) TryBecomeLeader(ctx context.Context) (*Handle, bool) {
	for attempt := 1; attempt <= e.attempts; attempt++ {
		ok, err := e.locker.TryAcquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &Handle{}, false
			}
			e.log.Warn("leader lock failed, starting anyway", "error", err)
			return &Handle{FailOpen: true}, true
		}
		if ok {
			e.log.Info("leadership acquired", "attempt", attempt)
			return &Handle{locker: e.locker, held: true}, true
		}

		e.log.Debug("leader lock busy", "attempt", attempt, "of", e.attempts)
		if attempt == e.attempts {
			break
		}
		if err := e.sleep(ctx, e.interval); err != nil {
			return &Handle{}, false
		}
	}

	e.log.Warn("leader lock still busy, forcing start", "attempts", e.attempts)
	return &Handle{Forced: true}, true
}

// Local always grants the lock. It backs single-replica deployments.
type Local struct {
	mu   sync.Mutex
	held bool
}

func (l *Local) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *Local) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
