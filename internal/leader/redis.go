package leader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
)

// RedisLocker holds a key with a TTL and renews it in the background
// until released.
type RedisLocker struct {
	client *redis.Client
	key    string
	id     string
	ttl    time.Duration
	log    *slog.Logger

	mu   sync.Mutex
	held bool
	stop chan struct{}
	done chan struct{}
}

var _ Locker = (*RedisLocker)(nil)

// defaultTTL replaces a non-positive ttl, which would stall renewal.
const defaultTTL = 30 * time.Second

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{
		client: client,
		key:    key,
		id:     uuid.New().String(),
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisLocker) TryAcquire(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held {
		return true, nil
	}

	acquired, err := r.client.SetNX(ctx, r.key, r.id, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leadership: %w", err)
	}
	if !acquired {
		return false, nil
	}

	r.held = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.renew(r.stop, r.done)
	return true, nil
}

// renew extends the TTL every third of it. It stops on release or when
// the key no longer carries our id.
func (r *RedisLocker) renew(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			res, err := renewScript.Run(ctx, r.client, []string{r.key}, r.id, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.log.Error("failed to renew leadership", "error", err)
				continue
			}
			if res == 0 {
				r.log.Warn("lost leadership - key not held")
				r.mu.Lock()
				r.held = false
				r.mu.Unlock()
				return
			}
		}
	}
}

func (r *RedisLocker) Release(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	wasHeld := r.held
	r.held = false
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	res, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.id).Int()
	if err != nil {
		return fmt.Errorf("failed to resign leadership: %w", err)
	}
	if res == 0 || !wasHeld {
		return ErrNotHeld
	}
	return nil
}
