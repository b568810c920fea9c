// Package lock implements the distributed lock of spec §4.L: a
// single-key Redis mutex with TTL, auto-renewal, and idempotent
// release, used by internal/mergequeue to elect one processor
// cluster-wide.
//
// Grounded on original_source/jupiter/src/redis/lock.rs's RedLock:
// SET NX PX to acquire, a Lua compare-and-delete to release, and a
// background renewal loop woken early by a stop signal. Reworked from
// tokio's Notify/spawn idiom to Go's context cancellation and
// goroutine-plus-channel idiom.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Lock is one named mutex backed by a Redis key.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// New returns a Lock for key, with a fresh random token and the given
// TTL (spec default: 10s, set by the caller).
func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, value: uuid.New().String(), ttl: ttl}
}

// TryLock attempts a single non-blocking acquisition.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Guard is a held lock with its background renewal loop; Unlock is
// idempotent and safe to call more than once or not at all before the
// guard is discarded.
type Guard struct {
	l        *Lock
	cancel   context.CancelFunc
	done     chan struct{}
	released bool
	mu       sync.Mutex
}

// Lock retries TryLock every 200ms until it succeeds or ctx is done,
// then starts the TTL/2 auto-renewal loop.
func (l *Lock) Lock(ctx context.Context) (*Guard, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	g := &Guard{l: l, cancel: cancel, done: make(chan struct{})}
	go g.renewLoop(renewCtx)
	return g, nil
}

func (g *Guard) renewLoop(ctx context.Context) {
	defer close(g.done)
	half := g.l.ttl / 2
	if half <= 0 {
		half = 500 * time.Millisecond
	}
	ticker := time.NewTicker(half)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = g.l.client.PExpire(context.Background(), g.l.key, g.l.ttl).Err()
		}
	}
}

// Unlock stops renewal and releases the key via the compare-and-delete
// script, but only if this guard still holds the token.
func (g *Guard) Unlock(ctx context.Context) error {
	var err error
	g.mu.Lock()
	alreadyReleased := g.released
	g.released = true
	g.mu.Unlock()
	if alreadyReleased {
		return nil
	}
	g.cancel()
	<-g.done
	_, err = unlockScript.Run(ctx, g.l.client, []string{g.l.key}, g.l.value).Result()
	if err == redis.Nil {
		err = nil
	}
	return err
}
