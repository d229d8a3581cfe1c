/*
Package redislock implements ledger.Locker on Redis for deployments running
more than one engine instance against the same database.

PURPOSE:
  The in-process KeyedMutex only serializes goroutines of one process. With
  several instances, balance keys are locked with SET NX PX and a random
  token; unlock deletes the key only while it still holds our token.

EXPIRY:
  Locks expire after TTL so a crashed instance cannot wedge a balance row.
  A transaction that outlives its lock is still protected by the version
  check-and-set in the store.

SEE ALSO:
  - ledger/locker.go: Locker contract and in-process implementation
*/
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/ledger"
)

const (
	DefaultTTL          = 10 * time.Second
	DefaultPollInterval = 25 * time.Millisecond
	keyPrefix           = "leave-engine:lock:"
)

var _ ledger.Locker = (*Locker)(nil)

// unlockScript deletes the key only if it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
}

type Option func(*Locker)

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{client: client, ttl: DefaultTTL, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; unlock must still run.
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
			defer cancel()
			// On failure the key expires after ttl.
			_ = unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// Ping checks connectivity.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
