package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

// LeaseKey is the Redis key holding the archival run lease.
const LeaseKey = "fuelops:archival:run-lock"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lease is a cluster-wide run lock: a key set with NX and a TTL, refreshed
// while held and removed on release only by its owner.
type Lease struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewLease(client redis.Cmdable, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    LeaseKey,
		ttl:    ttl,
		logger: log.With().Str("component", "redis.lease").Logger(),
	}
}

// Acquire takes the lease or fails with domain.ErrRunInProgress when another
// process holds it.
func (l *Lease) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.Lease.Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis.Lease.Acquire: %w", domain.ErrRunInProgress)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
				l.logger.Warn().Err(err).Msg("release run lease")
			}
		})
	}
	return release, nil
}

func (l *Lease) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn().Err(err).Msg("refresh run lease")
				continue
			}
			if n == 0 {
				l.logger.Error().Msg("run lease lost")
				return
			}
		}
	}
}
