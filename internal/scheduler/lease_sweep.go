package scheduler

import (
	"context"
	"errors"
	"time"

	"dealerdesk_backend/internal/leads/reclaim"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLeaseSweepInterval = time.Hour
	leaseSweepLockKey         = "lease-sweep"
	leaseSweepLockTTL         = 15 * time.Minute
)

// extendLock resets the TTL only while the key still holds our token.
var extendLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseLock deletes the key only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseSweeper is one reclamation pass. *reclaim.Sweeper implements it.
type LeaseSweeper interface {
	Run(ctx context.Context) reclaim.SweepResult
}

// LeaseSweepRunner triggers the reclamation sweeper on an interval. A redis
// lock keeps concurrent scheduler instances from sweeping at the same time.
// The lock is renewed every third of its TTL until the sweep returns.
type LeaseSweepRunner struct {
	sweeper  LeaseSweeper
	redis    redis.UniversalClient
	log      *logger.Logger
	interval time.Duration
	lockTTL  time.Duration
}

// NewLeaseSweepRunner creates a runner. With a nil redis client every tick
// sweeps without locking.
func NewLeaseSweepRunner(sweeper LeaseSweeper, rdb redis.UniversalClient, log *logger.Logger, interval time.Duration) *LeaseSweepRunner {
	if interval <= 0 {
		interval = defaultLeaseSweepInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LeaseSweepRunner{
		sweeper:  sweeper,
		redis:    rdb,
		log:      log,
		interval: interval,
		lockTTL:  leaseSweepLockTTL,
	}
}

func (r *LeaseSweepRunner) Run(ctx context.Context) {
	if r == nil || r.sweeper == nil {
		return
	}

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps if the lock can be taken. ran is false when another
// instance holds the lock or the lock could not be checked.
func (r *LeaseSweepRunner) RunOnce(ctx context.Context) (res reclaim.SweepResult, ran bool) {
	release, err := r.acquire(ctx)
	if errors.Is(err, errLockHeld) {
		r.log.Debug("lease sweep skipped; lock held elsewhere")
		return res, false
	}
	if err != nil {
		r.log.Warn("lease sweep lock failed", "error", err)
		return res, false
	}
	defer release()

	return r.sweeper.Run(ctx), true
}

var errLockHeld = errors.New("lock held")

func (r *LeaseSweepRunner) acquire(ctx context.Context) (func(), error) {
	if r.redis == nil {
		return func() {}, nil
	}

	token := uuid.NewString()
	ok, err := r.redis.SetNX(ctx, leaseSweepLockKey, token, r.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLockHeld
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go r.renew(ctx, token, stop, renewed)

	return func() {
		close(stop)
		<-renewed
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseLock.Run(releaseCtx, r.redis, []string{leaseSweepLockKey}, token).Err(); err != nil {
			r.log.Warn("lease sweep lock release failed", "error", err)
		}
	}, nil
}

// renew keeps the lock alive while the sweep runs. It gives up once the key
// no longer holds token.
func (r *LeaseSweepRunner) renew(ctx context.Context, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := extendLock.Run(ctx, r.redis, []string{leaseSweepLockKey}, token, r.lockTTL.Milliseconds()).Int()
			if err != nil {
				r.log.Warn("lease sweep lock renewal failed", "error", err)
				continue
			}
			if n == 0 {
				r.log.Warn("lease sweep lock lost during sweep")
				return
			}
		}
	}
}
