package automation

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
)

// ErrTenantBusy means another run already holds the tenant's automation lease.
var ErrTenantBusy = errors.New("an automation run is already in progress for this business")

const leaseTTL = 10 * time.Minute

// TenantLeaser hands out the advisory per-tenant lease that keeps manual, scheduled and
// retry triggers from processing the same tenant at the same time.
type TenantLeaser interface {
	Acquire(ctx context.Context, businessId string) (release func(), err error)
}

// RedisLeaser backs the lease with redislock. Without Redis it degrades to no locking,
// which keeps single-instance deployments working.
type RedisLeaser struct {
	locker *redislock.Client
}

func NewRedisLeaser(locker *redislock.Client) *RedisLeaser {
	return &RedisLeaser{locker: locker}
}

func (l *RedisLeaser) Acquire(ctx context.Context, businessId string) (func(), error) {
	locker := l.locker
	if locker == nil {
		// Redis connects after the HTTP listener is up, so resolve lazily.
		locker = config.GetRedisLock()
	}
	if locker == nil {
		return func() {}, nil
	}

	lock, err := locker.Obtain(ctx, "automation:lease:"+businessId, leaseTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrTenantBusy
		}
		return nil, err
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "automation", "Acquire", "release tenant lease", businessId, err)
		}
	}, nil
}
