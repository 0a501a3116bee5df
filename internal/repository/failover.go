package repository

import (
	"context"
	"sync/atomic"
	"time"

	"thumbsup/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCacheRepository serves from primary until it fails, then from
// fallback, probing primary again once a minute.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverCacheRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

// observe records the outcome of a primary call.
func (r *FailoverCacheRepository) observe(err error) bool {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary cache repository recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cache repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
	return false
}

func (r *FailoverCacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	if r.usePrimary() {
		val, ok, err := r.primary.Get(ctx, key)
		if r.observe(err) {
			return val, ok, nil
		}
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverCacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if r.usePrimary() {
		if r.observe(r.primary.Set(ctx, key, value, ttl)) {
			return nil
		}
	}
	return r.fallback.Set(ctx, key, value, ttl)
}

func (r *FailoverCacheRepository) Delete(ctx context.Context, key string) error {
	if r.usePrimary() {
		if r.observe(r.primary.Delete(ctx, key)) {
			return nil
		}
	}
	return r.fallback.Delete(ctx, key)
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if r.observe(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
