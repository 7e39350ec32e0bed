package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"resortbook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker uses the primary locker until it errors, then falls back
// and retries the primary once a minute.
type FailoverLocker struct {
	primary  domain.UnitLocker
	fallback domain.UnitLocker
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	recheck   time.Duration
}

func NewFailoverLocker(primary, fallback domain.UnitLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		recheck:  time.Minute,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.isDown.Load() && l.dueForRecheck() {
		l.isDown.Store(false)
	}

	if !l.isDown.Load() {
		release, err := l.primary.Lock(ctx, key)
		if err == nil {
			return release, nil
		}
		if contended(err) {
			return nil, err
		}
		l.logger.Error().Err(err).Str("lock_key", key).Msg("primary locker failed, falling back to memory")
		l.markDown()
	}

	return l.fallback.Lock(ctx, key)
}

func (l *FailoverLocker) markDown() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
	l.isDown.Store(true)
}

func (l *FailoverLocker) dueForRecheck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) < l.recheck {
		return false
	}
	l.lastCheck = time.Now()
	return true
}
