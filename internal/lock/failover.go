package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gearrent/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker uses primary until it fails, then falls back and probes the
// primary again once per recoverAfter.
type FailoverLocker struct {
	primary      domain.Locker
	fallback     domain.Locker
	logger       *zerolog.Logger
	recoverAfter time.Duration
	isDown       atomic.Bool
	lastCheck    atomic.Int64
	now          func() time.Time
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
		now:          time.Now,
	}
}

func (f *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if f.isDown.Load() && f.now().Sub(time.Unix(0, f.lastCheck.Load())) > f.recoverAfter {
		unlock, err := f.primary.Lock(ctx, key)
		if err == nil {
			f.isDown.Store(false)
			f.logger.Info().Msg("Primary locker recovered")
			return unlock, nil
		}
		f.lastCheck.Store(f.now().UnixNano())
	}

	if !f.isDown.Load() {
		unlock, err := f.primary.Lock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		f.logger.Error().Err(err).Msg("Primary locker failed, falling back to in-process locks")
		f.isDown.Store(true)
		f.lastCheck.Store(f.now().UnixNano())
	}

	return f.fallback.Lock(ctx, key)
}
