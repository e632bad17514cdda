package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// ExpirySweep periodically retires available tokens whose expiry date has
// passed. The sweep is idempotent; the redis lock just keeps multiple
// instances from doing the same work at once, and the sweep runs unlocked
// when redis is unavailable.
type ExpirySweep struct {
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewExpirySweep(logger *logrus.Logger) *ExpirySweep {
	return &ExpirySweep{
		Logger:   logger,
		Interval: time.Hour,
	}
}

func (s *ExpirySweep) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Interval):
		}
	}
}

func (s *ExpirySweep) sweepOnce(ctx context.Context) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "lock:token-expiry-sweep", time.Minute, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err == nil {
			defer lock.Release(ctx)
		}
	}

	count, err := models.MarkExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		config.LogError(s.Logger, "expirySweep.go", "sweepOnce", "marking expired tokens", nil, err)
		return
	}
	if count > 0 && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":   "ExpirySweep",
			"expired": count,
		}).Info("expired tokens swept")
	}
}
