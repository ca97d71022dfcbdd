// Package worker runs background maintenance for the auth API. Today that is
// the sweeper that removes expired password reset OTPs.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/observability"
)

type ExpiredOTPDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	Interval     time.Duration
	SweepTimeout time.Duration
	MaxBackoff   time.Duration
}

type Sweeper struct {
	cfg    Config
	store  ExpiredOTPDeleter
	logger *slog.Logger
	prom   *observability.Prom
	now    func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func NewSweeper(cfg Config, store ExpiredOTPDeleter, logger *slog.Logger, prom *observability.Prom) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		cfg:    cfg,
		store:  store,
		logger: logger,
		prom:   prom,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce deletes every OTP row whose expiry is at or before now.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	deleted, err := s.store.DeleteExpired(sweepCtx, s.now())

	if s.prom != nil {
		if err != nil {
			s.prom.OTPSweepRuns.WithLabelValues("error").Inc()
		} else {
			s.prom.OTPSweepRuns.WithLabelValues("ok").Inc()
			s.prom.OTPSweepDeleted.Add(float64(deleted))
		}
	}

	return deleted, err
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Failures back off exponentially instead of waiting for the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.setReady(true)
	defer s.setReady(false)

	s.logger.InfoContext(ctx, "otp sweeper started", "interval", s.cfg.Interval.String())

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	failures := 0

	for {
		deleted, err := s.SweepOnce(ctx)

		switch {
		case err != nil && ctx.Err() == nil:
			delay := ExponentialBackoff(failures, time.Second, s.cfg.MaxBackoff)
			failures++
			s.logger.ErrorContext(ctx, "otp sweep failed", "err", err, "attempt", failures, "retry_in", delay.String())

			if !sleep(ctx, delay) {
				s.logger.InfoContext(ctx, "otp sweeper received shutdown signal")
				return nil
			}
			continue

		case err == nil:
			failures = 0
			if deleted > 0 {
				s.logger.InfoContext(ctx, "otp sweep", "deleted", deleted)
			}
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "otp sweeper received shutdown signal")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

func (s *Sweeper) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
