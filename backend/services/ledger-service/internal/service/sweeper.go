package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/metrics"
)

const defaultSweepInterval = time.Second

// Sweeper expires overdue sessions on a fixed tick and cleans up after failed settlements.
type Sweeper struct {
	terminals  TerminalRegistry
	controller *Controller
	interval   time.Duration
	now        Clock
	logger     *zap.Logger
}

// SweepReport summarises one tick.
type SweepReport struct {
	InUse      int
	Expired    int
	Lost       int
	Failed     int
	Settled    int
	Reconciled int
	Duration   time.Duration
}

// NewSweeper builds a sweeper. A non-positive interval falls back to one second.
func NewSweeper(terminals TerminalRegistry, controller *Controller, interval time.Duration, now Clock, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if now == nil {
		now = SystemClock
	}
	return &Sweeper{
		terminals:  terminals,
		controller: controller,
		interval:   interval,
		now:        now,
		logger:     logger,
	}
}

// Run sweeps once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires every in-use terminal whose end time is not in the future, retries pending
// settlements and reconciles orphaned records. Per-terminal failures are counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	var report SweepReport
	defer func() {
		report.Duration = time.Since(started)
		metrics.SweepDuration.Observe(report.Duration.Seconds())
	}()

	inUse, err := s.terminals.ListInUse(ctx)
	if err != nil {
		return report, err
	}
	report.InUse = len(inUse)

	now := s.now()
	for _, t := range inUse {
		if t.SessionEndTime == nil || now.Before(*t.SessionEndTime) {
			continue
		}
		res, err := s.controller.Expire(ctx, t.ID)
		var pf *PartialFailureError
		switch {
		case err == nil:
			report.Expired++
			s.logger.Info("session expired",
				zap.String("terminal_id", t.ID),
				zap.String("user_id", res.UserID),
				zap.Int64("refunded_seconds", res.RefundedSeconds),
			)
		case errors.Is(err, ErrAlreadyTerminated), errors.Is(err, ErrNotExpired):
			report.Lost++
		case errors.As(err, &pf):
			report.Expired++
			report.Failed++
		default:
			report.Failed++
			s.logger.Warn("expire failed", zap.String("terminal_id", t.ID), zap.Error(err))
		}
	}
	metrics.ActiveSessions.Set(float64(report.InUse - report.Expired))

	settled, err := s.controller.SettlePending(ctx)
	report.Settled = settled
	if err != nil {
		s.logger.Debug("pending settlements remain", zap.Error(err))
	}

	reconciled, err := s.controller.Reconcile(ctx)
	report.Reconciled = reconciled
	if err != nil {
		s.logger.Warn("reconcile failed", zap.Error(err))
	}
	return report, nil
}
