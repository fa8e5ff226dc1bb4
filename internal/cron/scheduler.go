package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/checkout"
	"github.com/ronalking182/errandpay/internal/config"
	"github.com/ronalking182/errandpay/internal/gateway"
	"github.com/ronalking182/errandpay/internal/models"
	"github.com/ronalking182/errandpay/internal/notify"
	"github.com/ronalking182/errandpay/internal/repository"
)

const (
	reconcileBatchSize = 20
	abandonedAfter     = 24 * time.Hour
)

// Scheduler runs the background reconciliation jobs: sessions this process
// lost track of (restart, crash) still have to resolve to exactly one
// outcome, just later and offline.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	gw       gateway.Gateway
	sessions *repository.SessionRepository
	payments *repository.PaymentRepository
	reporter *notify.Reporter
	logger   *zap.Logger
}

// New creates a new cron scheduler.
func New(
	cfg *config.Config,
	gw gateway.Gateway,
	sessions *repository.SessionRepository,
	payments *repository.PaymentRepository,
	reporter *notify.Reporter,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		gw:       gw,
		sessions: sessions,
		payments: payments,
		reporter: reporter,
		logger:   logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Reconcile stale sessions - every minute
	s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: reconcile stale sessions")
		s.reconcileStaleSessions()
	})

	// Drop abandoned session rows - every hour
	s.cron.AddFunc("0 0 * * * *", func() {
		s.logger.Debug("Running: cleanup abandoned sessions")
		s.cleanupAbandonedSessions()
	})

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// reconcileStaleSessions applies the completion policy to persisted sessions
// stuck in awaiting_completion beyond the fallback window. These rows only
// exist when the controller that owned them is gone, so the usual in-memory
// fallback timer never fired.
func (s *Scheduler) reconcileStaleSessions() {
	defer s.recoverFromPanic("reconcileStaleSessions")

	cutoff := time.Now().Add(-s.cfg.Checkout.FallbackTimeout)
	rows, err := s.sessions.FindStaleAwaiting(cutoff, reconcileBatchSize)
	if err != nil {
		s.logger.Error("Failed to list stale sessions", zap.Error(err))
		return
	}

	for _, row := range rows {
		if row.Reference == "" {
			continue
		}
		s.reconcileSession(row)
	}
}

func (s *Scheduler) reconcileSession(row models.CheckoutSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	poller := checkout.NewPoller(s.gw, s.cfg.Checkout.VerifyAttempts, s.cfg.Checkout.VerifyDelay, s.logger)
	result := poller.Poll(ctx, row.Reference, nil)

	var status, state, message string
	presumed := false
	switch result.Outcome {
	case checkout.PollSuccess:
		status, state = models.PaymentStatusSuccess, "success"
	case checkout.PollExhausted:
		// Same presumed-success policy the live pipeline applies.
		status, state, presumed = models.PaymentStatusPresumed, "success", true
	default:
		status, state, message = models.PaymentStatusFailed, "failure", result.Message
	}

	if err := s.payments.Record(&models.PaymentRecord{
		SessionID:        row.ID,
		OrderID:          row.OrderID,
		Reference:        row.Reference,
		AmountMinorUnits: row.AmountMinorUnits,
		Currency:         row.Currency,
		Channel:          row.Channel,
		Status:           status,
		Message:          message,
	}); err != nil {
		s.logger.Error("Failed to record reconciled payment",
			zap.String("reference", row.Reference), zap.Error(err))
		return
	}

	if err := s.sessions.Update(row.ID, map[string]interface{}{
		"state":         state,
		"presumed":      presumed,
		"error_message": message,
	}); err != nil {
		s.logger.Error("Failed to update reconciled session",
			zap.String("session_id", row.ID), zap.Error(err))
		return
	}

	s.reporter.ReportPayment(status, row.OrderID, row.Reference,
		row.AmountMinorUnits, row.Currency, "reconciled offline")
	s.logger.Info("Session reconciled",
		zap.String("session_id", row.ID),
		zap.String("reference", row.Reference),
		zap.String("status", status))
}

func (s *Scheduler) cleanupAbandonedSessions() {
	defer s.recoverFromPanic("cleanupAbandonedSessions")

	removed, err := s.sessions.DeleteAbandonedBefore(time.Now().Add(-abandonedAfter))
	if err != nil {
		s.logger.Error("Failed to cleanup abandoned sessions", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("Removed abandoned sessions", zap.Int64("count", removed))
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
