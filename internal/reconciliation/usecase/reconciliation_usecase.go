// Package usecase implements the periodic ledger reconciliation. It only reads the ledger:
// every finding becomes an alert and a report entry, and no row is ever modified.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/payouts/internal/alert"
	"github.com/allisson/payouts/internal/metrics"
	"github.com/allisson/payouts/internal/reconciliation/domain"
)

// Config holds reconciliation configuration.
type Config struct {
	Interval time.Duration
	// StuckAfter is how old a pending release without a live outbox event must be to be reported;
	// zero disables the check.
	StuckAfter time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// ReconciliationRepository defines the read-only reconciliation queries.
type ReconciliationRepository interface {
	ListBalances(ctx context.Context) ([]domain.BountyBalance, error)
	ListStuckReleases(ctx context.Context, createdBefore time.Time) ([]domain.StuckRelease, error)
}

// UseCase defines the reconciliation operations.
type UseCase interface {
	Run(ctx context.Context) (*domain.Report, error)
	Start(ctx context.Context) error
}

// ReconciliationUseCase compares every bounty's escrow against what was paid out of it.
type ReconciliationUseCase struct {
	config  Config
	repo    ReconciliationRepository
	alerter alert.Alerter
	metrics metrics.BusinessMetrics
	logger  *slog.Logger
}

// NewReconciliationUseCase creates a ReconciliationUseCase.
func NewReconciliationUseCase(
	config Config,
	repo ReconciliationRepository,
	alerter alert.Alerter,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *ReconciliationUseCase {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReconciliationUseCase{
		config:  config,
		repo:    repo,
		alerter: alerter,
		metrics: businessMetrics,
		logger:  logger,
	}
}

// Start runs a pass every interval until ctx is cancelled. A failed pass is logged and retried
// on the next tick.
func (uc *ReconciliationUseCase) Start(ctx context.Context) error {
	uc.logger.Info("starting reconciliation", slog.Duration("interval", uc.config.Interval))

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping reconciliation")
			return ctx.Err()
		case <-ticker.C:
			if _, err := uc.Run(ctx); err != nil {
				uc.logger.Error("reconciliation pass failed", slog.Any("error", err))
			}
		}
	}
}

// Run performs one reconciliation pass. Each drifting bounty and each stuck release raises
// exactly one alert per pass.
func (uc *ReconciliationUseCase) Run(ctx context.Context) (*domain.Report, error) {
	began := time.Now()
	start := uc.config.Now().UTC()
	report := &domain.Report{StartedAt: start}

	balances, err := uc.repo.ListBalances(ctx)
	if err != nil {
		uc.metrics.RecordOperation(ctx, "reconciliation", "run", "error")
		return nil, err
	}
	report.Checked = len(balances)

	for _, b := range balances {
		drift, found := domain.DriftOf(b)
		if !found {
			continue
		}
		report.Drifts = append(report.Drifts, drift)
		uc.raise(ctx, alert.Alert{
			Kind:     alert.KindLedgerDrift,
			BountyID: drift.BountyID,
			Message:  fmt.Sprintf("ledger drift of %d on bounty", drift.Amount),
			Attrs: []slog.Attr{
				slog.Int64("escrow", drift.Escrow),
				slog.Int64("settled", drift.Settled),
				slog.Int64("drift", drift.Amount),
			},
		})
	}

	if uc.config.StuckAfter > 0 {
		stuck, err := uc.repo.ListStuckReleases(ctx, start.Add(-uc.config.StuckAfter))
		if err != nil {
			uc.metrics.RecordOperation(ctx, "reconciliation", "run", "error")
			return nil, err
		}
		report.Stuck = stuck
		for _, s := range stuck {
			uc.raise(ctx, alert.Alert{
				Kind:     alert.KindReleaseStuck,
				BountyID: s.BountyID,
				Message:  "release pending without a scheduled transfer",
				Attrs: []slog.Attr{
					slog.String("idempotency_key", s.IdempotencyKey),
					slog.Int64("amount", s.Amount),
					slog.Time("created_at", s.CreatedAt),
				},
			})
		}
	}

	status := "clean"
	if !report.Clean() {
		status = "findings"
	}
	uc.metrics.RecordOperation(ctx, "reconciliation", "run", status)
	uc.metrics.RecordDuration(ctx, "reconciliation", "run", time.Since(began), status)

	uc.logger.Info("reconciliation pass finished",
		slog.Int("checked", report.Checked),
		slog.Int("drifts", len(report.Drifts)),
		slog.Int("stuck", len(report.Stuck)),
	)
	return report, nil
}

func (uc *ReconciliationUseCase) raise(ctx context.Context, a alert.Alert) {
	if uc.alerter != nil {
		uc.alerter.Alert(ctx, a)
	}
}
