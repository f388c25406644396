package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	reconciliationDomain "github.com/allisson/payouts/internal/reconciliation/domain"
	reconciliationUseCase "github.com/allisson/payouts/internal/reconciliation/usecase"
)

// RunReconcile runs a single reconciliation pass and prints the report.
// It returns an error when any drift or stuck release was found so that cron jobs fail loudly.
func RunReconcile(
	ctx context.Context,
	useCase reconciliationUseCase.UseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	report, err := useCase.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run reconciliation: %w", err)
	}

	if format == "json" {
		if err := outputReconcileJSON(writer, report); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputReconcileText(writer, report)
	}

	logger.Info("reconciliation completed",
		slog.Int("checked", report.Checked),
		slog.Int("drifts", len(report.Drifts)),
		slog.Int("stuck", len(report.Stuck)),
	)

	if !report.Clean() {
		return fmt.Errorf(
			"reconciliation found %d drift(s) and %d stuck release(s)",
			len(report.Drifts),
			len(report.Stuck),
		)
	}
	return nil
}

func outputReconcileText(writer io.Writer, report *reconciliationDomain.Report) {
	_, _ = fmt.Fprintf(writer, "Escrow Reconciliation\n")
	_, _ = fmt.Fprintf(writer, "=====================\n\n")
	_, _ = fmt.Fprintf(writer, "Started At:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(writer, "Bounties Checked: %d\n", report.Checked)
	_, _ = fmt.Fprintf(writer, "Drifts:          %d\n", len(report.Drifts))
	_, _ = fmt.Fprintf(writer, "Stuck Releases:  %d\n\n", len(report.Stuck))

	if len(report.Drifts) > 0 {
		_, _ = fmt.Fprintf(writer, "Drifted Bounties:\n")
		for _, d := range report.Drifts {
			_, _ = fmt.Fprintf(writer, "  - %s escrow=%d settled=%d drift=%d\n", d.BountyID, d.Escrow, d.Settled, d.Amount)
		}
		_, _ = fmt.Fprintln(writer)
	}

	if len(report.Stuck) > 0 {
		_, _ = fmt.Fprintf(writer, "Stuck Releases:\n")
		for _, s := range report.Stuck {
			_, _ = fmt.Fprintf(writer, "  - %s key=%s amount=%d %s since %s\n",
				s.BountyID, s.IdempotencyKey, s.Amount, s.Currency, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		_, _ = fmt.Fprintln(writer)
	}

	if report.Clean() {
		_, _ = fmt.Fprintf(writer, "Status: PASSED\n")
	} else {
		_, _ = fmt.Fprintf(writer, "Status: FAILED\n")
	}
}

func outputReconcileJSON(writer io.Writer, report *reconciliationDomain.Report) error {
	result := map[string]interface{}{
		"started_at": report.StartedAt,
		"checked":    report.Checked,
		"drifts":     report.Drifts,
		"stuck":      report.Stuck,
		"passed":     report.Clean(),
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
