package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Checked int
	Changed int
	Failed  int
	Took    time.Duration
}

// Reconciler walks every stored record and refreshes it from the processor.
type Reconciler struct {
	store     Store
	checker   EntitlementChecker
	batchSize int
	log       *slog.Logger
}

// NewReconciler creates a reconciler paging through the store batchSize records at a time.
func NewReconciler(store Store, checker EntitlementChecker, batchSize int, log *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{
		store:     store,
		checker:   checker,
		batchSize: batchSize,
		log:       logger.OrDiscard(log).With(logger.Component("billing.reconciler")),
	}
}

// Run reconciles all records. Per-record failures are counted and skipped;
// only store listing errors and cancellation abort the run.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()
	var report ReconcileReport
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			report.Took = time.Since(start)
			return report, err
		}

		batch, err := r.store.List(ctx, r.batchSize, after)
		if err != nil {
			report.Took = time.Since(start)
			return report, errors.Join(ErrStoreUnavailable, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			report.Checked++
			status, err := r.checker.Reconcile(ctx, rec.Email)
			if err != nil {
				report.Failed++
				r.log.WarnContext(ctx, "reconciliation failed", logger.Email(rec.Email), logger.Error(err))
				continue
			}
			if status != rec.Status {
				report.Changed++
				r.log.InfoContext(ctx, "subscription status reconciled",
					logger.Email(rec.Email),
					logger.Status(status.String()),
					slog.String("previous", rec.Status.String()),
				)
			}
		}

		after = batch[len(batch)-1].Email
		if len(batch) < r.batchSize {
			break
		}
	}

	report.Took = time.Since(start)
	r.log.InfoContext(ctx, "reconciliation finished",
		slog.Int("checked", report.Checked),
		slog.Int("changed", report.Changed),
		slog.Int("failed", report.Failed),
		logger.Duration(report.Took),
	)
	return report, nil
}
