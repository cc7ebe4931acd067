package cron

import (
	"context"
	"fmt"

	"github.com/medstock/medstock-backend/internal/points"
	"github.com/medstock/medstock-backend/pkg/logger"
)

type ledgerReconciler interface {
	Run(ctx context.Context) (*points.ReconcileReport, error)
}

type PointsReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler ledgerReconciler
}

// NewPointsReconcileJob checks every points account against its transaction
// log. Drift is reported by the reconciler itself; the job only fails when
// accounts could not be read.
func NewPointsReconcileJob(params PointsReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &pointsReconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type pointsReconcileJob struct {
	logg       *logger.Logger
	reconciler ledgerReconciler
}

func (j *pointsReconcileJob) Name() string { return "points-reconcile" }

func (j *pointsReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.Run(ctx)
	checked, drifted := 0, 0
	if report != nil {
		checked, drifted = report.Checked, len(report.Drifted)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"accounts_checked": checked,
		"accounts_drifted": drifted,
	})
	if err != nil {
		return fmt.Errorf("points reconcile: %w", err)
	}
	if drifted > 0 {
		j.logg.Warn(logCtx, "points reconcile found drifted accounts")
		return nil
	}
	j.logg.Info(logCtx, "points reconcile complete")
	return nil
}
