package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
)

const reconcilePageSize = 200

// Drift describes an account whose stored balance disagrees with its log.
type Drift struct {
	UserID             uuid.UUID       `json:"user_id"`
	Balance            decimal.Decimal `json:"balance"`
	Folded             decimal.Decimal `json:"folded"`
	LatestBalanceAfter decimal.Decimal `json:"latest_balance_after"`
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Checked int
	Drifted []Drift
}

type txBeginner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reconciler verifies every account against its transaction log.
type Reconciler struct {
	repo    Repository
	tx      txBeginner
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(repo Repository, tx txBeginner, m *metrics.SettlementMetrics, logg *logger.Logger) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("points repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{repo: repo, tx: tx, metrics: m, logg: logg}, nil
}

// Run walks all accounts. Per-account read failures are collected and
// returned together; drift is logged and counted but is not an error.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	var errs error
	after := uuid.Nil
	for {
		accounts, err := r.repo.ListAccounts(ctx, after, reconcilePageSize)
		if err != nil {
			return report, multierr.Append(errs, fmt.Errorf("list points accounts: %w", err))
		}
		for _, account := range accounts {
			if err := ctx.Err(); err != nil {
				return report, multierr.Append(errs, err)
			}
			report.Checked++
			drift, err := r.check(ctx, account.UserID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", account.UserID, err))
				continue
			}
			if drift != nil {
				report.Drifted = append(report.Drifted, *drift)
				logCtx := r.logg.WithFields(ctx, map[string]any{
					"target_user_id":       drift.UserID.String(),
					"balance":              drift.Balance.String(),
					"folded":               drift.Folded.String(),
					"latest_balance_after": drift.LatestBalanceAfter.String(),
				})
				r.logg.Critical(logCtx, "points.ledger_drift", nil)
			}
		}
		if len(accounts) < reconcilePageSize {
			break
		}
		after = accounts[len(accounts)-1].UserID
	}
	r.metrics.AddLedgerDrift(len(report.Drifted))
	return report, errs
}

// check reads the balance, the fold and the latest entry in one transaction
// with the account row locked, so a mutation committing mid-pass cannot
// show up as drift.
func (r *Reconciler) check(ctx context.Context, userID uuid.UUID) (*Drift, error) {
	var balance, folded, latestAfter decimal.Decimal
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		var err error
		if balance, err = repo.LockAccount(ctx, userID); err != nil {
			return err
		}
		if folded, err = repo.FoldTransactions(ctx, userID); err != nil {
			return err
		}
		latest, err := repo.LatestTransaction(ctx, userID)
		switch {
		case err == nil:
			latestAfter = latest.BalanceAfter
		case errors.Is(err, gorm.ErrRecordNotFound):
			latestAfter = decimal.Zero
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance = balance.Round(maxAmountPlaces)
	folded = folded.Round(maxAmountPlaces)
	latestAfter = latestAfter.Round(maxAmountPlaces)
	if balance.Equal(folded) && balance.Equal(latestAfter) {
		return nil, nil
	}
	return &Drift{UserID: userID, Balance: balance, Folded: folded, LatestBalanceAfter: latestAfter}, nil
}
