// Package reports drives the sales approval report lifecycle and the paid
// disclosure of buyer contact details.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/internal/commission"
	"github.com/medstock/medstock-backend/internal/points"
	"github.com/medstock/medstock-backend/internal/users"
	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, attempts int, hook db.RetryHook, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pointsLedger interface {
	Deduct(ctx context.Context, tx *gorm.DB, input points.DeductInput) (*points.Mutation, error)
	FindDeduct(ctx context.Context, tx *gorm.DB, referenceType string, referenceID uuid.UUID) (*models.PointsTransaction, error)
}

// Service exposes report reads, lifecycle actions and buyer disclosure.
type Service interface {
	Get(ctx context.Context, reportID, viewerID uuid.UUID) (*ReportDTO, error)
	Apply(ctx context.Context, input ActionInput) (*ReportDTO, error)
	RevealBuyerInfo(ctx context.Context, input RevealInput) (*RevealResult, error)
}

// ActionInput is a lifecycle command against a report.
type ActionInput struct {
	ReportID       uuid.UUID
	ActorID        uuid.UUID
	Action         enums.ReportAction
	TrackingNumber string
}

// RevealInput asks to disclose the buyer behind a report.
type RevealInput struct {
	ReportID uuid.UUID
	SellerID uuid.UUID
}

// ServiceParams wires the reports service.
type ServiceParams struct {
	Repo       Repository
	Users      users.Repository
	Points     pointsLedger
	Tx         txRunner
	Outbox     outboxPublisher
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
	TxAttempts int
	Clock      func() time.Time
}

type service struct {
	repo     Repository
	users    users.Repository
	points   pointsLedger
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	attempts int
	now      func() time.Time
}

// NewService builds the reports service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Points == nil {
		return nil, fmt.Errorf("points ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		points:   params.Points,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		attempts: params.TxAttempts,
		now:      clock,
	}, nil
}

// Get returns the report to its seller or an admin. Buyer details are only
// included for admins or once the seller has paid for disclosure.
func (s *service) Get(ctx context.Context, reportID, viewerID uuid.UUID) (*ReportDTO, error) {
	viewer, err := s.loadActor(ctx, nil, viewerID)
	if err != nil {
		return nil, err
	}
	report, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		return nil, notFoundOr(err, "load report")
	}
	if viewer.Role != enums.UserRoleAdmin && report.SellerID != viewer.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "report belongs to another seller")
	}

	dto := toDTO(report, commission.PointsRequired(report.Commission))
	if viewer.Role == enums.UserRoleAdmin || report.BuyerInfoRevealed {
		buyer, err := s.loadBuyer(ctx, nil, report)
		if err != nil {
			return nil, err
		}
		dto.BuyerID = &report.BuyerID
		dto.Buyer = contactFrom(buyer)
	}
	return dto, nil
}

// Apply moves a report one step forward. Admins may issue any action;
// sellers may confirm and ship their own reports. Repeating the action that
// produced the current status is a no-op.
func (s *service) Apply(ctx context.Context, input ActionInput) (*ReportDTO, error) {
	if _, err := enums.ParseReportAction(string(input.Action)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action")
	}
	tracking := strings.TrimSpace(input.TrackingNumber)
	if input.Action == enums.ReportActionShip && tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking_number is required to ship")
	}

	ctx = s.logg.WithReportID(ctx, input.ReportID.String())
	var updated *models.SalesApprovalReport
	hook := func(int, error) { s.metrics.IncTxRetry("report_" + string(input.Action)) }
	err := s.tx.WithTxRetry(ctx, s.attempts, hook, func(tx *gorm.DB) error {
		actor, err := s.loadActor(ctx, tx, input.ActorID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		report, err := repo.FindForUpdate(ctx, input.ReportID)
		if err != nil {
			return notFoundOr(err, "load report")
		}
		if err := authorizeAction(actor, report, input.Action); err != nil {
			return err
		}

		from, to := input.Action.From(), input.Action.To()
		if report.Status == to {
			updated = report
			return nil
		}
		if report.Status != from {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "report cannot "+string(input.Action)+" from its current status").
				WithDetails(map[string]any{
					"current_status":  report.Status,
					"required_status": from,
					"action":          input.Action,
				})
		}

		var trackingNumber *string
		if input.Action == enums.ReportActionShip {
			trackingNumber = &tracking
		}
		ok, err := repo.Transition(ctx, report.ID, from, to, s.now(), trackingNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update report status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "report changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSalesReportStatusChanged,
			AggregateType: enums.AggregateSalesReport,
			AggregateID:   report.ID,
			Actor:         &outbox.ActorRef{UserID: actor.ID, Role: string(actor.Role)},
			Data: payloads.SalesReportStatusChangedEvent{
				ReportID:       report.ID,
				ReportNumber:   report.ReportNumber,
				SellerID:       report.SellerID,
				From:           from,
				To:             to,
				TrackingNumber: trackingNumber,
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, report.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload report")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "status", updated.Status), "report.action_applied")
	return toDTO(updated, commission.PointsRequired(updated.Commission)), nil
}

// RevealBuyerInfo charges the seller round(commission) points and returns
// the buyer contact. Each report is paid for at most once; later calls return
// the original deduction without charging again.
func (s *service) RevealBuyerInfo(ctx context.Context, input RevealInput) (*RevealResult, error) {
	if input.ReportID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report id and seller id are required")
	}
	ctx = s.logg.WithReportID(ctx, input.ReportID.String())

	var result *RevealResult
	hook := func(int, error) { s.metrics.IncTxRetry("reveal_buyer_info") }
	err := s.tx.WithTxRetry(ctx, s.attempts, hook, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		report, err := repo.FindForUpdate(ctx, input.ReportID)
		if err != nil {
			return notFoundOr(err, "load report")
		}
		if report.SellerID != input.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "report belongs to another seller")
		}

		if report.BuyerInfoRevealed {
			result, err = s.alreadyRevealed(ctx, tx, report)
			return err
		}
		if !report.Status.AtLeast(enums.SalesReportStatusSent) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "report has not been sent to the seller").
				WithDetails(map[string]any{"current_status": report.Status})
		}

		required := commission.PointsRequired(report.Commission)
		claimed, err := repo.ClaimReveal(ctx, report.ID, required)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim buyer disclosure")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "buyer disclosure already in progress")
		}

		mutation, err := s.points.Deduct(ctx, tx, points.DeductInput{
			UserID:        input.SellerID,
			Amount:        required,
			ReferenceType: points.ReferenceSalesApprovalReport,
			ReferenceID:   report.ID,
			Description:   "buyer disclosure for " + report.ReportNumber,
		})
		if err != nil {
			return err
		}

		buyer, err := s.loadBuyer(ctx, tx, report)
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSalesReportBuyerRevealed,
			AggregateType: enums.AggregateSalesReport,
			AggregateID:   report.ID,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: string(enums.UserRoleSeller)},
			Data: payloads.SalesReportBuyerRevealedEvent{
				ReportID:       report.ID,
				SellerID:       report.SellerID,
				BuyerID:        report.BuyerID,
				PointsDeducted: required,
				BalanceAfter:   mutation.BalanceAfter,
			},
		}); err != nil {
			return err
		}

		result = &RevealResult{
			ReportID:          report.ID,
			BuyerInfoRevealed: true,
			PointsDeducted:    required,
			BalanceAfter:      mutation.BalanceAfter,
			Buyer:             contactFrom(buyer),
		}
		return nil
	})
	if err != nil {
		switch {
		case points.IsInsufficient(err):
			s.metrics.IncReveal(metrics.OutcomeInsufficient)
		default:
			s.metrics.IncReveal(metrics.OutcomeFailed)
		}
		return nil, err
	}

	if result.AlreadyDeducted {
		s.metrics.IncReveal(metrics.OutcomeAlreadyPaid)
	} else {
		s.metrics.IncReveal(metrics.OutcomeRevealed)
		s.metrics.IncPointsMutation(string(enums.PointsTransactionDeduct))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"points_deducted": result.PointsDeducted.String(),
			"balance_after":   result.BalanceAfter.String(),
		})
		s.logg.Info(logCtx, "report.buyer_revealed")
	}
	return result, nil
}

func (s *service) alreadyRevealed(ctx context.Context, tx *gorm.DB, report *models.SalesApprovalReport) (*RevealResult, error) {
	entry, err := s.points.FindDeduct(ctx, tx, points.ReferenceSalesApprovalReport, report.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		err := pkgerrors.New(pkgerrors.CodeIntegrity, "revealed report has no matching deduction")
		s.logg.Critical(ctx, "report.reveal_without_deduction", err)
		return nil, err
	}
	buyer, err := s.loadBuyer(ctx, tx, report)
	if err != nil {
		return nil, err
	}
	return &RevealResult{
		ReportID:          report.ID,
		BuyerInfoRevealed: true,
		AlreadyDeducted:   true,
		PointsDeducted:    report.PointsDeducted.Round(2),
		BalanceAfter:      entry.BalanceAfter.Round(2),
		Buyer:             contactFrom(buyer),
	}, nil
}

func (s *service) loadActor(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	user, err := s.users.WithTx(tx).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) loadBuyer(ctx context.Context, tx *gorm.DB, report *models.SalesApprovalReport) (*models.User, error) {
	buyer, err := s.users.WithTx(tx).FindByID(ctx, report.BuyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err := pkgerrors.New(pkgerrors.CodeIntegrity, "buyer profile missing")
			s.logg.Critical(s.logg.WithField(ctx, "buyer_id", report.BuyerID.String()), "report.buyer_missing", err)
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}
	return buyer, nil
}

func authorizeAction(actor *models.User, report *models.SalesApprovalReport, action enums.ReportAction) error {
	switch actor.Role {
	case enums.UserRoleAdmin:
		return nil
	case enums.UserRoleSeller:
		if action.RequiredRole() != enums.UserRoleSeller {
			return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required for "+string(action))
		}
		if report.SellerID != actor.ID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "report belongs to another seller")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "buyers cannot change report status")
	}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sales approval report not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
