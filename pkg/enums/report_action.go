package enums

import "fmt"

// ReportAction is a lifecycle command issued against a sales approval report.
type ReportAction string

const (
	ReportActionSend     ReportAction = "send"
	ReportActionConfirm  ReportAction = "confirm"
	ReportActionShip     ReportAction = "ship"
	ReportActionComplete ReportAction = "complete"
)

// ParseReportAction converts raw input into a ReportAction.
func ParseReportAction(value string) (ReportAction, error) {
	switch ReportAction(value) {
	case ReportActionSend, ReportActionConfirm, ReportActionShip, ReportActionComplete:
		return ReportAction(value), nil
	default:
		return "", fmt.Errorf("invalid report action %q", value)
	}
}

// From returns the status the report must currently be in for the action to apply.
func (a ReportAction) From() SalesReportStatus {
	switch a {
	case ReportActionSend:
		return SalesReportStatusCreated
	case ReportActionConfirm:
		return SalesReportStatusSent
	case ReportActionShip:
		return SalesReportStatusConfirmed
	default:
		return SalesReportStatusShipped
	}
}

// To returns the status the action moves the report into.
func (a ReportAction) To() SalesReportStatus {
	next, _ := a.From().Next()
	return next
}

// RequiredRole reports which marketplace role may issue the action.
func (a ReportAction) RequiredRole() UserRole {
	switch a {
	case ReportActionConfirm, ReportActionShip:
		return UserRoleSeller
	default:
		return UserRoleAdmin
	}
}
