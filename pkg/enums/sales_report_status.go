package enums

import "fmt"

// SalesReportStatus is the forward-only lifecycle of a sales approval report.
type SalesReportStatus string

const (
	SalesReportStatusCreated   SalesReportStatus = "created"
	SalesReportStatusSent      SalesReportStatus = "sent"
	SalesReportStatusConfirmed SalesReportStatus = "confirmed"
	SalesReportStatusShipped   SalesReportStatus = "shipped"
	SalesReportStatusCompleted SalesReportStatus = "completed"
)

// ordered by lifecycle position
var salesReportStatusOrder = []SalesReportStatus{
	SalesReportStatusCreated,
	SalesReportStatusSent,
	SalesReportStatusConfirmed,
	SalesReportStatusShipped,
	SalesReportStatusCompleted,
}

// String implements fmt.Stringer.
func (s SalesReportStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SalesReportStatus.
func (s SalesReportStatus) IsValid() bool {
	return s.Rank() >= 0
}

// Rank returns the lifecycle position of the status or -1 when unknown.
func (s SalesReportStatus) Rank() int {
	for i, candidate := range salesReportStatusOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is at or beyond other in the lifecycle.
func (s SalesReportStatus) AtLeast(other SalesReportStatus) bool {
	return s.Rank() >= other.Rank() && s.Rank() >= 0
}

// Next returns the status directly after s, if any.
func (s SalesReportStatus) Next() (SalesReportStatus, bool) {
	rank := s.Rank()
	if rank < 0 || rank+1 >= len(salesReportStatusOrder) {
		return "", false
	}
	return salesReportStatusOrder[rank+1], true
}

// ParseSalesReportStatus converts raw input into a SalesReportStatus.
func ParseSalesReportStatus(value string) (SalesReportStatus, error) {
	for _, candidate := range salesReportStatusOrder {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sales report status %q", value)
}
