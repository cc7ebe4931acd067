package enums

import "fmt"

// PurchaseRequestStatus captures the admin review lifecycle of a buyer request.
type PurchaseRequestStatus string

const (
	PurchaseRequestStatusPending  PurchaseRequestStatus = "pending"
	PurchaseRequestStatusApproved PurchaseRequestStatus = "approved"
	PurchaseRequestStatusRejected PurchaseRequestStatus = "rejected"
)

var validPurchaseRequestStatuses = []PurchaseRequestStatus{
	PurchaseRequestStatusPending,
	PurchaseRequestStatusApproved,
	PurchaseRequestStatusRejected,
}

// String implements fmt.Stringer.
func (s PurchaseRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseRequestStatus.
func (s PurchaseRequestStatus) IsValid() bool {
	for _, candidate := range validPurchaseRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further review decision may be applied.
func (s PurchaseRequestStatus) IsTerminal() bool {
	return s == PurchaseRequestStatusApproved || s == PurchaseRequestStatusRejected
}

// ParsePurchaseRequestStatus converts raw input into a PurchaseRequestStatus.
func ParsePurchaseRequestStatus(value string) (PurchaseRequestStatus, error) {
	for _, candidate := range validPurchaseRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase request status %q", value)
}
