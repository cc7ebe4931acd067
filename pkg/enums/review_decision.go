package enums

import "fmt"

// ReviewDecision represents the decision an admin takes on a purchase request.
type ReviewDecision string

const (
	// ReviewDecisionApproved runs fulfillment and settles the request.
	ReviewDecisionApproved ReviewDecision = "approved"
	// ReviewDecisionRejected closes the request without touching stock.
	ReviewDecisionRejected ReviewDecision = "rejected"
)

// ParseReviewDecision converts raw input into a ReviewDecision.
func ParseReviewDecision(value string) (ReviewDecision, error) {
	switch ReviewDecision(value) {
	case ReviewDecisionApproved, ReviewDecisionRejected:
		return ReviewDecision(value), nil
	default:
		return "", fmt.Errorf("invalid review decision %q", value)
	}
}

// TargetStatus maps the decision to the purchase request status it produces.
func (d ReviewDecision) TargetStatus() PurchaseRequestStatus {
	if d == ReviewDecisionApproved {
		return PurchaseRequestStatusApproved
	}
	return PurchaseRequestStatusRejected
}
