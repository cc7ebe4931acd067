package enums

import "slices"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregatePurchaseRequest OutboxAggregateType = "purchase_request"
	AggregateSalesReport     OutboxAggregateType = "sales_approval_report"
	AggregatePointsAccount   OutboxAggregateType = "points_account"
)

var aggregateTypes = []OutboxAggregateType{AggregatePurchaseRequest, AggregateSalesReport, AggregatePointsAccount}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

// OutboxEventType is the routing key of a published event.
type OutboxEventType string

const (
	EventPurchaseRequestApproved  OutboxEventType = "purchase_request.approved"
	EventPurchaseRequestRejected  OutboxEventType = "purchase_request.rejected"
	EventSalesReportStatusChanged OutboxEventType = "sales_report.status_changed"
	EventSalesReportBuyerRevealed OutboxEventType = "sales_report.buyer_revealed"
	EventPointsCharged            OutboxEventType = "points.charged"
	EventPointsRefunded           OutboxEventType = "points.refunded"
)

var eventTypes = []OutboxEventType{
	EventPurchaseRequestApproved,
	EventPurchaseRequestRejected,
	EventSalesReportStatusChanged,
	EventSalesReportBuyerRevealed,
	EventPointsCharged,
	EventPointsRefunded,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(eventTypes, e)
}

// OutboxEventTypes returns every known event type.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(eventTypes)
}
