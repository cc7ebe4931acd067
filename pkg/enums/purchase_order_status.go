package enums

// PurchaseOrderStatus tracks the bookkeeping row created for an approved sale.
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusApproved  PurchaseOrderStatus = "approved"
	PurchaseOrderStatusCompleted PurchaseOrderStatus = "completed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)

// String implements fmt.Stringer.
func (s PurchaseOrderStatus) String() string {
	return string(s)
}
