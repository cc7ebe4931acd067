package enums

import "testing"

func TestSalesReportStatusOrdering(t *testing.T) {
	if !SalesReportStatusShipped.AtLeast(SalesReportStatusSent) {
		t.Fatalf("expected shipped to be at least sent")
	}
	if SalesReportStatusCreated.AtLeast(SalesReportStatusSent) {
		t.Fatalf("expected created to precede sent")
	}
	if SalesReportStatus("bogus").AtLeast(SalesReportStatusCreated) {
		t.Fatalf("unknown status must never satisfy AtLeast")
	}
	if _, ok := SalesReportStatusCompleted.Next(); ok {
		t.Fatalf("completed is terminal")
	}
}

func TestReportActionTransitions(t *testing.T) {
	cases := []struct {
		action ReportAction
		from   SalesReportStatus
		to     SalesReportStatus
		role   UserRole
	}{
		{ReportActionSend, SalesReportStatusCreated, SalesReportStatusSent, UserRoleAdmin},
		{ReportActionConfirm, SalesReportStatusSent, SalesReportStatusConfirmed, UserRoleSeller},
		{ReportActionShip, SalesReportStatusConfirmed, SalesReportStatusShipped, UserRoleSeller},
		{ReportActionComplete, SalesReportStatusShipped, SalesReportStatusCompleted, UserRoleAdmin},
	}
	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			if got := tc.action.From(); got != tc.from {
				t.Fatalf("from: expected %s got %s", tc.from, got)
			}
			if got := tc.action.To(); got != tc.to {
				t.Fatalf("to: expected %s got %s", tc.to, got)
			}
			if got := tc.action.RequiredRole(); got != tc.role {
				t.Fatalf("role: expected %s got %s", tc.role, got)
			}
		})
	}

	if _, err := ParseReportAction("cancel"); err == nil {
		t.Fatalf("expected unknown action to be rejected")
	}
}
