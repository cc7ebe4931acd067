package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medstock/medstock-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestProductsMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_products_and_purchase_requests")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CONSTRAINT chk_products_quantity_positive CHECK (quantity > 0)",
		"CHECK (status IN ('active', 'sold', 'inactive'))",
		"CREATE TABLE IF NOT EXISTS purchase_requests",
		"CHECK (status IN ('pending', 'approved', 'rejected'))",
	})
}

func TestSettlementMigrationEnforcesExactlyOnce(t *testing.T) {
	content := readMigration(t, "create_settlement_tables")
	assertContains(t, content, []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_purchase_orders_purchase_request ON purchase_orders (purchase_request_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_sales_approval_reports_number ON sales_approval_reports (report_number)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_sales_approval_reports_purchase_request ON sales_approval_reports (purchase_request_id)",
		"CREATE TABLE IF NOT EXISTS report_number_sequences",
		"CHECK (status IN ('created', 'sent', 'confirmed', 'shipped', 'completed'))",
	})
}

func TestPointsMigrationKeepsLedgerAppendOnly(t *testing.T) {
	content := readMigration(t, "create_points_ledger")
	assertContains(t, content, []string{
		"CONSTRAINT chk_points_accounts_balance_non_negative CHECK (balance >= 0)",
		"CONSTRAINT chk_points_transactions_amount_positive CHECK (amount > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_points_transactions_deduct_reference",
		"BEFORE UPDATE OR DELETE ON points_transactions",
	})
}
