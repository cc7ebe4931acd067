// Package dbtest opens throwaway SQLite ledger stores for package tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medstock/medstock-backend/pkg/db"
	"github.com/medstock/medstock-backend/pkg/db/models"
)

// Models lists every table of the ledger store in creation order.
var Models = []any{
	&models.User{},
	&models.Product{},
	&models.PurchaseRequest{},
	&models.PurchaseOrder{},
	&models.ReportNumberSequence{},
	&models.SalesApprovalReport{},
	&models.PointsAccount{},
	&models.PointsTransaction{},
	&models.OutboxEvent{},
}

// NewClient returns a db.Client over a file-backed SQLite database living in
// t.TempDir. Transactions take the write lock on BEGIN so concurrent writers
// serialize instead of failing mid-transaction.
func NewClient(t testing.TB) *db.Client {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL", path)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                db.NowUTC,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if err := conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_points_transactions_deduct_reference
		ON points_transactions (reference_type, reference_id) WHERE transaction_type = 'deduct'`).Error; err != nil {
		t.Fatalf("create partial index: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db.NewFromConn(conn)
}
