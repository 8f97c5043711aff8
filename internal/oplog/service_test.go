package oplog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/metroware/equip-ledger/internal/models"
)

var logTestColumns = []string{
	"id", "user_id", "equipment_id", "target_table", "target_id",
	"action", "description", "old_value", "new_value", "operation_type",
	"parent_log_id", "rollback_log_id", "is_rollback", "rollback_reason",
	"ip_address", "user_agent", "created_at",
}

func TestWrite_RequiredFields(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	svc := NewService(db)

	cases := []WriteInput{
		{ActorID: 0, Action: "update", Description: "d", OperationType: models.OpTypeEquipment},
		{ActorID: 1, Action: "", Description: "d", OperationType: models.OpTypeEquipment},
		{ActorID: 1, Action: "update", Description: "  ", OperationType: models.OpTypeEquipment},
		{ActorID: 1, Action: "update", Description: "d", OperationType: ""},
	}
	for i, in := range cases {
		if _, err := svc.Write(context.Background(), in); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestWrite_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	equipID := 3
	mock.ExpectQuery(`INSERT INTO operation_logs`).
		WithArgs(7, equipID, nil, nil, "update", "changed status",
			`{"status":"在用"}`, `{"status":"停用"}`, "equipment", "10.0.0.5", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))

	svc := NewService(db)
	entry, err := svc.Write(context.Background(), WriteInput{
		ActorID:       7,
		EquipmentID:   &equipID,
		Action:        "update",
		Description:   "changed status",
		OldSnapshot:   map[string]any{"status": "在用"},
		NewSnapshot:   map[string]any{"status": "停用"},
		OperationType: models.OpTypeEquipment,
		Meta:          RequestMeta{IPAddress: "10.0.0.5"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if entry.ID != 42 || entry.UserID != 7 || entry.IsRollback {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.OldValue != `{"status":"在用"}` || entry.NewValue != `{"status":"停用"}` {
		t.Errorf("unexpected snapshots: %q / %q", entry.OldValue, entry.NewValue)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestList_NonAdminIgnoresUserFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// Caller 7 asks for user 99's entries; the filter must be replaced by
	// the caller's own id, not honored.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM operation_logs WHERE user_id = \$1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM operation_logs WHERE user_id = \$1 ORDER BY id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(7, 50, 0).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(5), 7, nil, "", nil, "update", "own entry", "", "", "equipment",
				nil, nil, false, "", "", "", time.Now()))

	svc := NewService(db)
	other := 99
	entries, total, err := svc.List(context.Background(), ListFilters{UserID: &other}, 7, false, 0, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].UserID != 7 {
		t.Errorf("unexpected result: total=%d entries=%+v", total, entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestList_AdminFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	isRollback := true
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM operation_logs WHERE user_id = \$1 AND action = \$2 AND is_rollback = \$3`).
		WithArgs(99, "rollback", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(99, "rollback", true, 20, 40).
		WillReturnRows(sqlmock.NewRows(logTestColumns))

	svc := NewService(db)
	other := 99
	_, total, err := svc.List(context.Background(),
		ListFilters{UserID: &other, Action: "rollback", IsRollback: &isRollback}, 1, true, 40, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 {
		t.Errorf("total: got %d, want 0", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGet_NotOwnedIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM operation_logs WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(5), 99, nil, "", nil, "update", "someone else's", "", "", "equipment",
				nil, nil, false, "", "", "", time.Now()))

	svc := NewService(db)
	if _, err := svc.Get(context.Background(), 5, 7, false); err != ErrNotFound {
		t.Errorf("Get: got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestStatistics_NonAdminScoped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"total", "rollbacks", "recent"}).AddRow(10, 2, 4))
	mock.ExpectQuery(`SELECT operation_type, COUNT\(\*\) FROM operation_logs WHERE user_id = \$1 GROUP BY operation_type`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"operation_type", "count"}).
			AddRow("equipment", 6).AddRow("calibration", 4))
	mock.ExpectQuery(`SELECT action, COUNT\(\*\) FROM operation_logs WHERE user_id = \$1 GROUP BY action`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).
			AddRow("update", 8).AddRow("rollback", 2))

	svc := NewService(db)
	stats, err := svc.Statistics(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Total != 10 || stats.RollbackCount != 2 || stats.Recent7DayCount != 4 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.ByOperationType["calibration"] != 4 || stats.ByAction["update"] != 8 {
		t.Errorf("unexpected breakdowns: %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCleanup_KeepsReversals(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM operation_logs\s+WHERE created_at < \$1 AND is_rollback = FALSE AND rollback_log_id IS NULL`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	svc := NewService(db)
	deleted, err := svc.Cleanup(context.Background(), 90)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 12 {
		t.Errorf("deleted: got %d, want 12", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCleanup_NegativeDays(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	if _, err := NewService(db).Cleanup(context.Background(), -1); err == nil {
		t.Error("expected error for negative retention")
	}
}
