package oplog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestHistory_WithReversal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM operation_logs WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(10), 7, 3, "", nil, "update", "status change", `{"status":"在用"}`, `{"status":"停用"}`,
				"equipment", nil, int64(11), false, "", "", "", now))
	mock.ExpectQuery(`WHERE parent_log_id = \$1 AND is_rollback ORDER BY id`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(11), 9, 3, "", nil, "rollback", "rollback of operation #10 (update)",
				`{"status":"停用"}`, `{"status":"在用"}`, "equipment", int64(10), nil, true, "mistake", "", "", now))
	mock.ExpectQuery(`SELECT id, username FROM users WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).
			AddRow(7, "alice").AddRow(9, "admin"))
	mock.ExpectQuery(`SELECT id, name, status, calibration_date, valid_until`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "calibration_date", "valid_until", "current_calibration_result"}).
			AddRow(3, "pressure gauge", "在用", now, nil, "合格"))

	svc := NewService(db)
	view, err := svc.History(context.Background(), 10, 1, true)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if view.Original.ID != 10 || view.Original.ActorName != "alice" {
		t.Errorf("unexpected original: %+v", view.Original)
	}
	if len(view.Rollbacks) != 1 || view.Rollbacks[0].ID != 11 || view.Rollbacks[0].ActorName != "admin" {
		t.Errorf("unexpected rollbacks: %+v", view.Rollbacks)
	}
	if view.Equipment == nil || view.Equipment.Name != "pressure gauge" || view.Equipment.Status != "在用" {
		t.Errorf("unexpected equipment state: %+v", view.Equipment)
	}
	if view.Equipment.ValidUntil != nil {
		t.Errorf("valid_until should be nil, got %v", view.Equipment.ValidUntil)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHistory_Forbidden(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM operation_logs WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(10), 99, nil, "", nil, "update", "someone else's", "", "", "equipment",
				nil, nil, false, "", "", "", time.Now()))

	svc := NewService(db)
	if _, err := svc.History(context.Background(), 10, 7, false); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHistory_AnchorsAtOriginalForReversal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	// Requesting the reversal's id resolves the chain through its parent.
	mock.ExpectQuery(`FROM operation_logs WHERE id = \$1`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(11), 7, nil, "", nil, "rollback", "rollback of operation #10 (update)",
				"", "", "system", int64(10), nil, true, "mistake", "", "", now))
	mock.ExpectQuery(`FROM operation_logs WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(10), 7, nil, "", nil, "update", "original", "", "", "system",
				nil, int64(11), false, "", "", "", now))
	mock.ExpectQuery(`WHERE parent_log_id = \$1 AND is_rollback ORDER BY id`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(logTestColumns).
			AddRow(int64(11), 7, nil, "", nil, "rollback", "rollback of operation #10 (update)",
				"", "", "system", int64(10), nil, true, "mistake", "", "", now))
	mock.ExpectQuery(`SELECT id, username FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(7, "alice"))

	svc := NewService(db)
	view, err := svc.History(context.Background(), 11, 7, false)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if view.Original.ID != 10 {
		t.Errorf("original: got id %d, want 10", view.Original.ID)
	}
	if len(view.Rollbacks) != 1 || view.Rollbacks[0].ID != 11 {
		t.Errorf("rollbacks: %+v", view.Rollbacks)
	}
	if view.Equipment != nil {
		t.Errorf("system entry should carry no equipment state, got %+v", view.Equipment)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
