package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/metroware/equip-ledger/internal/models"
)

func TestCalibrationRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	calDate := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO calibration_history`).
		WithArgs(3, calDate, "合格", "CERT-9", "省计量院", nil, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))

	repo := NewCalibrationRepo(db)
	rec, err := repo.Create(context.Background(), models.CalibrationRecord{
		EquipmentID:        3,
		CalibrationDate:    calDate,
		Result:             "合格",
		CertificateNumber:  "CERT-9",
		VerificationAgency: "省计量院",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != 5 || rec.IsRolledBack {
		t.Errorf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCalibrationRepo_ListByEquipment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "equipment_id", "calibration_date", "result", "certificate_number",
		"verification_agency", "valid_until", "notes", "is_rolled_back", "rolled_back_at",
		"rolled_back_by", "rollback_reason", "created_at"}
	mock.ExpectQuery(`FROM calibration_history\s+WHERE equipment_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, 3, now, "不合格", "CERT-9", "省计量院", nil, "", true, now, 9, "wrong certificate", now).
			AddRow(1, 3, now.AddDate(-1, 0, 0), "合格", "CERT-5", "省计量院", now, "", false, nil, nil, "", now))

	repo := NewCalibrationRepo(db)
	records, err := repo.ListByEquipment(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListByEquipment: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("unexpected count: %d", len(records))
	}
	if !records[0].IsRolledBack || records[0].RolledBackBy == nil || *records[0].RolledBackBy != 9 {
		t.Errorf("rolled-back record: %+v", records[0])
	}
	if records[1].IsRolledBack || records[1].RolledBackAt != nil {
		t.Errorf("live record: %+v", records[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
