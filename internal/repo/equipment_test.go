package repo

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/metroware/equip-ledger/internal/models"
)

var equipmentTestColumns = []string{
	"id", "name", "model", "accuracy_level", "measurement_range", "calibration_cycle",
	"calibration_date", "calibration_method", "current_calibration_result", "certificate_number",
	"verification_agency", "certificate_form", "installation_location", "manufacturer",
	"manufacture_date", "scale_value", "management_level", "original_value", "status",
	"status_change_date", "notes", "valid_until", "internal_id", "manufacturer_id",
	"department_id", "category_id", "created_at", "updated_at",
}

func equipmentRow(id int, name, status string) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, name, "TX-100", "0.5", "0-100kPa", 12,
		now, "比较法", "合格", "CERT-001",
		"省计量院", "检定证书", "车间一", "厂商A",
		nil, "0.1", "A", 1500.0, status,
		nil, "", now, "NB-001", "SN-100",
		nil, nil, now, now,
	}
}

func addEquipmentRow(rows *sqlmock.Rows, vals []driver.Value) *sqlmock.Rows {
	return rows.AddRow(vals...)
}

func TestEquipmentRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := addEquipmentRow(sqlmock.NewRows(equipmentTestColumns), equipmentRow(1, "pressure gauge", models.StatusInUse))
	mock.ExpectQuery(`FROM equipment WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(rows)

	repo := NewEquipmentRepo(db)
	e, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if e.ID != 1 || e.Name != "pressure gauge" || e.Status != models.StatusInUse {
		t.Errorf("unexpected equipment: %+v", e)
	}
	if e.CalibrationDate == nil || e.ManufactureDate != nil {
		t.Errorf("unexpected dates: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestEquipmentRepo_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM equipment WHERE id = \$1`).
		WithArgs(999).
		WillReturnRows(sqlmock.NewRows(equipmentTestColumns))

	repo := NewEquipmentRepo(db)
	_, err = repo.GetByID(context.Background(), 999)
	if err == nil {
		t.Fatal("expected error for missing equipment")
	}
	if err.Error() != "equipment not found" {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestEquipmentRepo_List_StatusFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM equipment WHERE status = \$1`).
		WithArgs(models.StatusInUse).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	rows := sqlmock.NewRows(equipmentTestColumns)
	rows = addEquipmentRow(rows, equipmentRow(1, "gauge1", models.StatusInUse))
	rows = addEquipmentRow(rows, equipmentRow(2, "gauge2", models.StatusInUse))
	mock.ExpectQuery(`FROM equipment WHERE status = \$1 ORDER BY id LIMIT \$2 OFFSET \$3`).
		WithArgs(models.StatusInUse, 10, 0).
		WillReturnRows(rows)

	repo := NewEquipmentRepo(db)
	list, total, err := repo.List(context.Background(), ListFilters{Status: models.StatusInUse}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(list) != 2 || list[1].Name != "gauge2" {
		t.Errorf("unexpected list: total=%d %+v", total, list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestEquipmentRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM equipment WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEquipmentRepo(db)
	if err := repo.DeleteByID(context.Background(), 1); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestEquipmentRepo_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM equipment GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(models.StatusInUse, 8).
			AddRow(models.StatusScrapped, 1))

	repo := NewEquipmentRepo(db)
	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[models.StatusInUse] != 8 || counts[models.StatusScrapped] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
