package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/metroware/equip-ledger/internal/models"
)

// EquipmentRepo persists equipment ledger rows.
type EquipmentRepo struct {
	DB *sql.DB
}

func NewEquipmentRepo(db *sql.DB) *EquipmentRepo {
	return &EquipmentRepo{DB: db}
}

const equipmentColumns = `id, name, COALESCE(model, ''), COALESCE(accuracy_level, ''),
		COALESCE(measurement_range, ''), COALESCE(calibration_cycle, 0), calibration_date,
		COALESCE(calibration_method, ''), COALESCE(current_calibration_result, ''),
		COALESCE(certificate_number, ''), COALESCE(verification_agency, ''),
		COALESCE(certificate_form, ''), COALESCE(installation_location, ''),
		COALESCE(manufacturer, ''), manufacture_date, COALESCE(scale_value, ''),
		COALESCE(management_level, ''), COALESCE(original_value, 0), status, status_change_date,
		COALESCE(notes, ''), valid_until, COALESCE(internal_id, ''), COALESCE(manufacturer_id, ''),
		department_id, category_id, created_at, updated_at`

// ListFilters narrows equipment listings.
type ListFilters struct {
	Status       string
	DepartmentID *int
	CategoryID   *int
	// Search matches name, model or internal_id, case-insensitively.
	Search string
}

func (r *EquipmentRepo) Create(ctx context.Context, e models.Equipment) (models.Equipment, error) {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO equipment
			(name, model, accuracy_level, measurement_range, calibration_cycle, calibration_date,
			 calibration_method, current_calibration_result, certificate_number, verification_agency,
			 certificate_form, installation_location, manufacturer, manufacture_date, scale_value,
			 management_level, original_value, status, status_change_date, notes, valid_until,
			 internal_id, manufacturer_id, department_id, category_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			 $19, $20, $21, $22, $23, $24, $25)
		 RETURNING id, created_at, updated_at`,
		e.Name, e.Model, e.AccuracyLevel, e.MeasurementRange, e.CalibrationCycle, e.CalibrationDate,
		e.CalibrationMethod, e.CurrentCalibrationResult, e.CertificateNumber, e.VerificationAgency,
		e.CertificateForm, e.InstallationLocation, e.Manufacturer, e.ManufactureDate, e.ScaleValue,
		e.ManagementLevel, e.OriginalValue, e.Status, e.StatusChangeDate, e.Notes, e.ValidUntil,
		e.InternalID, e.ManufacturerID, e.DepartmentID, e.CategoryID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *EquipmentRepo) GetByID(ctx context.Context, id int) (models.Equipment, error) {
	row := r.DB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM equipment WHERE id = $1", equipmentColumns), id)
	e, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Equipment{}, errors.New("equipment not found")
	}
	return e, err
}

// UpdateByID writes the full field set of e to the row with the given id.
func (r *EquipmentRepo) UpdateByID(ctx context.Context, id int, e models.Equipment) (models.Equipment, error) {
	err := r.DB.QueryRowContext(ctx,
		`UPDATE equipment SET
			name = $1, model = $2, accuracy_level = $3, measurement_range = $4,
			calibration_cycle = $5, calibration_date = $6, calibration_method = $7,
			current_calibration_result = $8, certificate_number = $9, verification_agency = $10,
			certificate_form = $11, installation_location = $12, manufacturer = $13,
			manufacture_date = $14, scale_value = $15, management_level = $16, original_value = $17,
			status = $18, status_change_date = $19, notes = $20, valid_until = $21,
			internal_id = $22, manufacturer_id = $23, department_id = $24, category_id = $25,
			updated_at = NOW()
		 WHERE id = $26
		 RETURNING id, created_at, updated_at`,
		e.Name, e.Model, e.AccuracyLevel, e.MeasurementRange, e.CalibrationCycle, e.CalibrationDate,
		e.CalibrationMethod, e.CurrentCalibrationResult, e.CertificateNumber, e.VerificationAgency,
		e.CertificateForm, e.InstallationLocation, e.Manufacturer, e.ManufactureDate, e.ScaleValue,
		e.ManagementLevel, e.OriginalValue, e.Status, e.StatusChangeDate, e.Notes, e.ValidUntil,
		e.InternalID, e.ManufacturerID, e.DepartmentID, e.CategoryID, id,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Equipment{}, errors.New("equipment not found")
	}
	return e, err
}

func (r *EquipmentRepo) DeleteByID(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("equipment not found")
	}
	return nil
}

// List returns one page plus the total count over the same filter.
func (r *EquipmentRepo) List(ctx context.Context, f ListFilters, limit, offset int) ([]models.Equipment, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR model ILIKE $%d OR internal_id ILIKE $%d)", n, n, n))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM equipment"+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM equipment%s ORDER BY id LIMIT $%d OFFSET $%d",
		equipmentColumns, whereSQL, len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, e)
	}
	return list, total, rows.Err()
}

// CountByStatus returns equipment counts grouped by status.
func (r *EquipmentRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM equipment GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CalibrationDue counts in-use equipment whose certificate expires within
// the window (due) or has already expired (overdue).
func (r *EquipmentRepo) CalibrationDue(ctx context.Context, withinDays int) (due, overdue int, err error) {
	err = r.DB.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE valid_until >= CURRENT_DATE
				AND valid_until < CURRENT_DATE + $1 * INTERVAL '1 day'),
			COUNT(*) FILTER (WHERE valid_until < CURRENT_DATE)
		 FROM equipment
		 WHERE status = $2 AND valid_until IS NOT NULL`,
		withinDays, models.StatusInUse,
	).Scan(&due, &overdue)
	return due, overdue, err
}

type equipmentScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row equipmentScanner) (models.Equipment, error) {
	var e models.Equipment
	var calDate, manDate, statusDate, validUntil sql.NullTime
	var deptID, catID sql.NullInt64
	err := row.Scan(
		&e.ID, &e.Name, &e.Model, &e.AccuracyLevel,
		&e.MeasurementRange, &e.CalibrationCycle, &calDate,
		&e.CalibrationMethod, &e.CurrentCalibrationResult,
		&e.CertificateNumber, &e.VerificationAgency,
		&e.CertificateForm, &e.InstallationLocation,
		&e.Manufacturer, &manDate, &e.ScaleValue,
		&e.ManagementLevel, &e.OriginalValue, &e.Status, &statusDate,
		&e.Notes, &validUntil, &e.InternalID, &e.ManufacturerID,
		&deptID, &catID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return models.Equipment{}, err
	}
	if calDate.Valid {
		t := calDate.Time
		e.CalibrationDate = &t
	}
	if manDate.Valid {
		t := manDate.Time
		e.ManufactureDate = &t
	}
	if statusDate.Valid {
		t := statusDate.Time
		e.StatusChangeDate = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		e.ValidUntil = &t
	}
	if deptID.Valid {
		v := int(deptID.Int64)
		e.DepartmentID = &v
	}
	if catID.Valid {
		v := int(catID.Int64)
		e.CategoryID = &v
	}
	return e, nil
}
