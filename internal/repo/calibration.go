package repo

import (
	"context"
	"database/sql"

	"github.com/metroware/equip-ledger/internal/models"
)

// CalibrationRepo persists calibration-history rows. The rollback bookkeeping
// columns are written only by the operation-log engine, never here.
type CalibrationRepo struct {
	DB *sql.DB
}

func NewCalibrationRepo(db *sql.DB) *CalibrationRepo {
	return &CalibrationRepo{DB: db}
}

func (r *CalibrationRepo) Create(ctx context.Context, c models.CalibrationRecord) (models.CalibrationRecord, error) {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO calibration_history
			(equipment_id, calibration_date, result, certificate_number, verification_agency,
			 valid_until, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.EquipmentID, c.CalibrationDate, c.Result, c.CertificateNumber, c.VerificationAgency,
		c.ValidUntil, c.Notes,
	).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

// ListByEquipment returns all calibration records for one equipment, newest
// first, including rolled-back ones so the full calibration trail stays
// visible.
func (r *CalibrationRepo) ListByEquipment(ctx context.Context, equipmentID int) ([]models.CalibrationRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, equipment_id, calibration_date, COALESCE(result, ''),
			COALESCE(certificate_number, ''), COALESCE(verification_agency, ''), valid_until,
			COALESCE(notes, ''), is_rolled_back, rolled_back_at, rolled_back_by,
			COALESCE(rollback_reason, ''), created_at
		 FROM calibration_history
		 WHERE equipment_id = $1
		 ORDER BY calibration_date DESC, id DESC`,
		equipmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CalibrationRecord
	for rows.Next() {
		var c models.CalibrationRecord
		var validUntil, rolledBackAt sql.NullTime
		var rolledBackBy sql.NullInt64
		if err := rows.Scan(
			&c.ID, &c.EquipmentID, &c.CalibrationDate, &c.Result,
			&c.CertificateNumber, &c.VerificationAgency, &validUntil,
			&c.Notes, &c.IsRolledBack, &rolledBackAt, &rolledBackBy,
			&c.RollbackReason, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		if validUntil.Valid {
			t := validUntil.Time
			c.ValidUntil = &t
		}
		if rolledBackAt.Valid {
			t := rolledBackAt.Time
			c.RolledBackAt = &t
		}
		if rolledBackBy.Valid {
			v := int(rolledBackBy.Int64)
			c.RolledBackBy = &v
		}
		records = append(records, c)
	}
	return records, rows.Err()
}
