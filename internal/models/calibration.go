package models

import "time"

// CalibrationRecord is one calibration-history row for an equipment.
// The rollback bookkeeping fields (IsRolledBack, RolledBackAt, RolledBackBy,
// RollbackReason) are written exclusively by the operation-log rollback
// engine; feature code only ever inserts records with them unset.
type CalibrationRecord struct {
	ID                 int        `json:"id"`
	EquipmentID        int        `json:"equipment_id"`
	CalibrationDate    time.Time  `json:"calibration_date"`
	Result             string     `json:"result,omitempty"` // 合格 | 不合格
	CertificateNumber  string     `json:"certificate_number,omitempty"`
	VerificationAgency string     `json:"verification_agency,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	IsRolledBack       bool       `json:"is_rolled_back"`
	RolledBackAt       *time.Time `json:"rolled_back_at,omitempty"`
	RolledBackBy       *int       `json:"rolled_back_by,omitempty"`
	RollbackReason     string     `json:"rollback_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
