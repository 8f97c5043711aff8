package models

import "time"

// Operation types. The type of an entry decides how a rollback is applied:
// equipment and calibration entries restore equipment fields (calibration
// entries additionally flag the matching calibration-history row); all other
// types produce a reversal entry without touching any entity.
const (
	OpTypeEquipment   = "equipment"
	OpTypeCalibration = "calibration"
	OpTypeAttachment  = "attachment"
	OpTypeUser        = "user"
	OpTypeSystem      = "system"
)

// Common action tags.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionRollback = "rollback"

	// Legacy calibration action tags. Older entries carry these instead of
	// operation_type "calibration" and must be treated as calibration
	// operations during rollback.
	ActionCalibrationUpdate = "更新检定信息"
	ActionCalibration       = "检定"
)

// OperationLog is one immutable audit entry for a state-changing operation.
// Entries are append-only; the single exception is RollbackLogID, which is
// set in place on the original entry at the moment its reversal is created.
type OperationLog struct {
	ID            int64  `json:"id"`
	UserID        int    `json:"user_id"`
	EquipmentID   *int   `json:"equipment_id,omitempty"`
	TargetTable   string `json:"target_table,omitempty"`
	TargetID      *int   `json:"target_id,omitempty"`
	Action        string `json:"action"`
	Description   string `json:"description"`
	OldValue      string `json:"old_value,omitempty"` // encoded snapshot before the operation
	NewValue      string `json:"new_value,omitempty"` // encoded snapshot after the operation
	OperationType string `json:"operation_type"`

	ParentLogID    *int64 `json:"parent_log_id,omitempty"`   // set only on reversal entries
	RollbackLogID  *int64 `json:"rollback_log_id,omitempty"` // set only on reversed originals
	IsRollback     bool   `json:"is_rollback"`
	RollbackReason string `json:"rollback_reason,omitempty"`

	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsCalibrationOp reports whether a rollback of this entry must also flag the
// matching calibration-history row.
func (l OperationLog) IsCalibrationOp() bool {
	return l.OperationType == OpTypeCalibration ||
		l.Action == ActionCalibrationUpdate ||
		l.Action == ActionCalibration
}
