package oplog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/metroware/equip-ledger/internal/models"
)

// Rollback reverses the effect of one log entry exactly once. The original
// entry row is locked for the duration, so of two concurrent requests for the
// same entry exactly one succeeds and the other observes ErrConflict. The
// entity mutation, the reversal entry and the original's back-link are
// committed as one unit; any failure discards all of it.
func (s *Service) Rollback(ctx context.Context, logID int64, actorID int, isAdmin bool, reason string, meta RequestMeta) (models.OperationLog, error) {
	if strings.TrimSpace(reason) == "" {
		return models.OperationLog{}, fmt.Errorf("oplog: rollback reason is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: begin rollback tx: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.lockEntry(ctx, tx, logID)
	if err != nil {
		return models.OperationLog{}, err
	}
	if !CanViewOrRollback(entry, actorID, isAdmin) {
		return models.OperationLog{}, ErrForbidden
	}
	if entry.IsRollback {
		return models.OperationLog{}, ErrConflict
	}
	if entry.RollbackLogID != nil {
		return models.OperationLog{}, ErrConflict
	}
	// Duplicate check beyond the back-link, in case an older reversal was
	// written without one.
	var dup bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM operation_logs WHERE parent_log_id = $1 AND is_rollback)`,
		entry.ID,
	).Scan(&dup); err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: duplicate rollback check: %w", err)
	}
	if dup {
		return models.OperationLog{}, ErrConflict
	}

	// An empty or unrecoverable old snapshot still yields a reversal entry:
	// the act of reverting was requested and must be auditable. The entity
	// mutation and the calibration-history flag both become no-ops.
	fields := restrictFields(entry.OperationType, Decode(entry.OldValue))
	if len(fields) > 0 && entry.EquipmentID != nil {
		if err := applyEquipmentSnapshot(ctx, tx, *entry.EquipmentID, fields); err != nil {
			return models.OperationLog{}, err
		}
		if entry.IsCalibrationOp() {
			if err := markCalibrationRolledBack(ctx, tx, entry, actorID, reason); err != nil {
				return models.OperationLog{}, err
			}
		}
	}

	reversal := models.OperationLog{
		UserID:         actorID,
		EquipmentID:    entry.EquipmentID,
		TargetTable:    entry.TargetTable,
		TargetID:       entry.TargetID,
		Action:         models.ActionRollback,
		Description:    fmt.Sprintf("rollback of operation #%d (%s)", entry.ID, entry.Action),
		OldValue:       entry.NewValue,
		NewValue:       entry.OldValue,
		OperationType:  entry.OperationType,
		ParentLogID:    &entry.ID,
		IsRollback:     true,
		RollbackReason: reason,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO operation_logs
			(user_id, equipment_id, target_table, target_id, action, description,
			 old_value, new_value, operation_type, parent_log_id, is_rollback,
			 rollback_reason, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13)
		 RETURNING id, created_at`,
		reversal.UserID, reversal.EquipmentID, nullString(reversal.TargetTable), reversal.TargetID,
		reversal.Action, reversal.Description, nullString(reversal.OldValue), nullString(reversal.NewValue),
		reversal.OperationType, entry.ID, reason,
		nullString(reversal.IPAddress), nullString(reversal.UserAgent),
	).Scan(&reversal.ID, &reversal.CreatedAt)
	if err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: insert reversal entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE operation_logs SET rollback_log_id = $1 WHERE id = $2`,
		reversal.ID, entry.ID,
	); err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: link reversal entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: commit rollback: %w", err)
	}
	return reversal, nil
}

// lockEntry fetches the entry by id and takes a row lock on it, so the
// eligibility checks and the reversal write are serialized per entry.
func (s *Service) lockEntry(ctx context.Context, tx *sql.Tx, logID int64) (models.OperationLog, error) {
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM operation_logs WHERE id = $1 FOR UPDATE", logColumns), logID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OperationLog{}, ErrNotFound
	}
	return entry, err
}

// restrictFields drops snapshot keys outside the operation type's allow-list.
// Stale or renamed fields from older log formats are ignored, not an error.
func restrictFields(operationType string, fields map[string]any) map[string]any {
	allowed := AllowedFields(operationType)
	if allowed == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

type columnKind int

const (
	colText columnKind = iota
	colInt
	colFloat
	colDate
)

// equipmentColumnKinds maps snapshot keys to their column types so decoded
// JSON values can be coerced before the UPDATE.
var equipmentColumnKinds = map[string]columnKind{
	"name":                       colText,
	"model":                      colText,
	"accuracy_level":             colText,
	"measurement_range":          colText,
	"calibration_cycle":          colInt,
	"calibration_date":           colDate,
	"calibration_method":         colText,
	"current_calibration_result": colText,
	"certificate_number":         colText,
	"verification_agency":        colText,
	"certificate_form":           colText,
	"installation_location":      colText,
	"manufacturer":               colText,
	"manufacture_date":           colDate,
	"scale_value":                colText,
	"management_level":           colText,
	"original_value":             colFloat,
	"status":                     colText,
	"status_change_date":         colDate,
	"notes":                      colText,
	"valid_until":                colDate,
	"internal_id":                colText,
	"manufacturer_id":            colText,
}

// applyEquipmentSnapshot sets the snapshot fields on the equipment row inside
// the rollback transaction. Values that cannot be coerced to their column
// type (notably unparsable dates) are skipped, leaving the field unchanged.
// The equipment having been deleted since the original operation is ErrApply.
func applyEquipmentSnapshot(ctx context.Context, tx *sql.Tx, equipmentID int, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := equipmentColumnKinds[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sets []string
	var args []any
	for _, k := range keys {
		v, ok := coerceColumnValue(equipmentColumnKinds[k], fields[k])
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, equipmentID)
	query := fmt.Sprintf("UPDATE equipment SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("oplog: apply snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("oplog: apply snapshot: %w", err)
	}
	if n == 0 {
		return ErrApply
	}
	return nil
}

func coerceColumnValue(kind columnKind, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch kind {
	case colDate:
		t, ok := ParseSnapshotDate(v)
		if !ok {
			return nil, false
		}
		return t, true
	case colInt:
		switch n := v.(type) {
		case float64:
			return int(math.Round(n)), true
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, false
			}
			return i, true
		}
		return nil, false
	case colFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
		return nil, false
	default:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		return s, true
	}
}

// markCalibrationRolledBack flags the newest non-rolled-back calibration
// record matching the calibration date recorded in the entry's new-value
// snapshot. This is best-effort denormalized bookkeeping: no matching row is
// not an error.
func markCalibrationRolledBack(ctx context.Context, tx *sql.Tx, entry models.OperationLog, actorID int, reason string) error {
	calDate, ok := ParseSnapshotDate(Decode(entry.NewValue)["calibration_date"])
	if !ok {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE calibration_history
		 SET is_rolled_back = TRUE, rolled_back_at = NOW(), rolled_back_by = $1, rollback_reason = $2
		 WHERE id = (
			SELECT id FROM calibration_history
			WHERE equipment_id = $3 AND calibration_date = $4 AND is_rolled_back = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		 )`,
		actorID, reason, *entry.EquipmentID, calDate,
	)
	if err != nil {
		return fmt.Errorf("oplog: mark calibration record: %w", err)
	}
	return nil
}
