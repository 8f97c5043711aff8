package oplog

import (
	"encoding/json"
	"time"

	"github.com/metroware/equip-ledger/internal/models"
)

// DateLayout is the plain date form used inside snapshots. Decoded snapshot
// dates may also be full ISO-8601 timestamps (older entries were written that
// way); both are accepted when a snapshot is applied.
const DateLayout = "2006-01-02"

// equipmentFields is the reversible-field allow-list for equipment and
// calibration operations. Snapshot keys outside this set are silently dropped
// when a rollback is applied, so entries written against older schema
// revisions stay replayable.
var equipmentFields = map[string]bool{
	"name":                       true,
	"model":                      true,
	"accuracy_level":             true,
	"measurement_range":          true,
	"calibration_cycle":          true,
	"calibration_date":           true,
	"calibration_method":         true,
	"current_calibration_result": true,
	"certificate_number":         true,
	"verification_agency":        true,
	"certificate_form":           true,
	"installation_location":      true,
	"manufacturer":               true,
	"manufacture_date":           true,
	"scale_value":                true,
	"management_level":           true,
	"original_value":             true,
	"status":                     true,
	"status_change_date":         true,
	"notes":                      true,
	"valid_until":                true,
	"internal_id":                true,
	"manufacturer_id":            true,
}

// AllowedFields returns the reversible-field allow-list for an operation
// type, or nil when the type carries no entity fields (attachment, user,
// system operations produce reversal entries without touching any entity).
func AllowedFields(operationType string) map[string]bool {
	switch operationType {
	case models.OpTypeEquipment, models.OpTypeCalibration:
		return equipmentFields
	default:
		return nil
	}
}

// Encode serializes a snapshot to its stored text form. The encoding is
// deterministic: keys are emitted in sorted order. A nil or empty snapshot
// encodes to the empty string.
func Encode(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	// json.Marshal sorts map keys, which gives us the deterministic order.
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}

// Decode parses a stored snapshot. Malformed input yields an empty map, never
// an error: an entry whose old value cannot be recovered must still produce a
// no-op rollback rather than a hard failure.
func Decode(text string) map[string]any {
	if text == "" {
		return map[string]any{}
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return map[string]any{}
	}
	return fields
}

// EquipmentSnapshot projects an equipment row onto its allow-listed snapshot
// fields. Dates are rendered in DateLayout; nil dates become JSON null.
func EquipmentSnapshot(e models.Equipment) map[string]any {
	return map[string]any{
		"name":                       e.Name,
		"model":                      e.Model,
		"accuracy_level":             e.AccuracyLevel,
		"measurement_range":          e.MeasurementRange,
		"calibration_cycle":          e.CalibrationCycle,
		"calibration_date":           snapshotDate(e.CalibrationDate),
		"calibration_method":         e.CalibrationMethod,
		"current_calibration_result": e.CurrentCalibrationResult,
		"certificate_number":         e.CertificateNumber,
		"verification_agency":        e.VerificationAgency,
		"certificate_form":           e.CertificateForm,
		"installation_location":      e.InstallationLocation,
		"manufacturer":               e.Manufacturer,
		"manufacture_date":           snapshotDate(e.ManufactureDate),
		"scale_value":                e.ScaleValue,
		"management_level":           e.ManagementLevel,
		"original_value":             e.OriginalValue,
		"status":                     e.Status,
		"status_change_date":         snapshotDate(e.StatusChangeDate),
		"notes":                      e.Notes,
		"valid_until":                snapshotDate(e.ValidUntil),
		"internal_id":                e.InternalID,
		"manufacturer_id":            e.ManufacturerID,
	}
}

// Diff returns the before/after snapshots restricted to keys whose values
// differ, so log entries record only what an operation actually changed.
func Diff(before, after map[string]any) (oldChanged, newChanged map[string]any) {
	oldChanged = map[string]any{}
	newChanged = map[string]any{}
	for k, b := range before {
		a, ok := after[k]
		if !ok {
			continue
		}
		if !equalSnapshotValue(b, a) {
			oldChanged[k] = b
			newChanged[k] = a
		}
	}
	return oldChanged, newChanged
}

func equalSnapshotValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func snapshotDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(DateLayout)
}

// ParseSnapshotDate accepts the plain date form or a full ISO-8601 timestamp.
// The second return is false when the value is not a parsable date; callers
// skip the field rather than failing the rollback.
func ParseSnapshotDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
