package oplog

import (
	"testing"
	"time"

	"github.com/metroware/equip-ledger/internal/models"
)

func TestEncode_Deterministic(t *testing.T) {
	fields := map[string]any{
		"status":           "在用",
		"name":             "pressure gauge",
		"calibration_date": "2024-05-01",
	}
	first := Encode(fields)
	for i := 0; i < 10; i++ {
		if got := Encode(fields); got != first {
			t.Fatalf("encoding not deterministic: %q vs %q", got, first)
		}
	}
	want := `{"calibration_date":"2024-05-01","name":"pressure gauge","status":"在用"}`
	if first != want {
		t.Errorf("Encode: got %q, want %q", first, want)
	}
}

func TestEncode_Empty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil): got %q, want empty", got)
	}
	if got := Encode(map[string]any{}); got != "" {
		t.Errorf("Encode(empty): got %q, want empty", got)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	fields := map[string]any{
		"name":              "caliper",
		"calibration_cycle": float64(12),
		"original_value":    1250.5,
		"enabled":           true,
		"valid_until":       "2025-06-30",
		"notes":             nil,
	}
	decoded := Decode(Encode(fields))
	if len(decoded) != len(fields) {
		t.Fatalf("round trip lost keys: %+v", decoded)
	}
	for k, v := range fields {
		got, ok := decoded[k]
		if !ok {
			t.Errorf("round trip dropped %q", k)
			continue
		}
		if v == nil {
			if got != nil {
				t.Errorf("%q: got %v, want nil", k, got)
			}
			continue
		}
		if got != v {
			t.Errorf("%q: got %v (%T), want %v (%T)", k, got, got, v, v)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, in := range []string{"", "{not json", "[1,2,3]", "null", `"just a string"`} {
		got := Decode(in)
		if got == nil {
			t.Errorf("Decode(%q): got nil, want empty map", in)
		}
		if len(got) != 0 {
			t.Errorf("Decode(%q): got %+v, want empty map", in, got)
		}
	}
}

func TestAllowedFields(t *testing.T) {
	eq := AllowedFields(models.OpTypeEquipment)
	if !eq["status"] || !eq["calibration_date"] || !eq["manufacturer_id"] {
		t.Errorf("equipment allow-list incomplete: %+v", eq)
	}
	if eq["id"] || eq["department_id"] {
		t.Error("equipment allow-list must not contain identity or ownership fields")
	}
	if AllowedFields(models.OpTypeCalibration) == nil {
		t.Error("calibration operations must share the equipment allow-list")
	}
	for _, op := range []string{models.OpTypeAttachment, models.OpTypeUser, models.OpTypeSystem, "unknown"} {
		if AllowedFields(op) != nil {
			t.Errorf("AllowedFields(%q): want nil", op)
		}
	}
}

func TestDiff(t *testing.T) {
	before := map[string]any{"status": "在用", "name": "gauge", "notes": ""}
	after := map[string]any{"status": "停用", "name": "gauge", "notes": ""}
	oldChanged, newChanged := Diff(before, after)
	if len(oldChanged) != 1 || oldChanged["status"] != "在用" {
		t.Errorf("old diff: got %+v", oldChanged)
	}
	if len(newChanged) != 1 || newChanged["status"] != "停用" {
		t.Errorf("new diff: got %+v", newChanged)
	}
}

func TestParseSnapshotDate(t *testing.T) {
	if d, ok := ParseSnapshotDate("2024-05-01"); !ok || d.Year() != 2024 || d.Month() != time.May {
		t.Errorf("plain date: got %v, %v", d, ok)
	}
	if d, ok := ParseSnapshotDate("2024-05-01T08:30:00Z"); !ok || d.Day() != 1 {
		t.Errorf("RFC3339 date: got %v, %v", d, ok)
	}
	for _, bad := range []any{"not-a-date", "", nil, 42.0, true} {
		if _, ok := ParseSnapshotDate(bad); ok {
			t.Errorf("ParseSnapshotDate(%v): want not ok", bad)
		}
	}
}

func TestEquipmentSnapshot_AllowListed(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	snap := EquipmentSnapshot(models.Equipment{
		ID:              3,
		Name:            "gauge",
		Status:          "在用",
		CalibrationDate: &now,
	})
	allowed := AllowedFields(models.OpTypeEquipment)
	for k := range snap {
		if !allowed[k] {
			t.Errorf("snapshot key %q is outside the allow-list", k)
		}
	}
	if snap["calibration_date"] != "2024-05-01" {
		t.Errorf("calibration_date: got %v", snap["calibration_date"])
	}
	if snap["valid_until"] != nil {
		t.Errorf("nil date should stay nil, got %v", snap["valid_until"])
	}
}
