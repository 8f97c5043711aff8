package oplog

import (
	"testing"

	"github.com/metroware/equip-ledger/internal/models"
)

func TestCanViewOrRollback(t *testing.T) {
	entry := models.OperationLog{ID: 1, UserID: 7}

	if !CanViewOrRollback(entry, 7, false) {
		t.Error("owner must see own entry")
	}
	if !CanViewOrRollback(entry, 99, true) {
		t.Error("admin must see every entry")
	}
	if CanViewOrRollback(entry, 99, false) {
		t.Error("non-admin must not see another actor's entry")
	}
}
