package oplog

import "github.com/metroware/equip-ledger/internal/models"

// CanViewOrRollback is the single visibility rule for the operation log: the
// caller owns the entry, or the caller is an admin. Log access is deliberately
// actor-scoped and does not use the equipment-level permission model used by
// the rest of the application.
func CanViewOrRollback(entry models.OperationLog, actorID int, isAdmin bool) bool {
	return isAdmin || entry.UserID == actorID
}
