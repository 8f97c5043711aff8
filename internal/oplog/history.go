package oplog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/metroware/equip-ledger/internal/models"
)

// LogView is a log entry flattened for display: the actor is resolved to a
// display name instead of a reference to the full user row.
type LogView struct {
	models.OperationLog
	ActorName string `json:"actor_name,omitempty"`
}

// EquipmentState is the live-entity projection attached to a history view.
// It is read fresh from the equipment row, never from a snapshot.
type EquipmentState struct {
	ID                       int        `json:"id"`
	Name                     string     `json:"name"`
	Status                   string     `json:"status"`
	CalibrationDate          *time.Time `json:"calibration_date,omitempty"`
	ValidUntil               *time.Time `json:"valid_until,omitempty"`
	CurrentCalibrationResult string     `json:"current_calibration_result,omitempty"`
}

// HistoryView is the causal chain of one operation: the original entry, its
// reversal entries in chronological order (at most one under the current
// rules), and the target equipment's current state. Every field is an
// independent flat copy; nothing references back into the object graph.
type HistoryView struct {
	Original  LogView         `json:"original"`
	Rollbacks []LogView       `json:"rollbacks"`
	Equipment *EquipmentState `json:"equipment,omitempty"`
}

// History reconstructs the causal chain for one entry. When called with a
// reversal entry's id, the chain is anchored at its original. Visibility is
// checked against the requested entry: ErrForbidden when it is not the
// caller's and the caller is not an admin.
func (s *Service) History(ctx context.Context, logID int64, actorID int, isAdmin bool) (HistoryView, error) {
	entry, err := s.fetch(ctx, s.db, logID)
	if err != nil {
		return HistoryView{}, err
	}
	if !CanViewOrRollback(entry, actorID, isAdmin) {
		return HistoryView{}, ErrForbidden
	}

	original := entry
	if entry.IsRollback && entry.ParentLogID != nil {
		original, err = s.fetch(ctx, s.db, *entry.ParentLogID)
		if err != nil {
			return HistoryView{}, err
		}
	}

	rollbacks, err := s.reversalsOf(ctx, original.ID)
	if err != nil {
		return HistoryView{}, err
	}

	names, err := s.usernames(ctx, collectUserIDs(original, rollbacks))
	if err != nil {
		return HistoryView{}, err
	}

	view := HistoryView{
		Original:  LogView{OperationLog: original, ActorName: names[original.UserID]},
		Rollbacks: make([]LogView, 0, len(rollbacks)),
	}
	for _, r := range rollbacks {
		view.Rollbacks = append(view.Rollbacks, LogView{OperationLog: r, ActorName: names[r.UserID]})
	}

	if original.EquipmentID != nil {
		state, err := s.equipmentState(ctx, *original.EquipmentID)
		if err != nil {
			return HistoryView{}, err
		}
		view.Equipment = state
	}
	return view, nil
}

// reversalsOf lists reversal entries by parent pointer rather than following
// the back-link, so originals written before back-links existed still show
// their reversal.
func (s *Service) reversalsOf(ctx context.Context, originalID int64) ([]models.OperationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM operation_logs WHERE parent_log_id = $1 AND is_rollback ORDER BY id", logColumns),
		originalID,
	)
	if err != nil {
		return nil, fmt.Errorf("oplog: list reversals: %w", err)
	}
	defer rows.Close()

	var out []models.OperationLog
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) usernames(ctx context.Context, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("oplog: resolve actors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("oplog: resolve actors: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// equipmentState returns nil when the equipment row has been deleted; the
// history of a deleted equipment's operations remains viewable.
func (s *Service) equipmentState(ctx context.Context, equipmentID int) (*EquipmentState, error) {
	var st EquipmentState
	var calDate, validUntil sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, calibration_date, valid_until, COALESCE(current_calibration_result, '')
		 FROM equipment WHERE id = $1`, equipmentID,
	).Scan(&st.ID, &st.Name, &st.Status, &calDate, &validUntil, &st.CurrentCalibrationResult)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oplog: equipment state: %w", err)
	}
	if calDate.Valid {
		t := calDate.Time
		st.CalibrationDate = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		st.ValidUntil = &t
	}
	return &st, nil
}

func collectUserIDs(original models.OperationLog, rollbacks []models.OperationLog) []int {
	seen := map[int]bool{original.UserID: true}
	ids := []int{original.UserID}
	for _, r := range rollbacks {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	return ids
}
