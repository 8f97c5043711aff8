package oplog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metroware/equip-ledger/internal/models"
)

// Service is the operation-log core: the append-only write path, the
// visibility-filtered read path, the rollback engine and the history
// reconstructor. It owns no state beyond the database handle and is safe for
// concurrent use.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RequestMeta carries informational request context stored alongside an
// entry. It never affects behavior.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WriteInput describes one entry to append. OldSnapshot/NewSnapshot are the
// allow-listed field maps before/after the operation; either may be nil for
// operations without entity state.
type WriteInput struct {
	ActorID       int
	EquipmentID   *int
	TargetTable   string
	TargetID      *int
	Action        string
	Description   string
	OldSnapshot   map[string]any
	NewSnapshot   map[string]any
	OperationType string
	Meta          RequestMeta
}

const logColumns = `id, user_id, equipment_id, COALESCE(target_table, ''), target_id,
		action, description, COALESCE(old_value, ''), COALESCE(new_value, ''), operation_type,
		parent_log_id, rollback_log_id, is_rollback, COALESCE(rollback_reason, ''),
		COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at`

// Write appends one entry. It is purely additive: it never reads or mutates
// the target entity, and a failure propagates unmodified so the caller's own
// transaction can decide whether to undo its entity mutation too.
func (s *Service) Write(ctx context.Context, in WriteInput) (models.OperationLog, error) {
	if in.ActorID <= 0 {
		return models.OperationLog{}, fmt.Errorf("oplog: actor id is required")
	}
	if strings.TrimSpace(in.Action) == "" {
		return models.OperationLog{}, fmt.Errorf("oplog: action is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return models.OperationLog{}, fmt.Errorf("oplog: description is required")
	}
	if in.OperationType == "" {
		return models.OperationLog{}, fmt.Errorf("oplog: operation type is required")
	}

	entry := models.OperationLog{
		UserID:        in.ActorID,
		EquipmentID:   in.EquipmentID,
		TargetTable:   in.TargetTable,
		TargetID:      in.TargetID,
		Action:        in.Action,
		Description:   in.Description,
		OldValue:      Encode(in.OldSnapshot),
		NewValue:      Encode(in.NewSnapshot),
		OperationType: in.OperationType,
		IPAddress:     in.Meta.IPAddress,
		UserAgent:     in.Meta.UserAgent,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO operation_logs
			(user_id, equipment_id, target_table, target_id, action, description,
			 old_value, new_value, operation_type, is_rollback, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11)
		 RETURNING id, created_at`,
		entry.UserID, entry.EquipmentID, nullString(entry.TargetTable), entry.TargetID,
		entry.Action, entry.Description, nullString(entry.OldValue), nullString(entry.NewValue),
		entry.OperationType, nullString(entry.IPAddress), nullString(entry.UserAgent),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return models.OperationLog{}, fmt.Errorf("oplog: insert entry: %w", err)
	}
	return entry, nil
}

// ListFilters narrows List results. UserID is honored for admins only; for
// regular callers the result set is always their own entries, so a
// caller-supplied UserID can never broaden visibility.
type ListFilters struct {
	EquipmentID   *int
	UserID        *int
	Action        string
	OperationType string
	IsRollback    *bool
	Start         *time.Time
	End           *time.Time
}

// List returns one page of visible entries, newest first, plus the total
// count over the same filter.
func (s *Service) List(ctx context.Context, f ListFilters, actorID int, isAdmin bool, skip, limit int) ([]models.OperationLog, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if !isAdmin {
		add("user_id = $%d", actorID)
	} else if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.EquipmentID != nil {
		add("equipment_id = $%d", *f.EquipmentID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.OperationType != "" {
		add("operation_type = $%d", f.OperationType)
	}
	if f.IsRollback != nil {
		add("is_rollback = $%d", *f.IsRollback)
	}
	if f.Start != nil {
		add("created_at >= $%d", *f.Start)
	}
	if f.End != nil {
		add("created_at <= $%d", *f.End)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM operation_logs"+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("oplog: count entries: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM operation_logs%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		logColumns, whereSQL, len(args)+1, len(args)+2,
	)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("oplog: list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.OperationLog
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// Get returns one visible entry. An entry the caller may not see is reported
// as ErrNotFound, not ErrForbidden; the store does not reveal existence.
func (s *Service) Get(ctx context.Context, logID int64, actorID int, isAdmin bool) (models.OperationLog, error) {
	entry, err := s.fetch(ctx, s.db, logID)
	if err != nil {
		return models.OperationLog{}, err
	}
	if !CanViewOrRollback(entry, actorID, isAdmin) {
		return models.OperationLog{}, ErrNotFound
	}
	return entry, nil
}

// Stats summarizes the caller-visible slice of the log.
type Stats struct {
	Total           int            `json:"total"`
	ByOperationType map[string]int `json:"by_operation_type"`
	ByAction        map[string]int `json:"by_action"`
	RollbackCount   int            `json:"rollback_count"`
	Recent7DayCount int            `json:"recent_7day_count"`
}

// Statistics computes totals over the same visibility-restricted set List
// uses.
func (s *Service) Statistics(ctx context.Context, actorID int, isAdmin bool) (Stats, error) {
	whereSQL := ""
	var args []any
	if !isAdmin {
		whereSQL = " WHERE user_id = $1"
		args = append(args, actorID)
	}

	stats := Stats{
		ByOperationType: map[string]int{},
		ByAction:        map[string]int{},
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_rollback),
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days')
		 FROM operation_logs`+whereSQL, args...,
	).Scan(&stats.Total, &stats.RollbackCount, &stats.Recent7DayCount)
	if err != nil {
		return Stats{}, fmt.Errorf("oplog: statistics totals: %w", err)
	}

	if err := s.groupCount(ctx, "operation_type", whereSQL, args, stats.ByOperationType); err != nil {
		return Stats{}, err
	}
	if err := s.groupCount(ctx, "action", whereSQL, args, stats.ByAction); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Service) groupCount(ctx context.Context, column, whereSQL string, args []any, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM operation_logs%s GROUP BY %s", column, whereSQL, column),
		args...,
	)
	if err != nil {
		return fmt.Errorf("oplog: statistics by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("oplog: statistics by %s: %w", column, err)
		}
		out[key] = n
	}
	return rows.Err()
}

// Cleanup deletes entries older than the cutoff. Reversal entries are kept
// permanently regardless of age, and so are originals that have been
// reversed: deleting one would leave its reversal's parent pointer dangling.
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("oplog: retention days must be >= 0")
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM operation_logs
		 WHERE created_at < $1 AND is_rollback = FALSE AND rollback_log_id IS NULL`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("oplog: cleanup: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("oplog: cleanup: %w", err)
	}
	return deleted, nil
}

// fetch loads one entry by id with no visibility filter. q is either the
// service's pool or a transaction.
func (s *Service) fetch(ctx context.Context, q queryer, logID int64) (models.OperationLog, error) {
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM operation_logs WHERE id = $1", logColumns), logID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OperationLog{}, ErrNotFound
	}
	return entry, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.OperationLog, error) {
	var e models.OperationLog
	var equipmentID, targetID sql.NullInt64
	var parentID, rollbackID sql.NullInt64
	err := row.Scan(
		&e.ID, &e.UserID, &equipmentID, &e.TargetTable, &targetID,
		&e.Action, &e.Description, &e.OldValue, &e.NewValue, &e.OperationType,
		&parentID, &rollbackID, &e.IsRollback, &e.RollbackReason,
		&e.IPAddress, &e.UserAgent, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OperationLog{}, err
		}
		return models.OperationLog{}, fmt.Errorf("oplog: scan entry: %w", err)
	}
	if equipmentID.Valid {
		v := int(equipmentID.Int64)
		e.EquipmentID = &v
	}
	if targetID.Valid {
		v := int(targetID.Int64)
		e.TargetID = &v
	}
	if parentID.Valid {
		v := parentID.Int64
		e.ParentLogID = &v
	}
	if rollbackID.Valid {
		v := rollbackID.Int64
		e.RollbackLogID = &v
	}
	return e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
