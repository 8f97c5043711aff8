package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/metroware/equip-ledger/internal/metrics"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/metroware/equip-ledger/internal/oplog"
)

type OpLogHandler struct {
	Logs *oplog.Service
}

// logError maps the log store's sentinel errors onto HTTP statuses.
func logError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oplog.ErrNotFound):
		JSONError(w, "log entry not found", http.StatusNotFound)
	case errors.Is(err, oplog.ErrForbidden):
		JSONError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, oplog.ErrConflict):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, oplog.ErrApply):
		JSONError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("operation log request failed", "err", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
	}
}

//
// ==========================
// List Logs
// ==========================
//

func (h *OpLogHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	skip := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 500 {
			limit = val
		}
	}
	if s := r.URL.Query().Get("skip"); s != "" {
		if val, err := strconv.Atoi(s); err == nil && val >= 0 {
			skip = val
		}
	}

	q := r.URL.Query()
	filters := oplog.ListFilters{
		Action:        q.Get("action"),
		OperationType: q.Get("operation_type"),
	}
	if e := q.Get("equipment_id"); e != "" {
		if val, err := strconv.Atoi(e); err == nil {
			filters.EquipmentID = &val
		}
	}
	if u := q.Get("user_id"); u != "" {
		if val, err := strconv.Atoi(u); err == nil {
			filters.UserID = &val
		}
	}
	if v := q.Get("is_rollback"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filters.IsRollback = &b
		}
	}
	if v := q.Get("start"); v != "" {
		if t, err := time.Parse(oplog.DateLayout, v); err == nil {
			filters.Start = &t
		}
	}
	if v := q.Get("end"); v != "" {
		if t, err := time.Parse(oplog.DateLayout, v); err == nil {
			// Inclusive end date.
			t = t.AddDate(0, 0, 1).Add(-time.Second)
			filters.End = &t
		}
	}

	entries, total, err := h.Logs.List(r.Context(), filters, actorID, middleware.IsAdmin(r.Context()), skip, limit)
	if err != nil {
		logError(w, err)
		return
	}
	if entries == nil {
		entries = []models.OperationLog{}
	}

	JSON(w, map[string]any{"items": entries, "total": total}, http.StatusOK)
}

//
// ==========================
// Get Log
// ==========================
//

func (h *OpLogHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		JSONError(w, "invalid log id", http.StatusBadRequest)
		return
	}

	entry, err := h.Logs.Get(r.Context(), id, actorID, middleware.IsAdmin(r.Context()))
	if err != nil {
		logError(w, err)
		return
	}

	JSON(w, entry, http.StatusOK)
}

//
// ==========================
// Log History
// ==========================
//

func (h *OpLogHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		JSONError(w, "invalid log id", http.StatusBadRequest)
		return
	}

	view, err := h.Logs.History(r.Context(), id, actorID, middleware.IsAdmin(r.Context()))
	if err != nil {
		logError(w, err)
		return
	}

	JSON(w, view, http.StatusOK)
}

//
// ==========================
// Rollback
// ==========================
//

func (h *OpLogHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		JSONError(w, "invalid log id", http.StatusBadRequest)
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	fields := make(map[string]string)
	if strings.TrimSpace(input.Reason) == "" {
		fields["reason"] = "required"
	}
	if len(fields) > 0 {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	meta := oplog.RequestMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	reversal, err := h.Logs.Rollback(r.Context(), id, actorID, middleware.IsAdmin(r.Context()), input.Reason, meta)
	if err != nil {
		metrics.RecordRollback(rollbackOutcome(err))
		logError(w, err)
		return
	}
	metrics.RecordRollback("success")
	metrics.RecordLogWritten(reversal.OperationType)

	JSON(w, reversal, http.StatusCreated)
}

func rollbackOutcome(err error) string {
	switch {
	case errors.Is(err, oplog.ErrNotFound):
		return "not_found"
	case errors.Is(err, oplog.ErrForbidden):
		return "forbidden"
	case errors.Is(err, oplog.ErrConflict):
		return "conflict"
	case errors.Is(err, oplog.ErrApply):
		return "apply_error"
	default:
		return "error"
	}
}

//
// ==========================
// Statistics
// ==========================
//

func (h *OpLogHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.Logs.Statistics(r.Context(), actorID, middleware.IsAdmin(r.Context()))
	if err != nil {
		logError(w, err)
		return
	}

	JSON(w, stats, http.StatusOK)
}

//
// ==========================
// Cleanup
// ==========================
//

// Cleanup removes expired entries past the retention window. Admin only.
func (h *OpLogHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !middleware.IsAdmin(r.Context()) {
		JSONError(w, "forbidden", http.StatusForbidden)
		return
	}

	days := 365
	if d := r.URL.Query().Get("days"); d != "" {
		val, err := strconv.Atoi(d)
		if err != nil || val < 0 {
			JSONError(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = val
	}

	deleted, err := h.Logs.Cleanup(r.Context(), days)
	if err != nil {
		logError(w, err)
		return
	}
	metrics.RecordCleanup(deleted)
	slog.Info("operation log cleanup", "days", days, "deleted", deleted)

	JSON(w, map[string]any{"deleted": deleted, "days": days}, http.StatusOK)
}
