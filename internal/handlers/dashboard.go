package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
)

type DashboardHandler struct {
	Equipment *repo.EquipmentRepo
	Logs      *oplog.Service
}

// Summary aggregates the ledger overview: equipment counts by status,
// calibration-due counters and the caller's operation-log statistics.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	withinDays := 30
	if d := r.URL.Query().Get("within_days"); d != "" {
		if val, err := strconv.Atoi(d); err == nil && val > 0 && val <= 365 {
			withinDays = val
		}
	}

	byStatus, err := h.Equipment.CountByStatus(r.Context())
	if err != nil {
		slog.Error("dashboard status counts failed", "err", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	due, overdue, err := h.Equipment.CalibrationDue(r.Context(), withinDays)
	if err != nil {
		slog.Error("dashboard calibration counters failed", "err", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	stats, err := h.Logs.Statistics(r.Context(), actorID, middleware.IsAdmin(r.Context()))
	if err != nil {
		logError(w, err)
		return
	}

	JSON(w, map[string]any{
		"equipment_by_status": byStatus,
		"calibration_due":     due,
		"calibration_overdue": overdue,
		"within_days":         withinDays,
		"operation_logs":      stats,
	}, http.StatusOK)
}
