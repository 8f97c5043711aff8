package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
)

type CalibrationHandler struct {
	Equipment *repo.EquipmentRepo
	History   *repo.CalibrationRepo
	Logs      *oplog.Service
}

//
// ==========================
// Record Calibration
// ==========================
//

// RecordCalibration stores a new calibration for an equipment: the equipment's
// current calibration fields are updated, a history row is inserted, and the
// field changes are logged as a calibration operation. A failed result
// scraps the equipment.
func (h *CalibrationHandler) RecordCalibration(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid equipment id", http.StatusBadRequest)
		return
	}

	var input struct {
		CalibrationDate    string `json:"calibration_date" validate:"required"`
		Result             string `json:"result" validate:"required"`
		CertificateNumber  string `json:"certificate_number" validate:"max=100"`
		VerificationAgency string `json:"verification_agency" validate:"max=255"`
		ValidUntil         string `json:"valid_until"`
		Notes              string `json:"notes" validate:"max=2000"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// ===== Validate input =====
	validate := validator.New()
	if err := validate.Struct(input); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if input.Result != models.ResultPass && input.Result != models.ResultFail {
		JSONError(w, "invalid result", http.StatusBadRequest)
		return
	}

	calDate, err := time.Parse(oplog.DateLayout, input.CalibrationDate)
	if err != nil {
		JSONError(w, "invalid calibration_date", http.StatusBadRequest)
		return
	}
	validUntil, err := parseDate(input.ValidUntil)
	if err != nil {
		JSONError(w, "invalid valid_until", http.StatusBadRequest)
		return
	}
	before, err := h.Equipment.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "equipment not found", http.StatusNotFound)
		return
	}
	if validUntil == nil && input.Result == models.ResultPass && before.CalibrationCycle > 0 {
		// A passing calibration defaults to the equipment's cycle.
		t := calDate.AddDate(0, before.CalibrationCycle, 0)
		validUntil = &t
	}

	next := before
	next.CalibrationDate = &calDate
	next.CurrentCalibrationResult = input.Result
	next.CertificateNumber = input.CertificateNumber
	next.VerificationAgency = input.VerificationAgency
	next.ValidUntil = validUntil
	if input.Result == models.ResultFail {
		now := time.Now()
		next.Status = models.StatusScrapped
		next.StatusChangeDate = &now
	}

	updated, err := h.Equipment.UpdateByID(r.Context(), id, next)
	if err != nil {
		slog.Error("calibration update failed", "id", id, "err", err)
		JSONError(w, "failed to record calibration", http.StatusInternalServerError)
		return
	}

	record, err := h.History.Create(r.Context(), models.CalibrationRecord{
		EquipmentID:        id,
		CalibrationDate:    calDate,
		Result:             input.Result,
		CertificateNumber:  input.CertificateNumber,
		VerificationAgency: input.VerificationAgency,
		ValidUntil:         validUntil,
		Notes:              input.Notes,
	})
	if err != nil {
		slog.Error("calibration history insert failed", "id", id, "err", err)
		JSONError(w, "failed to record calibration", http.StatusInternalServerError)
		return
	}

	oldChanged, newChanged := oplog.Diff(oplog.EquipmentSnapshot(before), oplog.EquipmentSnapshot(updated))
	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		EquipmentID:   &id,
		TargetTable:   "calibration_history",
		TargetID:      &record.ID,
		Action:        models.ActionCalibrationUpdate,
		Description:   fmt.Sprintf("更新检定信息: %s (%s)", updated.Name, input.Result),
		OldSnapshot:   oldChanged,
		NewSnapshot:   newChanged,
		OperationType: models.OpTypeCalibration,
	})

	JSON(w, map[string]any{"equipment": updated, "record": record}, http.StatusCreated)
}

//
// ==========================
// Calibration History
// ==========================
//

func (h *CalibrationHandler) ListCalibrations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid equipment id", http.StatusBadRequest)
		return
	}

	records, err := h.History.ListByEquipment(r.Context(), id)
	if err != nil {
		slog.Error("list calibrations failed", "id", id, "err", err)
		JSONError(w, "failed to fetch calibration history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.CalibrationRecord{}
	}

	JSON(w, records, http.StatusOK)
}
