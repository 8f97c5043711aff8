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
	"github.com/metroware/equip-ledger/internal/metrics"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
)

type EquipmentHandler struct {
	Repo *repo.EquipmentRepo
	Logs *oplog.Service
}

type equipmentInput struct {
	Name                     string  `json:"name" validate:"required,min=1,max=255"`
	Model                    string  `json:"model" validate:"max=255"`
	AccuracyLevel            string  `json:"accuracy_level" validate:"max=100"`
	MeasurementRange         string  `json:"measurement_range" validate:"max=255"`
	CalibrationCycle         int     `json:"calibration_cycle" validate:"min=0,max=120"`
	CalibrationDate          string  `json:"calibration_date"`
	CalibrationMethod        string  `json:"calibration_method" validate:"max=100"`
	CurrentCalibrationResult string  `json:"current_calibration_result" validate:"max=50"`
	CertificateNumber        string  `json:"certificate_number" validate:"max=100"`
	VerificationAgency       string  `json:"verification_agency" validate:"max=255"`
	CertificateForm          string  `json:"certificate_form" validate:"max=100"`
	InstallationLocation     string  `json:"installation_location" validate:"max=255"`
	Manufacturer             string  `json:"manufacturer" validate:"max=255"`
	ManufactureDate          string  `json:"manufacture_date"`
	ScaleValue               string  `json:"scale_value" validate:"max=100"`
	ManagementLevel          string  `json:"management_level" validate:"max=50"`
	OriginalValue            float64 `json:"original_value" validate:"min=0"`
	Status                   string  `json:"status"`
	StatusChangeDate         string  `json:"status_change_date"`
	Notes                    string  `json:"notes" validate:"max=2000"`
	ValidUntil               string  `json:"valid_until"`
	InternalID               string  `json:"internal_id" validate:"max=100"`
	ManufacturerID           string  `json:"manufacturer_id" validate:"max=100"`
	DepartmentID             *int    `json:"department_id"`
	CategoryID               *int    `json:"category_id"`
}

// toModel builds the equipment row from the input. Date strings use the
// 2006-01-02 form; an unparsable date is reported, not skipped.
func (in equipmentInput) toModel() (models.Equipment, error) {
	e := models.Equipment{
		Name:                     in.Name,
		Model:                    in.Model,
		AccuracyLevel:            in.AccuracyLevel,
		MeasurementRange:         in.MeasurementRange,
		CalibrationCycle:         in.CalibrationCycle,
		CalibrationMethod:        in.CalibrationMethod,
		CurrentCalibrationResult: in.CurrentCalibrationResult,
		CertificateNumber:        in.CertificateNumber,
		VerificationAgency:       in.VerificationAgency,
		CertificateForm:          in.CertificateForm,
		InstallationLocation:     in.InstallationLocation,
		Manufacturer:             in.Manufacturer,
		ScaleValue:               in.ScaleValue,
		ManagementLevel:          in.ManagementLevel,
		OriginalValue:            in.OriginalValue,
		Status:                   in.Status,
		Notes:                    in.Notes,
		InternalID:               in.InternalID,
		ManufacturerID:           in.ManufacturerID,
		DepartmentID:             in.DepartmentID,
		CategoryID:               in.CategoryID,
	}
	if e.Status == "" {
		e.Status = models.StatusInUse
	}

	var err error
	if e.CalibrationDate, err = parseDate(in.CalibrationDate); err != nil {
		return models.Equipment{}, fmt.Errorf("invalid calibration_date")
	}
	if e.ManufactureDate, err = parseDate(in.ManufactureDate); err != nil {
		return models.Equipment{}, fmt.Errorf("invalid manufacture_date")
	}
	if e.StatusChangeDate, err = parseDate(in.StatusChangeDate); err != nil {
		return models.Equipment{}, fmt.Errorf("invalid status_change_date")
	}
	if e.ValidUntil, err = parseDate(in.ValidUntil); err != nil {
		return models.Equipment{}, fmt.Errorf("invalid valid_until")
	}
	return e, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(oplog.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// recordLog appends an audit entry for a completed mutation. A logging
// failure never undoes the mutation; it is reported and the request still
// succeeds.
func recordLog(r *http.Request, logs *oplog.Service, in oplog.WriteInput) {
	in.Meta = oplog.RequestMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if _, err := logs.Write(r.Context(), in); err != nil {
		slog.Error("operation log write failed", "action", in.Action, "err", err)
		return
	}
	metrics.RecordLogWritten(in.OperationType)
}

//
// ==========================
// Create Equipment
// ==========================
//

func (h *EquipmentHandler) CreateEquipment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var input equipmentInput
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

	e, err := input.toModel()
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Repo.Create(r.Context(), e)
	if err != nil {
		slog.Error("create equipment failed", "err", err)
		JSONError(w, "failed to create equipment", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		EquipmentID:   &created.ID,
		TargetTable:   "equipment",
		TargetID:      &created.ID,
		Action:        models.ActionCreate,
		Description:   fmt.Sprintf("新增设备: %s", created.Name),
		NewSnapshot:   oplog.EquipmentSnapshot(created),
		OperationType: models.OpTypeEquipment,
	})

	JSON(w, created, http.StatusCreated)
}

//
// ==========================
// List Equipment
// ==========================
//

func (h *EquipmentHandler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 200 {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}

	filters := repo.ListFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	if d := r.URL.Query().Get("department_id"); d != "" {
		if val, err := strconv.Atoi(d); err == nil {
			filters.DepartmentID = &val
		}
	}
	if c := r.URL.Query().Get("category_id"); c != "" {
		if val, err := strconv.Atoi(c); err == nil {
			filters.CategoryID = &val
		}
	}

	list, total, err := h.Repo.List(r.Context(), filters, limit, offset)
	if err != nil {
		slog.Error("list equipment failed", "err", err)
		JSONError(w, "failed to fetch equipment", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Equipment{}
	}

	JSON(w, map[string]any{"items": list, "total": total}, http.StatusOK)
}

//
// ==========================
// Get Equipment By ID
// ==========================
//

func (h *EquipmentHandler) GetEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid equipment id", http.StatusBadRequest)
		return
	}

	e, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "equipment not found", http.StatusNotFound)
		return
	}

	JSON(w, e, http.StatusOK)
}

//
// ==========================
// Update Equipment
// ==========================
//

func (h *EquipmentHandler) UpdateEquipment(w http.ResponseWriter, r *http.Request) {
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

	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "equipment not found", http.StatusNotFound)
		return
	}

	var input equipmentInput
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

	e, err := input.toModel()
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.Repo.UpdateByID(r.Context(), id, e)
	if err != nil {
		slog.Error("update equipment failed", "id", id, "err", err)
		JSONError(w, "failed to update equipment", http.StatusInternalServerError)
		return
	}

	// Log only the fields the update actually changed.
	oldChanged, newChanged := oplog.Diff(oplog.EquipmentSnapshot(before), oplog.EquipmentSnapshot(updated))
	if len(newChanged) > 0 {
		recordLog(r, h.Logs, oplog.WriteInput{
			ActorID:       actorID,
			EquipmentID:   &updated.ID,
			TargetTable:   "equipment",
			TargetID:      &updated.ID,
			Action:        models.ActionUpdate,
			Description:   fmt.Sprintf("更新设备: %s", updated.Name),
			OldSnapshot:   oldChanged,
			NewSnapshot:   newChanged,
			OperationType: models.OpTypeEquipment,
		})
	}

	JSON(w, updated, http.StatusOK)
}

//
// ==========================
// Delete Equipment
// ==========================
//

func (h *EquipmentHandler) DeleteEquipment(w http.ResponseWriter, r *http.Request) {
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

	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "equipment not found", http.StatusNotFound)
		return
	}

	if err := h.Repo.DeleteByID(r.Context(), id); err != nil {
		slog.Error("delete equipment failed", "id", id, "err", err)
		JSONError(w, "failed to delete equipment", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		EquipmentID:   &id,
		TargetTable:   "equipment",
		TargetID:      &id,
		Action:        models.ActionDelete,
		Description:   fmt.Sprintf("删除设备: %s", before.Name),
		OldSnapshot:   oplog.EquipmentSnapshot(before),
		OperationType: models.OpTypeEquipment,
	})

	w.WriteHeader(http.StatusNoContent)
}

//
// ==========================
// Batch Update Status
// ==========================
//

// BatchUpdateStatus moves a set of equipment to a new status, logging one
// entry per row so each move is individually reversible.
func (h *EquipmentHandler) BatchUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var input struct {
		IDs    []int  `json:"ids" validate:"required,min=1,max=100"`
		Status string `json:"status" validate:"required"`
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
	switch input.Status {
	case models.StatusInUse, models.StatusStopped, models.StatusScrapped:
	default:
		JSONError(w, "invalid status", http.StatusBadRequest)
		return
	}

	now := time.Now()
	updatedCount := 0
	var failed []int
	for _, id := range input.IDs {
		before, err := h.Repo.GetByID(r.Context(), id)
		if err != nil {
			failed = append(failed, id)
			continue
		}
		next := before
		next.Status = input.Status
		next.StatusChangeDate = &now

		updated, err := h.Repo.UpdateByID(r.Context(), id, next)
		if err != nil {
			slog.Error("batch status update failed", "id", id, "err", err)
			failed = append(failed, id)
			continue
		}
		updatedCount++

		oldChanged, newChanged := oplog.Diff(oplog.EquipmentSnapshot(before), oplog.EquipmentSnapshot(updated))
		if len(newChanged) > 0 {
			recordLog(r, h.Logs, oplog.WriteInput{
				ActorID:       actorID,
				EquipmentID:   &id,
				TargetTable:   "equipment",
				TargetID:      &id,
				Action:        models.ActionUpdate,
				Description:   fmt.Sprintf("批量变更状态为%s: %s", input.Status, updated.Name),
				OldSnapshot:   oldChanged,
				NewSnapshot:   newChanged,
				OperationType: models.OpTypeEquipment,
			})
		}
	}

	JSON(w, map[string]any{"updated": updatedCount, "failed": failed}, http.StatusOK)
}
