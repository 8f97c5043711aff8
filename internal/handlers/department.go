package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
)

type DepartmentHandler struct {
	Repo *repo.DepartmentRepo
	Logs *oplog.Service
}

type refInput struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
	Code string `json:"code" validate:"max=50"`
}

func decodeRefInput(w http.ResponseWriter, r *http.Request) (refInput, bool) {
	var input refInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return input, false
	}
	validate := validator.New()
	if err := validate.Struct(input); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return input, false
	}
	return input, true
}

func (h *DepartmentHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	input, ok := decodeRefInput(w, r)
	if !ok {
		return
	}

	dept, err := h.Repo.Create(r.Context(), input.Name, input.Code)
	if err != nil {
		slog.Error("create department failed", "err", err)
		JSONError(w, "failed to create department", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "departments",
		TargetID:      &dept.ID,
		Action:        models.ActionCreate,
		Description:   fmt.Sprintf("新增部门: %s", dept.Name),
		NewSnapshot:   map[string]any{"name": dept.Name, "code": dept.Code},
		OperationType: models.OpTypeSystem,
	})

	JSON(w, dept, http.StatusCreated)
}

func (h *DepartmentHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.Repo.List(r.Context())
	if err != nil {
		slog.Error("list departments failed", "err", err)
		JSONError(w, "failed to fetch departments", http.StatusInternalServerError)
		return
	}
	if depts == nil {
		depts = []models.Department{}
	}
	JSON(w, depts, http.StatusOK)
}

func (h *DepartmentHandler) UpdateDepartment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid department id", http.StatusBadRequest)
		return
	}
	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "department not found", http.StatusNotFound)
		return
	}
	input, ok := decodeRefInput(w, r)
	if !ok {
		return
	}

	dept, err := h.Repo.UpdateByID(r.Context(), id, input.Name, input.Code)
	if err != nil {
		slog.Error("update department failed", "id", id, "err", err)
		JSONError(w, "failed to update department", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "departments",
		TargetID:      &dept.ID,
		Action:        models.ActionUpdate,
		Description:   fmt.Sprintf("更新部门: %s", dept.Name),
		OldSnapshot:   map[string]any{"name": before.Name, "code": before.Code},
		NewSnapshot:   map[string]any{"name": dept.Name, "code": dept.Code},
		OperationType: models.OpTypeSystem,
	})

	JSON(w, dept, http.StatusOK)
}

func (h *DepartmentHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid department id", http.StatusBadRequest)
		return
	}
	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "department not found", http.StatusNotFound)
		return
	}

	if err := h.Repo.DeleteByID(r.Context(), id); err != nil {
		slog.Error("delete department failed", "id", id, "err", err)
		JSONError(w, "failed to delete department", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "departments",
		TargetID:      &id,
		Action:        models.ActionDelete,
		Description:   fmt.Sprintf("删除部门: %s", before.Name),
		OldSnapshot:   map[string]any{"name": before.Name, "code": before.Code},
		OperationType: models.OpTypeSystem,
	})

	w.WriteHeader(http.StatusNoContent)
}
