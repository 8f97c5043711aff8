package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
)

type CategoryHandler struct {
	Repo *repo.CategoryRepo
	Logs *oplog.Service
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	input, ok := decodeRefInput(w, r)
	if !ok {
		return
	}

	cat, err := h.Repo.Create(r.Context(), input.Name, input.Code)
	if err != nil {
		slog.Error("create category failed", "err", err)
		JSONError(w, "failed to create category", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "categories",
		TargetID:      &cat.ID,
		Action:        models.ActionCreate,
		Description:   fmt.Sprintf("新增器具类别: %s", cat.Name),
		NewSnapshot:   map[string]any{"name": cat.Name, "code": cat.Code},
		OperationType: models.OpTypeSystem,
	})

	JSON(w, cat, http.StatusCreated)
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Repo.List(r.Context())
	if err != nil {
		slog.Error("list categories failed", "err", err)
		JSONError(w, "failed to fetch categories", http.StatusInternalServerError)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	JSON(w, cats, http.StatusOK)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid category id", http.StatusBadRequest)
		return
	}
	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "category not found", http.StatusNotFound)
		return
	}
	input, ok := decodeRefInput(w, r)
	if !ok {
		return
	}

	cat, err := h.Repo.UpdateByID(r.Context(), id, input.Name, input.Code)
	if err != nil {
		slog.Error("update category failed", "id", id, "err", err)
		JSONError(w, "failed to update category", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "categories",
		TargetID:      &cat.ID,
		Action:        models.ActionUpdate,
		Description:   fmt.Sprintf("更新器具类别: %s", cat.Name),
		OldSnapshot:   map[string]any{"name": before.Name, "code": before.Code},
		NewSnapshot:   map[string]any{"name": cat.Name, "code": cat.Code},
		OperationType: models.OpTypeSystem,
	})

	JSON(w, cat, http.StatusOK)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, "invalid category id", http.StatusBadRequest)
		return
	}
	before, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		JSONError(w, "category not found", http.StatusNotFound)
		return
	}

	if err := h.Repo.DeleteByID(r.Context(), id); err != nil {
		slog.Error("delete category failed", "id", id, "err", err)
		JSONError(w, "failed to delete category", http.StatusInternalServerError)
		return
	}

	recordLog(r, h.Logs, oplog.WriteInput{
		ActorID:       actorID,
		TargetTable:   "categories",
		TargetID:      &id,
		Action:        models.ActionDelete,
		Description:   fmt.Sprintf("删除器具类别: %s", before.Name),
		OldSnapshot:   map[string]any{"name": before.Name, "code": before.Code},
		OperationType: models.OpTypeSystem,
	})

	w.WriteHeader(http.StatusNoContent)
}
