// Package handler содержит HTTP-обработчики API сервиса анкет.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stuhub/experience-system/internal/middleware"
	"github.com/stuhub/experience-system/internal/model"
	"github.com/stuhub/experience-system/internal/repository"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetRecord(ctx context.Context, userID int64) (*model.ExperienceRecord, error)
	CreateRecord(ctx context.Context, userID int64) (*model.ExperienceRecord, error)
	SaveProgress(ctx context.Context, userID int64, id string, patch model.Patch) (*model.ExperienceRecord, error)
	Submit(ctx context.Context, userID int64, id string, patch model.Patch) (*model.ExperienceRecord, error)
	DeleteRecord(ctx context.Context, userID int64) error
}

// Handler реализует HTTP-обработчики API сервиса анкет.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type sessionRequest struct {
	UserID int64 `json:"user_id"`
}

// CreateSession устанавливает cookie авторизации для указанного пользователя.
// Разрешение личности выполняется внешней системой; здесь принимается уже
// проверенный идентификатор.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.UserID)
	w.WriteHeader(http.StatusOK)
}

// ListExperiences возвращает список анкет текущего пользователя (ноль или одну).
func (h *Handler) ListExperiences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	rec, err := h.service.GetRecord(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			writeJSON(w, http.StatusOK, []*model.ExperienceRecord{})
			return
		}
		h.logger.Error("list experiences error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, []*model.ExperienceRecord{rec})
}

// CreateExperience создаёт пустую анкету для текущего пользователя.
func (h *Handler) CreateExperience(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	rec, err := h.service.CreateRecord(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create experience error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

type updateRequest struct {
	model.Patch
	Action string `json:"action,omitempty"`
}

// actionSubmit помечает обновление как финальную отправку анкеты.
const actionSubmit = "submit"

// UpdateExperience применяет патч разделов к анкете; с action=submit выполняет
// одностороннюю отправку.
func (h *Handler) UpdateExperience(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if req.Action != "" && req.Action != actionSubmit {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	var (
		rec *model.ExperienceRecord
		err error
	)
	if req.Action == actionSubmit {
		rec, err = h.service.Submit(r.Context(), userID, id, req.Patch)
	} else {
		rec, err = h.service.SaveProgress(r.Context(), userID, id, req.Patch)
	}

	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRecordSubmitted):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("update experience error", zap.Error(err),
				zap.Int64("userID", userID), zap.String("id", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteExperience удаляет черновик анкеты текущего пользователя.
func (h *Handler) DeleteExperience(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	err := h.service.DeleteRecord(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRecordSubmitted):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("delete experience error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
