// extract.go — раскрытие узла и рекурсивное извлечение.
// POST /api/v1/expand — одноуровневое раскрытие узла дерева
// POST /api/v1/extract — запуск рекурсивного извлечения (202 + job_id)
// GET /api/v1/jobs, /api/v1/jobs/{jobID} — опрос задач
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/almstore/internal/api/errors"
	"github.com/arturkryukov/almstore/internal/api/middleware"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/service"
)

// expandRequest — тело запроса одноуровневого раскрытия.
type expandRequest struct {
	Domain     string `json:"domain"`
	Project    string `json:"project"`
	ParentType string `json:"parent_type"`
	ParentID   string `json:"parent_id"`
}

// expandResponse — счётчики сохранённых детей по видам.
type expandResponse struct {
	Counts map[string]int `json:"counts"`
}

// handleExpand — реализация POST /api/v1/expand.
func (h *APIHandler) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Domain == "" || req.Project == "" || req.ParentType == "" || req.ParentID == "" {
		apierrors.ValidationError(w, "Поля domain, project, parent_type и parent_id обязательны")
		return
	}

	owner, sess, ok := h.ownerSession(w, r)
	if !ok {
		return
	}
	scope := model.Scope{Domain: req.Domain, Project: req.Project}

	counts, err := h.expander.ExpandOneLevel(r.Context(), &sess, owner, scope, req.ParentType, req.ParentID)
	if err != nil {
		h.logger.Error("Ошибка раскрытия узла",
			slog.String("parent", req.ParentType+"/"+req.ParentID),
			slog.String("error", err.Error()),
		)
		apierrors.ALMUnavailable(w, "Не удалось раскрыть узел: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, expandResponse{Counts: counts})
}

// extractRequest — тело запроса рекурсивного извлечения.
type extractRequest struct {
	Domain   string `json:"domain"`
	Project  string `json:"project"`
	RootType string `json:"root_type"`
	RootID   string `json:"root_id"`
}

// extractResponse — ответ запуска извлечения.
type extractResponse struct {
	JobID string `json:"job_id"`
}

// handleExtract — реализация POST /api/v1/extract.
// Извлечение асинхронно: возвращается 202 с job_id, прогресс
// опрашивается через GET /api/v1/jobs/{jobID}.
func (h *APIHandler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Domain == "" || req.Project == "" || req.RootType == "" || req.RootID == "" {
		apierrors.ValidationError(w, "Поля domain, project, root_type и root_id обязательны")
		return
	}

	owner, sess, ok := h.ownerSession(w, r)
	if !ok {
		return
	}
	scope := model.Scope{Domain: req.Domain, Project: req.Project}

	jobID, err := h.extractor.ExtractRecursive(r.Context(), sess, owner, scope, req.RootType, req.RootID)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, extractResponse{JobID: jobID})
}

// jobResponse — задача извлечения в ответах API.
type jobResponse struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	Domain      string            `json:"domain"`
	Project     string            `json:"project"`
	RootType    string            `json:"root_type"`
	RootID      string            `json:"root_id"`
	Counters    model.JobCounters `json:"counters"`
	Notes       []string          `json:"notes,omitempty"`
	Error       *string           `json:"error,omitempty"`
	StartedAt   string            `json:"started_at"`
	CompletedAt *string           `json:"completed_at,omitempty"`
}

// jobToResponse конвертирует доменную задачу в DTO ответа.
func jobToResponse(j *model.ExtractionJob) jobResponse {
	resp := jobResponse{
		JobID:     j.JobID,
		Status:    j.Status,
		Domain:    j.Domain,
		Project:   j.Project,
		RootType:  j.RootEntityKind,
		RootID:    j.RootEntityID,
		Counters:  j.Counters,
		Notes:     j.Notes,
		Error:     j.Error,
		StartedAt: j.StartedAt.UTC().Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// handleGetJob — реализация GET /api/v1/jobs/{jobID}.
func (h *APIHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	// Опрос задач не требует сессии ALM
	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	j, err := h.jobs.Get(r.Context(), owner, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			apierrors.NotFound(w, "Задача не найдена")
			return
		}
		h.logger.Error("Ошибка получения задачи",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(j))
}

// jobListResponse — ответ списка задач.
type jobListResponse struct {
	Items []jobResponse `json:"items"`
}

// handleListJobs — реализация GET /api/v1/jobs.
func (h *APIHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	list, err := h.jobs.List(r.Context(), owner, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка выборки задач", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
		return
	}

	resp := jobListResponse{Items: make([]jobResponse, 0, len(list))}
	for _, j := range list {
		resp.Items = append(resp.Items, jobToResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}
