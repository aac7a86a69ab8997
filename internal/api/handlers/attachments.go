// attachments.go — выдача содержимого вложений из кэша.
// GET  /api/v1/attachments/{domain}/{project}/{attachmentID}
// HEAD /api/v1/attachments/{domain}/{project}/{attachmentID}
package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/almstore/internal/api/errors"
	"github.com/arturkryukov/almstore/internal/api/middleware"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// handleGetAttachment — выдача содержимого вложения.
// Вложение выдаётся из кэша (LRU, затем PostgreSQL); повторного
// обращения к ALM нет — содержимое материализовано при извлечении.
func (h *APIHandler) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	project := chi.URLParam(r, "project")
	attachmentID := chi.URLParam(r, "attachmentID")
	if domain == "" || project == "" || attachmentID == "" {
		apierrors.ValidationError(w, "Не указаны domain, project или attachmentID")
		return
	}

	// Выдача кэша не требует сессии ALM
	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	scope := model.Scope{Domain: domain, Project: project}
	rec, err := h.attachments.Get(r.Context(), owner, scope, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "Вложение не найдено в кэше")
			return
		}
		h.logger.Error("Ошибка выдачи вложения",
			slog.String("attachment_id", attachmentID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при выдаче вложения")
		return
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	if rec.Name != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": rec.Name}))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Data)
}

// handleStatAttachment — метаданные вложения без содержимого.
// HEAD отдаёт те же заголовки, что и GET, но тело из кэша не читается.
func (h *APIHandler) handleStatAttachment(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	project := chi.URLParam(r, "project")
	attachmentID := chi.URLParam(r, "attachmentID")
	if domain == "" || project == "" || attachmentID == "" {
		apierrors.ValidationError(w, "Не указаны domain, project или attachmentID")
		return
	}

	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	scope := model.Scope{Domain: domain, Project: project}
	meta, err := h.attachments.Stat(r.Context(), owner, scope, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "Вложение не найдено в кэше")
			return
		}
		h.logger.Error("Ошибка чтения метаданных вложения",
			slog.String("attachment_id", attachmentID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при чтении метаданных вложения")
		return
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if meta.Name != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	}
	w.WriteHeader(http.StatusOK)
}
