// catalog.go — справочники ALM и выборка сохранённых сущностей.
// GET /api/v1/domains — домены (перечитываются из ALM и сохраняются)
// GET /api/v1/domains/{domain}/projects — проекты домена
// GET /api/v1/entities — сохранённые сущности с фильтрацией
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/almstore/internal/almconfig"
	apierrors "github.com/arturkryukov/almstore/internal/api/errors"
	"github.com/arturkryukov/almstore/internal/api/middleware"
)

// listResponse — ответ списковых endpoints.
type listResponse struct {
	Items  []entityItem `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset"`
}

// handleDomains — реализация GET /api/v1/domains.
func (h *APIHandler) handleDomains(w http.ResponseWriter, r *http.Request) {
	owner, sess, ok := h.ownerSession(w, r)
	if !ok {
		return
	}

	domains, err := h.catalog.Domains(r.Context(), &sess, owner)
	if err != nil {
		h.logger.Error("Ошибка выборки доменов", slog.String("error", err.Error()))
		apierrors.ALMUnavailable(w, "Не удалось получить список доменов из ALM")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items: entitiesToItems(domains),
		Total: len(domains),
	})
}

// handleProjects — реализация GET /api/v1/domains/{domain}/projects.
func (h *APIHandler) handleProjects(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		apierrors.ValidationError(w, "Не указан домен")
		return
	}

	owner, sess, ok := h.ownerSession(w, r)
	if !ok {
		return
	}

	projects, err := h.catalog.Projects(r.Context(), &sess, owner, domain)
	if err != nil {
		h.logger.Error("Ошибка выборки проектов",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		apierrors.ALMUnavailable(w, "Не удалось получить список проектов из ALM")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items: entitiesToItems(projects),
		Total: len(projects),
	})
}

// handleEntities — реализация GET /api/v1/entities.
// Читает только хранилище, ALM не затрагивается.
// Параметры: collection (обязательный), parent_id, limit, offset.
func (h *APIHandler) handleEntities(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		apierrors.ValidationError(w, "Параметр collection обязателен")
		return
	}

	if !almconfig.KnownCollection(collection) {
		apierrors.ValidationError(w, "Неизвестная коллекция: "+collection)
		return
	}

	var parentID *string
	if v := r.URL.Query().Get("parent_id"); v != "" {
		parentID = &v
	}
	limit, offset := paginationParams(r)

	// Чтение хранилища не требует сессии ALM, только владельца из JWT
	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	entities, total, err := h.catalog.ListStored(r.Context(), owner, collection, parentID, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка выборки сущностей",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при выборке сущностей")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:  entitiesToItems(entities),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
