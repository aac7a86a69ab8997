// handler.go — основной обработчик API ALM Extractor.
// Объединяет health и бизнес-обработчики, регистрирует маршруты.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/almstore/internal/api/errors"
	"github.com/arturkryukov/almstore/internal/api/middleware"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/service"
)

// APIHandler — основной обработчик API ALM Extractor.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health      *HealthHandler
	sessions    *service.SessionService
	catalog     *service.CatalogService
	expander    *service.Expander
	extractor   *service.Extractor
	jobs        *service.JobService
	attachments *service.AttachmentService
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	sessions *service.SessionService,
	catalog *service.CatalogService,
	expander *service.Expander,
	extractor *service.Extractor,
	jobs *service.JobService,
	attachments *service.AttachmentService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		sessions:    sessions,
		catalog:     catalog,
		expander:    expander,
		extractor:   extractor,
		jobs:        jobs,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует все маршруты API на chi-роутере.
// Middleware (логирование, метрики, JWT) подключает server.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/logout", h.handleLogout)

		r.Get("/domains", h.handleDomains)
		r.Get("/domains/{domain}/projects", h.handleProjects)
		r.Get("/entities", h.handleEntities)

		r.Post("/expand", h.handleExpand)
		r.Post("/extract", h.handleExtract)

		r.Get("/jobs", h.handleListJobs)
		r.Get("/jobs/{jobID}", h.handleGetJob)

		r.Get("/attachments/{domain}/{project}/{attachmentID}", h.handleGetAttachment)
		r.Head("/attachments/{domain}/{project}/{attachmentID}", h.handleStatAttachment)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ownerSession извлекает владельца из JWT и его активную сессию ALM.
// При отсутствии сессии пишет ответ ошибки и возвращает ok=false.
func (h *APIHandler) ownerSession(w http.ResponseWriter, r *http.Request) (owner string, sess model.Session, ok bool) {
	owner = middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return "", model.Session{}, false
	}

	sess, err := h.sessions.Session(owner)
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			apierrors.NoALMSession(w, "Нет активной сессии ALM: выполните POST /api/v1/auth/login")
			return "", model.Session{}, false
		}
		h.logger.Error("Ошибка получения сессии", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
		return "", model.Session{}, false
	}
	return owner, sess, true
}

// paginationParams разбирает limit и offset из query-параметров.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// entityItem — сущность в ответах API.
type entityItem struct {
	Collection  string             `json:"collection"`
	EntityID    string             `json:"entity_id"`
	EntityType  string             `json:"entity_type"`
	ParentID    string             `json:"parent_id,omitempty"`
	Fields      []model.FieldValue `json:"fields"`
	Extra       map[string]string  `json:"extra,omitempty"`
	ExtractedAt string             `json:"extracted_at"`
}

// entityToItem конвертирует доменную запись в DTO ответа.
func entityToItem(e *model.EntityRecord) entityItem {
	return entityItem{
		Collection:  e.Collection,
		EntityID:    e.EntityID,
		EntityType:  e.EntityType,
		ParentID:    e.ParentID,
		Fields:      e.Fields,
		Extra:       e.Extra,
		ExtractedAt: e.ExtractedAt.UTC().Format(time.RFC3339),
	}
}

// entitiesToItems конвертирует срез записей.
func entitiesToItems(entities []*model.EntityRecord) []entityItem {
	items := make([]entityItem, 0, len(entities))
	for _, e := range entities {
		items = append(items, entityToItem(e))
	}
	return items
}
