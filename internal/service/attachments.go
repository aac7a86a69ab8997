// attachments.go — материализация вложений: скачивание содержимого
// и кэширование, ключ (owner_user, domain, project, attachment_id).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// ALMGateway — операции клиента ALM, используемые сервисами.
// Реализуется *almclient.Client; в тестах подменяется моком.
type ALMGateway interface {
	// FetchAll выбирает полный набор сущностей, листая страницы.
	FetchAll(ctx context.Context, sess *model.Session, scope model.Scope, kind, parentID, parentType string) ([]almclient.RawEntity, int, error)
	// FetchByID выбирает одну сущность (nil — не найдена).
	FetchByID(ctx context.Context, sess *model.Session, scope model.Scope, kind, id string) (*almclient.RawEntity, error)
	// ListUnpaged выбирает домены или проекты.
	ListUnpaged(ctx context.Context, sess *model.Session, kind, domain string) ([]almclient.RawEntity, error)
	// Download скачивает содержимое вложения.
	Download(ctx context.Context, sess *model.Session, scope model.Scope, attachmentID string) (almclient.Attachment, error)
}

// AttachmentService — материализатор вложений.
// Содержимое хранится в attachment_cache (PostgreSQL); поверх него
// in-memory LRU с TTL ускоряет повторные выдачи одного вложения.
type AttachmentService struct {
	alm    ALMGateway
	cache  repository.AttachmentCacheRepository
	lru    *expirable.LRU[string, *model.AttachmentRecord]
	logger *slog.Logger
}

// NewAttachmentService создаёт материализатор вложений.
// lruSize — размер in-memory кэша, lruTTL — время жизни записи.
func NewAttachmentService(alm ALMGateway, cache repository.AttachmentCacheRepository, lruSize int, lruTTL time.Duration, logger *slog.Logger) *AttachmentService {
	return &AttachmentService{
		alm:    alm,
		cache:  cache,
		lru:    expirable.NewLRU[string, *model.AttachmentRecord](lruSize, nil, lruTTL),
		logger: logger.With(slog.String("component", "attachment_service")),
	}
}

// lruKey — ключ in-memory кэша.
func lruKey(owner string, scope model.Scope, attachmentID string) string {
	return strings.Join([]string{owner, scope.Domain, scope.Project, attachmentID}, "|")
}

// Materialize скачивает содержимое вложения и сохраняет его в кэш.
// Запись о вложении (e) уже должна быть нормализована: из неё берутся
// идентификатор, имя файла и вид родителя.
//
// Ошибка скачивания не прерывает обход: вызывающий логирует её и
// учитывает в счётчике attachments_failed, метаданные вложения при
// этом уже сохранены.
func (s *AttachmentService) Materialize(ctx context.Context, sess *model.Session, owner string, scope model.Scope, e *model.EntityRecord) error {
	att, err := s.alm.Download(ctx, sess, scope, e.EntityID)
	if err != nil {
		metricAttachmentDownloads.WithLabelValues("fail").Inc()
		return fmt.Errorf("скачивание вложения %s: %w", e.EntityID, err)
	}

	name := att.Filename
	if name == "" {
		name, _ = e.FieldByName("name")
	}

	parentType, _ := e.FieldByName("parent_type")
	size := int64(len(att.Data))
	if size == 0 {
		// ALM может вернуть пустое тело; размер из метаданных
		if v, ok := e.FieldByName("file-size"); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				size = n
			}
		}
	}

	rec := &model.AttachmentRecord{
		OwnerUser:    owner,
		Domain:       scope.Domain,
		Project:      scope.Project,
		AttachmentID: e.EntityID,
		ParentType:   parentType,
		ParentID:     e.ParentID,
		Name:         name,
		ContentType:  att.ContentType,
		Size:         size,
		Data:         att.Data,
		DownloadedAt: time.Now().UTC(),
	}

	if err := s.cache.Upsert(ctx, rec); err != nil {
		metricAttachmentDownloads.WithLabelValues("fail").Inc()
		return fmt.Errorf("сохранение вложения %s: %w", e.EntityID, err)
	}

	s.lru.Add(lruKey(owner, scope, e.EntityID), rec)
	metricAttachmentDownloads.WithLabelValues("ok").Inc()
	if n, err := s.cache.Count(ctx); err == nil {
		metricAttachmentCacheSize.Set(float64(n))
	}

	s.logger.Debug("вложение материализовано",
		slog.String("attachment_id", e.EntityID),
		slog.String("name", name),
		slog.Int64("size", size),
	)
	return nil
}

// Get возвращает вложение с содержимым: сначала in-memory LRU,
// затем attachment_cache в PostgreSQL.
func (s *AttachmentService) Get(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	key := lruKey(owner, scope, attachmentID)
	if rec, ok := s.lru.Get(key); ok {
		metricAttachmentCacheHits.WithLabelValues("hit").Inc()
		return rec, nil
	}
	metricAttachmentCacheHits.WithLabelValues("miss").Inc()

	rec, err := s.cache.Get(ctx, owner, scope, attachmentID)
	if err != nil {
		return nil, err
	}
	s.lru.Add(key, rec)
	return rec, nil
}

// Stat возвращает метаданные вложения без содержимого: в LRU запись
// полная, поэтому она отдаётся копией без данных; мимо LRU содержимое
// из PostgreSQL не читается вовсе.
func (s *AttachmentService) Stat(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	if rec, ok := s.lru.Get(lruKey(owner, scope, attachmentID)); ok {
		metricAttachmentCacheHits.WithLabelValues("hit").Inc()
		meta := *rec
		meta.Data = nil
		return &meta, nil
	}
	metricAttachmentCacheHits.WithLabelValues("miss").Inc()
	return s.cache.GetMeta(ctx, owner, scope, attachmentID)
}
