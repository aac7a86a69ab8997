// catalog.go — просмотр доменов и проектов ALM и выдача
// сохранённых сущностей из хранилища.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// CatalogService — выборка справочников ALM (домены, проекты)
// и чтение сохранённых сущностей. Домены и проекты при каждом
// запросе перечитываются из ALM и сохраняются, как и все остальные
// сущности; таблицы и деревья UI всегда читают хранилище.
type CatalogService struct {
	alm      ALMGateway
	entities repository.EntityRepository
	logger   *slog.Logger
}

// NewCatalogService создаёт сервис справочников.
func NewCatalogService(alm ALMGateway, entities repository.EntityRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		alm:      alm,
		entities: entities,
		logger:   logger.With(slog.String("component", "catalog_service")),
	}
}

// Domains выбирает список доменов ALM, сохраняет и возвращает его.
func (s *CatalogService) Domains(ctx context.Context, sess *model.Session, owner string) ([]*model.EntityRecord, error) {
	raws, err := s.alm.ListUnpaged(ctx, sess, almconfig.KindDomain, "")
	if err != nil {
		return nil, err
	}
	return s.storeAll(ctx, owner, almconfig.KindDomain, "", raws)
}

// Projects выбирает проекты домена, сохраняет и возвращает их.
// Родителем проекта записывается имя домена.
func (s *CatalogService) Projects(ctx context.Context, sess *model.Session, owner, domain string) ([]*model.EntityRecord, error) {
	raws, err := s.alm.ListUnpaged(ctx, sess, almconfig.KindProject, domain)
	if err != nil {
		return nil, err
	}
	return s.storeAll(ctx, owner, almconfig.KindProject, domain, raws)
}

// storeAll нормализует и сохраняет пакет сырых сущностей.
func (s *CatalogService) storeAll(ctx context.Context, owner, kind, parentID string, raws []almclient.RawEntity) ([]*model.EntityRecord, error) {
	extractedAt := time.Now().UTC()
	out := make([]*model.EntityRecord, 0, len(raws))

	for _, raw := range raws {
		e, collection, err := Normalize(kind, "", owner, parentID, raw, extractedAt)
		if err != nil {
			return nil, fmt.Errorf("нормализация %s: %w", kind, err)
		}
		if _, err := s.entities.Upsert(ctx, collection, e); err != nil {
			return nil, err
		}
		metricEntitiesExtracted.WithLabelValues(collection).Inc()
		out = append(out, e)
	}
	return out, nil
}

// ListStored возвращает сохранённые сущности коллекции с фильтрацией
// по родителю. Данные не перечитываются из ALM: это путь чтения для
// таблиц и деревьев.
func (s *CatalogService) ListStored(ctx context.Context, owner, collection string, parentID *string, limit, offset int) ([]*model.EntityRecord, int, error) {
	if !almconfig.KnownCollection(collection) {
		return nil, 0, fmt.Errorf("неизвестная коллекция: %q", collection)
	}

	filters := repository.EntityFilters{
		OwnerUser:  owner,
		Collection: collection,
		ParentID:   parentID,
	}

	entities, err := s.entities.Find(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.entities.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}
