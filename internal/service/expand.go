// expand.go — одноуровневое раскрытие узла дерева ALM:
// выборка непосредственных детей, нормализация, upsert через
// маршрутизацию коллекций и материализация вложений.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// Expander — одноуровневое раскрытие узла.
// Возвращает вызывающему только счётчики, никогда сами дочерние
// сущности: раскрытие узла в дереве остаётся дешёвой операцией,
// а данные перечитываются из хранилища отдельным запросом.
type Expander struct {
	alm         ALMGateway
	entities    repository.EntityRepository
	attachments *AttachmentService
	logger      *slog.Logger
}

// NewExpander создаёт сервис одноуровневого раскрытия.
func NewExpander(alm ALMGateway, entities repository.EntityRepository, attachments *AttachmentService, logger *slog.Logger) *Expander {
	return &Expander{
		alm:         alm,
		entities:    entities,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "expander")),
	}
}

// childResult — результат выборки одного вида детей.
type childResult struct {
	// Stored — сущностей сохранено
	Stored int
	// Downloaded — вложений скачано в кэш
	Downloaded int
	// Failed — вложений не удалось скачать
	Failed int
	// Pages — страниц получено от ALM
	Pages int
}

// ExpandOneLevel выбирает и сохраняет непосредственных детей узла
// всех видов, относящихся к виду родителя. Дети контейнерных детей
// не затрагиваются: раскрытие теста не выбирает его шаги.
// Возвращает счётчики по видам детей.
//
// Идемпотентна: повторный вызов с тем же родителем оставляет
// хранилище в том же состоянии (upsert-семантика).
func (s *Expander) ExpandOneLevel(ctx context.Context, sess *model.Session, owner string, scope model.Scope, parentKind, parentID string) (map[string]int, error) {
	// Дети домена — проекты, их отдаёт справочник проектов
	// непагинированным списком; раскрытию домен не подлежит
	if parentKind == almconfig.KindDomain {
		return nil, fmt.Errorf("вид %q не раскрывается: проекты домена выбираются справочником", parentKind)
	}
	kinds := almconfig.ChildKinds(parentKind)
	if kinds == nil {
		return nil, fmt.Errorf("вид %q не имеет детей для раскрытия", parentKind)
	}

	counts := make(map[string]int, len(kinds))
	for _, childKind := range kinds {
		res, err := s.expandChildKind(ctx, sess, owner, scope, parentKind, parentID, childKind)
		if err != nil {
			return nil, fmt.Errorf("раскрытие %s/%s, дети вида %s: %w", parentKind, parentID, childKind, err)
		}
		counts[childKind] = res.Stored
	}

	s.logger.Info("узел раскрыт",
		slog.String("owner", owner),
		slog.String("kind", parentKind),
		slog.String("parent_id", parentID),
		slog.Any("counts", counts),
	)
	return counts, nil
}

// expandChildKind выбирает детей одного вида, нормализует и сохраняет.
// Для вложений дополнительно материализует содержимое; сбой скачивания
// одного вложения не прерывает выборку — метаданные уже сохранены,
// сбой учитывается в счётчике Failed.
func (s *Expander) expandChildKind(ctx context.Context, sess *model.Session, owner string, scope model.Scope, parentKind, parentID, childKind string) (childResult, error) {
	parentType := ""
	if childKind == almconfig.KindAttachment {
		parentType = parentKind
	}
	filterID := almconfig.ChildFilterID(parentKind, parentID)

	raws, pages, err := s.alm.FetchAll(ctx, sess, scope, childKind, filterID, parentType)
	if err != nil {
		return childResult{}, err
	}
	metricPagesFetched.Add(float64(pages))

	res := childResult{Pages: pages}
	extractedAt := time.Now().UTC()

	for _, raw := range raws {
		e, collection, err := Normalize(childKind, parentKind, owner, parentID, raw, extractedAt)
		if err != nil {
			return res, fmt.Errorf("нормализация %s: %w", childKind, err)
		}
		if _, err := s.entities.Upsert(ctx, collection, e); err != nil {
			return res, err
		}
		res.Stored++
		metricEntitiesExtracted.WithLabelValues(collection).Inc()

		if childKind == almconfig.KindAttachment {
			if err := s.attachments.Materialize(ctx, sess, owner, scope, e); err != nil {
				res.Failed++
				s.logger.Warn("вложение не скачано, метаданные сохранены",
					slog.String("attachment_id", e.EntityID),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Downloaded++
		}
	}

	return res, nil
}
