// extract.go — рекурсивное извлечение поддерева ALM.
//
// Обход — явный worklist (стек) вместо нативной рекурсии: потолок
// глубины и точки прерывания структурно очевидны и проверяются
// юнит-тестами без глубоких стеков вызовов. Обход depth-first:
// контейнерные дети кладутся на стек и раскрываются до перехода
// к соседним ветвям.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// ErrRootNotFound — корневая сущность не найдена в ALM.
var ErrRootNotFound = errors.New("корневая сущность не найдена в ALM")

// Extractor — рекурсивное извлечение поддерева с отслеживанием
// задачи. Извлечение не транзакционно: при фатальной ошибке всё
// сохранённое до сбоя остаётся в хранилище, а счётчики — в задаче.
type Extractor struct {
	expander *Expander
	jobs     repository.JobRepository
	maxDepth int
	logger   *slog.Logger
}

// NewExtractor создаёт сервис рекурсивного извлечения.
// maxDepth — потолок глубины обхода: защита от циклических
// ссылок на родителя и патологически глубоких деревьев.
func NewExtractor(expander *Expander, jobs repository.JobRepository, maxDepth int, logger *slog.Logger) *Extractor {
	return &Extractor{
		expander: expander,
		jobs:     jobs,
		maxDepth: maxDepth,
		logger:   logger.With(slog.String("component", "extractor")),
	}
}

// node — элемент worklist: узел дерева и его глубина.
type node struct {
	kind  string
	id    string
	depth int
}

// ExtractRecursive запускает рекурсивное извлечение поддерева.
// Возвращает ID задачи; сам обход выполняется асинхронно, прогресс
// опрашивается через задачу. Push-уведомлений нет.
func (s *Extractor) ExtractRecursive(ctx context.Context, sess model.Session, owner string, scope model.Scope, rootKind, rootID string) (string, error) {
	// Обход всегда выполняется в рамках одного проекта (scope);
	// корень-домен означал бы обход нескольких проектов сразу
	if rootKind == almconfig.KindDomain {
		return "", fmt.Errorf("вид %q не может быть корнем извлечения: обход выполняется в рамках одного проекта", rootKind)
	}
	if almconfig.ChildKinds(rootKind) == nil {
		return "", fmt.Errorf("вид %q не может быть корнем извлечения", rootKind)
	}

	job := &model.ExtractionJob{
		JobID:          uuid.New().String(),
		OwnerUser:      owner,
		Domain:         scope.Domain,
		Project:        scope.Project,
		RootEntityID:   rootID,
		RootEntityKind: rootKind,
		Status:         model.JobStatusPending,
		StartedAt:      time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	// Обход переживает HTTP-запрос, породивший его
	walkCtx := context.WithoutCancel(ctx)
	go s.run(walkCtx, sess, owner, scope, job)

	return job.JobID, nil
}

// run выполняет обход и финализирует задачу.
func (s *Extractor) run(ctx context.Context, sess model.Session, owner string, scope model.Scope, job *model.ExtractionJob) {
	started := time.Now()
	logger := s.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("owner", owner),
		slog.String("root", job.RootEntityKind+"/"+job.RootEntityID),
	)

	if err := s.jobs.SetStatus(ctx, job.JobID, model.JobStatusInProgress); err != nil {
		logger.Error("не удалось перевести задачу в in_progress", slog.String("error", err.Error()))
		return
	}

	err := s.walk(ctx, &sess, owner, scope, job, logger)
	metricExtractionDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		// Счётчики, накопленные до сбоя, сохраняются — отката нет
		if failErr := s.jobs.Fail(ctx, job.JobID, err.Error()); failErr != nil {
			logger.Error("не удалось зафиксировать сбой задачи", slog.String("error", failErr.Error()))
		}
		metricExtractionJobs.WithLabelValues(model.JobStatusFailed).Inc()
		logger.Error("извлечение прервано", slog.String("error", err.Error()))
		return
	}

	if err := s.jobs.Complete(ctx, job.JobID); err != nil {
		logger.Error("не удалось завершить задачу", slog.String("error", err.Error()))
		return
	}
	metricExtractionJobs.WithLabelValues(model.JobStatusCompleted).Inc()
	logger.Info("извлечение завершено", slog.Duration("duration", time.Since(started)))
}

// walk — собственно обход: корень, затем worklist.
func (s *Extractor) walk(ctx context.Context, sess *model.Session, owner string, scope model.Scope, job *model.ExtractionJob, logger *slog.Logger) error {
	// Корневой узел сохраняется до запроса его детей: читатель
	// хранилища не должен увидеть ребёнка без родителя
	raw, err := s.fetchRoot(ctx, sess, scope, job.RootEntityKind, job.RootEntityID)
	if err != nil {
		return fmt.Errorf("выборка корня %s/%s: %w", job.RootEntityKind, job.RootEntityID, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: %s/%s", ErrRootNotFound, job.RootEntityKind, job.RootEntityID)
	}

	rootParent := ""
	if job.RootEntityKind == almconfig.KindProject {
		// Родителем проекта записывается имя домена, как в справочнике
		rootParent = scope.Domain
	}
	rootEntity, collection, err := Normalize(job.RootEntityKind, "", owner, rootParent, *raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("нормализация корня: %w", err)
	}
	if _, err := s.expander.entities.Upsert(ctx, collection, rootEntity); err != nil {
		return fmt.Errorf("сохранение корня: %w", err)
	}
	metricEntitiesExtracted.WithLabelValues(collection).Inc()
	if err := s.jobs.AddCounters(ctx, job.JobID, kindDelta(job.RootEntityKind, 1)); err != nil {
		return err
	}

	stack := []node{{kind: job.RootEntityKind, id: job.RootEntityID, depth: 1}}
	depthNoted := false

	for len(stack) > 0 {
		// LIFO: depth-first
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.depth >= s.maxDepth {
			// Граничное условие фиксируется в задаче, обход продолжается
			// по остальным ветвям
			if !depthNoted {
				note := fmt.Sprintf("достигнут потолок глубины %d на узле %s/%s, поддерево не раскрыто",
					s.maxDepth, n.kind, n.id)
				if err := s.jobs.AppendNote(ctx, job.JobID, note); err != nil {
					return err
				}
				depthNoted = true
			}
			logger.Warn("потолок глубины, поддерево пропущено",
				slog.String("kind", n.kind),
				slog.String("id", n.id),
				slog.Int("depth", n.depth),
			)
			continue
		}

		children, err := s.expandNode(ctx, sess, owner, scope, job.JobID, n)
		if err != nil {
			return err
		}
		stack = append(stack, children...)
	}

	return nil
}

// fetchRoot выбирает корневую сущность обхода. Проекты ALM отдаёт
// единым списком без пагинации, точечный запрос по id для них не
// работает — корень-проект ищется в списке проектов домена по id
// или имени. Остальные виды выбираются точечным запросом.
// Возвращает nil без ошибки, если корень не найден.
func (s *Extractor) fetchRoot(ctx context.Context, sess *model.Session, scope model.Scope, kind, id string) (*almclient.RawEntity, error) {
	if kind != almconfig.KindProject {
		return s.expander.alm.FetchByID(ctx, sess, scope, kind, id)
	}

	raws, err := s.expander.alm.ListUnpaged(ctx, sess, almconfig.KindProject, scope.Domain)
	if err != nil {
		return nil, err
	}
	for i := range raws {
		m := raws[i].FieldMap()
		if m["id"] == id || m["name"] == id {
			return &raws[i], nil
		}
	}
	return nil, nil
}

// expandNode выбирает и сохраняет детей узла всех видов, обновляя
// счётчики задачи НЕМЕДЛЕННО после каждой выборки, чтобы опрос задачи
// в середине обхода показывал истинный частичный прогресс.
// Возвращает контейнерных детей для дальнейшего обхода.
func (s *Extractor) expandNode(ctx context.Context, sess *model.Session, owner string, scope model.Scope, jobID string, n node) ([]node, error) {
	var next []node

	for _, childKind := range almconfig.ChildKinds(n.kind) {
		parentType := ""
		if childKind == almconfig.KindAttachment {
			parentType = n.kind
		}
		filterID := almconfig.ChildFilterID(n.kind, n.id)

		raws, pages, err := s.expander.alm.FetchAll(ctx, sess, scope, childKind, filterID, parentType)
		if err != nil {
			return nil, fmt.Errorf("узел %s/%s, дети вида %s: %w", n.kind, n.id, childKind, err)
		}
		metricPagesFetched.Add(float64(pages))

		delta := model.JobCounters{}
		extractedAt := time.Now().UTC()

		for _, raw := range raws {
			e, collection, err := Normalize(childKind, n.kind, owner, n.id, raw, extractedAt)
			if err != nil {
				return nil, fmt.Errorf("нормализация %s: %w", childKind, err)
			}
			if _, err := s.expander.entities.Upsert(ctx, collection, e); err != nil {
				return nil, err
			}
			metricEntitiesExtracted.WithLabelValues(collection).Inc()
			delta.Add(kindDelta(childKind, 1))

			if childKind == almconfig.KindAttachment {
				if err := s.expander.attachments.Materialize(ctx, sess, owner, scope, e); err != nil {
					s.logger.Warn("вложение не скачано, метаданные сохранены",
						slog.String("job_id", jobID),
						slog.String("attachment_id", e.EntityID),
						slog.String("error", err.Error()),
					)
				} else {
					delta.AttachmentsDownloaded++
				}
			}

			// Контейнерные дети раскрываются дальше; листовые — нет
			if almconfig.ChildKinds(childKind) != nil {
				next = append(next, node{kind: childKind, id: e.EntityID, depth: n.depth + 1})
			}
		}

		if err := s.jobs.AddCounters(ctx, jobID, delta); err != nil {
			return nil, err
		}
	}

	return next, nil
}

// kindDelta возвращает приращение счётчиков на n сущностей вида kind.
// Для вложений учитываются обнаруженные; скачанные считает вызывающий.
func kindDelta(kind string, n int) model.JobCounters {
	switch kind {
	case almconfig.KindTestFolder:
		return model.JobCounters{Folders: n}
	case almconfig.KindTest:
		return model.JobCounters{Tests: n}
	case almconfig.KindDesignStep:
		return model.JobCounters{DesignSteps: n}
	case almconfig.KindReleaseFolder:
		return model.JobCounters{ReleaseFolders: n}
	case almconfig.KindRelease:
		return model.JobCounters{Releases: n}
	case almconfig.KindReleaseCycle:
		return model.JobCounters{Cycles: n}
	case almconfig.KindTestSet:
		return model.JobCounters{TestSets: n}
	case almconfig.KindTestRun:
		return model.JobCounters{Runs: n}
	case almconfig.KindDefect:
		return model.JobCounters{Defects: n}
	case almconfig.KindAttachment:
		return model.JobCounters{AttachmentsFound: n}
	}
	return model.JobCounters{}
}
