package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// ErrJobNotFound возвращается, когда задача не найдена или
// принадлежит другому пользователю.
var ErrJobNotFound = errors.New("задача не найдена")

// JobService — чтение задач извлечения. Прогресс задач отслеживается
// опросом: клиент периодически запрашивает задачу по ID.
type JobService struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

// NewJobService создаёт сервис задач.
func NewJobService(jobs repository.JobRepository, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "job_service")),
	}
}

// Get возвращает задачу пользователя по ID.
func (s *JobService) Get(ctx context.Context, owner, jobID string) (*model.ExtractionJob, error) {
	j, err := s.jobs.Get(ctx, owner, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// List возвращает задачи пользователя, новые первыми.
func (s *JobService) List(ctx context.Context, owner string, limit, offset int) ([]*model.ExtractionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.List(ctx, owner, limit, offset)
}
