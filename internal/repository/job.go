package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/almstore/internal/domain/model"
)

// JobRepository — хранилище задач извлечения.
// Счётчики обновляются только аддитивными SQL-приращениями, чтобы
// параллельные ветви обхода не теряли обновления друг друга.
type JobRepository interface {
	// Create создаёт задачу в статусе pending.
	Create(ctx context.Context, j *model.ExtractionJob) error
	// Get возвращает задачу по ID в рамках одного пользователя.
	Get(ctx context.Context, owner, jobID string) (*model.ExtractionJob, error)
	// List возвращает задачи пользователя, новые первыми.
	List(ctx context.Context, owner string, limit, offset int) ([]*model.ExtractionJob, error)
	// SetStatus переводит задачу в новый статус без изменения счётчиков.
	SetStatus(ctx context.Context, jobID, status string) error
	// AddCounters аддитивно прибавляет приращение к счётчикам.
	AddCounters(ctx context.Context, jobID string, delta model.JobCounters) error
	// AppendNote добавляет заметку о граничном условии.
	AppendNote(ctx context.Context, jobID, note string) error
	// Complete переводит задачу в completed и фиксирует время завершения.
	Complete(ctx context.Context, jobID string) error
	// Fail переводит задачу в failed с текстом ошибки.
	Fail(ctx context.Context, jobID, errMsg string) error
}

// jobRepo — реализация JobRepository.
type jobRepo struct {
	db DBTX
}

// NewJobRepository создаёт репозиторий задач.
func NewJobRepository(db DBTX) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, j *model.ExtractionJob) error {
	query := `
		INSERT INTO extraction_jobs (job_id, owner_user, domain, project,
			root_entity_id, root_entity_kind, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		j.JobID, j.OwnerUser, j.Domain, j.Project,
		j.RootEntityID, j.RootEntityKind, j.Status, j.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: задача с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания задачи: %w", err)
	}
	return nil
}

const jobColumns = `job_id, owner_user, domain, project, root_entity_id, root_entity_kind,
	status, folders, tests, design_steps, release_folders, releases, cycles, test_sets,
	runs, defects, attachments_found, attachments_downloaded, notes, error, started_at, completed_at`

// scanJob читает одну строку extraction_jobs.
func scanJob(row pgx.Row) (*model.ExtractionJob, error) {
	j := &model.ExtractionJob{}
	err := row.Scan(
		&j.JobID, &j.OwnerUser, &j.Domain, &j.Project, &j.RootEntityID, &j.RootEntityKind,
		&j.Status, &j.Counters.Folders, &j.Counters.Tests, &j.Counters.DesignSteps,
		&j.Counters.ReleaseFolders, &j.Counters.Releases, &j.Counters.Cycles,
		&j.Counters.TestSets, &j.Counters.Runs, &j.Counters.Defects,
		&j.Counters.AttachmentsFound, &j.Counters.AttachmentsDownloaded,
		&j.Notes, &j.Error, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *jobRepo) Get(ctx context.Context, owner, jobID string) (*model.ExtractionJob, error) {
	query := "SELECT " + jobColumns + " FROM extraction_jobs WHERE owner_user = $1 AND job_id = $2"

	j, err := scanJob(r.db.QueryRow(ctx, query, owner, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения задачи: %w", err)
	}
	return j, nil
}

func (r *jobRepo) List(ctx context.Context, owner string, limit, offset int) ([]*model.ExtractionJob, error) {
	query := "SELECT " + jobColumns + ` FROM extraction_jobs
		WHERE owner_user = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки задач: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ExtractionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения задачи: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) SetStatus(ctx context.Context, jobID, status string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE extraction_jobs SET status = $2 WHERE job_id = $1", jobID, status)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) AddCounters(ctx context.Context, jobID string, delta model.JobCounters) error {
	query := `
		UPDATE extraction_jobs SET
			folders = folders + $2,
			tests = tests + $3,
			design_steps = design_steps + $4,
			release_folders = release_folders + $5,
			releases = releases + $6,
			cycles = cycles + $7,
			test_sets = test_sets + $8,
			runs = runs + $9,
			defects = defects + $10,
			attachments_found = attachments_found + $11,
			attachments_downloaded = attachments_downloaded + $12
		WHERE job_id = $1`

	tag, err := r.db.Exec(ctx, query, jobID,
		delta.Folders, delta.Tests, delta.DesignSteps, delta.ReleaseFolders,
		delta.Releases, delta.Cycles, delta.TestSets, delta.Runs, delta.Defects,
		delta.AttachmentsFound, delta.AttachmentsDownloaded,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) AppendNote(ctx context.Context, jobID, note string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE extraction_jobs SET notes = array_append(notes, $2) WHERE job_id = $1",
		jobID, note)
	if err != nil {
		return fmt.Errorf("ошибка добавления заметки к задаче: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, jobID string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE extraction_jobs SET status = $2, completed_at = now() WHERE job_id = $1",
		jobID, model.JobStatusCompleted)
	if err != nil {
		return fmt.Errorf("ошибка завершения задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, jobID, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE extraction_jobs SET status = $2, error = $3, completed_at = now() WHERE job_id = $1",
		jobID, model.JobStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("ошибка фиксации сбоя задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
