package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/almstore/internal/domain/model"
)

// AttachmentCacheRepository — кэш содержимого вложений.
// Ключ уникальности (owner_user, domain, project, attachment_id);
// запись создаётся при первом скачивании и далее не мутируется,
// повторное скачивание заменяет её целиком.
type AttachmentCacheRepository interface {
	// Upsert сохраняет скачанное вложение.
	Upsert(ctx context.Context, a *model.AttachmentRecord) error
	// Get возвращает вложение с содержимым.
	Get(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error)
	// GetMeta возвращает метаданные вложения без содержимого.
	GetMeta(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error)
	// Count возвращает общее количество закэшированных вложений.
	Count(ctx context.Context) (int, error)
}

// attachmentCacheRepo — реализация AttachmentCacheRepository.
type attachmentCacheRepo struct {
	db DBTX
}

// NewAttachmentCacheRepository создаёт репозиторий кэша вложений.
func NewAttachmentCacheRepository(db DBTX) AttachmentCacheRepository {
	return &attachmentCacheRepo{db: db}
}

func (r *attachmentCacheRepo) Upsert(ctx context.Context, a *model.AttachmentRecord) error {
	query := `
		INSERT INTO attachment_cache (owner_user, domain, project, attachment_id,
			parent_type, parent_id, name, content_type, size, data, downloaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (owner_user, domain, project, attachment_id) DO UPDATE SET
			parent_type = EXCLUDED.parent_type,
			parent_id = EXCLUDED.parent_id,
			name = EXCLUDED.name,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			data = EXCLUDED.data,
			downloaded_at = EXCLUDED.downloaded_at`

	_, err := r.db.Exec(ctx, query,
		a.OwnerUser, a.Domain, a.Project, a.AttachmentID,
		a.ParentType, a.ParentID, a.Name, a.ContentType, a.Size, a.Data, a.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения вложения в кэш: %w", err)
	}
	return nil
}

func (r *attachmentCacheRepo) Get(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	query := `
		SELECT owner_user, domain, project, attachment_id, parent_type, parent_id,
			name, content_type, size, data, downloaded_at
		FROM attachment_cache
		WHERE owner_user = $1 AND domain = $2 AND project = $3 AND attachment_id = $4`

	a := &model.AttachmentRecord{}
	err := r.db.QueryRow(ctx, query, owner, scope.Domain, scope.Project, attachmentID).Scan(
		&a.OwnerUser, &a.Domain, &a.Project, &a.AttachmentID, &a.ParentType, &a.ParentID,
		&a.Name, &a.ContentType, &a.Size, &a.Data, &a.DownloadedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вложения из кэша: %w", err)
	}
	return a, nil
}

func (r *attachmentCacheRepo) GetMeta(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	query := `
		SELECT owner_user, domain, project, attachment_id, parent_type, parent_id,
			name, content_type, size, downloaded_at
		FROM attachment_cache
		WHERE owner_user = $1 AND domain = $2 AND project = $3 AND attachment_id = $4`

	a := &model.AttachmentRecord{}
	err := r.db.QueryRow(ctx, query, owner, scope.Domain, scope.Project, attachmentID).Scan(
		&a.OwnerUser, &a.Domain, &a.Project, &a.AttachmentID, &a.ParentType, &a.ParentID,
		&a.Name, &a.ContentType, &a.Size, &a.DownloadedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных вложения: %w", err)
	}
	return a, nil
}

func (r *attachmentCacheRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM attachment_cache").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вложений: %w", err)
	}
	return count, nil
}
