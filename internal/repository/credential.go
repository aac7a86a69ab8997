package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/almstore/internal/domain/model"
)

// CredentialRepository — хранилище учётных данных ALM.
// Пароль хранится зашифрованным AES-256-GCM; расшифровка — забота
// сервисного слоя, репозиторий оперирует только шифротекстом.
type CredentialRepository interface {
	// Upsert сохраняет или обновляет учётные данные пользователя.
	Upsert(ctx context.Context, c *model.Credential) error
	// Get возвращает учётные данные пользователя.
	Get(ctx context.Context, owner string) (*model.Credential, error)
	// Delete удаляет учётные данные пользователя.
	Delete(ctx context.Context, owner string) error
}

// credentialRepo — реализация CredentialRepository.
type credentialRepo struct {
	db DBTX
}

// NewCredentialRepository создаёт репозиторий учётных данных.
func NewCredentialRepository(db DBTX) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Upsert(ctx context.Context, c *model.Credential) error {
	query := `
		INSERT INTO alm_credentials (owner_user, encrypted_password)
		VALUES ($1, $2)
		ON CONFLICT (owner_user) DO UPDATE SET
			encrypted_password = EXCLUDED.encrypted_password,
			updated_at = now()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.OwnerUser, c.EncryptedPassword).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения учётных данных: %w", err)
	}
	return nil
}

func (r *credentialRepo) Get(ctx context.Context, owner string) (*model.Credential, error) {
	query := `
		SELECT owner_user, encrypted_password, created_at, updated_at
		FROM alm_credentials
		WHERE owner_user = $1`

	c := &model.Credential{}
	err := r.db.QueryRow(ctx, query, owner).Scan(
		&c.OwnerUser, &c.EncryptedPassword, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётных данных: %w", err)
	}
	return c, nil
}

func (r *credentialRepo) Delete(ctx context.Context, owner string) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM alm_credentials WHERE owner_user = $1", owner)
	if err != nil {
		return fmt.Errorf("ошибка удаления учётных данных: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
