package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/almstore/internal/domain/model"
)

// EntityRepository — хранилище нормализованных сущностей ALM.
// Одна таблица alm_entities, коллекция — колонка; ключ уникальности
// (owner_user, collection, entity_id), запись целиком заменяется
// при повторном извлечении.
type EntityRepository interface {
	// Upsert вставляет или целиком заменяет сущность.
	// Возвращает true, если запись была вставлена (а не обновлена).
	Upsert(ctx context.Context, collection string, e *model.EntityRecord) (bool, error)
	// GetByID возвращает сущность по ключу.
	GetByID(ctx context.Context, owner, collection, entityID string) (*model.EntityRecord, error)
	// Find возвращает сущности коллекции с фильтрацией.
	Find(ctx context.Context, filters EntityFilters, limit, offset int) ([]*model.EntityRecord, error)
	// Count возвращает количество сущностей с фильтрацией.
	Count(ctx context.Context, filters EntityFilters) (int, error)
}

// EntityFilters — фильтры выборки сущностей.
type EntityFilters struct {
	// OwnerUser — обязательный: данные всегда разделены по пользователям
	OwnerUser string
	// Collection — обязательное имя коллекции
	Collection string
	// ParentID — фильтр по родителю (nil — без фильтра)
	ParentID *string
	// EntityType — фильтр по типу сущности ALM
	EntityType *string
}

// entityRepo — реализация EntityRepository.
type entityRepo struct {
	db DBTX
}

// NewEntityRepository создаёт репозиторий сущностей.
func NewEntityRepository(db DBTX) EntityRepository {
	return &entityRepo{db: db}
}

func (r *entityRepo) Upsert(ctx context.Context, collection string, e *model.EntityRecord) (bool, error) {
	fieldsJSON, err := json.Marshal(e.Fields)
	if err != nil {
		return false, fmt.Errorf("сериализация полей сущности: %w", err)
	}
	extraJSON, err := json.Marshal(e.Extra)
	if err != nil {
		return false, fmt.Errorf("сериализация доп. полей сущности: %w", err)
	}

	query := `
		INSERT INTO alm_entities (owner_user, collection, entity_id, entity_type,
			parent_id, entity_name, fields, extra, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_user, collection, entity_id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			parent_id = EXCLUDED.parent_id,
			entity_name = EXCLUDED.entity_name,
			fields = EXCLUDED.fields,
			extra = EXCLUDED.extra,
			extracted_at = EXCLUDED.extracted_at,
			updated_at = now()
		RETURNING (xmax = 0) AS is_insert, created_at, updated_at`

	name, _ := e.FieldByName("name")
	var isInsert bool
	err = r.db.QueryRow(ctx, query,
		e.OwnerUser, collection, e.EntityID, e.EntityType,
		e.ParentID, name, fieldsJSON, extraJSON, e.ExtractedAt,
	).Scan(&isInsert, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка upsert сущности: %w", err)
	}

	e.Collection = collection
	return isInsert, nil
}

func (r *entityRepo) GetByID(ctx context.Context, owner, collection, entityID string) (*model.EntityRecord, error) {
	query := `
		SELECT owner_user, collection, entity_id, entity_type, parent_id,
			fields, extra, extracted_at, created_at, updated_at
		FROM alm_entities
		WHERE owner_user = $1 AND collection = $2 AND entity_id = $3`

	e, err := scanEntity(r.db.QueryRow(ctx, query, owner, collection, entityID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сущности: %w", err)
	}
	return e, nil
}

// buildEntityWhere строит WHERE-условие и аргументы для фильтрации сущностей.
func buildEntityWhere(filters EntityFilters) (string, []any) {
	conditions := []string{"owner_user = $1", "collection = $2"}
	args := []any{filters.OwnerUser, filters.Collection}
	argNum := 3

	if filters.ParentID != nil {
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", argNum))
		args = append(args, *filters.ParentID)
		argNum++
	}
	if filters.EntityType != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argNum))
		args = append(args, *filters.EntityType)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *entityRepo) Find(ctx context.Context, filters EntityFilters, limit, offset int) ([]*model.EntityRecord, error) {
	where, args := buildEntityWhere(filters)
	query := fmt.Sprintf(`
		SELECT owner_user, collection, entity_id, entity_type, parent_id,
			fields, extra, extracted_at, created_at, updated_at
		FROM alm_entities
		%s
		ORDER BY length(entity_id), entity_id
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сущностей: %w", err)
	}
	defer rows.Close()

	var entities []*model.EntityRecord
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения сущности: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (r *entityRepo) Count(ctx context.Context, filters EntityFilters) (int, error) {
	where, args := buildEntityWhere(filters)
	query := "SELECT COUNT(*) FROM alm_entities " + where

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сущностей: %w", err)
	}
	return count, nil
}

// scanEntity читает одну строку alm_entities.
func scanEntity(row pgx.Row) (*model.EntityRecord, error) {
	e := &model.EntityRecord{}
	var fieldsJSON, extraJSON []byte

	err := row.Scan(
		&e.OwnerUser, &e.Collection, &e.EntityID, &e.EntityType, &e.ParentID,
		&fieldsJSON, &extraJSON, &e.ExtractedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
		return nil, fmt.Errorf("десериализация полей сущности: %w", err)
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &e.Extra); err != nil {
			return nil, fmt.Errorf("десериализация доп. полей сущности: %w", err)
		}
	}
	return e, nil
}
