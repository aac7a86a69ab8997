package repository

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/config"
	"github.com/arturkryukov/almstore/internal/database"
	"github.com/arturkryukov/almstore/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("almstore_test"),
		postgres.WithUsername("almstore"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("AE_DB_HOST", host)
	os.Setenv("AE_DB_PORT", port.Port())
	os.Setenv("AE_DB_NAME", "almstore_test")
	os.Setenv("AE_DB_USER", "almstore")
	os.Setenv("AE_DB_PASSWORD", "test-password")
	os.Setenv("AE_DB_SSL_MODE", "disable")
	os.Setenv("AE_ALM_BASE_URL", "http://localhost:8080/qcbin")
	os.Setenv("AE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	os.Setenv("AE_KEYCLOAK_URL", "http://localhost:8081")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты EntityRepository ---

func testEntity(owner, id, parentID string) *model.EntityRecord {
	return &model.EntityRecord{
		OwnerUser:  owner,
		EntityID:   id,
		EntityType: almconfig.KindTestFolder,
		ParentID:   parentID,
		Fields: []model.FieldValue{
			{Field: "id", Alias: "Folder ID", Sequence: 2, Display: true, Value: id},
			{Field: "name", Alias: "Folder Name", Sequence: 3, Display: true, Value: "folder-" + id},
		},
		Extra:       map[string]string{"custom-01": "x"},
		ExtractedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestEntityUpsertIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewEntityRepository(pool)

	e := testEntity("u1", "10", "1")

	// Первый upsert — вставка
	inserted, err := repo.Upsert(ctx, almconfig.ColTestplanFolders, e)
	if err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if !inserted {
		t.Error("первый Upsert должен быть вставкой")
	}

	// Повторный upsert — обновление, не дубликат
	inserted, err = repo.Upsert(ctx, almconfig.ColTestplanFolders, testEntity("u1", "10", "1"))
	if err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}
	if inserted {
		t.Error("повторный Upsert должен быть обновлением")
	}

	count, err := repo.Count(ctx, EntityFilters{OwnerUser: "u1", Collection: almconfig.ColTestplanFolders})
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, хотели 1", count)
	}
}

func TestEntityFindByParent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewEntityRepository(pool)

	for _, e := range []*model.EntityRecord{
		testEntity("u1", "1", ""),
		testEntity("u1", "2", "1"),
		testEntity("u1", "3", "1"),
		testEntity("u1", "4", "2"),
		testEntity("u2", "5", "1"), // другой пользователь
	} {
		if _, err := repo.Upsert(ctx, almconfig.ColTestplanFolders, e); err != nil {
			t.Fatalf("Upsert(%s) ошибка: %v", e.EntityID, err)
		}
	}

	parent := "1"
	got, err := repo.Find(ctx, EntityFilters{
		OwnerUser:  "u1",
		Collection: almconfig.ColTestplanFolders,
		ParentID:   &parent,
	}, 100, 0)
	if err != nil {
		t.Fatalf("Find() ошибка: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Find вернул %d записей, хотели 2", len(got))
	}
	if got[0].EntityID != "2" || got[1].EntityID != "3" {
		t.Errorf("порядок записей: %s, %s — хотели 2, 3", got[0].EntityID, got[1].EntityID)
	}

	// Данные разделены по пользователям
	if _, err := repo.GetByID(ctx, "u1", almconfig.ColTestplanFolders, "5"); err != ErrNotFound {
		t.Errorf("сущность другого пользователя не должна быть видна, err = %v", err)
	}

	// Поля и доп. поля восстанавливаются из JSONB
	e, err := repo.GetByID(ctx, "u1", almconfig.ColTestplanFolders, "2")
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if len(e.Fields) != 2 {
		t.Errorf("Fields: %d элементов, хотели 2", len(e.Fields))
	}
	if e.Extra["custom-01"] != "x" {
		t.Errorf("Extra[custom-01] = %q, хотели x", e.Extra["custom-01"])
	}
}

// --- Тесты JobRepository ---

func TestJobLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)

	jobID := uuid.New().String()
	job := &model.ExtractionJob{
		JobID:          jobID,
		OwnerUser:      "u1",
		Domain:         "DEFAULT",
		Project:        "P1",
		RootEntityID:   "1",
		RootEntityKind: almconfig.KindTestFolder,
		Status:         model.JobStatusPending,
		StartedAt:      time.Now().UTC(),
	}

	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	if err := repo.SetStatus(ctx, jobID, model.JobStatusInProgress); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}

	// Два аддитивных приращения из разных ветвей обхода
	if err := repo.AddCounters(ctx, jobID, model.JobCounters{Folders: 2, Tests: 1}); err != nil {
		t.Fatalf("AddCounters() ошибка: %v", err)
	}
	if err := repo.AddCounters(ctx, jobID, model.JobCounters{Folders: 1, AttachmentsFound: 3, AttachmentsDownloaded: 2}); err != nil {
		t.Fatalf("AddCounters() ошибка: %v", err)
	}

	if err := repo.AppendNote(ctx, jobID, "достигнут потолок глубины на узле 42"); err != nil {
		t.Fatalf("AppendNote() ошибка: %v", err)
	}

	if err := repo.Complete(ctx, jobID); err != nil {
		t.Fatalf("Complete() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "u1", jobID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Errorf("Status = %q, хотели completed", got.Status)
	}
	if got.Counters.Folders != 3 || got.Counters.Tests != 1 {
		t.Errorf("счётчики: folders=%d tests=%d, хотели 3 и 1", got.Counters.Folders, got.Counters.Tests)
	}
	if got.Counters.AttachmentsFound != 3 || got.Counters.AttachmentsDownloaded != 2 {
		t.Errorf("счётчики вложений: found=%d downloaded=%d, хотели 3 и 2",
			got.Counters.AttachmentsFound, got.Counters.AttachmentsDownloaded)
	}
	if len(got.Notes) != 1 {
		t.Errorf("Notes: %d элементов, хотели 1", len(got.Notes))
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt не установлен")
	}
}

func TestJobFailPreservesCounters(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewJobRepository(pool)

	jobID := uuid.New().String()
	job := &model.ExtractionJob{
		JobID:          jobID,
		OwnerUser:      "u1",
		Domain:         "DEFAULT",
		Project:        "P1",
		RootEntityID:   "1",
		RootEntityKind: almconfig.KindTestFolder,
		Status:         model.JobStatusInProgress,
		StartedAt:      time.Now().UTC(),
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	if err := repo.AddCounters(ctx, jobID, model.JobCounters{Folders: 2}); err != nil {
		t.Fatalf("AddCounters() ошибка: %v", err)
	}
	if err := repo.Fail(ctx, jobID, "выборка подпапки 3 из 5 не удалась"); err != nil {
		t.Fatalf("Fail() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "u1", jobID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Status != model.JobStatusFailed {
		t.Errorf("Status = %q, хотели failed", got.Status)
	}
	if got.Error == nil || *got.Error == "" {
		t.Error("текст ошибки не сохранён")
	}
	// Счётчики до сбоя не откатываются
	if got.Counters.Folders != 2 {
		t.Errorf("Folders = %d, хотели 2", got.Counters.Folders)
	}
}

// --- Тесты AttachmentCacheRepository ---

func TestAttachmentCacheUpsert(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAttachmentCacheRepository(pool)

	scope := model.Scope{Domain: "DEFAULT", Project: "P1"}
	rec := &model.AttachmentRecord{
		OwnerUser:    "u1",
		Domain:       scope.Domain,
		Project:      scope.Project,
		AttachmentID: "42",
		ParentType:   almconfig.KindTest,
		ParentID:     "100",
		Name:         "report.pdf",
		ContentType:  "application/pdf",
		Size:         4,
		Data:         []byte("PDF!"),
		DownloadedAt: time.Now().UTC(),
	}

	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	// Повторное скачивание заменяет запись
	rec.Data = []byte("PDF2")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "u1", scope, "42")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if string(got.Data) != "PDF2" {
		t.Errorf("Data = %q, хотели PDF2", got.Data)
	}

	meta, err := repo.GetMeta(ctx, "u1", scope, "42")
	if err != nil {
		t.Fatalf("GetMeta() ошибка: %v", err)
	}
	if meta.Name != "report.pdf" || len(meta.Data) != 0 {
		t.Errorf("GetMeta вернул name=%q, data %d байт — содержимое не должно читаться", meta.Name, len(meta.Data))
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, хотели 1", count)
	}
}

// --- Тесты CredentialRepository ---

func TestCredentialCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCredentialRepository(pool)

	cred := &model.Credential{
		OwnerUser:         "u1",
		EncryptedPassword: []byte{0x01, 0x02, 0x03},
	}

	if err := repo.Upsert(ctx, cred); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if cred.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Обновление шифротекста
	cred.EncryptedPassword = []byte{0x04, 0x05}
	if err := repo.Upsert(ctx, cred); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if len(got.EncryptedPassword) != 2 {
		t.Errorf("EncryptedPassword: %d байт, хотели 2", len(got.EncryptedPassword))
	}

	if err := repo.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.Get(ctx, "u1"); err != ErrNotFound {
		t.Errorf("после Delete ожидалась ErrNotFound, получено %v", err)
	}
}
