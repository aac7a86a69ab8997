package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
)

// normalizeAttachment — готовая запись вложения для тестов.
func normalizeAttachment(t *testing.T, id, name, parentKind, parentID string, kv ...string) *model.EntityRecord {
	t.Helper()
	e, _, err := Normalize(almconfig.KindAttachment, parentKind, "ivanov", parentID,
		rawEnt(almconfig.KindAttachment, id, name, kv...), time.Now().UTC())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}
	return e
}

// TestAttachmentMaterialize проверяет скачивание и сохранение вложения.
func TestAttachmentMaterialize(t *testing.T) {
	alm := newTreeALM()
	alm.downloads["200"] = makeAttachment("screenshot.png", "png-данные")

	cache := newMemAttachmentCache()
	svc := NewAttachmentService(alm, cache, 16, time.Minute, slog.Default())
	sess := &model.Session{User: "ivanov"}

	e := normalizeAttachment(t, "200", "screenshot.png", almconfig.KindTest, "10")
	if err := svc.Materialize(context.Background(), sess, "ivanov", testScope, e); err != nil {
		t.Fatalf("Materialize ошибка: %v", err)
	}

	rec, err := cache.Get(context.Background(), "ivanov", testScope, "200")
	if err != nil {
		t.Fatalf("Get из кэша ошибка: %v", err)
	}
	if rec.Name != "screenshot.png" || rec.ContentType != "text/plain" {
		t.Errorf("метаданные = %q/%q", rec.Name, rec.ContentType)
	}
	if !bytes.Equal(rec.Data, []byte("png-данные")) {
		t.Errorf("содержимое = %q", rec.Data)
	}
	if rec.Size != int64(len("png-данные")) {
		t.Errorf("Size = %d", rec.Size)
	}
}

// TestAttachmentMaterialize_NameFallback проверяет имя из записи
// сущности, когда Content-Disposition пуст, и размер из метаданных
// при пустом теле.
func TestAttachmentMaterialize_NameFallback(t *testing.T) {
	alm := newTreeALM()
	alm.downloads["201"] = makeAttachment("", "")

	cache := newMemAttachmentCache()
	svc := NewAttachmentService(alm, cache, 16, time.Minute, slog.Default())
	sess := &model.Session{User: "ivanov"}

	e := normalizeAttachment(t, "201", "report.pdf", almconfig.KindTest, "10", "file-size", "12345")
	if err := svc.Materialize(context.Background(), sess, "ivanov", testScope, e); err != nil {
		t.Fatalf("Materialize ошибка: %v", err)
	}

	rec, err := cache.Get(context.Background(), "ivanov", testScope, "201")
	if err != nil {
		t.Fatalf("Get из кэша ошибка: %v", err)
	}
	if rec.Name != "report.pdf" {
		t.Errorf("Name = %q, ожидался report.pdf из записи сущности", rec.Name)
	}
	if rec.Size != 12345 {
		t.Errorf("Size = %d, ожидался 12345 из метаданных", rec.Size)
	}
}

// TestAttachmentMaterialize_DownloadError проверяет, что сбой
// скачивания не оставляет записи в кэше.
func TestAttachmentMaterialize_DownloadError(t *testing.T) {
	alm := newTreeALM()
	alm.downloadErr["202"] = errDownloadBroken

	cache := newMemAttachmentCache()
	svc := NewAttachmentService(alm, cache, 16, time.Minute, slog.Default())
	sess := &model.Session{User: "ivanov"}

	e := normalizeAttachment(t, "202", "broken.log", almconfig.KindTest, "10")
	if err := svc.Materialize(context.Background(), sess, "ivanov", testScope, e); err == nil {
		t.Fatal("ожидалась ошибка скачивания")
	}

	if n, _ := cache.Count(context.Background()); n != 0 {
		t.Errorf("в кэше %d записей, ожидалось 0", n)
	}
}

// TestAttachmentGet_LRU проверяет выдачу из in-memory кэша:
// после первого обращения хранилище не читается.
func TestAttachmentGet_LRU(t *testing.T) {
	alm := newTreeALM()
	alm.downloads["200"] = makeAttachment("a.txt", "содержимое")

	cache := newMemAttachmentCache()
	svc := NewAttachmentService(alm, cache, 16, time.Minute, slog.Default())
	sess := &model.Session{User: "ivanov"}

	e := normalizeAttachment(t, "200", "a.txt", almconfig.KindTest, "10")
	if err := svc.Materialize(context.Background(), sess, "ivanov", testScope, e); err != nil {
		t.Fatalf("Materialize ошибка: %v", err)
	}

	// Запись удаляется из хранилища: выдача идёт из LRU
	cache.records = map[string]*model.AttachmentRecord{}

	rec, err := svc.Get(context.Background(), "ivanov", testScope, "200")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if !bytes.Equal(rec.Data, []byte("содержимое")) {
		t.Errorf("содержимое = %q", rec.Data)
	}
}

// TestAttachmentStat проверяет выдачу метаданных: размер и имя
// возвращаются, содержимое — нет, в том числе при попадании в LRU.
func TestAttachmentStat(t *testing.T) {
	alm := newTreeALM()
	alm.downloads["200"] = makeAttachment("a.txt", "содержимое")

	cache := newMemAttachmentCache()
	svc := NewAttachmentService(alm, cache, 16, time.Minute, slog.Default())
	sess := &model.Session{User: "ivanov"}

	e := normalizeAttachment(t, "200", "a.txt", almconfig.KindTest, "10")
	if err := svc.Materialize(context.Background(), sess, "ivanov", testScope, e); err != nil {
		t.Fatalf("Materialize ошибка: %v", err)
	}

	// Запись в LRU: метаданные отдаются без содержимого
	meta, err := svc.Stat(context.Background(), "ivanov", testScope, "200")
	if err != nil {
		t.Fatalf("Stat ошибка: %v", err)
	}
	if meta.Name != "a.txt" || meta.Size != int64(len("содержимое")) {
		t.Errorf("метаданные = %q/%d", meta.Name, meta.Size)
	}
	if len(meta.Data) != 0 {
		t.Errorf("Stat вернул %d байт содержимого, ожидалось 0", len(meta.Data))
	}

	// Неизвестное вложение
	if _, err := svc.Stat(context.Background(), "ivanov", testScope, "404"); err == nil {
		t.Error("ожидалась ошибка для неизвестного вложения")
	}
}
