package service

import (
	"reflect"
	"testing"
	"time"

	"github.com/arturkryukov/almstore/internal/almconfig"
)

// TestNormalize_FolderFields проверяет базовую нормализацию папки:
// маршрутизацию в коллекцию, порядок полей и заполнение псевдополей.
func TestNormalize_FolderFields(t *testing.T) {
	raw := rawEnt(almconfig.KindTestFolder, "42", "Smoke", "description", "Дымовые тесты")
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	e, collection, err := Normalize(almconfig.KindTestFolder, almconfig.KindTestFolder, "ivanov", "7", raw, at)
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}

	if collection != almconfig.ColTestplanFolders {
		t.Errorf("collection = %q, ожидался %q", collection, almconfig.ColTestplanFolders)
	}
	if e.EntityID != "42" || e.ParentID != "7" || e.OwnerUser != "ivanov" {
		t.Errorf("ключ записи = %s/%s/%s, ожидался ivanov/42/7", e.OwnerUser, e.EntityID, e.ParentID)
	}
	if !e.ExtractedAt.Equal(at) {
		t.Errorf("ExtractedAt = %v, ожидался %v", e.ExtractedAt, at)
	}

	// Сконфигурированные поля идут первыми в порядке sequence
	for i := 1; i < len(e.Fields); i++ {
		if e.Fields[i].Sequence <= e.Fields[i-1].Sequence {
			t.Fatalf("нарушен порядок sequence: %v после %v", e.Fields[i], e.Fields[i-1])
		}
	}

	byName := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		byName[f.Field] = f.Value
	}
	if byName[almconfig.PseudoFieldUser] != "ivanov" {
		t.Errorf("псевдополе user = %q, ожидался ivanov", byName[almconfig.PseudoFieldUser])
	}
	if byName[almconfig.PseudoFieldParentID] != "7" {
		t.Errorf("псевдополе parent_id = %q, ожидался 7", byName[almconfig.PseudoFieldParentID])
	}
	if byName["description"] != "Дымовые тесты" {
		t.Errorf("description = %q", byName["description"])
	}
}

// TestNormalize_MandatoryAlwaysVisible проверяет, что структурно
// обязательные поля видимы даже там, где конфигурация их скрывает.
func TestNormalize_MandatoryAlwaysVisible(t *testing.T) {
	raw := rawEnt(almconfig.KindTestFolder, "1", "Root")

	e, _, err := Normalize(almconfig.KindTestFolder, almconfig.KindTestFolder, "ivanov", "0", raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}

	for _, f := range e.Fields {
		switch f.Field {
		case "id", "name", almconfig.PseudoFieldUser, almconfig.PseudoFieldParentID:
			if !f.Display {
				t.Errorf("обязательное поле %q скрыто", f.Field)
			}
		}
	}
}

// TestNormalize_UnknownFieldsPreserved проверяет, что поля, не описанные
// в конфигурации, сохраняются после сконфигурированных (display=false)
// и дублируются в Extra.
func TestNormalize_UnknownFieldsPreserved(t *testing.T) {
	raw := rawEnt(almconfig.KindTestFolder, "42", "Smoke",
		"vc-status", "checked-in",
		"custom-01", "значение",
	)

	e, _, err := Normalize(almconfig.KindTestFolder, almconfig.KindTestFolder, "ivanov", "7", raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}

	cfgLen := len(almconfig.FieldConfigFor(almconfig.ColTestplanFolders))
	tail := e.Fields[cfgLen:]
	var tailNames []string
	for _, f := range tail {
		if f.Display {
			t.Errorf("несконфигурированное поле %q видимо", f.Field)
		}
		tailNames = append(tailNames, f.Field)
	}
	// Порядок появления в ответе ALM сохраняется
	if !reflect.DeepEqual(tailNames, []string{"vc-status", "custom-01"}) {
		t.Errorf("хвост полей = %v, ожидался [vc-status custom-01]", tailNames)
	}

	if e.Extra["vc-status"] != "checked-in" || e.Extra["custom-01"] != "значение" {
		t.Errorf("Extra = %v", e.Extra)
	}
}

// TestNormalize_Deterministic проверяет стабильность: два вызова
// с одинаковыми аргументами дают идентичные записи.
func TestNormalize_Deterministic(t *testing.T) {
	raw := rawEnt(almconfig.KindTest, "9", "Login test",
		"status", "Ready",
		"custom-02", "x",
	)
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	first, _, err := Normalize(almconfig.KindTest, almconfig.KindTestFolder, "ivanov", "42", raw, at)
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}
	second, _, err := Normalize(almconfig.KindTest, almconfig.KindTestFolder, "ivanov", "42", raw, at)
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("нормализация недетерминирована:\n%+v\n%+v", first, second)
	}
}

// TestNormalize_ParentArgOverridesRaw проверяет приоритет parent_id
// из аргумента вызова над полем parent-id ответа ALM.
func TestNormalize_ParentArgOverridesRaw(t *testing.T) {
	raw := rawEnt(almconfig.KindTestFolder, "42", "Smoke", "parent-id", "999")

	e, _, err := Normalize(almconfig.KindTestFolder, almconfig.KindTestFolder, "ivanov", "7", raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}
	if e.ParentID != "7" {
		t.Errorf("ParentID = %q, ожидался 7 (аргумент приоритетнее ответа)", e.ParentID)
	}

	// При пустом аргументе берётся parent-id из ответа
	e, _, err = Normalize(almconfig.KindTestFolder, almconfig.KindTestFolder, "ivanov", "", raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}
	if e.ParentID != "999" {
		t.Errorf("ParentID = %q, ожидался 999 из ответа", e.ParentID)
	}
}

// TestNormalize_AttachmentRouting проверяет разветвление вложений
// по виду родителя.
func TestNormalize_AttachmentRouting(t *testing.T) {
	raw := rawEnt(almconfig.KindAttachment, "100", "log.txt")

	_, collection, err := Normalize(almconfig.KindAttachment, almconfig.KindTest, "ivanov", "9", raw, time.Now())
	if err != nil {
		t.Fatalf("Normalize ошибка: %v", err)
	}
	if collection != almconfig.ColTestAttachments {
		t.Errorf("collection = %q, ожидался %q", collection, almconfig.ColTestAttachments)
	}

	// Неизвестный вид родителя вложения — ошибка, без тихого fallback
	if _, _, err := Normalize(almconfig.KindAttachment, almconfig.KindRelease, "ivanov", "9", raw, time.Now()); err == nil {
		t.Error("ожидалась ошибка для вложения с родителем release")
	}
}

// TestNormalize_MissingID проверяет отказ на сущности без id.
func TestNormalize_MissingID(t *testing.T) {
	raw := rawEnt(almconfig.KindTest, "", "Безымянный")

	if _, _, err := Normalize(almconfig.KindTest, almconfig.KindTestFolder, "ivanov", "42", raw, time.Now()); err == nil {
		t.Error("ожидалась ошибка для сущности без id")
	}
}
