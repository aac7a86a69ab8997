// Пакет service — бизнес-логика ALM Extractor: нормализация сущностей,
// одноуровневое раскрытие, рекурсивное извлечение, материализация
// вложений, задачи и сессии ALM.
package service

import (
	"fmt"
	"time"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
)

// Normalize преобразует сырую сущность ALM в нормализованную запись.
// Чистая функция: без I/O, детерминирована при одинаковых аргументах.
//
// Поля из конфигурации коллекции идут первыми в порядке sequence;
// поля, пришедшие из ALM, но не описанные в конфигурации, сохраняются
// полностью (display=false) после сконфигурированных, в порядке
// появления в ответе, и дублируются в Extra для удобства выборки.
// Обязательные поля id, name, parent_id и user заполняются всегда
// и всегда видимы, независимо от конфигурации.
//
// Возвращает запись и имя коллекции, в которую она маршрутизируется.
func Normalize(kind, parentKind, owner, parentID string, raw almclient.RawEntity, extractedAt time.Time) (*model.EntityRecord, string, error) {
	collection, err := almconfig.ResolveCollection(kind, parentKind)
	if err != nil {
		return nil, "", err
	}

	values := raw.FieldMap()

	// parent_id из аргумента вызова приоритетнее поля ответа
	resolvedParent := parentID
	if resolvedParent == "" {
		resolvedParent = values["parent-id"]
	}

	e := &model.EntityRecord{
		OwnerUser:   owner,
		Collection:  collection,
		EntityID:    values["id"],
		EntityType:  kind,
		ParentID:    resolvedParent,
		ExtractedAt: extractedAt,
	}
	if e.EntityID == "" {
		return nil, "", fmt.Errorf("сущность %s без поля id", kind)
	}

	cfg := almconfig.FieldConfigFor(collection)
	configured := make(map[string]bool, len(cfg))
	maxSeq := 0

	for _, fc := range cfg {
		configured[fc.Field] = true
		if fc.Sequence > maxSeq {
			maxSeq = fc.Sequence
		}

		var value string
		switch fc.Field {
		case almconfig.PseudoFieldUser:
			value = owner
		case almconfig.PseudoFieldParentID:
			value = resolvedParent
		case almconfig.PseudoFieldParentType:
			value = values["parent-type"]
		default:
			value = values[fc.Field]
		}

		e.Fields = append(e.Fields, model.FieldValue{
			Field:    fc.Field,
			Alias:    fc.Alias,
			Sequence: fc.Sequence,
			Display:  fc.Display || isMandatoryField(fc.Field),
			Value:    value,
		})
	}

	// Несконфигурированные поля — после сконфигурированных,
	// в порядке появления в ответе ALM
	seq := maxSeq
	for _, rf := range raw.Fields {
		name := rf.Name
		if name == "" || configured[name] || name == "parent-id" || name == "parent-type" {
			continue
		}
		seq++
		e.Fields = append(e.Fields, model.FieldValue{
			Field:    name,
			Alias:    name,
			Sequence: seq,
			Display:  false,
			Value:    values[name],
		})
		if e.Extra == nil {
			e.Extra = make(map[string]string)
		}
		e.Extra[name] = values[name]
	}

	return e, collection, nil
}

// isMandatoryField — структурно обязательные поля всегда видимы.
func isMandatoryField(name string) bool {
	switch name {
	case "id", "name", almconfig.PseudoFieldUser, almconfig.PseudoFieldParentID:
		return true
	}
	return false
}
