package model

import "time"

// FieldValue — одно нормализованное поле сущности ALM.
type FieldValue struct {
	// Field — системное имя поля в ALM (например, "parent-id")
	Field string `json:"field"`
	// Alias — человекочитаемое имя поля
	Alias string `json:"alias"`
	// Sequence — порядок отображения поля
	Sequence int `json:"sequence"`
	// Display — показывать ли поле в таблицах по умолчанию
	Display bool `json:"display"`
	// Value — значение поля; несколько значений склеиваются через "; "
	Value string `json:"value"`
}

// EntityRecord — нормализованная сущность ALM.
// Хранится в таблице alm_entities (одна строка на сущность в коллекции).
type EntityRecord struct {
	// OwnerUser — логин пользователя ALM, от имени которого извлечена сущность
	OwnerUser string
	// Collection — имя коллекции (например, testplan_tests)
	Collection string
	// EntityID — идентификатор сущности в ALM (поле id)
	EntityID string
	// EntityType — тип сущности ALM (test, test-folder, defect и т.д.)
	EntityType string
	// ParentID — идентификатор родителя (пустая строка для корневых сущностей)
	ParentID string
	// Fields — сконфигурированные поля в порядке sequence
	Fields []FieldValue
	// Extra — поля, пришедшие из ALM, но не описанные в конфигурации
	Extra map[string]string
	// ExtractedAt — время извлечения
	ExtractedAt time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// FieldByName возвращает значение поля по системному имени.
// Второе значение false, если поле отсутствует и в Fields, и в Extra.
func (e *EntityRecord) FieldByName(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Value, true
		}
	}
	if v, ok := e.Extra[name]; ok {
		return v, true
	}
	return "", false
}
