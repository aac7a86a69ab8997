package almclient

import "strings"

// Формат ответа ALM REST API.
//
// Список сущностей:
//
//	{"entities": [{"Type": "test", "Fields": [{"Name": "id", "values": [{"value": "1"}]}]}], "TotalResults": 1}
//
// Домены и проекты приходят в обёртке results без пагинации.

// RawValue — одно значение поля сущности.
type RawValue struct {
	Value string `json:"value"`
}

// RawField — поле сущности: имя и список значений.
type RawField struct {
	Name   string     `json:"Name"`
	Values []RawValue `json:"values"`
}

// RawEntity — одна сущность из ответа ALM, до нормализации.
type RawEntity struct {
	Type   string     `json:"Type"`
	Fields []RawField `json:"Fields"`
}

// FieldMap разворачивает список полей в отображение имя → значение.
// Несколько значений одного поля склеиваются через "; ".
func (e RawEntity) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			continue
		}
		vals := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			if v.Value != "" {
				vals = append(vals, v.Value)
			}
		}
		m[f.Name] = strings.Join(vals, "; ")
	}
	return m
}

// entitiesResponse — ответ пагинированного list-эндпоинта.
// Поле TotalResults ненадёжно при комбинированных фильтрах
// и для определения конца выборки не используется.
type entitiesResponse struct {
	Entities     []RawEntity `json:"entities"`
	TotalResults int         `json:"TotalResults"`
}

// resultsResponse — ответ эндпоинтов доменов и проектов (без пагинации).
type resultsResponse struct {
	Results []RawEntity `json:"results"`
}

// Attachment — скачанное содержимое вложения.
type Attachment struct {
	// Filename — имя файла из Content-Disposition (может быть пустым)
	Filename string
	// ContentType — MIME-тип содержимого
	ContentType string
	// Data — содержимое
	Data []byte
}
