package almconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Параметры пагинации ALM REST API.
const (
	// DefaultPageSize — размер страницы по умолчанию
	DefaultPageSize = 100
	// MaxPageSize — максимальный размер страницы, допускаемый ALM
	MaxPageSize = 500
	// StartIndexParam — имя параметра начального индекса (отсчёт с 1)
	StartIndexParam = "start-index"
	// PageSizeParam — имя параметра размера страницы
	PageSizeParam = "page-size"
)

// Пути аутентификации ALM.
const (
	PathAuthenticate = "/authentication-point/authenticate"
	PathSiteSession  = "/rest/site-session"
	PathLogout       = "/authentication-point/logout"
)

// Endpoint — конфигурация одного list-эндпоинта ALM.
type Endpoint struct {
	// pathTemplate — шаблон пути с плейсхолдерами {domain}, {project}
	pathTemplate string
	// fields — поля, запрашиваемые параметром fields
	fields []string
	// filterField — имя поля фильтра по родителю (пустое — фильтра нет)
	filterField string
	// sortBy — поле сортировки
	sortBy string
	// sortOrder — asc или desc
	sortOrder string
	// paginated — применяется ли пагинация
	paginated bool
}

// endpoints — конфигурация list-эндпоинтов по видам сущностей.
var endpoints = map[string]Endpoint{
	KindDomain: {
		pathTemplate: "/rest/domains",
		fields:       []string{"id", "name"},
		sortBy:       "name", sortOrder: "asc",
	},
	KindProject: {
		pathTemplate: "/rest/domains/{domain}/projects",
		fields:       []string{"id", "name", "description"},
		sortBy:       "name", sortOrder: "asc",
	},
	KindTestFolder: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/test-folders",
		fields:       []string{"id", "name", "parent-id", "description"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindTest: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/tests",
		fields:       []string{"id", "name", "parent-id", "status", "description", "owner", "creation-time"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindDesignStep: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/design-steps",
		fields:       []string{"id", "name", "parent-id", "step-order", "description", "expected"},
		filterField:  "parent-id",
		sortBy:       "step-order", sortOrder: "asc",
		paginated:    true,
	},
	KindAttachment: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/attachments",
		fields:       []string{"id", "name", "parent-id", "parent-type", "file-size", "description"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindReleaseFolder: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/release-folders",
		fields:       []string{"id", "name", "parent-id", "description"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindRelease: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/releases",
		fields:       []string{"id", "name", "parent-id", "start-date", "end-date", "description"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindReleaseCycle: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/release-cycles",
		fields:       []string{"id", "name", "parent-id", "start-date", "end-date"},
		filterField:  "parent-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindTestSet: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/test-sets",
		fields:       []string{"id", "name", "cycle-id", "status", "open-date"},
		filterField:  "cycle-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindTestRun: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/runs",
		fields:       []string{"id", "name", "testcycl-id", "cycle-id", "test-id", "status", "owner", "execution-date"},
		filterField:  "testcycl-id",
		sortBy:       "id", sortOrder: "asc",
		paginated:    true,
	},
	KindDefect: {
		pathTemplate: "/rest/domains/{domain}/projects/{project}/defects",
		fields: []string{
			"id", "name", "status", "severity", "priority",
			"detected-by", "owner", "creation-time", "detected-in-rcyc",
			"project", "has-attachments", "description",
		},
		sortBy: "id", sortOrder: "desc",
		paginated: true,
	},
}

// EndpointFor возвращает конфигурацию list-эндпоинта для вида сущности.
func EndpointFor(kind string) (Endpoint, error) {
	ep, ok := endpoints[kind]
	if !ok {
		return Endpoint{}, fmt.Errorf("неизвестный вид сущности: %q", kind)
	}
	return ep, nil
}

// Paginated сообщает, применяется ли к эндпоинту пагинация.
// Домены и проекты ALM отдаёт единым списком в обёртке results.
func (e Endpoint) Paginated() bool {
	return e.paginated
}

// Path подставляет домен и проект в шаблон пути.
func (e Endpoint) Path(domain, project string) string {
	p := strings.ReplaceAll(e.pathTemplate, "{domain}", url.PathEscape(domain))
	p = strings.ReplaceAll(p, "{project}", url.PathEscape(project))
	return p
}

// DownloadPath возвращает путь скачивания содержимого вложения.
func DownloadPath(domain, project, attachmentID string) string {
	return fmt.Sprintf("/rest/domains/%s/projects/%s/attachments/%s",
		url.PathEscape(domain), url.PathEscape(project), url.PathEscape(attachmentID))
}

// QueryByID собирает query-параметры выборки одной сущности по id.
func (e Endpoint) QueryByID(id string) url.Values {
	params := url.Values{}
	params.Set("query", fmt.Sprintf("{id[%s]}", id))
	if len(e.fields) > 0 {
		params.Set("fields", strings.Join(e.fields, ","))
	}
	return params
}

// Query собирает query-параметры запроса: фильтр по родителю,
// сортировку, список полей и пагинацию в синтаксисе ALM
// (query={parent-id[123]}, order-by={id[asc]}).
func (e Endpoint) Query(parentID, parentType string, startIndex, pageSize int) url.Values {
	params := url.Values{}

	if e.paginated {
		if pageSize <= 0 || pageSize > MaxPageSize {
			pageSize = DefaultPageSize
		}
		params.Set(PageSizeParam, strconv.Itoa(pageSize))
		params.Set(StartIndexParam, strconv.Itoa(startIndex))
	}

	if e.filterField != "" && parentID != "" {
		filter := fmt.Sprintf("%s[%s]", e.filterField, parentID)
		// Для вложений фильтр дополняется видом родителя
		if parentType != "" {
			filter += fmt.Sprintf(";parent-type[%s]", parentType)
		}
		params.Set("query", "{"+filter+"}")
	}

	if e.sortBy != "" {
		params.Set("order-by", fmt.Sprintf("{%s[%s]}", e.sortBy, e.sortOrder))
	}

	if len(e.fields) > 0 {
		params.Set("fields", strings.Join(e.fields, ","))
	}

	return params
}
