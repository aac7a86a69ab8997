// client.go — HTTP-клиент к REST API HP ALM / Quality Center.
// Реализует двухшаговую аутентификацию (authentication-point + site-session),
// пагинированную выборку сущностей со страницей 100, скачивание вложений
// и повторные попытки при transient-ошибках с прозрачным повторным
// входом при истечении сессии.
//
// Сессия — явное значение (model.Session), передаваемое в каждый вызов:
// клиент не хранит cookie как общее состояние, поэтому параллельные
// извлечения разных пользователей не пересекаются.
package almclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arturkryukov/almstore/internal/almconfig"
	"github.com/arturkryukov/almstore/internal/domain/model"
)

// Ошибки клиента ALM.
var (
	// ErrUnauthorized — сессия ALM истекла и повторный вход не помог
	ErrUnauthorized = errors.New("сессия ALM недействительна")
	// ErrAuthFailed — ALM отверг учётные данные
	ErrAuthFailed = errors.New("ALM отверг учётные данные")
)

// SessionRenewer обновляет истёкшую сессию ALM по сохранённым
// учётным данным пользователя.
type SessionRenewer interface {
	Renew(ctx context.Context, user string) (model.Session, error)
}

// Params — параметры создания клиента ALM.
type Params struct {
	// BaseURL — базовый URL ALM (например, https://alm.kryukov.lan/qcbin)
	BaseURL string
	// ClientType — значение client-type при создании site-session
	ClientType string
	// PageSize — размер страницы list-запросов
	PageSize int
	// RetryAttempts — количество попыток при transient-ошибках
	RetryAttempts int
	// RetryDelay — пауза между попытками
	RetryDelay time.Duration
	// RequestTimeout — таймаут list-запроса
	RequestTimeout time.Duration
	// DownloadTimeout — таймаут скачивания вложения
	DownloadTimeout time.Duration
	// CACertPath — путь к CA-сертификату (пустой — системные корни)
	CACertPath string
}

// Client — HTTP-клиент к REST API ALM.
type Client struct {
	baseURL       string
	clientType    string
	pageSize      int
	retryAttempts int
	retryDelay    time.Duration

	httpClient     *http.Client
	downloadClient *http.Client
	logger         *slog.Logger

	renewer SessionRenewer
}

// New создаёт клиент к REST API ALM.
func New(p Params, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport
	if p.CACertPath != "" {
		caCert, err := os.ReadFile(p.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("CA-сертификат %s не содержит валидных PEM-блоков", p.CACertPath)
		}
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}

	if p.PageSize <= 0 {
		p.PageSize = almconfig.DefaultPageSize
	}
	if p.RetryAttempts <= 0 {
		p.RetryAttempts = 3
	}

	return &Client{
		baseURL:       strings.TrimRight(p.BaseURL, "/"),
		clientType:    p.ClientType,
		pageSize:      p.PageSize,
		retryAttempts: p.RetryAttempts,
		retryDelay:    p.RetryDelay,
		httpClient: &http.Client{
			Timeout:   p.RequestTimeout,
			Transport: transport,
		},
		downloadClient: &http.Client{
			Timeout:   p.DownloadTimeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "alm_client")),
	}, nil
}

// SetRenewer задаёт механизм прозрачного повторного входа при 401.
// Без него 401 сразу возвращается как ErrUnauthorized.
func (c *Client) SetRenewer(r SessionRenewer) {
	c.renewer = r
}

// PageSize возвращает размер страницы list-запросов.
func (c *Client) PageSize() int {
	return c.pageSize
}

// --- Аутентификация ---

// Authenticate выполняет двухшаговый вход в ALM:
// Basic-аутентификация на authentication-point, затем создание
// site-session. Возвращает сессию с четырьмя cookie.
func (c *Client) Authenticate(ctx context.Context, username, password string) (model.Session, error) {
	// Шаг 1: authentication-point → LWSSO_COOKIE_KEY
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+almconfig.PathAuthenticate, nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("создание запроса аутентификации: %w", err)
	}
	req.SetBasicAuth(username, password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Session{}, fmt.Errorf("запрос аутентификации ALM: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return model.Session{}, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return model.Session{}, fmt.Errorf("ALM вернул статус %d при аутентификации", resp.StatusCode)
	}

	sess := model.Session{
		User:      username,
		CreatedAt: time.Now(),
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "LWSSO_COOKIE_KEY" {
			sess.LWSSOCookie = ck.Value
		}
	}
	if sess.LWSSOCookie == "" {
		return model.Session{}, fmt.Errorf("ALM не вернул cookie LWSSO_COOKIE_KEY")
	}

	// Шаг 2: site-session → QCSession, ALM_USER, XSRF-TOKEN
	body := fmt.Sprintf("<session-parameters><client-type>%s</client-type></session-parameters>", c.clientType)
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+almconfig.PathSiteSession, strings.NewReader(body))
	if err != nil {
		return model.Session{}, fmt.Errorf("создание запроса site-session: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	c.addSessionCookies(req, sess)

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return model.Session{}, fmt.Errorf("запрос site-session ALM: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return model.Session{}, fmt.Errorf("ALM вернул статус %d при создании site-session", resp.StatusCode)
	}

	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "QCSession":
			sess.QCSessionCookie = ck.Value
		case "ALM_USER":
			sess.ALMUserCookie = ck.Value
		case "XSRF-TOKEN":
			sess.XSRFToken = ck.Value
		}
	}

	c.logger.Info("сессия ALM создана", slog.String("user", username))
	return sess, nil
}

// Logout завершает сессию ALM. Ошибка не критична: сессия в любом
// случае истечёт на стороне сервера.
func (c *Client) Logout(ctx context.Context, sess model.Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+almconfig.PathLogout, nil)
	if err != nil {
		return fmt.Errorf("создание запроса logout: %w", err)
	}
	c.addSessionCookies(req, sess)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос logout ALM: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.logger.Info("сессия ALM завершена", slog.String("user", sess.User))
	return nil
}

// addSessionCookies добавляет cookie сессии к запросу.
func (c *Client) addSessionCookies(req *http.Request, sess model.Session) {
	if sess.LWSSOCookie != "" {
		req.AddCookie(&http.Cookie{Name: "LWSSO_COOKIE_KEY", Value: sess.LWSSOCookie})
	}
	if sess.QCSessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "QCSession", Value: sess.QCSessionCookie})
	}
	if sess.ALMUserCookie != "" {
		req.AddCookie(&http.Cookie{Name: "ALM_USER", Value: sess.ALMUserCookie})
	}
	if sess.XSRFToken != "" {
		req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: sess.XSRFToken})
	}
}

// --- Выборка сущностей ---

// FetchAll выбирает полный набор сущностей вида kind, листая страницы
// по pageSize записей. Конец выборки определяется исключительно по
// размеру страницы: страница короче pageSize — последняя. Поле
// TotalResults ответа игнорируется как ненадёжное.
// Возвращает записи и количество полученных страниц.
func (c *Client) FetchAll(ctx context.Context, sess *model.Session, scope model.Scope, kind, parentID, parentType string) ([]RawEntity, int, error) {
	ep, err := almconfig.EndpointFor(kind)
	if err != nil {
		return nil, 0, err
	}
	if !ep.Paginated() {
		// Домены и проекты приходят в обёртке results: листание по
		// start-index для них молча вернуло бы пустой список
		return nil, 0, fmt.Errorf("эндпоинт %s без пагинации, используйте ListUnpaged", kind)
	}

	var all []RawEntity
	pages := 0
	startIndex := 1

	for {
		page, err := c.listPage(ctx, sess, ep, scope, parentID, parentType, startIndex)
		if err != nil {
			return nil, pages, fmt.Errorf("выборка %s (start-index=%d): %w", kind, startIndex, err)
		}
		pages++
		all = append(all, page...)

		if len(page) < c.pageSize {
			break
		}
		startIndex += c.pageSize
	}

	c.logger.Debug("выборка завершена",
		slog.String("kind", kind),
		slog.String("parent_id", parentID),
		slog.Int("records", len(all)),
		slog.Int("pages", pages),
	)
	return all, pages, nil
}

// listPage выбирает одну страницу list-эндпоинта.
func (c *Client) listPage(ctx context.Context, sess *model.Session, ep almconfig.Endpoint, scope model.Scope, parentID, parentType string, startIndex int) ([]RawEntity, error) {
	reqURL := c.baseURL + ep.Path(scope.Domain, scope.Project) +
		"?" + ep.Query(parentID, parentType, startIndex, c.pageSize).Encode()

	var payload entitiesResponse
	if err := c.getJSON(ctx, sess, reqURL, &payload); err != nil {
		return nil, err
	}
	return payload.Entities, nil
}

// FetchByID выбирает одну сущность по идентификатору.
// Возвращает nil без ошибки, если сущность не найдена: пустая
// выборка — валидный результат, а не сбой.
func (c *Client) FetchByID(ctx context.Context, sess *model.Session, scope model.Scope, kind, id string) (*RawEntity, error) {
	ep, err := almconfig.EndpointFor(kind)
	if err != nil {
		return nil, err
	}
	if !ep.Paginated() {
		return nil, fmt.Errorf("выборка %s по id недоступна: эндпоинт без пагинации", kind)
	}

	reqURL := c.baseURL + ep.Path(scope.Domain, scope.Project) + "?" + ep.QueryByID(id).Encode()

	var payload entitiesResponse
	if err := c.getJSON(ctx, sess, reqURL, &payload); err != nil {
		return nil, fmt.Errorf("выборка %s id=%s: %w", kind, id, err)
	}
	if len(payload.Entities) == 0 {
		return nil, nil
	}
	return &payload.Entities[0], nil
}

// ListUnpaged выбирает домены или проекты: ALM отдаёт их единым
// списком в обёртке results без пагинации.
func (c *Client) ListUnpaged(ctx context.Context, sess *model.Session, kind, domain string) ([]RawEntity, error) {
	ep, err := almconfig.EndpointFor(kind)
	if err != nil {
		return nil, err
	}
	if ep.Paginated() {
		return nil, fmt.Errorf("эндпоинт %s пагинирован, используйте FetchAll", kind)
	}

	reqURL := c.baseURL + ep.Path(domain, "")
	if q := ep.Query("", "", 1, 0).Encode(); q != "" {
		reqURL += "?" + q
	}

	var payload resultsResponse
	if err := c.getJSON(ctx, sess, reqURL, &payload); err != nil {
		return nil, fmt.Errorf("выборка %s: %w", kind, err)
	}
	return payload.Results, nil
}

// Download скачивает содержимое вложения.
func (c *Client) Download(ctx context.Context, sess *model.Session, scope model.Scope, attachmentID string) (Attachment, error) {
	reqURL := c.baseURL + almconfig.DownloadPath(scope.Domain, scope.Project, attachmentID)

	var att Attachment
	err := c.withRetry(ctx, sess, func(s model.Session) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return 0, fmt.Errorf("создание запроса скачивания: %w", err)
		}
		req.Header.Set("Accept", "application/octet-stream")
		c.addSessionCookies(req, s)

		resp, err := c.downloadClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, fmt.Errorf("ALM вернул статус %d при скачивании вложения %s", resp.StatusCode, attachmentID)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("чтение содержимого вложения: %w", err)
		}

		att = Attachment{
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil {
				att.Filename = params["filename"]
			}
		}
		return http.StatusOK, nil
	})
	if err != nil {
		return Attachment{}, err
	}
	return att, nil
}

// --- HTTP helpers ---

// getJSON выполняет GET-запрос с cookie сессии и декодирует JSON-ответ.
func (c *Client) getJSON(ctx context.Context, sess *model.Session, reqURL string, target any) error {
	return c.withRetry(ctx, sess, func(s model.Session) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return 0, fmt.Errorf("создание запроса: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		c.addSessionCookies(req, s)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, fmt.Errorf("ALM вернул статус %d: %s", resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return 0, fmt.Errorf("декодирование ответа ALM: %w", err)
		}
		return http.StatusOK, nil
	})
}

// withRetry выполняет вызов с повторными попытками.
// Transient-ошибки (сетевые, 5xx, таймауты) повторяются до
// retryAttempts раз с фиксированной паузой. На 401 выполняется один
// прозрачный повторный вход через SessionRenewer и один повтор вызова;
// повторный 401 фатален.
func (c *Client) withRetry(ctx context.Context, sess *model.Session, call func(model.Session) (int, error)) error {
	var lastErr error
	renewed := false

	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		status, err := call(*sess)
		if err == nil {
			return nil
		}
		lastErr = err

		if status == http.StatusUnauthorized {
			if renewed || c.renewer == nil {
				return fmt.Errorf("%w: %s", ErrUnauthorized, sess.User)
			}
			newSess, renewErr := c.renewer.Renew(ctx, sess.User)
			if renewErr != nil {
				return fmt.Errorf("повторный вход в ALM: %w", renewErr)
			}
			*sess = newSess
			renewed = true
			c.logger.Info("сессия ALM обновлена после 401", slog.String("user", sess.User))
			// Повтор вызова с новой сессией не расходует попытку
			attempt--
			continue
		}

		// 4xx, кроме 401, повторять бессмысленно
		if status >= 400 && status < 500 {
			return lastErr
		}

		if attempt < c.retryAttempts {
			c.logger.Warn("transient-ошибка ALM, повтор",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	return fmt.Errorf("исчерпаны %d попыток: %w", c.retryAttempts, lastErr)
}

// --- Readiness checker ---

// CheckReady проверяет доступность ALM запросом точки аутентификации.
// Реализует handlers.ReadinessChecker. 401 — нормальный ответ
// неаутентифицированному запросу, сервер жив.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+almconfig.PathAuthenticate, nil)
	if err != nil {
		return "fail", fmt.Sprintf("ALM недоступен: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("ALM недоступен: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "degraded", fmt.Sprintf("ALM вернул статус %d", resp.StatusCode)
	}
	return "ok", "ALM доступен"
}

// BaseURL возвращает базовый URL ALM (для dephealth-лейблов).
func (c *Client) BaseURL() string {
	return c.baseURL
}
