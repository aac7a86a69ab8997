// Пакет config — загрузка и валидация конфигурации ALM Extractor
// из переменных окружения.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации ALM Extractor.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения запроса HTTP-сервером
	HTTPReadTimeout time.Duration
	// Таймаут записи ответа HTTP-сервером
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное число подключений в пуле pgx
	DBMaxConns int

	// --- Upstream ALM ---

	// Базовый URL сервера ALM/Quality Center (например, https://alm.kryukov.lan/qcbin)
	ALMBaseURL string
	// Client-type, передаваемый при создании site-session
	ALMClientType string
	// Таймаут одного запроса к ALM
	ALMRequestTimeout time.Duration
	// Таймаут скачивания вложения
	ALMDownloadTimeout time.Duration
	// Количество попыток при transient-ошибках ALM
	ALMRetryAttempts int
	// Пауза между попытками
	ALMRetryDelay time.Duration
	// Путь к CA-сертификату для TLS-соединений с ALM (опционально)
	ALMCACertPath string

	// --- Извлечение ---

	// Размер страницы ALM REST API (фиксированный контрактом upstream)
	PageSize int
	// Максимальная глубина рекурсивного обхода дерева
	MaxRecursionDepth int

	// --- Кэш вложений ---

	// Максимальное количество записей in-memory LRU-кэша вложений
	AttachmentCacheSize int
	// TTL записи in-memory кэша вложений
	AttachmentCacheTTL time.Duration

	// --- Шифрование учётных данных ---

	// Ключ AES-256 (base64, 32 байта) для шифрования паролей ALM
	EncryptionKey []byte

	// --- Keycloak / JWT ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Группы Keycloak, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль readonly (через запятую)
	RoleReadonlyGroups []string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	KeycloakCACertPath string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AE_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("AE_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("AE_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("AE_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// AE_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AE_LOG_LEVEL: %w", err)
	}

	// AE_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AE_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AE_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AE_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("AE_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_HTTP_READ_TIMEOUT: %w", err)
	}

	// AE_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 120s,
	// с запасом на выдачу крупных вложений)
	cfg.HTTPWriteTimeout, err = getEnvDuration("AE_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// AE_HTTP_IDLE_TIMEOUT — таймаут keep-alive (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("AE_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// AE_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AE_DB_HOST")
	if err != nil {
		return nil, err
	}

	// AE_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AE_DB_PORT: %w", err)
	}

	// AE_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AE_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AE_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AE_DB_USER")
	if err != nil {
		return nil, err
	}

	// AE_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AE_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AE_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AE_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AE_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// AE_DB_MAX_CONNS — размер пула pgx (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("AE_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("AE_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 100 {
		return nil, fmt.Errorf("AE_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-100", cfg.DBMaxConns)
	}

	// --- Upstream ALM ---

	// AE_ALM_BASE_URL — обязательный
	cfg.ALMBaseURL, err = getEnvRequired("AE_ALM_BASE_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.ALMBaseURL = strings.TrimRight(cfg.ALMBaseURL, "/")

	// AE_ALM_CLIENT_TYPE — client-type site-session (по умолчанию REST-almstore)
	cfg.ALMClientType = getEnvDefault("AE_ALM_CLIENT_TYPE", "REST-almstore")

	// AE_ALM_REQUEST_TIMEOUT — таймаут запроса к ALM (по умолчанию 30s)
	cfg.ALMRequestTimeout, err = getEnvDuration("AE_ALM_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_ALM_REQUEST_TIMEOUT: %w", err)
	}

	// AE_ALM_DOWNLOAD_TIMEOUT — таймаут скачивания вложения (по умолчанию 60s)
	cfg.ALMDownloadTimeout, err = getEnvDuration("AE_ALM_DOWNLOAD_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_ALM_DOWNLOAD_TIMEOUT: %w", err)
	}

	// AE_ALM_RETRY_ATTEMPTS — количество попыток (по умолчанию 3)
	cfg.ALMRetryAttempts, err = getEnvInt("AE_ALM_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("AE_ALM_RETRY_ATTEMPTS: %w", err)
	}
	if cfg.ALMRetryAttempts < 1 || cfg.ALMRetryAttempts > 10 {
		return nil, fmt.Errorf("AE_ALM_RETRY_ATTEMPTS: значение %d вне допустимого диапазона 1-10", cfg.ALMRetryAttempts)
	}

	// AE_ALM_RETRY_DELAY — пауза между попытками (по умолчанию 500ms)
	cfg.ALMRetryDelay, err = getEnvDuration("AE_ALM_RETRY_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("AE_ALM_RETRY_DELAY: %w", err)
	}

	// AE_ALM_CA_CERT_PATH — путь к CA-сертификату ALM (опционально)
	cfg.ALMCACertPath = getEnvDefault("AE_ALM_CA_CERT_PATH", "")

	// --- Извлечение ---

	// AE_PAGE_SIZE — размер страницы ALM (по умолчанию 100)
	cfg.PageSize, err = getEnvInt("AE_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("AE_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 500 {
		return nil, fmt.Errorf("AE_PAGE_SIZE: значение %d вне допустимого диапазона 1-500", cfg.PageSize)
	}

	// AE_MAX_RECURSION_DEPTH — потолок глубины обхода (по умолчанию 20)
	cfg.MaxRecursionDepth, err = getEnvInt("AE_MAX_RECURSION_DEPTH", 20)
	if err != nil {
		return nil, fmt.Errorf("AE_MAX_RECURSION_DEPTH: %w", err)
	}
	if cfg.MaxRecursionDepth < 1 || cfg.MaxRecursionDepth > 100 {
		return nil, fmt.Errorf("AE_MAX_RECURSION_DEPTH: значение %d вне допустимого диапазона 1-100", cfg.MaxRecursionDepth)
	}

	// --- Кэш вложений ---

	// AE_ATTACHMENT_CACHE_SIZE — размер LRU-кэша (по умолчанию 256)
	cfg.AttachmentCacheSize, err = getEnvInt("AE_ATTACHMENT_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("AE_ATTACHMENT_CACHE_SIZE: %w", err)
	}

	// AE_ATTACHMENT_CACHE_TTL — TTL записи кэша (по умолчанию 15m)
	cfg.AttachmentCacheTTL, err = getEnvDuration("AE_ATTACHMENT_CACHE_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AE_ATTACHMENT_CACHE_TTL: %w", err)
	}

	// --- Шифрование учётных данных ---

	// AE_ENCRYPTION_KEY — обязательный, base64 от 32 байт
	rawKey, err := getEnvRequired("AE_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey, err = base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("AE_ENCRYPTION_KEY: некорректный base64: %w", err)
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("AE_ENCRYPTION_KEY: ожидалось 32 байта ключа, получено %d", len(cfg.EncryptionKey))
	}

	// --- Keycloak / JWT ---

	// AE_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("AE_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// AE_KEYCLOAK_REALM — realm (по умолчанию almstore)
	cfg.KeycloakRealm = getEnvDefault("AE_KEYCLOAK_REALM", "almstore")

	// AE_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("AE_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// AE_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("AE_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// AE_ROLE_ADMIN_GROUPS — группы для роли admin (по умолчанию "almstore-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("AE_ROLE_ADMIN_GROUPS", "almstore-admins"))

	// AE_ROLE_READONLY_GROUPS — группы для роли readonly (по умолчанию "almstore-viewers")
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("AE_ROLE_READONLY_GROUPS", "almstore-viewers"))

	// AE_KEYCLOAK_CA_CERT_PATH — путь к CA-сертификату Keycloak (опционально)
	cfg.KeycloakCACertPath = getEnvDefault("AE_KEYCLOAK_CA_CERT_PATH", "")

	// AE_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("AE_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// AE_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AE_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AE_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AE_JWT_LEEWAY — допуск времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("AE_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	// AE_DEPHEALTH_GROUP — имя группы dephealth (по умолчанию almstore)
	cfg.DephealthGroup = getEnvDefault("AE_DEPHEALTH_GROUP", "almstore")

	// AE_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AE_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AE_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AE_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AE_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для dephealth-лейблов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
