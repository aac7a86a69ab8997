// Точка входа ALM Extractor — сервис рекурсивного извлечения сущностей
// из HP ALM/Quality Center. Загружает конфигурацию, применяет миграции,
// подключается к PostgreSQL, создаёт клиент ALM и сервисный слой,
// запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/api/handlers"
	"github.com/arturkryukov/almstore/internal/api/middleware"
	"github.com/arturkryukov/almstore/internal/config"
	"github.com/arturkryukov/almstore/internal/database"
	"github.com/arturkryukov/almstore/internal/repository"
	"github.com/arturkryukov/almstore/internal/server"
	"github.com/arturkryukov/almstore/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("ALM Extractor запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("alm_base_url", cfg.ALMBaseURL),
	)

	if os.Getenv("AE_DEPHEALTH_GROUP") == "" {
		logger.Warn("AE_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент REST API ALM
	almClient, err := almclient.New(almclient.Params{
		BaseURL:         cfg.ALMBaseURL,
		ClientType:      cfg.ALMClientType,
		PageSize:        cfg.PageSize,
		RetryAttempts:   cfg.ALMRetryAttempts,
		RetryDelay:      cfg.ALMRetryDelay,
		RequestTimeout:  cfg.ALMRequestTimeout,
		DownloadTimeout: cfg.ALMDownloadTimeout,
		CACertPath:      cfg.ALMCACertPath,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента ALM", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент ALM создан",
		slog.String("base_url", cfg.ALMBaseURL),
		slog.Int("page_size", almClient.PageSize()),
	)

	// 6. Repositories
	entityRepo := repository.NewEntityRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	cacheRepo := repository.NewAttachmentCacheRepository(pool)
	credRepo := repository.NewCredentialRepository(pool)

	// 7. Services
	sessionSvc := service.NewSessionService(almClient, credRepo, cfg.EncryptionKey, logger)
	// Прозрачное продление ALM-сессии при 401 внутри клиента
	almClient.SetRenewer(sessionSvc)

	attachmentSvc := service.NewAttachmentService(
		almClient, cacheRepo,
		cfg.AttachmentCacheSize, cfg.AttachmentCacheTTL,
		logger,
	)
	catalogSvc := service.NewCatalogService(almClient, entityRepo, logger)
	expander := service.NewExpander(almClient, entityRepo, attachmentSvc, logger)
	extractor := service.NewExtractor(expander, jobRepo, cfg.MaxRecursionDepth, logger)
	jobSvc := service.NewJobService(jobRepo, logger)

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL, ALM, Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"alm-extractor",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.ALMBaseURL,
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 9. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACertPath,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleReadonlyGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 10. Readiness checkers (PostgreSQL + ALM) и API handler
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, almClient)

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		sessionSvc,
		catalogSvc,
		expander,
		extractor,
		jobSvc,
		attachmentSvc,
		logger,
	)

	// 11. HTTP-сервер.
	// Порядок middleware: логирование → метрики → JWT.
	// Health-пробы, метрики и вход в ALM доступны без JWT.
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		server.WithExclusions(jwtAuth.Middleware(),
			"/health/", "/metrics", "/api/v1/auth/login"),
	)

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("ALM Extractor остановлен")
}
