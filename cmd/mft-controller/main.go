// Точка входа MFT Controller.
// Загружает конфигурацию, применяет миграции и подключается к PostgreSQL,
// подключается к Consul, собирает реестры ресурсов и секретов, таблицу
// сборщиков метаданных и сервисы, запускает координаторы приёма заданий
// и статусов, topologymetrics и HTTP API с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/mft/internal/agent"
	"github.com/bigkaa/mft/internal/api/handlers"
	"github.com/bigkaa/mft/internal/api/middleware"
	"github.com/bigkaa/mft/internal/config"
	"github.com/bigkaa/mft/internal/connector/all"
	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/database"
	"github.com/bigkaa/mft/internal/lookup"
	"github.com/bigkaa/mft/internal/repository"
	"github.com/bigkaa/mft/internal/resourceclient"
	"github.com/bigkaa/mft/internal/secretclient"
	"github.com/bigkaa/mft/internal/server"
	"github.com/bigkaa/mft/internal/service"
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
	logger.Info("MFT Controller запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Координационное хранилище (Consul KV)
	store, err := coordination.NewConsulStore(coordination.ConsulConfig{
		Address:  cfg.ConsulAddr,
		Scheme:   cfg.ConsulScheme,
		Token:    cfg.ConsulToken,
		WaitTime: cfg.ConsulWaitTime,
	}, logger)
	if err != nil {
		logger.Error("Ошибка подключения к Consul", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	transferRepo := repository.NewTransferRepository(pool)
	statusRepo := repository.NewTransferStatusRepository(pool)
	resourceRepo := repository.NewResourceRepository(pool)

	// 7. HTTP-клиент сервисов поиска (с кастомным CA)
	lookupClient, err := lookup.NewHTTPClient(cfg.LookupCACertPath, cfg.LookupTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания HTTP-клиента сервисов поиска", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Реестры ресурсов и хранилища секретов
	resources, secrets, err := buildLookups(ctx, cfg, resourceRepo, lookupClient, logger)
	if err != nil {
		logger.Error("Ошибка создания сервисов поиска", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Таблица сборщиков метаданных
	resolver := all.NewResolver(resources, secrets, all.Options{
		LocalRoot:      cfg.LocalRoot,
		KnownHostsPath: cfg.SCPKnownHosts,
		HTTPClient:     lookupClient,
		Logger:         logger,
	})
	logger.Info("Сборщики метаданных зарегистрированы",
		slog.Any("storage_types", resolver.Types()),
	)

	// 10. Services
	agents := agent.NewRegistry(store, cfg.AgentLivePrefix, cfg.AgentMessagePrefix, logger)
	transferSvc := service.NewTransferService(store, transferRepo, statusRepo, cfg.RequestPrefix, cfg.OperationTimeout, logger)
	metadataSvc := service.NewMetadataService(resolver, cfg.LookupTimeout, logger)
	resourceSvc := service.NewResourceService(resourceRepo, logger)

	// 11. Координаторы приёма заданий и статусов
	intakeSvc := service.NewIntakeService(store, transferRepo, agents, cfg.RequestPrefix, cfg.OperationTimeout, logger)
	statusSvc := service.NewStatusService(store, transferRepo, statusRepo, cfg.StatePrefix, cfg.OperationTimeout, logger)
	intakeSvc.Start(ctx)
	defer intakeSvc.Stop()
	statusSvc.Start(ctx)
	defer statusSvc.Stop()

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + Consul)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"mft-controller",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.ConsulURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. Health + API handlers
	healthHandler := handlers.NewHealthHandler(
		handlers.NamedChecker{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		handlers.NamedChecker{Name: "consul", Checker: store},
	)
	apiHandler := handlers.New(transferSvc, metadataSvc, resourceSvc, agents, healthHandler, logger)

	// 14. Middleware: метрики, логирование, JWT (если задан JWKS)
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.LookupCACertPath,
			cfg.JWTIssuer,
			cfg.LookupTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares, middleware.WithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"))
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("MFT_JWT_JWKS_URL не задан, API работает без аутентификации")
	}

	// 15. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler.Routes, middlewares...)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		cancel()
		intakeSvc.Stop()
		statusSvc.Stop()
		os.Exit(1) //nolint:gocritic // отложенные вызовы выполнены вручную выше
	}

	logger.Info("MFT Controller остановлен")
}

// buildLookups собирает маршрутизаторы реестров ресурсов и хранилищ секретов.
// Реестр "sql" доступен всегда; "http" — если задан URL сервиса.
// Хранилище секретов "http" — если задан URL, "aws" — если задан регион.
func buildLookups(
	ctx context.Context,
	cfg *config.Config,
	resourceRepo repository.ResourceRepository,
	httpClient *http.Client,
	logger *slog.Logger,
) (*resourceclient.Router, *secretclient.Router, error) {
	defaultResources := "sql"
	if cfg.ResourceServiceURL != "" {
		defaultResources = "http"
	}
	resources := resourceclient.NewRouter(defaultResources, logger)
	resources.Register("sql", resourceclient.NewSQLBackend(resourceRepo))
	if cfg.ResourceServiceURL != "" {
		resources.Register("http", resourceclient.NewHTTPBackend(cfg.ResourceServiceURL, httpClient))
	}

	defaultSecrets := ""
	if cfg.AWSSecretsRegion != "" {
		defaultSecrets = "aws"
	}
	if cfg.SecretServiceURL != "" {
		defaultSecrets = "http"
	}
	secrets := secretclient.NewRouter(defaultSecrets, logger)
	if cfg.SecretServiceURL != "" {
		secrets.Register("http", secretclient.NewHTTPBackend(cfg.SecretServiceURL, httpClient))
	}
	if cfg.AWSSecretsRegion != "" {
		awsBackend, err := secretclient.NewAWSBackend(ctx, cfg.AWSSecretsRegion, cfg.AWSSecretsEndpoint)
		if err != nil {
			return nil, nil, err
		}
		secrets.Register("aws", awsBackend)
	}

	logger.Info("Сервисы поиска настроены",
		slog.Any("resource_backends", resources.Backends()),
		slog.String("resource_default", defaultResources),
		slog.Any("secret_backends", secrets.Backends()),
		slog.String("secret_default", defaultSecrets),
	)
	return resources, secrets, nil
}
