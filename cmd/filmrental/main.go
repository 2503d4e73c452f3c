// Точка входа Film Rental — бэкенд витрины аренды фильмов.
// Загружает конфигурацию, проверяет встроенный OpenAPI-контракт,
// подключает хранилище пользователей (PostgreSQL или users.json),
// создаёт клиенты каталога и EVM-узла, сервисный слой и API handlers,
// запускает фоновые задачи (синхронизация каталога, topologymetrics)
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/filmrental/internal/api/handlers"
	"github.com/bigkaa/filmrental/internal/api/middleware"
	"github.com/bigkaa/filmrental/internal/api/openapi"
	"github.com/bigkaa/filmrental/internal/catalogclient"
	"github.com/bigkaa/filmrental/internal/chainclient"
	"github.com/bigkaa/filmrental/internal/config"
	"github.com/bigkaa/filmrental/internal/database"
	"github.com/bigkaa/filmrental/internal/repository"
	"github.com/bigkaa/filmrental/internal/server"
	"github.com/bigkaa/filmrental/internal/service"
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
	logger.Info("Film Rental запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	if cfg.JWTSecretGenerated {
		logger.Warn("FR_JWT_SECRET не задан, сгенерирован случайный секрет: токены не переживут рестарт")
	}

	ctx := context.Background()

	// 3. Проверка встроенного OpenAPI-контракта
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Некорректный OpenAPI-контракт", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Каталог данных
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Ошибка создания каталога данных",
			slog.String("path", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 5. Хранилище пользователей: PostgreSQL при FR_DB_DSN, иначе users.json
	var (
		users     repository.UserRepository
		pgChecker handlers.ReadinessChecker
		dephDeps  = service.DephealthDeps{
			CatalogURL:        cfg.CatalogAPIURL,
			CatalogHealthPath: cfg.CatalogAPIHealthPath,
		}
	)
	if cfg.DatabaseEnabled() {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg.MigrateURL(), logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg.DBDSN, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		users = repository.NewPostgresUserRepository(pool)
		pgChecker = database.NewReadinessChecker(pool)
		dephDeps.DB = pgDB
		dephDeps.PgConnURL = cfg.DBDSN
	} else {
		users = repository.NewFileUserRepository(cfg.DataDir)
		logger.Info("FR_DB_DSN не задан, пользователи хранятся в users.json")
	}

	// 6. Repositories
	filmRepo := repository.NewFilmRepository(cfg.DataDir, logger)
	rentalRepo := repository.NewRentalRepository(cfg.DataDir, logger)

	// 7. Удалённый каталог (опционально)
	var remote service.RemoteCatalog
	if cfg.CatalogEnabled() {
		remote = catalogclient.New(cfg.CatalogAPIURL, cfg.CatalogAPIToken, cfg.CatalogAPITimeout, logger)
		logger.Info("API каталога подключён", slog.String("url", cfg.CatalogAPIURL))
	} else {
		logger.Info("FR_CATALOG_API_URL не задан, каталог только локальный")
	}

	// 8. EVM-узел (опционально)
	var chain service.Chain
	if cfg.ChainEnabled() {
		chain = chainclient.New(cfg.ChainRPCURL, cfg.ChainRPCTimeout, logger)
		logger.Info("JSON-RPC узел подключён", slog.String("url", cfg.ChainRPCURL))
	} else if cfg.PaymentTrustClient {
		logger.Warn("JSON-RPC узел не настроен, txHash принимается без проверки (FR_PAYMENT_TRUST_CLIENT=true)")
	} else {
		logger.Warn("JSON-RPC узел не настроен, подтверждение оплаты недоступно")
	}

	// 9. Services
	catalogSvc := service.NewCatalogService(filmRepo, remote, service.NewCatalogCache(cfg.CatalogCacheTTL), logger)
	rentalSvc := service.NewRentalService(rentalRepo, filmRepo, logger)
	statsSvc := service.NewStatsService(catalogSvc, rentalSvc)
	paymentSvc := service.NewPaymentService(catalogSvc, rentalSvc, chain, service.PaymentOptions{
		Recipient:      cfg.PaymentRecipient,
		PollInterval:   cfg.ChainPollInterval,
		ConfirmTimeout: cfg.PaymentConfirmTimeout,
		SessionTTL:     cfg.PaymentSessionTTL,
		TrustClient:    cfg.PaymentTrustClient,
	}, logger)
	authSvc := service.NewAuthService(users, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL, logger)

	// 10. Демо-пользователи при пустом хранилище
	if err := authSvc.SeedDefaultUsers(ctx, cfg.SeedAdminPassword, cfg.SeedStaffPassword); err != nil {
		logger.Error("Ошибка создания пользователей по умолчанию", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTSecret,
		cfg.JWTIssuer,
		cfg.JWKSURL,
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
		slog.String("issuer", cfg.JWTIssuer),
		slog.Bool("jwks", cfg.JWKSURL != ""),
	)

	// 12. Периодическая синхронизация каталога
	var scheduler *service.CatalogSyncScheduler
	switch {
	case cfg.CatalogSyncSchedule == "":
	case !catalogSvc.RemoteEnabled():
		logger.Warn("FR_CATALOG_SYNC_SCHEDULE задан без FR_CATALOG_API_URL, синхронизация отключена")
	default:
		scheduler, err = service.NewCatalogSyncScheduler(catalogSvc, cfg.CatalogSyncSchedule, logger)
		if err != nil {
			logger.Error("Ошибка создания планировщика", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Ошибка запуска планировщика", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 13. topologymetrics — мониторинг зависимостей (API каталога, PostgreSQL)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"filmrental",
		cfg.DephealthGroup,
		dephDeps,
		cfg.DephealthCheckInterval,
		logger,
	)
	switch {
	case errors.Is(dephealthErr, service.ErrNoDependencies):
		logger.Info("Внешних зависимостей нет, topologymetrics не запускается")
	case dephealthErr != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 14. API handlers
	healthHandler := handlers.NewHealthHandler(cfg.DataDir, pgChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		catalogSvc,
		rentalSvc,
		statsSvc,
		paymentSvc,
		authSvc,
		logger,
	)

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, server.RouterOptions{
		JWTAuth:          jwtAuth,
		LoginLimiter:     middleware.NewIPRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst),
		RequireStaffAuth: cfg.RequireStaffAuth,
	})
	runErr := srv.Run()

	// 16. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if scheduler != nil {
		scheduler.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Film Rental остановлен")
}
