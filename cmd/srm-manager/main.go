// Точка входа SRM Manager — асинхронный менеджер запросов SRM v2.2.
// Загружает конфигурацию, при заданном PostgreSQL применяет миграции
// и восстанавливает резервирования, создаёт реестр пространства, менеджер
// запросов и локальный движок передачи, запускает фоновые сервисы
// (истечение запросов, очистка резервирований, topologymetrics) и HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/srm-manager/internal/api/handlers"
	"github.com/bigkaa/srm-manager/internal/api/middleware"
	"github.com/bigkaa/srm-manager/internal/config"
	"github.com/bigkaa/srm-manager/internal/database"
	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/engine/local"
	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/repository"
	"github.com/bigkaa/srm-manager/internal/request"
	"github.com/bigkaa/srm-manager/internal/server"
	"github.com/bigkaa/srm-manager/internal/service"
	"github.com/bigkaa/srm-manager/internal/space"
	"github.com/bigkaa/srm-manager/internal/token"
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
	logger.Info("SRM Manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("persistence", cfg.PersistenceEnabled()),
		slog.Bool("auth", cfg.AuthEnabled()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := lifetime.SystemClock{}
	gen := token.UUIDGenerator{}

	// 3. PostgreSQL (опционально): миграции и пул соединений
	var (
		pool *pgxpool.Pool
		pgDB *sql.DB
	)
	if cfg.PersistenceEnabled() {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err = database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()
	} else {
		logger.Warn("SRM_DB_HOST не задан, запросы и резервирования хранятся только в памяти")
	}

	// 4. Реестр резервирований пространства
	registry := space.NewRegistry(
		space.NewPool(uint64(cfg.MaxCapacity)),
		gen, clock,
		lifetime.Policy{Default: cfg.SpaceLifetime, Max: cfg.MaxSpaceLifetime},
		logger,
	)
	if pool != nil {
		registry.WithStore(repository.NewSpaceRepository(pool))
		restored, err := registry.Restore(ctx)
		if err != nil {
			logger.Error("Ошибка восстановления резервирований", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Резервирования восстановлены", slog.Int("count", restored))
	}

	// 5. Менеджер запросов и архив завершённых запросов
	manager := request.NewManager(managerConfig(cfg), registry, gen, clock, logger)
	if pool != nil {
		archive := service.NewArchiveCache(
			repository.NewRequestArchive(pool),
			cfg.ArchiveCacheSize, cfg.ArchiveCacheTTL,
			logger,
		)
		manager.WithArchive(archive)
	}

	// 6. Движок передачи на локальном каталоге
	engine := local.New(
		local.NewResolver(cfg.DataDir, cfg.TransferURLBase),
		manager,
		cfg.EngineWorkers,
		logger,
	)
	if err := engine.Start(ctx); err != nil {
		logger.Error("Ошибка запуска движка передачи", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Stop()
	manager.SetEngine(engine)

	// 7. Фоновые сервисы: истечение запросов и очистка резервирований
	sweepSvc := service.NewSweepService(manager, clock, cfg.SweepInterval, logger)
	sweepSvc.Start(ctx)
	defer sweepSvc.Stop()

	purgeSvc := service.NewSpacePurgeService(registry, clock, cfg.SpacePurgeInterval, logger)
	purgeSvc.Start(ctx)
	defer purgeSvc.Stop()

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL, JWKS)
	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "srm-manager",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	switch {
	case errors.Is(err, service.ErrNoDependencies):
		logger.Info("topologymetrics: внешних зависимостей нет, мониторинг не запускается")
	case err != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. JWT middleware (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWTIssuer,
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
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("SRM_JWKS_URL не задан, аутентификация отключена",
			slog.String("subject", middleware.AnonymousSubject),
		)
	}

	// 10. Handlers: SRM-фасад и health
	srmHandler := handlers.NewSRMHandler(manager, registry, engine, cfg.TransferProtocols, logger)
	var healthHandler *handlers.HealthHandler
	if pool != nil {
		healthHandler = handlers.NewHealthHandler(engine, database.NewReadinessChecker(pool))
	} else {
		healthHandler = handlers.NewHealthHandler(engine, nil)
	}

	// 11. HTTP-сервер (блокируется до сигнала завершения)
	srv := server.New(cfg, logger, srmHandler, healthHandler, jwtAuth)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown: фоновые сервисы и движок останавливаются через defer
	logger.Info("SRM Manager остановлен",
		slog.Int("active_requests", manager.Active()),
	)
}

// managerConfig — политики сроков жизни менеджера запросов из конфигурации.
func managerConfig(cfg *config.Config) request.Config {
	requestPolicy := func(d time.Duration) lifetime.Policy {
		return lifetime.Policy{Default: d, Max: cfg.MaxRequestLifetime}
	}
	return request.Config{
		RequestLifetimes: map[model.RequestType]lifetime.Policy{
			model.RequestPrepareToGet: requestPolicy(cfg.GetLifetime),
			model.RequestPrepareToPut: requestPolicy(cfg.PutLifetime),
			model.RequestCopy:         requestPolicy(cfg.CopyLifetime),
			model.RequestBringOnline:  requestPolicy(cfg.BringOnlineLifetime),
			model.RequestLs:           requestPolicy(cfg.LsLifetime),
		},
		PinLifetime:        lifetime.Policy{Default: cfg.PinLifetime, Max: cfg.MaxPinLifetime},
		FileLifetime:       lifetime.Policy{Default: cfg.FileLifetime, Max: cfg.MaxFileLifetime},
		EstimatedWait:      cfg.EstimatedWait,
		FinishedRetention:  cfg.FinishedRequestRetention,
		MaxFilesPerRequest: cfg.MaxFilesPerRequest,
	}
}
