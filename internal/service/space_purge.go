// space_purge.go — фоновое закрытие истёкших резервирований пространства.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/space"
)

// Prometheus метрики закрытия резервирований
var (
	spacePurgeExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_space_purge_expired_total",
		Help: "Общее количество резервирований, закрытых по истечении срока",
	})

	spacePurgeRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_space_purge_removed_total",
		Help: "Общее количество закрытых резервирований, удалённых из реестра",
	})
)

// SpacePurger — реестр резервирований.
type SpacePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) space.PurgeResult
}

// SpacePurgeService — периодический вызов Registry.PurgeExpired.
// Истёкшие резервирования закрываются и лениво (при обращении),
// сервис возвращает их ёмкость в пул без ожидания обращений.
type SpacePurgeService struct {
	registry SpacePurger
	clock    lifetime.Clock
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSpacePurgeService создаёт сервис закрытия резервирований.
func NewSpacePurgeService(registry SpacePurger, clock lifetime.Clock, interval time.Duration, logger *slog.Logger) *SpacePurgeService {
	return &SpacePurgeService{
		registry: registry,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "space_purge")),
	}
}

// Start запускает фоновую горутину.
func (s *SpacePurgeService) Start(ctx context.Context) {
	purgeCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go runPeriodic(purgeCtx, s.interval, func() { s.RunOnce(purgeCtx) })

	s.logger.Info("Закрытие истёкших резервирований запущено",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (s *SpacePurgeService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Закрытие истёкших резервирований остановлено")
}

// RunOnce выполняет один проход.
func (s *SpacePurgeService) RunOnce(ctx context.Context) space.PurgeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.registry.PurgeExpired(ctx, s.clock.Now())

	spacePurgeExpiredTotal.Add(float64(result.Expired))
	spacePurgeRemovedTotal.Add(float64(result.Removed))

	if result.Expired > 0 || result.Removed > 0 {
		s.logger.Info("Истёкшие резервирования обработаны",
			slog.Int("expired", result.Expired),
			slog.Int("removed", result.Removed),
		)
	}
	return result
}
