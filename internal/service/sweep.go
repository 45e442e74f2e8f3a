// sweep.go — фоновая обработка сроков жизни SRM-запросов.
//
// За один проход:
//  1. Запросы с истёкшим временем жизни завершаются как SRM_REQUEST_TIMED_OUT,
//     у готовых файлов с истёкшим закреплением — SRM_FILE_LIFETIME_EXPIRED
//  2. Завершённые запросы старше периода хранения архивируются и выгружаются из памяти
//
// Запускается как горутина с периодическим тикером (SRM_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/request"
)

// Prometheus метрики обработки сроков жизни
var (
	// sweepRunsTotal — количество проходов.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_sweep_runs_total",
		Help: "Общее количество проходов обработки сроков жизни запросов",
	})

	// sweepTimedOutTotal — количество запросов, завершённых по таймауту.
	sweepTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_sweep_requests_timed_out_total",
		Help: "Общее количество запросов, завершённых по истечении времени жизни",
	})

	// sweepFilesExpiredTotal — количество файлов с истёкшим закреплением.
	sweepFilesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_sweep_files_expired_total",
		Help: "Общее количество файлов с истёкшим временем закрепления",
	})

	// sweepRemovedTotal — количество запросов, выгруженных из памяти.
	sweepRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_sweep_requests_removed_total",
		Help: "Общее количество завершённых запросов, выгруженных из памяти",
	})

	// sweepDurationSeconds — длительность прохода.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "srm_sweep_duration_seconds",
		Help:    "Длительность прохода обработки сроков жизни в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// Sweeper — операции менеджера запросов, выполняемые по таймеру.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) request.SweepResult
	RemoveFinished(ctx context.Context, now time.Time) int
}

// SweepResult — результат одного прохода.
type SweepResult struct {
	// TimedOut — запросы, завершённые по истечении времени жизни
	TimedOut int
	// FilesExpired — файлы с истёкшим закреплением
	FilesExpired int
	// Removed — запросы, выгруженные из памяти
	Removed int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — фоновая обработка сроков жизни запросов.
type SweepService struct {
	manager  Sweeper
	clock    lifetime.Clock
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт сервис обработки сроков жизни.
func NewSweepService(manager Sweeper, clock lifetime.Clock, interval time.Duration, logger *slog.Logger) *SweepService {
	return &SweepService{
		manager:  manager,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go runPeriodic(sweepCtx, s.interval, func() { s.RunOnce(sweepCtx) })

	s.logger.Info("Обработка сроков жизни запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Обработка сроков жизни остановлена")
}

// RunOnce выполняет один проход. Потокобезопасен.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.clock.Now()

	swept := s.manager.SweepExpired(ctx, now)
	result := &SweepResult{
		TimedOut:     swept.Requests,
		FilesExpired: swept.LifetimeExpired,
		Removed:      s.manager.RemoveFinished(ctx, now),
	}
	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepTimedOutTotal.Add(float64(result.TimedOut))
	sweepFilesExpiredTotal.Add(float64(result.FilesExpired))
	sweepRemovedTotal.Add(float64(result.Removed))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelDebug
	if result.TimedOut+result.FilesExpired+result.Removed > 0 {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "Проход обработки сроков жизни завершён",
		slog.Int("timed_out", result.TimedOut),
		slog.Int("files_expired", result.FilesExpired),
		slog.Int("removed", result.Removed),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// runPeriodic вызывает fn сразу и затем на каждом тике до отмены ctx.
func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
