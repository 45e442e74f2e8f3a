package request

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/lifetime"
)

// SweepResult — результат одного прохода SweepExpired.
type SweepResult struct {
	// Requests — число запросов, завершённых по истечении времени запроса.
	Requests int
	// TimedOut — число файлов, получивших SRM_REQUEST_TIMED_OUT.
	TimedOut int
	// LifetimeExpired — число готовых файлов с истёкшим закреплением или временем жизни.
	LifetimeExpired int
}

// SweepExpired завершает запросы, время которых истекло, а также готовые
// файлы с истёкшим сроком закрепления или жизни. Идемпотентен.
// Блокировка каждого запроса удерживается только на время его обработки.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) SweepResult {
	var result SweepResult
	for _, req := range m.all() {
		if ctx.Err() != nil {
			break
		}

		req.mu.Lock()
		var cancel []string
		timedOut := false
		if req.active() && lifetime.Expired(req.deadline, now) {
			timedOut = true
			req.suspended = false
			req.override = status.RequestTimedOut
			for _, e := range req.entries {
				if !status.IsProcessing(e.Code()) && e.Code() != status.RequestSuspended {
					continue
				}
				if e.MarkFailed(now, status.RequestTimedOut, "истекло время запроса") {
					m.releaseCharge(req, e)
					cancel = append(cancel, e.SURL())
					result.TimedOut++
				}
			}
		}
		for _, e := range req.entries {
			if !e.LifetimeExpired(now) {
				continue
			}
			if e.MarkFailed(now, status.FileLifetimeExpired, "истёк срок закрепления или жизни файла") {
				m.releaseCharge(req, e)
				cancel = append(cancel, e.SURL())
				result.LifetimeExpired++
			}
		}
		finished := req.observe(now, "")
		req.mu.Unlock()

		if timedOut {
			result.Requests++
			m.logger.Info("Истекло время запроса",
				slog.String("request_token", req.token),
				slog.Time("deadline", req.deadline),
			)
		}
		m.cancel(req.token, cancel)
		if finished {
			m.onFinished(req)
		}
	}
	return result
}

// RemoveFinished выгружает из памяти запросы, завершённые раньше чем
// FinishedRetention назад, предварительно сохраняя их в архив.
// При ошибке архивации запрос остаётся в памяти до следующего прохода.
func (m *Manager) RemoveFinished(ctx context.Context, now time.Time) int {
	if m.cfg.FinishedRetention <= 0 {
		return 0
	}

	removed := 0
	for _, req := range m.all() {
		if ctx.Err() != nil {
			break
		}

		req.mu.Lock()
		settled := req.settledAt()
		if !req.allFinal() || settled.IsZero() || now.Sub(settled) < m.cfg.FinishedRetention {
			req.mu.Unlock()
			continue
		}
		snap := req.snapshot(now, 0)
		req.mu.Unlock()

		if m.archive != nil {
			if err := m.archive.SaveRequest(ctx, snap); err != nil {
				m.logger.Warn("Ошибка архивации запроса",
					slog.String("request_token", req.token),
					slog.String("error", err.Error()),
				)
				continue
			}
		}

		m.mu.Lock()
		delete(m.requests, req.token)
		m.mu.Unlock()
		removed++
	}
	return removed
}
