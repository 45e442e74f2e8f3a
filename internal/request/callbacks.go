package request

import (
	"log/slog"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/ledger"
)

// Обратные вызовы движка. Повторный или запоздавший сигнал для записи
// в финальном состоянии не является ошибкой и ничего не меняет.

// MarkInProgress — движок начал обработку файла.
func (m *Manager) MarkInProgress(requestToken, surl string) error {
	return m.apply(requestToken, surl, "", func(_ *request, e *ledger.Entry, now time.Time) bool {
		return e.MarkInProgress(now)
	})
}

// MarkReady — файл готов: TURL выдан, файл закреплён или место выделено.
// Для copy и ls готовность совпадает с завершением, используется MarkDone.
func (m *Manager) MarkReady(requestToken, surl, turl string, size *uint64) error {
	return m.apply(requestToken, surl, "", func(req *request, e *ledger.Entry, now time.Time) bool {
		var pinDeadline, fileDeadline time.Time
		switch req.typ {
		case model.RequestPrepareToGet, model.RequestBringOnline, model.RequestPrepareToPut:
			pinDeadline = now.Add(m.cfg.PinLifetime.Resolve(req.options.DesiredPinLifetime))
		}
		if req.typ == model.RequestPrepareToPut {
			if lt := m.cfg.FileLifetime.Resolve(req.options.DesiredFileLifetime); lt > 0 {
				fileDeadline = now.Add(lt)
			}
		}
		return e.MarkReady(now, req.typ.ReadyCode(), turl, size, pinDeadline, fileDeadline)
	})
}

// MarkDone — файл успешно обработан.
func (m *Manager) MarkDone(requestToken, surl string) error {
	return m.apply(requestToken, surl, "", func(req *request, e *ledger.Entry, now time.Time) bool {
		if !e.MarkDone(now, status.Success) {
			return false
		}
		m.commitCharge(req, e)
		return true
	})
}

// MarkListed — srmLs получил метаданные пути.
func (m *Manager) MarkListed(requestToken, surl string, detail model.PathDetail) error {
	return m.apply(requestToken, surl, "", func(_ *request, e *ledger.Entry, now time.Time) bool {
		return e.MarkListed(now, detail)
	})
}

// MarkFailed — обработка файла завершилась ошибкой.
// Списанное на резервирование место возвращается.
func (m *Manager) MarkFailed(requestToken, surl string, code status.Code, explanation string) error {
	if !status.IsFinal(code) || status.IsSuccess(code) {
		code = status.Failure
	}
	return m.apply(requestToken, surl, explanation, func(req *request, e *ledger.Entry, now time.Time) bool {
		if !e.MarkFailed(now, code, explanation) {
			return false
		}
		m.releaseCharge(req, e)
		return true
	})
}

// apply применяет переход ко всем записям запроса с указанным SURL.
func (m *Manager) apply(requestToken, surl, description string, fn func(*request, *ledger.Entry, time.Time) bool) error {
	req, err := m.lookup(requestToken)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	req.mu.Lock()
	if req.suspended {
		// Запоздавший сигнал отменённой обработки: файлы уже возвращены в очередь.
		req.mu.Unlock()
		m.logger.Debug("Сигнал движка для приостановленного запроса проигнорирован",
			slog.String("request_token", requestToken),
			slog.String("surl", surl),
		)
		return nil
	}
	entries := req.find(surl)
	if len(entries) == 0 {
		req.mu.Unlock()
		return status.Errorf(status.InvalidPath, "SURL %s не входит в запрос %s", surl, requestToken)
	}
	changed := false
	for _, e := range entries {
		if fn(req, e, now) {
			changed = true
		}
	}
	finished := false
	if changed {
		finished = req.observe(now, description)
	}
	req.mu.Unlock()

	if !changed {
		m.logger.Debug("Сигнал движка проигнорирован",
			slog.String("request_token", requestToken),
			slog.String("surl", surl),
		)
	}
	if finished {
		m.onFinished(req)
	}
	return nil
}
