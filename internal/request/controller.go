package request

import (
	"context"
	"log/slog"

	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// AbortRequest прерывает все незавершённые файлы запроса (srmAbortRequest),
// включая готовые (закреплённые файлы, выделенное под запись место).
// Если все файлы уже в финальном состоянии — no-op, итоговый статус не меняется.
// Отмена в движке выполняется по возможности; учёт завершается синхронно.
func (m *Manager) AbortRequest(ctx context.Context, requestToken, owner string) error {
	req, err := m.lookup(requestToken)
	if err != nil {
		return err
	}
	if err := authorize(req, owner); err != nil {
		return err
	}

	now := m.clock.Now()
	req.mu.Lock()
	if req.allFinal() {
		req.mu.Unlock()
		return nil
	}
	req.override = status.Aborted
	req.suspended = false
	var cancel []string
	for _, e := range req.entries {
		if e.Abort(now, "запрос прерван клиентом") {
			m.releaseCharge(req, e)
			cancel = append(cancel, e.SURL())
		}
	}
	finished := req.observe(now, "запрос прерван клиентом")
	req.mu.Unlock()

	requestsAbortedTotal.WithLabelValues("request").Inc()
	m.logger.Info("Запрос прерван",
		slog.String("request_token", requestToken),
		slog.Int("files", len(cancel)),
	)
	m.cancel(requestToken, cancel)
	if finished {
		m.onFinished(req)
	}
	return nil
}

// AbortFiles прерывает указанные файлы запроса (srmAbortFiles).
// Для файла в финальном состоянии — SRM_SUCCESS без изменений;
// для SURL, не входящего в запрос, — SRM_INVALID_PATH.
func (m *Manager) AbortFiles(ctx context.Context, requestToken, owner string, surls []string) ([]FileResult, error) {
	if len(surls) == 0 {
		return nil, status.Errorf(status.InvalidRequest, "пустой список файлов")
	}
	req, err := m.lookup(requestToken)
	if err != nil {
		return nil, err
	}
	if err := authorize(req, owner); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	results := make([]FileResult, 0, len(surls))
	var cancel []string

	req.mu.Lock()
	for _, surl := range surls {
		entries := req.find(surl)
		if len(entries) == 0 {
			results = append(results, FileResult{SURL: surl,
				Status: status.Newf(status.InvalidPath, "SURL %s не входит в запрос", surl)})
			continue
		}
		for _, e := range entries {
			if e.Abort(now, "файл прерван клиентом") {
				m.releaseCharge(req, e)
				cancel = append(cancel, surl)
			}
		}
		results = append(results, FileResult{SURL: surl, Status: status.OK()})
	}
	finished := req.observe(now, "")
	req.mu.Unlock()

	if len(cancel) > 0 {
		requestsAbortedTotal.WithLabelValues("files").Add(float64(len(cancel)))
	}
	m.cancel(requestToken, cancel)
	if finished {
		m.onFinished(req)
	}
	return results, nil
}

// SuspendRequest приостанавливает запрос (srmSuspendRequest).
// Файлы в обработке возвращаются в очередь, движку отправляется отмена.
func (m *Manager) SuspendRequest(ctx context.Context, requestToken, owner string) error {
	req, err := m.lookup(requestToken)
	if err != nil {
		return err
	}
	if err := authorize(req, owner); err != nil {
		return err
	}

	now := m.clock.Now()
	req.mu.Lock()
	if !req.active() {
		code := req.aggregate().Code
		req.mu.Unlock()
		return status.Errorf(status.InvalidRequest, "запрос %s уже завершён со статусом %s", requestToken, code)
	}
	if req.suspended {
		req.mu.Unlock()
		return nil
	}
	req.suspended = true
	// Отменяются и файлы, ещё ждущие в очереди движка: иначе движок
	// продолжит их обработку во время приостановки.
	var cancel []string
	for _, e := range req.entries {
		if e.Requeue(now) || e.Code() == status.RequestQueued {
			cancel = append(cancel, e.SURL())
		}
	}
	req.observe(now, "запрос приостановлен")
	req.mu.Unlock()

	m.logger.Info("Запрос приостановлен", slog.String("request_token", requestToken))
	m.cancel(requestToken, cancel)
	return nil
}

// ResumeRequest возобновляет приостановленный запрос (srmResumeRequest).
func (m *Manager) ResumeRequest(ctx context.Context, requestToken, owner string) error {
	req, err := m.lookup(requestToken)
	if err != nil {
		return err
	}
	if err := authorize(req, owner); err != nil {
		return err
	}

	now := m.clock.Now()
	req.mu.Lock()
	if !req.suspended {
		req.mu.Unlock()
		return status.Errorf(status.InvalidRequest, "запрос %s не приостановлен", requestToken)
	}
	req.suspended = false
	req.observe(now, "запрос возобновлён")
	req.mu.Unlock()

	m.logger.Info("Запрос возобновлён", slog.String("request_token", requestToken))
	m.dispatch(ctx, req)
	return nil
}

// cancel передаёт движку отмену без удержания блокировок.
func (m *Manager) cancel(requestToken string, surls []string) {
	if m.engine == nil || len(surls) == 0 {
		return
	}
	m.engine.Cancel(requestToken, surls)
}
