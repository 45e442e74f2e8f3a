package request

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/ledger"
	"github.com/bigkaa/srm-manager/internal/lifetime"
)

// PutDone фиксирует запись файлов запроса srmPrepareToPut (srmPutDone).
// Пустой surls — все файлы в состоянии SRM_SPACE_AVAILABLE.
// Фиксация в движке выполняется без удержания блокировки запроса.
func (m *Manager) PutDone(ctx context.Context, requestToken, owner string, surls []string) ([]FileResult, error) {
	req, err := m.lookup(requestToken)
	if err != nil {
		return nil, err
	}
	if err := authorize(req, owner); err != nil {
		return nil, err
	}
	if req.typ != model.RequestPrepareToPut {
		return nil, status.Errorf(status.InvalidRequest, "запрос %s не является запросом на запись", requestToken)
	}

	req.mu.Lock()
	if len(surls) == 0 {
		for _, e := range req.entries {
			if e.Code() == status.SpaceAvailable {
				surls = append(surls, e.SURL())
			}
		}
	}
	results := make([]FileResult, len(surls))
	var files []JobFile
	pending := make(map[string]int)
	for i, surl := range surls {
		results[i].SURL = surl
		entries := req.find(surl)
		if len(entries) == 0 {
			results[i].Status = status.Newf(status.InvalidPath, "SURL %s не входит в запрос", surl)
			continue
		}
		e := entries[0]
		switch {
		case e.Code() == status.SpaceAvailable:
			if _, dup := pending[surl]; !dup {
				files = append(files, JobFile{SURL: surl, ExpectedSize: e.ExpectedSize()})
			}
			pending[surl] = i
		case e.Code() == status.Success:
			results[i].Status = status.OK()
		default:
			results[i].Status = status.Newf(status.InvalidRequest,
				"файл %s в состоянии %s, ожидалось %s", surl, e.Code(), status.SpaceAvailable)
		}
	}
	req.mu.Unlock()

	if len(files) == 0 {
		return results, nil
	}

	var errs map[string]error
	if m.engine == nil {
		errs = make(map[string]error, len(files))
		for _, f := range files {
			errs[f.SURL] = status.Errorf(status.InternalError, "движок передачи не подключён")
		}
	} else {
		errs = m.engine.Complete(ctx, requestToken, req.typ, files)
	}

	now := m.clock.Now()
	req.mu.Lock()
	for _, f := range files {
		for _, e := range req.find(f.SURL) {
			if err := errs[f.SURL]; err != nil {
				rs := status.FromError(err)
				if e.MarkFailed(now, rs.Code, rs.Explanation) {
					m.releaseCharge(req, e)
				}
				continue
			}
			if e.MarkDone(now, status.Success) {
				m.commitCharge(req, e)
			}
		}
	}
	for surl, i := range pending {
		results[i].Status = req.find(surl)[0].Status()
		if results[i].Status.Code == status.Success {
			results[i].Status = status.OK()
		}
	}
	// Повторные вхождения одного SURL получают тот же результат.
	for i, surl := range surls {
		if j, ok := pending[surl]; ok && j != i {
			results[i].Status = results[j].Status
		}
	}
	finished := req.observe(now, "")
	req.mu.Unlock()

	m.logger.Info("Запись файлов зафиксирована",
		slog.String("request_token", requestToken),
		slog.Int("files", len(files)),
		slog.Int("errors", len(errs)),
	)
	if finished {
		m.onFinished(req)
	}
	return results, nil
}

// ReleaseFiles снимает закрепление файлов (srmReleaseFiles).
// Пустой requestToken — поиск по всем запросам пользователя, surls обязательны.
// Пустой surls при заданном токене — все закреплённые файлы запроса.
func (m *Manager) ReleaseFiles(ctx context.Context, requestToken, owner string, surls []string) ([]FileResult, error) {
	var reqs []*request
	if requestToken != "" {
		req, err := m.lookup(requestToken)
		if err != nil {
			return nil, err
		}
		if err := authorize(req, owner); err != nil {
			return nil, err
		}
		if !releasable(req.typ) {
			return nil, status.Errorf(status.InvalidRequest, "запрос %s не закрепляет файлы", requestToken)
		}
		reqs = []*request{req}
	} else {
		if len(surls) == 0 {
			return nil, status.Errorf(status.InvalidRequest, "не задан ни токен запроса, ни список файлов")
		}
		for _, req := range m.all() {
			if releasable(req.typ) && (owner == "" || req.owner == owner) {
				reqs = append(reqs, req)
			}
		}
	}

	type target struct {
		req   *request
		entry *ledger.Entry
	}
	var targets []target
	found := make(map[string]bool)
	for _, req := range reqs {
		req.mu.Lock()
		list := surls
		if len(list) == 0 {
			for _, e := range req.entries {
				if e.Code() == status.FilePinned {
					list = append(list, e.SURL())
				}
			}
			surls = list
		}
		for _, surl := range list {
			for _, e := range req.find(surl) {
				found[surl] = true
				if e.Code() == status.FilePinned {
					targets = append(targets, target{req: req, entry: e})
				}
			}
		}
		req.mu.Unlock()
	}

	// Снятие закрепления в движке по возможности; учёт завершается в любом случае.
	if m.engine != nil {
		for _, t := range targets {
			for surl, err := range m.engine.Complete(ctx, t.req.token, t.req.typ, []JobFile{{SURL: t.entry.SURL()}}) {
				m.logger.Warn("Ошибка снятия закрепления в движке",
					slog.String("request_token", t.req.token),
					slog.String("surl", surl),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	now := m.clock.Now()
	var finished []*request
	for _, t := range targets {
		t.req.mu.Lock()
		t.entry.MarkDone(now, status.Released)
		if t.req.observe(now, "") {
			finished = append(finished, t.req)
		}
		t.req.mu.Unlock()
	}
	for _, req := range finished {
		m.onFinished(req)
	}

	results := make([]FileResult, 0, len(surls))
	for _, surl := range surls {
		if !found[surl] {
			results = append(results, FileResult{SURL: surl,
				Status: status.Newf(status.InvalidPath, "SURL %s не найден среди закреплённых файлов", surl)})
			continue
		}
		results = append(results, FileResult{SURL: surl, Status: m.releasedStatus(reqs, surl)})
	}
	return results, nil
}

// releasedStatus — итог srmReleaseFiles для SURL: SRM_SUCCESS, если файл
// снят с закрепления (сейчас или ранее), иначе его текущий статус.
func (m *Manager) releasedStatus(reqs []*request, surl string) status.ReturnStatus {
	var last status.ReturnStatus
	for _, req := range reqs {
		req.mu.Lock()
		for _, e := range req.find(surl) {
			if e.Code() == status.Released {
				req.mu.Unlock()
				return status.OK()
			}
			last = status.Newf(status.Failure, "файл %s в состоянии %s", surl, e.Code())
		}
		req.mu.Unlock()
	}
	return last
}

func releasable(t model.RequestType) bool {
	return t == model.RequestPrepareToGet || t == model.RequestBringOnline
}

// ExtendFileLifetime продлевает время закрепления и/или жизни файлов
// (srmExtendFileLifeTime). Срок никогда не сокращается: отрицательное или
// меньшее текущего значение оставляет срок без изменений.
// Пустой requestToken — продление времени жизни файла в его резервировании.
func (m *Manager) ExtendFileLifetime(ctx context.Context, requestToken, owner string, surls []string, newFileLifetime, newPinLifetime *int64) ([]FileResult, error) {
	if len(surls) == 0 {
		return nil, status.Errorf(status.InvalidRequest, "пустой список файлов")
	}
	if requestToken == "" {
		return m.extendInSpace(surls, newFileLifetime, newPinLifetime)
	}

	req, err := m.lookup(requestToken)
	if err != nil {
		return nil, err
	}
	if err := authorize(req, owner); err != nil {
		return nil, err
	}

	pin := extension(m.cfg.PinLifetime, newPinLifetime)
	file := extension(m.cfg.FileLifetime, newFileLifetime)

	now := m.clock.Now()
	results := make([]FileResult, 0, len(surls))
	req.mu.Lock()
	defer req.mu.Unlock()
	for _, surl := range surls {
		entries := req.find(surl)
		if len(entries) == 0 {
			results = append(results, FileResult{SURL: surl,
				Status: status.Newf(status.InvalidPath, "SURL %s не входит в запрос", surl)})
			continue
		}
		e := entries[0]
		if err := e.ExtendLifetime(now, pin, file); err != nil {
			results = append(results, FileResult{SURL: surl, Status: status.FromError(err)})
			continue
		}
		if file > 0 && e.SpaceToken() != "" {
			secs := int64(file / time.Second)
			if _, err := m.spaces.ExtendFiles(e.SpaceToken(), []string{req.chargeKey(e)}, &secs); err != nil {
				m.logger.Warn("Не удалось продлить файл в резервировании",
					slog.String("space_token", e.SpaceToken()),
					slog.String("surl", surl),
					slog.String("error", err.Error()),
				)
			}
		}
		results = append(results, FileResult{
			SURL:                  surl,
			Status:                status.OK(),
			RemainingPinLifetime:  lifetime.RemainingPtr(e.PinDeadline(), now),
			RemainingFileLifetime: lifetime.RemainingPtr(e.FileDeadline(), now),
		})
	}
	return results, nil
}

// extendInSpace продлевает время жизни файлов, списанных на резервирования.
func (m *Manager) extendInSpace(surls []string, newFileLifetime, newPinLifetime *int64) ([]FileResult, error) {
	if newPinLifetime != nil {
		return nil, status.Errorf(status.InvalidRequest, "продление закрепления требует токен запроса")
	}
	results := make([]FileResult, 0, len(surls))
	for _, surl := range surls {
		tok, ok := m.spaces.SpaceOf(surl)
		if !ok {
			results = append(results, FileResult{SURL: surl,
				Status: status.Newf(status.InvalidPath, "файл %s не списан ни на одно резервирование", surl)})
			continue
		}
		out, err := m.spaces.ExtendFiles(tok, []string{surl}, newFileLifetime)
		if err != nil {
			results = append(results, FileResult{SURL: surl, Status: status.FromError(err)})
			continue
		}
		results = append(results, FileResult{SURL: surl, Status: out[0].Status, RemainingFileLifetime: out[0].Lifetime})
	}
	return results, nil
}

// extension — длительность продления; 0 — не продлевать.
func extension(p lifetime.Policy, desired *int64) time.Duration {
	if desired == nil || *desired <= 0 {
		return 0
	}
	return p.Resolve(desired)
}
