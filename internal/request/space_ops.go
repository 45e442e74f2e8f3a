package request

import (
	"context"
	"log/slog"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/space"
)

// Запросы над резервированиями выполняются синхронно, но, как и в SRM,
// получают токен запроса: их итог доступен через StatusOf
// (srmStatusOfReserveSpaceRequest, srmStatusOfUpdateSpaceRequest,
// srmStatusOfChangeSpaceForFilesRequest).

// ReserveSpace резервирует пространство (srmReserveSpace).
// Ошибка резервирования не прерывает вызов: она становится итоговым
// статусом запроса.
func (m *Manager) ReserveSpace(ctx context.Context, p space.ReserveParams) SpaceResult {
	snap, rs, err := m.spaces.Reserve(ctx, p)
	if err != nil {
		rs = status.FromError(err)
	}
	req := m.spaceRequest(model.RequestReserveSpace, p.Owner, p.Description, rs)
	if err == nil {
		req.spaceToken = snap.Token
		req.space = &snap
	}
	m.insertFinished(req)

	result := SpaceResult{RequestToken: req.token, Status: rs}
	if err == nil {
		result.Space = &snap
	}
	return result
}

// UpdateSpace изменяет резервирование (srmUpdateSpace).
func (m *Manager) UpdateSpace(ctx context.Context, spaceToken string, p space.UpdateParams) SpaceResult {
	snap, rs, err := m.spaces.Update(ctx, spaceToken, p)
	if err != nil {
		rs = status.FromError(err)
	}
	req := m.spaceRequest(model.RequestUpdateSpace, p.Owner, "", rs)
	req.spaceToken = spaceToken
	if err == nil {
		req.space = &snap
	}
	m.insertFinished(req)

	result := SpaceResult{RequestToken: req.token, Status: rs}
	if err == nil {
		result.Space = &snap
	}
	return result
}

// ChangeSpaceForFiles переносит файлы на другое резервирование
// (srmChangeSpaceForFiles). Результат по каждому файлу — в записях запроса.
func (m *Manager) ChangeSpaceForFiles(ctx context.Context, owner, targetToken string, surls []string) (string, error) {
	if len(surls) == 0 {
		return "", status.Errorf(status.InvalidRequest, "пустой список файлов")
	}
	target, err := m.spaces.Check(targetToken)
	if err != nil {
		return "", err
	}
	if owner != "" && target.Owner != owner {
		return "", status.Errorf(status.AuthorizationFailure, "резервирование %s принадлежит другому пользователю", targetToken)
	}

	files := make([]model.FileSpec, 0, len(surls))
	for _, surl := range surls {
		files = append(files, model.FileSpec{SURL: surl})
	}
	now := m.clock.Now()
	req := newRequest(m.gen.NewRequestToken(), SubmitParams{
		Type:  model.RequestChangeSpaceForFiles,
		Owner: owner,
		Files: files,
	}, now, now)
	req.spaceToken = targetToken

	results, err := m.spaces.MoveFiles(targetToken, surls)
	if err != nil {
		rs := status.FromError(err)
		for _, e := range req.entries {
			e.MarkFailed(now, rs.Code, rs.Explanation)
		}
	} else {
		for i, r := range results {
			e := req.entries[i]
			if r.Status.Code != status.Success {
				e.MarkFailed(now, r.Status.Code, r.Status.Explanation)
				continue
			}
			e.MarkDone(now, status.Success)
			m.rebindCharges(r.SURL, targetToken)
		}
	}
	m.insertFinished(req)

	m.logger.Info("Файлы перенесены на резервирование",
		slog.String("request_token", req.token),
		slog.String("space_token", targetToken),
		slog.Int("files", len(surls)),
	)
	return req.token, nil
}

// spaceRequest создаёт запрос без файлов с заранее известным итогом.
func (m *Manager) spaceRequest(typ model.RequestType, owner, description string, rs status.ReturnStatus) *request {
	now := m.clock.Now()
	req := newRequest(m.gen.NewRequestToken(), SubmitParams{
		Type:    typ,
		Owner:   owner,
		Options: model.Options{UserRequestDescription: description},
	}, now, now)
	req.fixed = &rs
	return req
}

// insertFinished регистрирует синхронно выполненный запрос.
func (m *Manager) insertFinished(req *request) {
	req.mu.Lock()
	finished := req.observe(m.clock.Now(), "")
	req.mu.Unlock()

	m.mu.Lock()
	m.requests[req.token] = req
	m.mu.Unlock()

	requestsSubmittedTotal.WithLabelValues(string(req.typ)).Inc()
	if finished {
		m.onFinished(req)
	}
}

// rebindCharges перепривязывает записи запросов к новому резервированию
// после переноса файла, чтобы возврат места шёл в актуальное резервирование.
func (m *Manager) rebindCharges(surl, spaceToken string) {
	for _, req := range m.all() {
		req.mu.Lock()
		for _, e := range req.entries {
			if e.SpaceToken() != "" && e.SpaceToken() != spaceToken && req.chargeKey(e) == surl {
				e.SetCharge(spaceToken, e.Charged())
			}
		}
		req.mu.Unlock()
	}
}

// refreshSpace обновляет снимок резервирования в запросе. Вызывается под req.mu.
func (m *Manager) refreshSpace(req *request) {
	if req.spaceToken == "" || (req.typ != model.RequestReserveSpace && req.typ != model.RequestUpdateSpace) {
		return
	}
	if snap, err := m.spaces.Get(req.spaceToken); err == nil {
		req.space = &snap
	}
}
