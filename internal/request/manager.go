// Пакет request — менеджер асинхронных SRM-запросов.
//
// Manager принимает запросы, передаёт их движку передачи, принимает
// обратные вызовы движка и отдаёт снимки состояния. Изменения одного
// запроса сериализуются его мьютексом; карта запросов защищена
// sync.RWMutex и удерживается только на время поиска или вставки.
//
// Порядок блокировок: Manager.mu → request.mu → блокировки space.Registry.
// Вызовы движка выполняются без удержания блокировок.
package request

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/ledger"
	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/space"
	"github.com/bigkaa/srm-manager/internal/token"
)

// Manager — менеджер SRM-запросов.
type Manager struct {
	mu       sync.RWMutex
	requests map[string]*request

	cfg     Config
	engine  Engine
	spaces  *space.Registry
	archive Archive
	gen     token.Generator
	clock   lifetime.Clock
	logger  *slog.Logger
}

// NewManager создаёт менеджер запросов.
// Движок подключается отдельно через SetEngine: он сам получает Manager как Callbacks.
func NewManager(cfg Config, spaces *space.Registry, gen token.Generator, clock lifetime.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		requests: make(map[string]*request),
		cfg:      cfg,
		spaces:   spaces,
		gen:      gen,
		clock:    clock,
		logger:   logger.With(slog.String("component", "request_manager")),
	}
}

// SetEngine подключает движок передачи. Вызывается до приёма запросов.
func (m *Manager) SetEngine(engine Engine) {
	m.engine = engine
}

// WithArchive подключает архив завершённых запросов.
func (m *Manager) WithArchive(archive Archive) *Manager {
	m.archive = archive
	return m
}

// Submit создаёт запрос и асинхронно передаёт его движку.
// Возвращает токен сразу, не дожидаясь обработки файлов.
func (m *Manager) Submit(ctx context.Context, p SubmitParams) (string, error) {
	if err := m.validate(p); err != nil {
		return "", err
	}

	spaceToken := ""
	if p.Type == model.RequestPrepareToPut || p.Type == model.RequestCopy {
		spaceToken = p.Options.TargetSpaceToken
		if spaceToken != "" {
			if _, err := m.spaces.Check(spaceToken); err != nil {
				return "", err
			}
		}
	}

	now := m.clock.Now()
	deadline := m.cfg.requestPolicy(p.Type).Deadline(now, p.Options.DesiredTotalRequestTime)
	req := newRequest(m.gen.NewRequestToken(), p, now, deadline)

	// Списание места под каждый файл до передачи движку.
	if spaceToken != "" {
		fileLifetime := m.cfg.FileLifetime.Resolve(p.Options.DesiredFileLifetime)
		for _, e := range req.entries {
			key := req.chargeKey(e)
			if err := m.spaces.ChargeFile(spaceToken, key, req.token, e.ExpectedSize(), fileLifetime); err != nil {
				rs := status.FromError(err)
				e.MarkFailed(now, rs.Code, rs.Explanation)
				continue
			}
			e.SetCharge(spaceToken, e.ExpectedSize())
		}
	}
	req.observe(now, "запрос принят")

	m.mu.Lock()
	m.requests[req.token] = req
	m.mu.Unlock()

	requestsSubmittedTotal.WithLabelValues(string(p.Type)).Inc()
	m.logger.Info("Запрос принят",
		slog.String("request_token", req.token),
		slog.String("type", string(p.Type)),
		slog.String("owner", p.Owner),
		slog.Int("files", len(p.Files)),
	)

	m.dispatch(ctx, req)
	return req.token, nil
}

// validate проверяет параметры нового запроса.
func (m *Manager) validate(p SubmitParams) error {
	if !p.Type.HasFiles() || p.Type == model.RequestChangeSpaceForFiles {
		return status.Errorf(status.InvalidRequest, "тип запроса %s не принимается через Submit", p.Type)
	}
	if len(p.Files) == 0 {
		return status.Errorf(status.InvalidRequest, "пустой список файлов")
	}
	if m.cfg.MaxFilesPerRequest > 0 && len(p.Files) > m.cfg.MaxFilesPerRequest {
		return status.Errorf(status.TooManyResults, "файлов в запросе %d, максимум %d",
			len(p.Files), m.cfg.MaxFilesPerRequest)
	}
	for i, f := range p.Files {
		if f.SURL == "" {
			return status.Errorf(status.InvalidRequest, "файл #%d: пустой SURL", i)
		}
		if p.Type == model.RequestCopy && f.TargetSURL == "" {
			return status.Errorf(status.InvalidRequest, "файл #%d: не задан целевой SURL", i)
		}
	}
	return nil
}

// dispatch передаёт движку все записи запроса, ожидающие в очереди.
func (m *Manager) dispatch(ctx context.Context, req *request) {
	req.mu.Lock()
	job := Job{RequestToken: req.token, Type: req.typ, Options: req.options}
	for _, e := range req.entries {
		if e.Code() != status.RequestQueued {
			continue
		}
		job.Files = append(job.Files, JobFile{
			SURL:         e.SURL(),
			TargetSURL:   e.TargetSURL(),
			ExpectedSize: e.ExpectedSize(),
		})
	}
	req.mu.Unlock()

	if len(job.Files) == 0 {
		return
	}
	if m.engine == nil {
		m.failQueued(req, status.Errorf(status.InternalError, "движок передачи не подключён"))
		return
	}
	if err := m.engine.Dispatch(ctx, job); err != nil {
		m.logger.Error("Ошибка передачи запроса движку",
			slog.String("request_token", req.token),
			slog.String("error", err.Error()),
		)
		m.failQueued(req, err)
	}
}

// failQueued завершает ошибкой все записи, оставшиеся в очереди.
func (m *Manager) failQueued(req *request, err error) {
	rs := status.FromError(err)
	if rs.Code == status.Success {
		rs = status.New(status.InternalError, err.Error())
	}
	now := m.clock.Now()

	req.mu.Lock()
	for _, e := range req.entries {
		if e.Code() == status.RequestQueued {
			e.MarkFailed(now, rs.Code, rs.Explanation)
			m.releaseCharge(req, e)
		}
	}
	finished := req.observe(now, rs.Explanation)
	req.mu.Unlock()

	if finished {
		m.onFinished(req)
	}
}

// StatusOf возвращает снимок запроса. Не обращается к движку.
// Для неизвестного токена — SRM_INVALID_REQUEST.
func (m *Manager) StatusOf(ctx context.Context, requestToken, owner string) (model.RequestSnapshot, error) {
	req, ok := m.get(requestToken)
	if !ok {
		return m.fromArchive(ctx, requestToken, owner)
	}
	if err := authorize(req, owner); err != nil {
		return model.RequestSnapshot{}, err
	}

	now := m.clock.Now()
	req.mu.Lock()
	finished := m.propagateSpaceExpiry(req, now)
	m.refreshSpace(req)
	snap := req.snapshot(now, m.cfg.EstimatedWait)
	req.mu.Unlock()

	if finished {
		m.onFinished(req)
	}
	return snap, nil
}

// StatusOfFiles возвращает статусы указанных файлов в порядке surls.
// Для SURL, отсутствующих в запросе, — SRM_INVALID_PATH у этого файла.
// Пустой surls — все файлы запроса.
func (m *Manager) StatusOfFiles(ctx context.Context, requestToken, owner string, surls []string) (model.RequestSnapshot, error) {
	snap, err := m.StatusOf(ctx, requestToken, owner)
	if err != nil || len(surls) == 0 {
		return snap, err
	}

	bySURL := make(map[string]model.FileStatus, len(snap.Files))
	for _, f := range snap.Files {
		if _, dup := bySURL[f.SURL]; !dup {
			bySURL[f.SURL] = f
		}
	}
	files := make([]model.FileStatus, 0, len(surls))
	for _, surl := range surls {
		if f, ok := bySURL[surl]; ok {
			files = append(files, f)
			continue
		}
		files = append(files, model.FileStatus{
			SURL:   surl,
			Status: status.Newf(status.InvalidPath, "SURL %s не входит в запрос", surl),
		})
	}
	snap.Files = files
	return snap, nil
}

// Summary возвращает сводки запросов (srmGetRequestSummary).
// Ошибка по отдельному токену отражается в его статусе.
func (m *Manager) Summary(ctx context.Context, tokens []string, owner string) []SummaryResult {
	results := make([]SummaryResult, 0, len(tokens))
	for _, tok := range tokens {
		snap, err := m.StatusOf(ctx, tok, owner)
		if err != nil {
			results = append(results, SummaryResult{Token: tok, Status: status.FromError(err)})
			continue
		}
		results = append(results, SummaryResult{Token: tok, Status: status.OK(), Summary: summaryOf(snap)})
	}
	return results
}

// Tokens возвращает токены запросов пользователя с указанным описанием
// (srmGetRequestTokens). Пустое описание — все запросы пользователя.
func (m *Manager) Tokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error) {
	seen := make(map[string]bool)
	var out []model.RequestTokenInfo

	m.mu.RLock()
	for tok, req := range m.requests {
		if (owner == "" || req.owner == owner) && (description == "" || req.description == description) {
			out = append(out, model.RequestTokenInfo{Token: tok, CreatedAt: req.submittedAt})
			seen[tok] = true
		}
	}
	m.mu.RUnlock()

	if m.archive != nil {
		archived, err := m.archive.FindRequestTokens(ctx, owner, description)
		if err != nil {
			m.logger.Warn("Ошибка поиска в архиве запросов", slog.String("error", err.Error()))
		}
		for _, info := range archived {
			if !seen[info.Token] {
				out = append(out, info)
			}
		}
	}

	if len(out) == 0 {
		return nil, status.Errorf(status.InvalidRequest, "запросы с описанием %q не найдены", description)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Active возвращает число запросов в памяти.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// --- внутренние методы ---

func (m *Manager) get(requestToken string) (*request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[requestToken]
	return req, ok
}

func (m *Manager) lookup(requestToken string) (*request, error) {
	req, ok := m.get(requestToken)
	if !ok {
		return nil, status.Errorf(status.InvalidRequest, "неизвестный токен запроса: %q", requestToken)
	}
	return req, nil
}

// all возвращает срез запросов для обхода без удержания Manager.mu.
func (m *Manager) all() []*request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*request, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, req)
	}
	return out
}

func (m *Manager) fromArchive(ctx context.Context, requestToken, owner string) (model.RequestSnapshot, error) {
	notFound := status.Errorf(status.InvalidRequest, "неизвестный токен запроса: %q", requestToken)
	if m.archive == nil {
		return model.RequestSnapshot{}, notFound
	}
	snap, err := m.archive.LoadRequest(ctx, requestToken)
	if err != nil {
		if !errors.Is(err, ErrNotArchived) {
			m.logger.Warn("Ошибка чтения архива запросов",
				slog.String("request_token", requestToken),
				slog.String("error", err.Error()),
			)
		}
		return model.RequestSnapshot{}, notFound
	}
	if owner != "" && snap.Owner != owner {
		return model.RequestSnapshot{}, status.Errorf(status.AuthorizationFailure,
			"запрос %s принадлежит другому пользователю", requestToken)
	}
	return snap, nil
}

// authorize проверяет владельца запроса. Пустой owner — проверка отключена.
func authorize(req *request, owner string) error {
	if owner != "" && req.owner != owner {
		return status.Errorf(status.AuthorizationFailure, "запрос %s принадлежит другому пользователю", req.token)
	}
	return nil
}

// releaseCharge возвращает место записи в резервирование. Снимается только
// списание этого запроса. Вызывается под req.mu.
func (m *Manager) releaseCharge(req *request, e *ledger.Entry) {
	if e.SpaceToken() == "" {
		return
	}
	e.ClearCharge()
	m.spaces.ReleaseFileOf(e.SpaceToken(), req.chargeKey(e), req.token)
}

// commitCharge закрепляет записанный файл за резервированием.
// Вызывается под req.mu.
func (m *Manager) commitCharge(req *request, e *ledger.Entry) {
	if e.SpaceToken() == "" {
		return
	}
	m.spaces.CommitFile(e.SpaceToken(), req.chargeKey(e), req.token)
}

// propagateSpaceExpiry завершает записи, списанные на истёкшее резервирование,
// статусом SRM_SPACE_LIFETIME_EXPIRED. Вызывается под req.mu.
func (m *Manager) propagateSpaceExpiry(req *request, now time.Time) bool {
	changed := false
	for _, e := range req.entries {
		if e.SpaceToken() == "" || e.IsFinal() {
			continue
		}
		if m.spaces.Expired(e.SpaceToken()) {
			if e.MarkFailed(now, status.SpaceLifetimeExpired,
				"время жизни резервирования "+e.SpaceToken()+" истекло") {
				e.ClearCharge()
				changed = true
			}
		}
	}
	if !changed {
		return false
	}
	return req.observe(now, "")
}

// onFinished вызывается один раз, когда запрос перешёл в итоговое состояние.
func (m *Manager) onFinished(req *request) {
	req.mu.Lock()
	code := req.aggregate().Code
	typ := req.typ
	req.mu.Unlock()

	requestsFinishedTotal.WithLabelValues(string(typ), string(code)).Inc()
	m.logger.Info("Запрос завершён",
		slog.String("request_token", req.token),
		slog.String("type", string(typ)),
		slog.String("status", string(code)),
	)
}
