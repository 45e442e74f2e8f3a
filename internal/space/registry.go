// Пакет space — реестр резервирований пространства (space tokens).
//
// Каждое резервирование защищено собственным мьютексом: списание и возврат
// выполняются как атомарные compare-and-decrement. Карта резервирований
// защищена sync.RWMutex реестра. Инварианты после любой операции:
// unused <= total и guaranteed <= total.
//
// Истёкшие резервирования не удаляются сразу: запись остаётся со статусом
// SRM_SPACE_LIFETIME_EXPIRED, чтобы запросы, списавшие на неё файлы,
// получили этот статус при следующем чтении.
package space

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/token"
)

// tombstoneRetention — сколько хранится истёкшее или освобождённое резервирование.
const tombstoneRetention = 24 * time.Hour

// Store — персистентное хранилище резервирований.
type Store interface {
	SaveSpace(ctx context.Context, snap model.SpaceSnapshot) error
	DeleteSpace(ctx context.Context, token string) error
	LoadSpaces(ctx context.Context) ([]model.SpaceSnapshot, error)
}

// ReserveParams — параметры srmReserveSpace.
type ReserveParams struct {
	Owner               string
	Description         string
	RetentionPolicyInfo model.RetentionPolicyInfo
	// DesiredTotalSize — 0 означает «равно гарантированному».
	DesiredTotalSize      uint64
	DesiredGuaranteedSize uint64
	// DesiredLifetime — секунды; nil или <= 0 → значение по умолчанию.
	DesiredLifetime *int64
}

// UpdateParams — параметры srmUpdateSpace. nil — не менять.
type UpdateParams struct {
	Owner             string
	NewTotalSize      *uint64
	NewGuaranteedSize *uint64
	NewLifetime       *int64
}

// fileCharge — файл, списанный на резервирование.
type fileCharge struct {
	size     uint64
	deadline time.Time
	// holder — токен запроса, который ведёт запись файла.
	// Пусто, когда запись зафиксирована.
	holder string
}

// reservation — одно резервирование.
type reservation struct {
	mu sync.Mutex

	token       string
	owner       string
	description string
	policy      model.RetentionPolicyInfo

	total      uint64
	guaranteed uint64
	unused     uint64

	createdAt time.Time
	expiresAt time.Time
	lifetime  time.Duration

	// state — SRM_SUCCESS (активно), SRM_SPACE_LIFETIME_EXPIRED или SRM_RELEASED.
	state    status.Code
	closedAt time.Time

	files map[string]*fileCharge
}

// Registry — реестр резервирований.
type Registry struct {
	mu     sync.RWMutex
	spaces map[string]*reservation
	// fileIndex — SURL → токен резервирования, на которое списан файл.
	fileIndex map[string]string
	// chargeMu сериализует списание файлов: проверка владельца записи
	// и перенос между резервированиями выполняются атомарно.
	chargeMu sync.Mutex

	capacity Capacity
	gen      token.Generator
	clock    lifetime.Clock
	policy   lifetime.Policy
	store    Store
	logger   *slog.Logger
}

// NewRegistry создаёт реестр.
// policy задаёт время жизни резервирования по умолчанию и максимум.
func NewRegistry(capacity Capacity, gen token.Generator, clock lifetime.Clock, policy lifetime.Policy, logger *slog.Logger) *Registry {
	return &Registry{
		spaces:    make(map[string]*reservation),
		fileIndex: make(map[string]string),
		capacity:  capacity,
		gen:       gen,
		clock:     clock,
		policy:    policy,
		logger:    logger.With(slog.String("component", "space_registry")),
	}
}

// WithStore подключает персистентное хранилище.
func (r *Registry) WithStore(store Store) *Registry {
	r.store = store
	return r
}

// Restore загружает активные резервирования из хранилища при старте.
// Ёмкость под них выделяется повторно; не поместившиеся пропускаются с предупреждением.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	snaps, err := r.store.LoadSpaces(ctx)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	restored := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snaps {
		if s.Status.Code != status.Success || !now.Before(s.ExpiresAt) {
			continue
		}
		if _, err := r.capacity.Allocate(s.TotalSize, s.TotalSize); err != nil {
			r.logger.Warn("Резервирование не восстановлено: нет ёмкости",
				slog.String("space_token", s.Token),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.spaces[s.Token] = &reservation{
			token:       s.Token,
			owner:       s.Owner,
			description: s.Description,
			policy:      s.RetentionPolicyInfo,
			total:       s.TotalSize,
			guaranteed:  s.GuaranteedSize,
			unused:      s.UnusedSize,
			createdAt:   s.CreatedAt,
			expiresAt:   s.ExpiresAt,
			lifetime:    time.Duration(s.LifetimeAssigned) * time.Second,
			state:       status.Success,
			files:       make(map[string]*fileCharge),
		}
		restored++
	}
	return restored, nil
}

// Reserve создаёт резервирование.
// Возвращает SRM_LOWER_SPACE_GRANTED, если выделено меньше запрошенного total.
func (r *Registry) Reserve(ctx context.Context, p ReserveParams) (model.SpaceSnapshot, status.ReturnStatus, error) {
	if p.DesiredGuaranteedSize == 0 {
		return model.SpaceSnapshot{}, status.ReturnStatus{},
			status.Errorf(status.InvalidRequest, "не задан гарантированный размер")
	}
	total := p.DesiredTotalSize
	if total == 0 {
		total = p.DesiredGuaranteedSize
	}
	if total < p.DesiredGuaranteedSize {
		return model.SpaceSnapshot{}, status.ReturnStatus{},
			status.Errorf(status.InvalidRequest, "гарантированный размер %d больше общего %d",
				p.DesiredGuaranteedSize, total)
	}
	if err := p.RetentionPolicyInfo.Validate(); err != nil {
		return model.SpaceSnapshot{}, status.ReturnStatus{}, status.Errorf(status.InvalidRequest, "%v", err)
	}

	granted, err := r.capacity.Allocate(total, p.DesiredGuaranteedSize)
	if err != nil {
		return model.SpaceSnapshot{}, status.ReturnStatus{}, err
	}

	now := r.clock.Now()
	lt := r.policy.Resolve(p.DesiredLifetime)
	res := &reservation{
		token:       r.gen.NewSpaceToken(),
		owner:       p.Owner,
		description: p.Description,
		policy:      p.RetentionPolicyInfo,
		total:       granted,
		guaranteed:  p.DesiredGuaranteedSize,
		unused:      granted,
		createdAt:   now,
		expiresAt:   now.Add(lt),
		lifetime:    lt,
		state:       status.Success,
		files:       make(map[string]*fileCharge),
	}

	r.mu.Lock()
	r.spaces[res.token] = res
	r.mu.Unlock()

	rs := status.OK()
	if granted < total {
		rs = status.Newf(status.LowerSpaceGranted, "выделено %d из %d байт", granted, total)
	}

	res.mu.Lock()
	snap := res.snapshot(now)
	res.mu.Unlock()
	r.persist(ctx, snap)

	r.logger.Info("Пространство зарезервировано",
		slog.String("space_token", res.token),
		slog.String("owner", res.owner),
		slog.Uint64("total", granted),
		slog.Uint64("guaranteed", res.guaranteed),
		slog.Duration("lifetime", lt),
	)
	return snap, rs, nil
}

// Charge атомарно уменьшает unused на amount.
// SRM_NO_FREE_SPACE — если свободного места в резервировании не хватает.
func (r *Registry) Charge(spaceToken string, amount uint64) error {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return err
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.checkActive(r.clock.Now()); err != nil {
		return err
	}
	return res.charge(amount)
}

// Release возвращает amount в резервирование (не больше total).
// Для истёкшего или освобождённого резервирования — no-op.
func (r *Registry) Release(spaceToken string, amount uint64) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.state != status.Success {
		return
	}
	res.release(amount)
}

// ChargeFile списывает файл на резервирование от имени запроса holder.
// Повторное списание того же SURL тем же запросом или поверх
// зафиксированной записи заменяет прежнее. Пока файл записывается другим
// запросом, возвращается SRM_FILE_BUSY.
func (r *Registry) ChargeFile(spaceToken, surl, holder string, amount uint64, fileLifetime time.Duration) error {
	r.chargeMu.Lock()
	defer r.chargeMu.Unlock()

	res, err := r.lookup(spaceToken)
	if err != nil {
		return err
	}
	if src, ok := r.SpaceOf(surl); ok {
		if fc, ok := r.fileCharge(src, surl); ok && fc.holder != "" && fc.holder != holder {
			return status.Errorf(status.FileBusy, "файл %s уже записывается другим запросом", surl)
		}
	}

	now := r.clock.Now()
	res.mu.Lock()
	if err := res.checkActive(now); err != nil {
		res.mu.Unlock()
		return err
	}
	var previous uint64
	if fc, ok := res.files[surl]; ok {
		previous = fc.size
		res.release(previous)
	}
	if err := res.charge(amount); err != nil {
		if previous > 0 {
			_ = res.charge(previous)
		}
		res.mu.Unlock()
		return err
	}
	deadline := res.expiresAt
	if fileLifetime > 0 && now.Add(fileLifetime).Before(deadline) {
		deadline = now.Add(fileLifetime)
	}
	res.files[surl] = &fileCharge{size: amount, deadline: deadline, holder: holder}
	res.mu.Unlock()

	r.mu.Lock()
	if old, ok := r.fileIndex[surl]; ok && old != spaceToken {
		r.mu.Unlock()
		r.ReleaseFile(old, surl)
		r.mu.Lock()
	}
	r.fileIndex[surl] = spaceToken
	r.mu.Unlock()
	return nil
}

// CommitFile фиксирует запись файла: списание остаётся на резервировании,
// но больше не принадлежит запросу holder.
func (r *Registry) CommitFile(spaceToken, surl, holder string) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if fc, ok := res.files[surl]; ok && fc.holder == holder {
		fc.holder = ""
	}
}

// ReleaseFile снимает файл с резервирования и возвращает его объём.
func (r *Registry) ReleaseFile(spaceToken, surl string) uint64 {
	return r.releaseFile(spaceToken, surl, func(*fileCharge) bool { return true })
}

// ReleaseFileOf снимает файл с резервирования, только если он списан
// запросом holder и запись ещё не зафиксирована.
func (r *Registry) ReleaseFileOf(spaceToken, surl, holder string) uint64 {
	return r.releaseFile(spaceToken, surl, func(fc *fileCharge) bool { return fc.holder == holder })
}

func (r *Registry) releaseFile(spaceToken, surl string, match func(*fileCharge) bool) uint64 {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return 0
	}

	res.mu.Lock()
	fc, ok := res.files[surl]
	if ok && !match(fc) {
		ok = false
	}
	if ok {
		delete(res.files, surl)
		if res.state == status.Success {
			res.release(fc.size)
		}
	}
	res.mu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	if r.fileIndex[surl] == spaceToken {
		delete(r.fileIndex, surl)
	}
	r.mu.Unlock()
	return fc.size
}

// FileResult — результат файловой операции над резервированием.
type FileResult struct {
	SURL     string
	Status   status.ReturnStatus
	Lifetime *int64
}

// MoveFiles переносит файлы на целевое резервирование (srmChangeSpaceForFiles).
// Файл сначала списывается с цели и только затем возвращается в источник.
func (r *Registry) MoveFiles(targetToken string, surls []string) ([]FileResult, error) {
	if _, err := r.Check(targetToken); err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(surls))
	for _, surl := range surls {
		r.mu.RLock()
		source, ok := r.fileIndex[surl]
		r.mu.RUnlock()
		if !ok {
			results = append(results, FileResult{SURL: surl,
				Status: status.New(status.InvalidPath, "файл не списан ни на одно резервирование")})
			continue
		}
		if source == targetToken {
			results = append(results, FileResult{SURL: surl, Status: status.OK()})
			continue
		}

		fc, _ := r.fileCharge(source, surl)
		lt := time.Duration(0)
		if !fc.deadline.IsZero() {
			lt = fc.deadline.Sub(r.clock.Now())
		}
		if err := r.ChargeFile(targetToken, surl, fc.holder, fc.size, lt); err != nil {
			results = append(results, FileResult{SURL: surl, Status: status.FromError(err)})
			continue
		}
		results = append(results, FileResult{SURL: surl, Status: status.OK()})
	}
	r.persistToken(context.Background(), targetToken)
	return results, nil
}

// PurgeFiles снимает файлы с резервирования (srmPurgeFromSpace).
func (r *Registry) PurgeFiles(ctx context.Context, spaceToken, owner string, surls []string) ([]FileResult, error) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return nil, err
	}
	if owner != "" && res.owner != owner {
		return nil, status.Errorf(status.AuthorizationFailure, "резервирование %s принадлежит другому пользователю", spaceToken)
	}

	results := make([]FileResult, 0, len(surls))
	for _, surl := range surls {
		res.mu.Lock()
		_, ok := res.files[surl]
		res.mu.Unlock()
		if !ok {
			results = append(results, FileResult{SURL: surl,
				Status: status.New(status.InvalidPath, "файл не списан на это резервирование")})
			continue
		}
		r.ReleaseFile(spaceToken, surl)
		results = append(results, FileResult{SURL: surl, Status: status.OK()})
	}
	r.persistToken(ctx, spaceToken)
	return results, nil
}

// ExtendFiles продлевает время жизни файлов в резервировании
// (srmExtendFileLifeTimeInSpace). Срок ограничен временем жизни резервирования
// и никогда не сокращается.
func (r *Registry) ExtendFiles(spaceToken string, surls []string, newLifetime *int64) ([]FileResult, error) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.checkActive(now); err != nil {
		return nil, err
	}

	if len(surls) == 0 {
		for surl := range res.files {
			surls = append(surls, surl)
		}
		sort.Strings(surls)
	}

	results := make([]FileResult, 0, len(surls))
	for _, surl := range surls {
		fc, ok := res.files[surl]
		if !ok {
			results = append(results, FileResult{SURL: surl,
				Status: status.New(status.InvalidPath, "файл не списан на это резервирование")})
			continue
		}
		deadline := res.expiresAt
		if newLifetime != nil && *newLifetime > 0 {
			if d := now.Add(time.Duration(*newLifetime) * time.Second); d.Before(deadline) {
				deadline = d
			}
		}
		if deadline.After(fc.deadline) {
			fc.deadline = deadline
		}
		left := lifetime.Remaining(fc.deadline, now)
		results = append(results, FileResult{SURL: surl, Status: status.OK(), Lifetime: &left})
	}
	return results, nil
}

// Update изменяет размер и/или время жизни резервирования (srmUpdateSpace).
func (r *Registry) Update(ctx context.Context, spaceToken string, p UpdateParams) (model.SpaceSnapshot, status.ReturnStatus, error) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return model.SpaceSnapshot{}, status.ReturnStatus{}, err
	}

	now := r.clock.Now()
	res.mu.Lock()
	if err := res.checkActive(now); err != nil {
		res.mu.Unlock()
		return model.SpaceSnapshot{}, status.ReturnStatus{}, err
	}
	if p.Owner != "" && res.owner != p.Owner {
		res.mu.Unlock()
		return model.SpaceSnapshot{}, status.ReturnStatus{},
			status.Errorf(status.AuthorizationFailure, "резервирование %s принадлежит другому пользователю", spaceToken)
	}

	rs := status.OK()
	newTotal := res.total
	if p.NewTotalSize != nil {
		newTotal = *p.NewTotalSize
	}
	newGuaranteed := res.guaranteed
	if p.NewGuaranteedSize != nil {
		newGuaranteed = *p.NewGuaranteedSize
	}
	if newTotal < newGuaranteed {
		newTotal = newGuaranteed
	}

	used := res.total - res.unused
	switch {
	case newTotal > res.total:
		delta := newTotal - res.total
		var minDelta uint64
		if newGuaranteed > res.total {
			minDelta = newGuaranteed - res.total
		}
		granted, err := r.capacity.Allocate(delta, minDelta)
		if err != nil {
			res.mu.Unlock()
			return model.SpaceSnapshot{}, status.ReturnStatus{}, err
		}
		res.total += granted
		res.unused += granted
		if granted < delta {
			rs = status.Newf(status.LowerSpaceGranted, "выделено %d из %d байт", res.total, newTotal)
		}
	case newTotal < res.total:
		if newTotal < used {
			res.mu.Unlock()
			return model.SpaceSnapshot{}, status.ReturnStatus{},
				status.Errorf(status.NoFreeSpace, "нельзя уменьшить резервирование до %d: занято %d", newTotal, used)
		}
		freed := res.total - newTotal
		r.capacity.Free(freed)
		res.total = newTotal
		res.unused -= freed
	}
	res.guaranteed = newGuaranteed
	if res.guaranteed > res.total {
		res.guaranteed = res.total
	}

	if p.NewLifetime != nil {
		lt := r.policy.Resolve(p.NewLifetime)
		res.lifetime = lt
		res.expiresAt = now.Add(lt)
	}

	snap := res.snapshot(now)
	res.mu.Unlock()
	r.persist(ctx, snap)

	r.logger.Info("Резервирование изменено",
		slog.String("space_token", spaceToken),
		slog.Uint64("total", snap.TotalSize),
		slog.Uint64("guaranteed", snap.GuaranteedSize),
	)
	return snap, rs, nil
}

// ReleaseSpace освобождает резервирование (srmReleaseSpace).
// Если на резервирование списаны файлы, требуется force.
func (r *Registry) ReleaseSpace(ctx context.Context, spaceToken, owner string, force bool) error {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return err
	}

	res.mu.Lock()
	if res.state == status.Released {
		res.mu.Unlock()
		return status.Errorf(status.InvalidRequest, "резервирование %s уже освобождено", spaceToken)
	}
	if owner != "" && res.owner != owner {
		res.mu.Unlock()
		return status.Errorf(status.AuthorizationFailure, "резервирование %s принадлежит другому пользователю", spaceToken)
	}
	if len(res.files) > 0 && !force {
		res.mu.Unlock()
		return status.Errorf(status.Failure, "на резервирование списано файлов: %d", len(res.files))
	}
	if res.state == status.Success {
		r.capacity.Free(res.total)
	}
	files := make([]string, 0, len(res.files))
	for surl := range res.files {
		files = append(files, surl)
	}
	res.files = make(map[string]*fileCharge)
	res.state = status.Released
	res.closedAt = r.clock.Now()
	res.mu.Unlock()

	r.mu.Lock()
	for _, surl := range files {
		if r.fileIndex[surl] == spaceToken {
			delete(r.fileIndex, surl)
		}
	}
	r.mu.Unlock()

	r.deleteStored(ctx, spaceToken)
	r.logger.Info("Резервирование освобождено",
		slog.String("space_token", spaceToken),
		slog.Int("files", len(files)),
	)
	return nil
}

// Get возвращает снимок резервирования (srmGetSpaceMetaData).
func (r *Registry) Get(spaceToken string) (model.SpaceSnapshot, error) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return model.SpaceSnapshot{}, err
	}
	now := r.clock.Now()
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.snapshot(now), nil
}

// Tokens возвращает активные резервирования пользователя
// с указанным описанием (srmGetSpaceTokens). Пустое описание — все.
func (r *Registry) Tokens(owner, description string) []string {
	now := r.clock.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0)
	for tok, res := range r.spaces {
		res.mu.Lock()
		match := res.checkActive(now) == nil &&
			(owner == "" || res.owner == owner) &&
			(description == "" || res.description == description)
		res.mu.Unlock()
		if match {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// SpaceOf возвращает токен резервирования, на которое списан файл.
func (r *Registry) SpaceOf(surl string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.fileIndex[surl]
	return tok, ok
}

// Check проверяет, что резервирование существует и активно.
// Возвращает SRM_INVALID_REQUEST для неизвестного токена и
// SRM_SPACE_LIFETIME_EXPIRED для истёкшего.
func (r *Registry) Check(spaceToken string) (model.SpaceSnapshot, error) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return model.SpaceSnapshot{}, err
	}
	now := r.clock.Now()
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.checkActive(now); err != nil {
		return model.SpaceSnapshot{}, err
	}
	return res.snapshot(now), nil
}

// Expired — резервирование истекло (по статусу или по времени).
// Неизвестный токен не считается истёкшим.
func (r *Registry) Expired(spaceToken string) bool {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return false
	}
	now := r.clock.Now()
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.state == status.SpaceLifetimeExpired ||
		(res.state == status.Success && !now.Before(res.expiresAt))
}

// PurgeResult — результат очистки истёкших резервирований.
type PurgeResult struct {
	Expired int
	Removed int
}

// PurgeExpired помечает истёкшие резервирования как SRM_SPACE_LIFETIME_EXPIRED,
// возвращает их ёмкость и удаляет давно закрытые записи.
func (r *Registry) PurgeExpired(ctx context.Context, now time.Time) PurgeResult {
	var result PurgeResult
	var expired []model.SpaceSnapshot
	var removed []string

	r.mu.Lock()
	for tok, res := range r.spaces {
		res.mu.Lock()
		switch {
		case res.state == status.Success && !now.Before(res.expiresAt):
			res.state = status.SpaceLifetimeExpired
			res.closedAt = now
			r.capacity.Free(res.total)
			for surl := range res.files {
				if r.fileIndex[surl] == tok {
					delete(r.fileIndex, surl)
				}
			}
			expired = append(expired, res.snapshot(now))
		case res.state != status.Success && now.Sub(res.closedAt) >= tombstoneRetention:
			delete(r.spaces, tok)
			removed = append(removed, tok)
		}
		res.mu.Unlock()
	}
	r.mu.Unlock()

	for _, snap := range expired {
		r.persist(ctx, snap)
		r.logger.Info("Резервирование истекло",
			slog.String("space_token", snap.Token),
			slog.String("owner", snap.Owner),
		)
	}
	for _, tok := range removed {
		r.deleteStored(ctx, tok)
	}

	result.Expired = len(expired)
	result.Removed = len(removed)
	return result
}

// Usage возвращает число активных резервирований и суммарные total/unused.
func (r *Registry) Usage() (active int, total, unused uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.spaces {
		res.mu.Lock()
		if res.state == status.Success {
			active++
			total += res.total
			unused += res.unused
		}
		res.mu.Unlock()
	}
	return active, total, unused
}

// --- внутренние методы ---

func (r *Registry) lookup(spaceToken string) (*reservation, error) {
	r.mu.RLock()
	res, ok := r.spaces[spaceToken]
	r.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(status.InvalidRequest, "неизвестный токен резервирования: %q", spaceToken)
	}
	return res, nil
}

func (r *Registry) fileCharge(spaceToken, surl string) (fileCharge, bool) {
	res, err := r.lookup(spaceToken)
	if err != nil {
		return fileCharge{}, false
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if fc, ok := res.files[surl]; ok {
		return *fc, true
	}
	return fileCharge{}, false
}

func (r *Registry) persistToken(ctx context.Context, spaceToken string) {
	if r.store == nil {
		return
	}
	if snap, err := r.Get(spaceToken); err == nil {
		r.persist(ctx, snap)
	}
}

func (r *Registry) persist(ctx context.Context, snap model.SpaceSnapshot) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveSpace(ctx, snap); err != nil {
		r.logger.Warn("Ошибка сохранения резервирования",
			slog.String("space_token", snap.Token),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) deleteStored(ctx context.Context, spaceToken string) {
	if r.store == nil {
		return
	}
	if err := r.store.DeleteSpace(ctx, spaceToken); err != nil {
		r.logger.Warn("Ошибка удаления резервирования из хранилища",
			slog.String("space_token", spaceToken),
			slog.String("error", err.Error()),
		)
	}
}

// checkActive — вызывается под res.mu.
func (res *reservation) checkActive(now time.Time) error {
	switch {
	case res.state == status.SpaceLifetimeExpired,
		res.state == status.Success && !now.Before(res.expiresAt):
		return status.Errorf(status.SpaceLifetimeExpired, "время жизни резервирования %s истекло", res.token)
	case res.state == status.Released:
		return status.Errorf(status.InvalidRequest, "резервирование %s освобождено", res.token)
	}
	return nil
}

// charge — вызывается под res.mu.
func (res *reservation) charge(amount uint64) error {
	if amount > res.unused {
		return status.Errorf(status.NoFreeSpace,
			"в резервировании %s свободно %d байт, требуется %d", res.token, res.unused, amount)
	}
	res.unused -= amount
	return nil
}

// release — вызывается под res.mu.
func (res *reservation) release(amount uint64) {
	if amount > res.total-res.unused {
		amount = res.total - res.unused
	}
	res.unused += amount
}

// snapshot — вызывается под res.mu.
func (res *reservation) snapshot(now time.Time) model.SpaceSnapshot {
	rs := status.OK()
	switch {
	case res.state == status.Success && !now.Before(res.expiresAt),
		res.state == status.SpaceLifetimeExpired:
		rs = status.New(status.SpaceLifetimeExpired, "время жизни резервирования истекло")
	case res.state == status.Released:
		rs = status.New(status.Released, "")
	}
	return model.SpaceSnapshot{
		Token:               res.token,
		Owner:               res.owner,
		Description:         res.description,
		Status:              rs,
		RetentionPolicyInfo: res.policy,
		TotalSize:           res.total,
		GuaranteedSize:      res.guaranteed,
		UnusedSize:          res.unused,
		CreatedAt:           res.createdAt,
		ExpiresAt:           res.expiresAt,
		LifetimeAssigned:    int64(res.lifetime / time.Second),
		LifetimeLeft:        lifetime.Remaining(res.expiresAt, now),
		Files:               len(res.files),
	}
}
