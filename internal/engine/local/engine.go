// Пакет local — движок передачи данных поверх локального каталога.
//
// Движок принимает задания от менеджера запросов, обрабатывает файлы
// пулом рабочих горутин и сообщает результат через request.Callbacks.
// Запись (put) идёт через временный файл в каталоге .staging: клиент
// пишет по выданному TURL, srmPutDone переносит файл на место.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/request"
)

// Prometheus метрики движка
var (
	// engineTasksTotal — количество обработанных файлов по типу и результату.
	engineTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srm_engine_tasks_total",
		Help: "Общее количество файлов, обработанных движком",
	}, []string{"type", "result"})

	// engineTaskDuration — длительность обработки одного файла.
	engineTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srm_engine_task_duration_seconds",
		Help:    "Длительность обработки файла движком в секундах",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"type"})
)

// ErrNotStarted — движок не запущен или уже остановлен.
var ErrNotStarted = errors.New("движок передачи не запущен")

// task — один файл задания.
type task struct {
	token string
	typ   model.RequestType
	opts  model.Options
	file  request.JobFile
	gen   uint64
}

// staged — временный файл put, ожидающий srmPutDone.
type staged struct {
	path      string
	overwrite bool
}

// Engine — движок передачи на локальном диске.
type Engine struct {
	resolver  *Resolver
	callbacks request.Callbacks
	workers   int
	tasks     chan task
	logger    *slog.Logger

	mu sync.Mutex
	// gen — номер последней передачи; queued — ожидающие файлы и номер
	// передачи, в которой они поставлены. Отмена удаляет ключ из queued,
	// и устаревшая задача пропускается воркером.
	gen     uint64
	queued  map[string]uint64
	running map[string]context.CancelFunc
	staged  map[string]staged

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт движок. callbacks — получатель уведомлений о ходе обработки.
func New(resolver *Resolver, callbacks request.Callbacks, workers int, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		resolver:  resolver,
		callbacks: callbacks,
		workers:   workers,
		tasks:     make(chan task, workers*16),
		logger:    logger.With(slog.String("component", "local_engine")),
		queued:    make(map[string]uint64),
		running:   make(map[string]context.CancelFunc),
		staged:    make(map[string]staged),
	}
}

// Start запускает пул рабочих горутин.
func (e *Engine) Start(ctx context.Context) error {
	if err := os.MkdirAll(e.resolver.StagingDir(), 0o750); err != nil {
		return fmt.Errorf("не удалось создать каталог временных файлов: %w", err)
	}

	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.logger.Info("Движок передачи запущен", slog.Int("workers", e.workers))
	return nil
}

// Stop останавливает воркеры и ждёт завершения текущих файлов.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.logger.Info("Движок передачи остановлен")
}

// Dispatch ставит файлы задания в очередь. Не вызывает callbacks синхронно.
func (e *Engine) Dispatch(_ context.Context, job request.Job) error {
	e.mu.Lock()
	if e.ctx == nil || e.ctx.Err() != nil {
		e.mu.Unlock()
		return status.Errorf(status.InternalError, "%v", ErrNotStarted)
	}
	e.gen++
	gen := e.gen
	ctx := e.ctx
	tasks := make([]task, 0, len(job.Files))
	for _, f := range job.Files {
		e.queued[key(job.RequestToken, f.SURL)] = gen
		tasks = append(tasks, task{token: job.RequestToken, typ: job.Type, opts: job.Options, file: f, gen: gen})
	}
	e.mu.Unlock()

	go func() {
		for _, t := range tasks {
			select {
			case e.tasks <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Cancel отменяет обработку файлов: ожидающие пропускаются,
// выполняющиеся прерываются через контекст, временные файлы удаляются.
func (e *Engine) Cancel(requestToken string, surls []string) {
	var remove []string
	e.mu.Lock()
	for _, surl := range surls {
		k := key(requestToken, surl)
		delete(e.queued, k)
		if cancel, ok := e.running[k]; ok {
			cancel()
		}
		if st, ok := e.staged[k]; ok {
			remove = append(remove, st.path)
			delete(e.staged, k)
		}
	}
	e.mu.Unlock()

	for _, p := range remove {
		e.removeStaged(p)
	}
}

func (e *Engine) removeStaged(p string) {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("Не удалось удалить временный файл",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
	}
}

// Complete завершает работу клиента с файлами. Для put переносит временные
// файлы на место; для get и bringOnline закрепление на локальном диске
// не требуется, и вызов ничего не делает.
func (e *Engine) Complete(_ context.Context, requestToken string, typ model.RequestType, files []request.JobFile) map[string]error {
	errs := make(map[string]error)
	if typ != model.RequestPrepareToPut {
		return errs
	}

	for _, f := range files {
		k := key(requestToken, f.SURL)
		e.mu.Lock()
		st, ok := e.staged[k]
		delete(e.staged, k)
		e.mu.Unlock()
		if !ok {
			errs[f.SURL] = status.Errorf(status.InvalidRequest, "временный файл для %s не найден", f.SURL)
			continue
		}

		dst, err := e.resolver.FullPath(f.SURL)
		if err != nil {
			errs[f.SURL] = err
			continue
		}
		if _, err := os.Stat(dst); err == nil && !st.overwrite {
			os.Remove(st.path)
			errs[f.SURL] = status.Errorf(status.DuplicationError, "файл %s уже существует", f.SURL)
			continue
		}
		size, err := commitFile(st.path, dst)
		if err != nil {
			errs[f.SURL] = status.Errorf(status.Failure, "%v", err)
			continue
		}
		e.logger.Info("Файл записан",
			slog.String("request_token", requestToken),
			slog.String("surl", f.SURL),
			slog.Int64("size", size),
		)
	}
	return errs
}

// worker обрабатывает задачи до остановки движка.
func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.tasks:
			e.process(t)
		}
	}
}

// process обрабатывает один файл задания.
func (e *Engine) process(t task) {
	k := key(t.token, t.file.SURL)

	e.mu.Lock()
	if gen, ok := e.queued[k]; !ok || gen != t.gen {
		e.mu.Unlock()
		return
	}
	delete(e.queued, k)
	ctx, cancel := context.WithCancel(e.ctx)
	e.running[k] = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, k)
		e.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	e.notify(t, e.callbacks.MarkInProgress(t.token, t.file.SURL))

	var err error
	switch t.typ {
	case model.RequestPrepareToGet, model.RequestBringOnline:
		err = e.pin(t)
	case model.RequestPrepareToPut:
		err = e.stage(ctx, t, k)
	case model.RequestCopy:
		err = e.copy(ctx, t)
	case model.RequestLs:
		err = e.list(t)
	default:
		err = status.Errorf(status.NotSupported, "тип запроса %s не обрабатывается движком", t.typ)
	}

	result := "ok"
	switch {
	case ctx.Err() != nil:
		// Файл отменён: менеджер уже зафиксировал итог.
		result = "cancelled"
	case err != nil:
		result = "error"
		rs := status.FromError(err)
		e.notify(t, e.callbacks.MarkFailed(t.token, t.file.SURL, rs.Code, rs.Explanation))
	}
	engineTasksTotal.WithLabelValues(string(t.typ), result).Inc()
	engineTaskDuration.WithLabelValues(string(t.typ)).Observe(time.Since(start).Seconds())
}

// pin проверяет наличие файла для get и bringOnline.
func (e *Engine) pin(t task) error {
	logical, err := e.resolver.Path(t.file.SURL)
	if err != nil {
		return err
	}
	info, err := os.Stat(e.resolver.join(logical))
	if err != nil {
		return statError(t.file.SURL, err)
	}
	if info.IsDir() {
		return status.Errorf(status.InvalidPath, "%s является каталогом", t.file.SURL)
	}

	size := uint64(info.Size())
	turl := ""
	if t.typ == model.RequestPrepareToGet {
		turl = e.resolver.TURL(logical)
	}
	e.notify(t, e.callbacks.MarkReady(t.token, t.file.SURL, turl, &size))
	return nil
}

// stage создаёт временный файл для записи клиентом.
// Прежний временный файл того же SURL удаляется.
func (e *Engine) stage(ctx context.Context, t task, k string) error {
	dst, err := e.resolver.FullPath(t.file.SURL)
	if err != nil {
		return err
	}
	if info, err := os.Stat(dst); err == nil {
		if info.IsDir() {
			return status.Errorf(status.InvalidPath, "%s является каталогом", t.file.SURL)
		}
		if !t.opts.Overwrite {
			return status.Errorf(status.DuplicationError, "файл %s уже существует", t.file.SURL)
		}
	}

	name := uuid.New().String()
	p := filepath.Join(e.resolver.StagingDir(), name)
	f, err := os.Create(p)
	if err != nil {
		return status.Errorf(status.InternalError, "ошибка создания временного файла: %v", err)
	}
	f.Close()

	e.mu.Lock()
	if ctx.Err() != nil {
		// Отменён во время создания: Cancel уже отработал.
		e.mu.Unlock()
		e.removeStaged(p)
		return nil
	}
	prev, had := e.staged[k]
	e.staged[k] = staged{path: p, overwrite: t.opts.Overwrite}
	e.mu.Unlock()
	if had {
		e.removeStaged(prev.path)
	}

	e.notify(t, e.callbacks.MarkReady(t.token, t.file.SURL, e.resolver.TURL(stagingDirName+"/"+name), nil))
	return nil
}

// copy копирует файл внутри хранилища.
func (e *Engine) copy(ctx context.Context, t task) error {
	src, err := e.resolver.FullPath(t.file.SURL)
	if err != nil {
		return err
	}
	dst, err := e.resolver.FullPath(t.file.TargetSURL)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return statError(t.file.SURL, err)
	}
	if _, err := os.Stat(dst); err == nil && !t.opts.Overwrite {
		return status.Errorf(status.DuplicationError, "файл %s уже существует", t.file.TargetSURL)
	}

	size, sum, err := copyFile(ctx, src, dst)
	if err != nil {
		return status.Errorf(status.Failure, "%v", err)
	}
	e.logger.Info("Файл скопирован",
		slog.String("request_token", t.token),
		slog.String("surl", t.file.SURL),
		slog.String("target", t.file.TargetSURL),
		slog.Int64("size", size),
		slog.String("checksum", sum),
	)
	e.notify(t, e.callbacks.MarkDone(t.token, t.file.SURL))
	return nil
}

// list собирает метаданные пути для srmLs.
func (e *Engine) list(t task) error {
	levels := t.opts.NumOfLevels
	if levels <= 0 {
		levels = 1
	}
	detail, err := e.Stat(t.file.SURL, levels, t.opts.FullDetailedList)
	if err != nil {
		return err
	}
	e.notify(t, e.callbacks.MarkListed(t.token, t.file.SURL, detail))
	return nil
}

// notify логирует отказ менеджера принять уведомление.
func (e *Engine) notify(t task, err error) {
	if err != nil {
		e.logger.Debug("Уведомление не принято менеджером",
			slog.String("request_token", t.token),
			slog.String("surl", t.file.SURL),
			slog.String("error", err.Error()),
		)
	}
}

func key(token, surl string) string {
	return token + "\x00" + surl
}

// statError преобразует ошибку os.Stat в статус SRM.
func statError(surl string, err error) error {
	if os.IsNotExist(err) {
		return status.Errorf(status.InvalidPath, "файл %s не найден", surl)
	}
	if os.IsPermission(err) {
		return status.Errorf(status.AuthorizationFailure, "нет доступа к %s", surl)
	}
	return status.Errorf(status.InternalError, "ошибка доступа к %s: %v", surl, err)
}

// CheckReady проверяет, что движок запущен и каталог временных файлов доступен.
func (e *Engine) CheckReady() (state, message string) {
	e.mu.Lock()
	running := e.ctx != nil && e.ctx.Err() == nil
	e.mu.Unlock()
	if !running {
		return "fail", "движок передачи не запущен"
	}
	info, err := os.Stat(e.resolver.StagingDir())
	if err != nil || !info.IsDir() {
		return "fail", "каталог временных файлов недоступен"
	}
	return "ok", fmt.Sprintf("воркеров: %d", e.workers)
}
