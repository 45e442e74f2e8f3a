// srm.go — фасад SRM v2.2: POST /srm/v2/{operation}.
// Таблица операций строится один раз при создании обработчика; каждая
// операция декодирует своё тело, вызывает ядро и кодирует ответ.
// Итог SRM-операции (в том числе неуспешный) возвращается с HTTP 200
// в returnStatus.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/srm-manager/internal/api/errors"
	"github.com/bigkaa/srm-manager/internal/api/middleware"
	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/request"
	"github.com/bigkaa/srm-manager/internal/space"
)

// maxBodySize — предельный размер тела SRM-запроса.
const maxBodySize = 4 << 20

// Prometheus метрики SRM-операций
var (
	// operationsTotal — количество SRM-операций по итоговому коду.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srm_operations_total",
		Help: "Общее количество SRM-операций по итоговому статусу",
	}, []string{"operation", "status"})

	// operationDuration — длительность SRM-операций.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srm_operation_duration_seconds",
		Help:    "Длительность SRM-операций в секундах",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// errDecode — тело запроса не соответствует операции.
var errDecode = errors.New("некорректное тело запроса")

// operation — запись таблицы операций.
type operation struct {
	// scope — scope JWT, необходимый для вызова.
	scope string
	call  func(ctx context.Context, owner string, body []byte) (wire.Response, error)
}

// op связывает тип тела запроса с функцией операции.
func op[T any](scope string, fn func(ctx context.Context, owner string, in T) wire.Response) operation {
	return operation{
		scope: scope,
		call: func(ctx context.Context, owner string, body []byte) (wire.Response, error) {
			var in T
			if len(body) > 0 {
				if err := json.Unmarshal(body, &in); err != nil {
					return nil, errors.Join(errDecode, err)
				}
			}
			return fn(ctx, owner, in), nil
		},
	}
}

// SRMHandler — обработчик SRM-операций.
type SRMHandler struct {
	manager   *request.Manager
	spaces    *space.Registry
	ns        request.Namespace
	protocols []string
	ops       map[string]operation
	logger    *slog.Logger
}

// NewSRMHandler создаёт обработчик и таблицу операций.
// protocols — поддерживаемые протоколы передачи (srmGetTransferProtocols).
func NewSRMHandler(
	manager *request.Manager,
	spaces *space.Registry,
	ns request.Namespace,
	protocols []string,
	logger *slog.Logger,
) *SRMHandler {
	h := &SRMHandler{
		manager:   manager,
		spaces:    spaces,
		ns:        ns,
		protocols: protocols,
		logger:    logger.With(slog.String("component", "srm_handler")),
	}
	h.ops = h.operations()
	return h
}

// operations — таблица всех операций SRM v2.2.
func (h *SRMHandler) operations() map[string]operation {
	read, write := middleware.ScopeRead, middleware.ScopeWrite
	return map[string]operation{
		// Передача файлов
		"srmPrepareToGet":               op(write, h.prepareToGet),
		"srmStatusOfGetRequest":         op(read, h.statusOfGet),
		"srmBringOnline":                op(write, h.bringOnline),
		"srmStatusOfBringOnlineRequest": op(read, h.statusOfBringOnline),
		"srmPrepareToPut":               op(write, h.prepareToPut),
		"srmStatusOfPutRequest":         op(read, h.statusOfPut),
		"srmCopy":                       op(write, h.copy),
		"srmStatusOfCopyRequest":        op(read, h.statusOfCopy),
		"srmLs":                         op(read, h.ls),
		"srmStatusOfLsRequest":          op(read, h.statusOfLs),

		// Управление запросами
		"srmReleaseFiles":       op(write, h.releaseFiles),
		"srmPutDone":            op(write, h.putDone),
		"srmAbortRequest":       op(write, h.abortRequest),
		"srmAbortFiles":         op(write, h.abortFiles),
		"srmSuspendRequest":     op(write, h.suspendRequest),
		"srmResumeRequest":      op(write, h.resumeRequest),
		"srmGetRequestSummary":  op(read, h.requestSummary),
		"srmExtendFileLifeTime": op(write, h.extendFileLifeTime),
		"srmGetRequestTokens":   op(read, h.requestTokens),

		// Резервирование пространства
		"srmReserveSpace":                       op(write, h.reserveSpace),
		"srmStatusOfReserveSpaceRequest":        op(read, h.statusOfReserveSpace),
		"srmReleaseSpace":                       op(write, h.releaseSpace),
		"srmUpdateSpace":                        op(write, h.updateSpace),
		"srmStatusOfUpdateSpaceRequest":         op(read, h.statusOfUpdateSpace),
		"srmGetSpaceMetaData":                   op(read, h.spaceMetaData),
		"srmChangeSpaceForFiles":                op(write, h.changeSpaceForFiles),
		"srmStatusOfChangeSpaceForFilesRequest": op(read, h.statusOfChangeSpaceForFiles),
		"srmExtendFileLifeTimeInSpace":          op(write, h.extendFileLifeTimeInSpace),
		"srmPurgeFromSpace":                     op(write, h.purgeFromSpace),
		"srmGetSpaceTokens":                     op(read, h.spaceTokens),

		// Пространство имён
		"srmMkdir": op(write, h.mkdir),
		"srmRmdir": op(write, h.rmdir),
		"srmRm":    op(write, h.rm),
		"srmMv":    op(write, h.mv),

		// Права доступа
		"srmSetPermission":   op(write, notSupported),
		"srmCheckPermission": op(read, notSupported),
		"srmGetPermission":   op(read, notSupported),

		// Служебные
		"srmGetTransferProtocols": op(read, h.transferProtocols),
		"srmPing":                 op(read, h.ping),
	}
}

// Operations возвращает имена поддерживаемых операций.
func (h *SRMHandler) Operations() []string {
	names := make([]string, 0, len(h.ops))
	for name := range h.ops {
		names = append(names, name)
	}
	return names
}

// Handle обрабатывает POST /srm/v2/{operation}.
func (h *SRMHandler) Handle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "operation")
	o, ok := h.ops[name]
	if !ok {
		apierrors.NotFound(w, "Неизвестная операция: "+name)
		return
	}

	if !middleware.HasScope(r.Context(), o.scope) {
		apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+o.scope)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать тело запроса: "+err.Error())
		return
	}

	start := time.Now()
	resp, err := o.call(r.Context(), middleware.SubjectFromContext(r.Context()), body)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	rs := resp.Status()
	operationsTotal.WithLabelValues(name, string(rs.Code)).Inc()
	operationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	h.logger.Debug("SRM-операция выполнена",
		slog.String("operation", name),
		slog.String("status", string(rs.Code)),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
