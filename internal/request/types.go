package request

import (
	"context"
	"errors"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/lifetime"
)

// Engine — внешний движок передачи данных.
//
// Dispatch не должен вызывать Callbacks синхронно: результат сообщается
// позже из горутин движка. Cancel выполняется по возможности; учёт
// состояния в Manager завершается независимо от него.
type Engine interface {
	Dispatch(ctx context.Context, job Job) error
	Cancel(requestToken string, surls []string)
	// Complete — клиент закончил работу с файлами: фиксация записи (put)
	// или снятие закрепления (get, bringOnline). Ошибки — по SURL.
	Complete(ctx context.Context, requestToken string, typ model.RequestType, files []JobFile) map[string]error
}

// Callbacks — уведомления движка о ходе обработки файлов.
// Реализуется Manager.
type Callbacks interface {
	MarkInProgress(requestToken, surl string) error
	MarkReady(requestToken, surl, turl string, size *uint64) error
	MarkDone(requestToken, surl string) error
	MarkListed(requestToken, surl string, detail model.PathDetail) error
	MarkFailed(requestToken, surl string, code status.Code, explanation string) error
}

// Job — задание движку.
type Job struct {
	RequestToken string
	Type         model.RequestType
	Files        []JobFile
	Options      model.Options
}

// JobFile — файл задания.
type JobFile struct {
	SURL         string
	TargetSURL   string
	ExpectedSize uint64
}

// ErrNotArchived — запрос отсутствует в архиве.
var ErrNotArchived = errors.New("запрос не найден в архиве")

// Archive — хранилище запросов, выгруженных из памяти.
type Archive interface {
	SaveRequest(ctx context.Context, snap model.RequestSnapshot) error
	// LoadRequest возвращает ErrNotArchived, если запрос неизвестен.
	LoadRequest(ctx context.Context, token string) (model.RequestSnapshot, error)
	FindRequestTokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error)
}

// Config — политики сроков жизни и параметры Manager.
type Config struct {
	// RequestLifetimes — время жизни запроса по типам (desiredTotalRequestTime).
	RequestLifetimes map[model.RequestType]lifetime.Policy
	// PinLifetime — закрепление файла (get, bringOnline) и срок действия TURL (put).
	PinLifetime lifetime.Policy
	// FileLifetime — время жизни файла (put, copy), по умолчанию 0 — бессрочно.
	FileLifetime lifetime.Policy
	// EstimatedWait — подсказка клиенту об интервале опроса.
	EstimatedWait time.Duration
	// FinishedRetention — сколько завершённый запрос хранится в памяти.
	FinishedRetention time.Duration
	// MaxFilesPerRequest — предел числа файлов в запросе; 0 — без ограничения.
	MaxFilesPerRequest int
}

// requestPolicy возвращает политику времени жизни для типа запроса.
func (c Config) requestPolicy(t model.RequestType) lifetime.Policy {
	if p, ok := c.RequestLifetimes[t]; ok {
		return p
	}
	return lifetime.Policy{Default: 24 * time.Hour}
}

// SubmitParams — параметры нового запроса.
type SubmitParams struct {
	Type    model.RequestType
	Owner   string
	Files   []model.FileSpec
	Options model.Options
}

// FileResult — результат операции над отдельным файлом запроса.
type FileResult struct {
	SURL                  string              `json:"surl"`
	Status                status.ReturnStatus `json:"status"`
	RemainingPinLifetime  *int64              `json:"pinLifetime,omitempty"`
	RemainingFileLifetime *int64              `json:"fileLifetime,omitempty"`
}

// SummaryResult — результат srmGetRequestSummary для одного токена.
type SummaryResult struct {
	Token   string                `json:"requestToken"`
	Status  status.ReturnStatus   `json:"status"`
	Summary *model.RequestSummary `json:"summary,omitempty"`
}

// SpaceResult — результат srmReserveSpace и srmUpdateSpace.
type SpaceResult struct {
	RequestToken string
	Status       status.ReturnStatus
	Space        *model.SpaceSnapshot
}

// Namespace — синхронные операции над пространством имён хранилища
// (srmMkdir, srmRmdir, srmRm, srmMv). Ошибки — *status.Error.
type Namespace interface {
	Mkdir(ctx context.Context, surl string) error
	Rmdir(ctx context.Context, surl string, recursive bool) error
	Rm(ctx context.Context, surl string) error
	Mv(ctx context.Context, from, to string) error
}
