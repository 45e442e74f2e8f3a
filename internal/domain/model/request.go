// Пакет model — доменные типы SRM-запросов и резервирований пространства.
package model

import (
	"fmt"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// RequestType — тип асинхронного SRM-запроса.
type RequestType string

const (
	RequestPrepareToGet        RequestType = "PREPARE_TO_GET"
	RequestPrepareToPut        RequestType = "PREPARE_TO_PUT"
	RequestCopy                RequestType = "COPY"
	RequestBringOnline         RequestType = "BRING_ONLINE"
	RequestLs                  RequestType = "LS"
	RequestReserveSpace        RequestType = "RESERVE_SPACE"
	RequestChangeSpaceForFiles RequestType = "CHANGE_SPACE_FOR_FILES"
	RequestUpdateSpace         RequestType = "UPDATE_SPACE"
)

// ParseRequestType проверяет строковое значение типа запроса.
func ParseRequestType(s string) (RequestType, error) {
	switch t := RequestType(s); t {
	case RequestPrepareToGet, RequestPrepareToPut, RequestCopy, RequestBringOnline,
		RequestLs, RequestReserveSpace, RequestChangeSpaceForFiles, RequestUpdateSpace:
		return t, nil
	}
	return "", fmt.Errorf("неизвестный тип запроса: %q", s)
}

// HasFiles — запросы этого типа содержат файловые записи.
func (t RequestType) HasFiles() bool {
	switch t {
	case RequestReserveSpace, RequestUpdateSpace:
		return false
	}
	return true
}

// ReadyCode — статус файла, когда движок подготовил его для клиента.
// Copy и Ls не имеют промежуточного состояния готовности.
func (t RequestType) ReadyCode() status.Code {
	switch t {
	case RequestPrepareToPut:
		return status.SpaceAvailable
	case RequestPrepareToGet, RequestBringOnline:
		return status.FilePinned
	}
	return status.Success
}

// FileSpec — описание одного файла в запросе.
type FileSpec struct {
	// SURL — Site URL файла (источник для copy).
	SURL string `json:"surl"`
	// TargetSURL — целевой SURL (только copy).
	TargetSURL string `json:"targetSURL,omitempty"`
	// ExpectedSize — ожидаемый размер в байтах (put), 0 — неизвестен.
	ExpectedSize uint64 `json:"expectedFileSize,omitempty"`
	// IsDirectory — для get/bringOnline: запрос на каталог.
	IsDirectory bool `json:"isSourceADirectory,omitempty"`
}

// Options — необязательные параметры запроса.
type Options struct {
	// UserRequestDescription — произвольная метка клиента (srmGetRequestTokens).
	UserRequestDescription string `json:"userRequestDescription,omitempty"`
	// DesiredTotalRequestTime — желаемое время жизни запроса, секунды.
	DesiredTotalRequestTime *int64 `json:"desiredTotalRequestTime,omitempty"`
	// DesiredPinLifetime — желаемое время закрепления (get/bringOnline), секунды.
	DesiredPinLifetime *int64 `json:"desiredPinLifeTime,omitempty"`
	// DesiredFileLifetime — желаемое время жизни файла (put/copy), секунды.
	DesiredFileLifetime *int64 `json:"desiredFileLifeTime,omitempty"`
	// TargetSpaceToken — токен резервирования, на которое списывается put/copy.
	TargetSpaceToken string `json:"targetSpaceToken,omitempty"`
	// Overwrite — разрешена перезапись существующих файлов (put/copy).
	Overwrite bool `json:"overwrite,omitempty"`
	// TransferProtocols — протоколы передачи, приемлемые для клиента.
	TransferProtocols []string `json:"transferProtocols,omitempty"`
	// FullDetailedList, NumOfLevels — параметры srmLs.
	FullDetailedList bool `json:"fullDetailedList,omitempty"`
	NumOfLevels      int  `json:"numOfLevels,omitempty"`
}

// PathDetail — метаданные пути (результат srmLs).
type PathDetail struct {
	Path         string       `json:"path"`
	Size         uint64       `json:"size"`
	Type         string       `json:"type"`
	CreatedAt    time.Time    `json:"createdAtTime"`
	ModifiedAt   time.Time    `json:"lastModificationTime"`
	Checksum     string       `json:"checkSumValue,omitempty"`
	ChecksumType string       `json:"checkSumType,omitempty"`
	SubPaths     []PathDetail `json:"arrayOfSubPaths,omitempty"`
}

// Типы путей srmLs.
const (
	PathTypeFile      = "FILE"
	PathTypeDirectory = "DIRECTORY"
)

// FileStatus — снимок состояния одного файла в запросе.
// Оставшиеся времена вычислены в момент чтения.
type FileStatus struct {
	SURL                  string              `json:"surl"`
	TargetSURL            string              `json:"targetSURL,omitempty"`
	Status                status.ReturnStatus `json:"status"`
	FileSize              *uint64             `json:"fileSize,omitempty"`
	TransferURL           string              `json:"transferURL,omitempty"`
	SpaceToken            string              `json:"spaceToken,omitempty"`
	RemainingPinLifetime  *int64              `json:"remainingPinLifetime,omitempty"`
	RemainingFileLifetime *int64              `json:"remainingFileLifetime,omitempty"`
	EstimatedWaitTime     *int64              `json:"estimatedWaitTime,omitempty"`
	Detail                *PathDetail         `json:"details,omitempty"`
}

// RequestSnapshot — согласованный снимок запроса на момент чтения.
type RequestSnapshot struct {
	Token              string              `json:"requestToken"`
	Type               RequestType         `json:"requestType"`
	Owner              string              `json:"owner"`
	Description        string              `json:"userRequestDescription,omitempty"`
	Status             status.ReturnStatus `json:"returnStatus"`
	SubmittedAt        time.Time           `json:"submittedAt"`
	Deadline           time.Time           `json:"deadline"`
	FinishedAt         *time.Time          `json:"finishedAt,omitempty"`
	RemainingTotalTime *int64              `json:"remainingTotalRequestTime,omitempty"`
	Files              []FileStatus        `json:"files,omitempty"`
	Space              *SpaceSnapshot      `json:"space,omitempty"`
	History            []HistoryRecord     `json:"history,omitempty"`
}

// Counts — сводка по файлам запроса (srmGetRequestSummary).
// waiting — файлы в обработке или приостановленные, completed — успешные,
// failed — завершившиеся неуспешно.
func (s *RequestSnapshot) Counts() (total, waiting, completed, failed int) {
	for _, f := range s.Files {
		total++
		switch {
		case status.IsProcessing(f.Status.Code), f.Status.Code == status.RequestSuspended:
			waiting++
		case status.IsSuccess(f.Status.Code):
			completed++
		default:
			failed++
		}
	}
	return total, waiting, completed, failed
}

// HistoryRecord — запись истории переходов запроса.
type HistoryRecord struct {
	Status      status.Code `json:"status"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// RequestSummary — краткое описание запроса (srmGetRequestSummary).
type RequestSummary struct {
	Token          string              `json:"requestToken"`
	Type           RequestType         `json:"requestType"`
	Status         status.ReturnStatus `json:"status"`
	TotalFiles     int                 `json:"totalNumFilesInRequest"`
	CompletedFiles int                 `json:"numOfCompletedFiles"`
	WaitingFiles   int                 `json:"numOfWaitingFiles"`
	FailedFiles    int                 `json:"numOfFailedFiles"`
}

// RequestTokenInfo — токен и время создания (srmGetRequestTokens).
type RequestTokenInfo struct {
	Token     string    `json:"requestToken"`
	CreatedAt time.Time `json:"createdAtTime"`
}
