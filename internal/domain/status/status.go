// Пакет status — коды состояния SRM v2.2 (TStatusCode), TReturnStatus
// и правило агрегации статуса запроса по статусам его файлов.
//
// Набор кодов закрыт: Parse отвергает любые строки вне перечисления.
package status

import (
	"errors"
	"fmt"
)

// Code — код состояния SRM (TStatusCode).
type Code string

const (
	Success               Code = "SRM_SUCCESS"
	Failure               Code = "SRM_FAILURE"
	AuthenticationFailure Code = "SRM_AUTHENTICATION_FAILURE"
	AuthorizationFailure  Code = "SRM_AUTHORIZATION_FAILURE"
	InvalidRequest        Code = "SRM_INVALID_REQUEST"
	InvalidPath           Code = "SRM_INVALID_PATH"
	FileLifetimeExpired   Code = "SRM_FILE_LIFETIME_EXPIRED"
	SpaceLifetimeExpired  Code = "SRM_SPACE_LIFETIME_EXPIRED"
	ExceedAllocation      Code = "SRM_EXCEED_ALLOCATION"
	NoUserSpace           Code = "SRM_NO_USER_SPACE"
	NoFreeSpace           Code = "SRM_NO_FREE_SPACE"
	DuplicationError      Code = "SRM_DUPLICATION_ERROR"
	NonEmptyDirectory     Code = "SRM_NON_EMPTY_DIRECTORY"
	TooManyResults        Code = "SRM_TOO_MANY_RESULTS"
	InternalError         Code = "SRM_INTERNAL_ERROR"
	FatalInternalError    Code = "SRM_FATAL_INTERNAL_ERROR"
	NotSupported          Code = "SRM_NOT_SUPPORTED"
	RequestQueued         Code = "SRM_REQUEST_QUEUED"
	RequestInProgress     Code = "SRM_REQUEST_INPROGRESS"
	RequestSuspended      Code = "SRM_REQUEST_SUSPENDED"
	Aborted               Code = "SRM_ABORTED"
	Released              Code = "SRM_RELEASED"
	FilePinned            Code = "SRM_FILE_PINNED"
	FileInCache           Code = "SRM_FILE_IN_CACHE"
	SpaceAvailable        Code = "SRM_SPACE_AVAILABLE"
	LowerSpaceGranted     Code = "SRM_LOWER_SPACE_GRANTED"
	Done                  Code = "SRM_DONE"
	PartialSuccess        Code = "SRM_PARTIAL_SUCCESS"
	RequestTimedOut       Code = "SRM_REQUEST_TIMED_OUT"
	LastCopy              Code = "SRM_LAST_COPY"
	FileBusy              Code = "SRM_FILE_BUSY"
	FileLost              Code = "SRM_FILE_LOST"
	FileUnavailable       Code = "SRM_FILE_UNAVAILABLE"
	CustomStatus          Code = "SRM_CUSTOM_STATUS"
)

// allCodes — полный набор допустимых кодов.
var allCodes = map[Code]bool{
	Success: true, Failure: true, AuthenticationFailure: true, AuthorizationFailure: true,
	InvalidRequest: true, InvalidPath: true, FileLifetimeExpired: true,
	SpaceLifetimeExpired: true, ExceedAllocation: true, NoUserSpace: true,
	NoFreeSpace: true, DuplicationError: true, NonEmptyDirectory: true,
	TooManyResults: true, InternalError: true, FatalInternalError: true,
	NotSupported: true, RequestQueued: true, RequestInProgress: true,
	RequestSuspended: true, Aborted: true, Released: true, FilePinned: true,
	FileInCache: true, SpaceAvailable: true, LowerSpaceGranted: true, Done: true,
	PartialSuccess: true, RequestTimedOut: true, LastCopy: true, FileBusy: true,
	FileLost: true, FileUnavailable: true, CustomStatus: true,
}

// successCodes — коды, которые при агрегации считаются успешными.
var successCodes = map[Code]bool{
	Success:           true,
	Done:              true,
	Released:          true,
	FilePinned:        true,
	FileInCache:       true,
	SpaceAvailable:    true,
	LowerSpaceGranted: true,
}

// readyCodes — файл готов к использованию клиентом, но запись в журнале
// ещё может перейти дальше (putDone, release, abort).
var readyCodes = map[Code]bool{
	FilePinned:     true,
	FileInCache:    true,
	SpaceAvailable: true,
}

// Parse преобразует строку в Code. Неизвестные коды отвергаются.
func Parse(s string) (Code, error) {
	c := Code(s)
	if !allCodes[c] {
		return "", fmt.Errorf("неизвестный код состояния SRM: %q", s)
	}
	return c, nil
}

// IsProcessing — true только для SRM_REQUEST_QUEUED и SRM_REQUEST_INPROGRESS.
func IsProcessing(c Code) bool {
	return c == RequestQueued || c == RequestInProgress
}

// IsReady — файл подготовлен (закреплён, место выделено), но не финален.
func IsReady(c Code) bool {
	return readyCodes[c]
}

// IsFinal — терминальное состояние записи журнала: дальнейшие изменения запрещены.
func IsFinal(c Code) bool {
	return !IsProcessing(c) && !IsReady(c) && c != RequestSuspended
}

// IsSuccess — код считается успешным при агрегации.
func IsSuccess(c Code) bool {
	return successCodes[c]
}

// ReturnStatus — TReturnStatus: код и необязательное пояснение.
type ReturnStatus struct {
	Code        Code   `json:"statusCode"`
	Explanation string `json:"explanation,omitempty"`
}

// New создаёт ReturnStatus.
func New(code Code, explanation string) ReturnStatus {
	return ReturnStatus{Code: code, Explanation: explanation}
}

// Newf создаёт ReturnStatus с форматированным пояснением.
func Newf(code Code, format string, args ...any) ReturnStatus {
	return ReturnStatus{Code: code, Explanation: fmt.Sprintf(format, args...)}
}

// OK — ReturnStatus с кодом SRM_SUCCESS.
func OK() ReturnStatus {
	return ReturnStatus{Code: Success}
}

// Error — ошибка уровня SRM, несущая код состояния.
// Все отказы бизнес-логики возвращаются как *Error, а не как транспортные ошибки.
type Error struct {
	Code    Code
	Message string
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status преобразует ошибку в ReturnStatus.
func (e *Error) Status() ReturnStatus {
	return ReturnStatus{Code: e.Code, Explanation: e.Message}
}

// Errorf создаёт *Error с форматированным сообщением.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError извлекает ReturnStatus из ошибки.
// nil → SRM_SUCCESS, ошибки вне *Error → SRM_INTERNAL_ERROR.
func FromError(err error) ReturnStatus {
	if err == nil {
		return OK()
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Status()
	}
	return ReturnStatus{Code: InternalError, Explanation: err.Error()}
}

// CodeOf возвращает код из ошибки (см. FromError).
func CodeOf(err error) Code {
	return FromError(err).Code
}
