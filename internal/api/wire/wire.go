// Пакет wire — JSON-представление запросов и ответов SRM v2.2.
//
// Поля повторяют состав полей SRM DTO (srmPrepareToPut, srmStatusOfGetRequest
// и т.д.) в camelCase. Кодирование и декодирование выполняется только здесь
// и в handlers; доменные типы о формате передачи не знают.
package wire

import (
	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// Response — ответ SRM-операции с общим статусом.
type Response interface {
	Status() status.ReturnStatus
}

// Base — общий статус ответа (TReturnStatus).
type Base struct {
	ReturnStatus status.ReturnStatus `json:"returnStatus"`
}

// Status реализует Response.
func (b Base) Status() status.ReturnStatus {
	return b.ReturnStatus
}

// StatusOnly — ответ, содержащий только общий статус
// (srmAbortRequest, srmMkdir, srmReleaseSpace и др.).
func StatusOnly(rs status.ReturnStatus) *Base {
	return &Base{ReturnStatus: rs}
}

// Варианты overwriteOption (TOverwriteMode).
const (
	OverwriteNever                 = "NEVER"
	OverwriteAlways                = "ALWAYS"
	OverwriteWhenFilesAreDifferent = "WHEN_FILES_ARE_DIFFERENT"
)

// --- Запросы на передачу файлов ---

// FileRequest — элемент arrayOfFileRequests (TGetFileRequest, TPutFileRequest,
// TCopyFileRequest). Для get/bringOnline используется sourceSURL, для put — targetSURL,
// для copy — оба.
type FileRequest struct {
	SourceSURL         string `json:"sourceSURL,omitempty"`
	TargetSURL         string `json:"targetSURL,omitempty"`
	ExpectedFileSize   uint64 `json:"expectedFileSize,omitempty"`
	IsSourceADirectory bool   `json:"isSourceADirectory,omitempty"`
}

// TransferParameters — TTransferParameters.
type TransferParameters struct {
	ArrayOfTransferProtocols []string `json:"arrayOfTransferProtocols,omitempty"`
}

// PrepareToGetRequest — srmPrepareToGet.
type PrepareToGetRequest struct {
	ArrayOfFileRequests     []FileRequest       `json:"arrayOfFileRequests"`
	UserRequestDescription  string              `json:"userRequestDescription,omitempty"`
	DesiredTotalRequestTime *int64              `json:"desiredTotalRequestTime,omitempty"`
	DesiredPinLifeTime      *int64              `json:"desiredPinLifeTime,omitempty"`
	TargetSpaceToken        string              `json:"targetSpaceToken,omitempty"`
	TransferParameters      *TransferParameters `json:"transferParameters,omitempty"`
}

// BringOnlineRequest — srmBringOnline.
type BringOnlineRequest struct {
	ArrayOfFileRequests     []FileRequest       `json:"arrayOfFileRequests"`
	UserRequestDescription  string              `json:"userRequestDescription,omitempty"`
	DesiredTotalRequestTime *int64              `json:"desiredTotalRequestTime,omitempty"`
	DesiredLifeTime         *int64              `json:"desiredLifeTime,omitempty"`
	TargetSpaceToken        string              `json:"targetSpaceToken,omitempty"`
	TransferParameters      *TransferParameters `json:"transferParameters,omitempty"`
}

// PrepareToPutRequest — srmPrepareToPut.
type PrepareToPutRequest struct {
	ArrayOfFileRequests     []FileRequest       `json:"arrayOfFileRequests"`
	UserRequestDescription  string              `json:"userRequestDescription,omitempty"`
	OverwriteOption         string              `json:"overwriteOption,omitempty"`
	DesiredTotalRequestTime *int64              `json:"desiredTotalRequestTime,omitempty"`
	DesiredPinLifeTime      *int64              `json:"desiredPinLifeTime,omitempty"`
	DesiredFileLifeTime     *int64              `json:"desiredFileLifeTime,omitempty"`
	TargetSpaceToken        string              `json:"targetSpaceToken,omitempty"`
	TransferParameters      *TransferParameters `json:"transferParameters,omitempty"`
}

// CopyRequest — srmCopy.
type CopyRequest struct {
	ArrayOfFileRequests       []FileRequest `json:"arrayOfFileRequests"`
	UserRequestDescription    string        `json:"userRequestDescription,omitempty"`
	OverwriteOption           string        `json:"overwriteOption,omitempty"`
	DesiredTotalRequestTime   *int64        `json:"desiredTotalRequestTime,omitempty"`
	DesiredTargetSURLLifeTime *int64        `json:"desiredTargetSURLLifeTime,omitempty"`
	TargetSpaceToken          string        `json:"targetSpaceToken,omitempty"`
}

// LsRequest — srmLs.
type LsRequest struct {
	ArrayOfSURLs      []string `json:"arrayOfSURLs"`
	FullDetailedList  bool     `json:"fullDetailedList,omitempty"`
	AllLevelRecursive bool     `json:"allLevelRecursive,omitempty"`
	NumOfLevels       *int     `json:"numOfLevels,omitempty"`
}

// RequestResponse — ответ на отправку запроса и на srmStatusOf*Request.
type RequestResponse struct {
	Base
	RequestToken              string             `json:"requestToken,omitempty"`
	RemainingTotalRequestTime *int64             `json:"remainingTotalRequestTime,omitempty"`
	ArrayOfFileStatuses       []model.FileStatus `json:"arrayOfFileStatuses,omitempty"`
}

// --- Статус и управление запросами ---

// StatusOfRequest — srmStatusOf*Request. Для get/bringOnline клиент передаёт
// arrayOfSourceSURLs, для put — arrayOfTargetSURLs, для copy — любой из них.
type StatusOfRequest struct {
	RequestToken       string   `json:"requestToken"`
	ArrayOfSourceSURLs []string `json:"arrayOfSourceSURLs,omitempty"`
	ArrayOfTargetSURLs []string `json:"arrayOfTargetSURLs,omitempty"`
}

// SURLs возвращает объединённый список запрошенных SURL.
func (r StatusOfRequest) SURLs() []string {
	out := make([]string, 0, len(r.ArrayOfSourceSURLs)+len(r.ArrayOfTargetSURLs))
	out = append(out, r.ArrayOfSourceSURLs...)
	return append(out, r.ArrayOfTargetSURLs...)
}

// TokenRequest — операции над запросом целиком (srmAbortRequest,
// srmSuspendRequest, srmResumeRequest, srmStatusOfReserveSpaceRequest и др.).
type TokenRequest struct {
	RequestToken string `json:"requestToken"`
}

// FilesRequest — операции над файлами запроса (srmAbortFiles,
// srmReleaseFiles, srmPutDone).
type FilesRequest struct {
	RequestToken string   `json:"requestToken,omitempty"`
	ArrayOfSURLs []string `json:"arrayOfSURLs,omitempty"`
}

// ExtendFileLifeTimeRequest — srmExtendFileLifeTime.
type ExtendFileLifeTimeRequest struct {
	RequestToken    string   `json:"requestToken,omitempty"`
	ArrayOfSURLs    []string `json:"arrayOfSURLs"`
	NewFileLifeTime *int64   `json:"newFileLifeTime,omitempty"`
	NewPinLifeTime  *int64   `json:"newPinLifeTime,omitempty"`
}

// SURLStatus — TSURLReturnStatus / TSURLLifetimeReturnStatus.
type SURLStatus struct {
	SURL         string              `json:"surl"`
	Status       status.ReturnStatus `json:"status"`
	FileLifetime *int64              `json:"fileLifetime,omitempty"`
	PinLifetime  *int64              `json:"pinLifetime,omitempty"`
}

// FilesResponse — ответ с общим статусом и статусами по SURL.
type FilesResponse struct {
	Base
	ArrayOfFileStatuses []SURLStatus `json:"arrayOfFileStatuses,omitempty"`
}

// GetRequestSummaryRequest — srmGetRequestSummary.
type GetRequestSummaryRequest struct {
	ArrayOfRequestTokens []string `json:"arrayOfRequestTokens"`
}

// RequestSummary — TRequestSummary. Для неизвестного токена заполнены
// только requestToken и status.
type RequestSummary struct {
	RequestToken           string              `json:"requestToken"`
	Status                 status.ReturnStatus `json:"status"`
	RequestType            model.RequestType   `json:"requestType,omitempty"`
	TotalNumFilesInRequest int                 `json:"totalNumFilesInRequest,omitempty"`
	NumOfCompletedFiles    int                 `json:"numOfCompletedFiles,omitempty"`
	NumOfWaitingFiles      int                 `json:"numOfWaitingFiles,omitempty"`
	NumOfFailedFiles       int                 `json:"numOfFailedFiles,omitempty"`
}

// RequestSummaryOf заполняет RequestSummary из сводки запроса.
func RequestSummaryOf(token string, rs status.ReturnStatus, s *model.RequestSummary) RequestSummary {
	out := RequestSummary{RequestToken: token, Status: rs}
	if s != nil {
		out.Status = s.Status
		out.RequestType = s.Type
		out.TotalNumFilesInRequest = s.TotalFiles
		out.NumOfCompletedFiles = s.CompletedFiles
		out.NumOfWaitingFiles = s.WaitingFiles
		out.NumOfFailedFiles = s.FailedFiles
	}
	return out
}

// GetRequestSummaryResponse — ответ srmGetRequestSummary.
type GetRequestSummaryResponse struct {
	Base
	ArrayOfRequestSummaries []RequestSummary `json:"arrayOfRequestSummaries,omitempty"`
}

// GetRequestTokensRequest — srmGetRequestTokens.
type GetRequestTokensRequest struct {
	UserRequestDescription string `json:"userRequestDescription,omitempty"`
}

// GetRequestTokensResponse — ответ srmGetRequestTokens.
type GetRequestTokensResponse struct {
	Base
	ArrayOfRequestTokens []model.RequestTokenInfo `json:"arrayOfRequestTokens,omitempty"`
}

// --- Резервирование пространства ---

// ReserveSpaceRequest — srmReserveSpace.
type ReserveSpaceRequest struct {
	UserSpaceTokenDescription      string                    `json:"userSpaceTokenDescription,omitempty"`
	RetentionPolicyInfo            model.RetentionPolicyInfo `json:"retentionPolicyInfo"`
	DesiredSizeOfTotalSpace        uint64                    `json:"desiredSizeOfTotalSpace,omitempty"`
	DesiredSizeOfGuaranteedSpace   uint64                    `json:"desiredSizeOfGuaranteedSpace"`
	DesiredLifetimeOfReservedSpace *int64                    `json:"desiredLifetimeOfReservedSpace,omitempty"`
	ArrayOfExpectedFileSizes       []uint64                  `json:"arrayOfExpectedFileSizes,omitempty"`
}

// SpaceResponse — ответ srmReserveSpace, srmUpdateSpace и их srmStatusOf*.
type SpaceResponse struct {
	Base
	RequestToken                  string                     `json:"requestToken,omitempty"`
	SpaceToken                    string                     `json:"spaceToken,omitempty"`
	RetentionPolicyInfo           *model.RetentionPolicyInfo `json:"retentionPolicyInfo,omitempty"`
	SizeOfTotalReservedSpace      *uint64                    `json:"sizeOfTotalReservedSpace,omitempty"`
	SizeOfGuaranteedReservedSpace *uint64                    `json:"sizeOfGuaranteedReservedSpace,omitempty"`
	LifetimeOfReservedSpace       *int64                     `json:"lifetimeOfReservedSpace,omitempty"`
}

// SpaceResponseOf заполняет SpaceResponse из снимка резервирования.
func SpaceResponseOf(requestToken string, rs status.ReturnStatus, snap *model.SpaceSnapshot) *SpaceResponse {
	resp := &SpaceResponse{Base: Base{ReturnStatus: rs}, RequestToken: requestToken}
	if snap != nil {
		policy := snap.RetentionPolicyInfo
		resp.SpaceToken = snap.Token
		resp.RetentionPolicyInfo = &policy
		resp.SizeOfTotalReservedSpace = &snap.TotalSize
		resp.SizeOfGuaranteedReservedSpace = &snap.GuaranteedSize
		resp.LifetimeOfReservedSpace = &snap.LifetimeLeft
	}
	return resp
}

// ReleaseSpaceRequest — srmReleaseSpace.
type ReleaseSpaceRequest struct {
	SpaceToken       string `json:"spaceToken"`
	ForceFileRelease bool   `json:"forceFileRelease,omitempty"`
}

// UpdateSpaceRequest — srmUpdateSpace.
type UpdateSpaceRequest struct {
	SpaceToken                      string  `json:"spaceToken"`
	NewSizeOfTotalSpaceDesired      *uint64 `json:"newSizeOfTotalSpaceDesired,omitempty"`
	NewSizeOfGuaranteedSpaceDesired *uint64 `json:"newSizeOfGuaranteedSpaceDesired,omitempty"`
	NewLifeTime                     *int64  `json:"newLifeTime,omitempty"`
}

// GetSpaceMetaDataRequest — srmGetSpaceMetaData.
type GetSpaceMetaDataRequest struct {
	ArrayOfSpaceTokens []string `json:"arrayOfSpaceTokens"`
}

// SpaceDetail — TMetaDataSpace с собственным статусом токена.
type SpaceDetail struct {
	SpaceToken string               `json:"spaceToken"`
	Status     status.ReturnStatus  `json:"status"`
	Space      *model.SpaceSnapshot `json:"metaData,omitempty"`
}

// GetSpaceMetaDataResponse — ответ srmGetSpaceMetaData.
type GetSpaceMetaDataResponse struct {
	Base
	ArrayOfSpaceDetails []SpaceDetail `json:"arrayOfSpaceDetails,omitempty"`
}

// GetSpaceTokensRequest — srmGetSpaceTokens.
type GetSpaceTokensRequest struct {
	UserSpaceTokenDescription string `json:"userSpaceTokenDescription,omitempty"`
}

// GetSpaceTokensResponse — ответ srmGetSpaceTokens.
type GetSpaceTokensResponse struct {
	Base
	ArrayOfSpaceTokens []string `json:"arrayOfSpaceTokens,omitempty"`
}

// ChangeSpaceForFilesRequest — srmChangeSpaceForFiles.
type ChangeSpaceForFilesRequest struct {
	ArrayOfSURLs     []string `json:"arrayOfSURLs"`
	TargetSpaceToken string   `json:"targetSpaceToken"`
}

// ExtendFileLifeTimeInSpaceRequest — srmExtendFileLifeTimeInSpace.
type ExtendFileLifeTimeInSpaceRequest struct {
	SpaceToken   string   `json:"spaceToken"`
	ArrayOfSURLs []string `json:"arrayOfSURLs,omitempty"`
	NewLifeTime  *int64   `json:"newLifeTime,omitempty"`
}

// PurgeFromSpaceRequest — srmPurgeFromSpace.
type PurgeFromSpaceRequest struct {
	SpaceToken   string   `json:"spaceToken"`
	ArrayOfSURLs []string `json:"arrayOfSURLs"`
}

// --- Пространство имён ---

// PathRequest — srmMkdir, srmRmdir.
type PathRequest struct {
	SURL      string `json:"surl"`
	Recursive bool   `json:"recursive,omitempty"`
}

// RmRequest — srmRm.
type RmRequest struct {
	ArrayOfSURLs []string `json:"arrayOfSURLs"`
}

// MvRequest — srmMv.
type MvRequest struct {
	FromSURL string `json:"fromSURL"`
	ToSURL   string `json:"toSURL"`
}

// --- Служебные операции ---

// Empty — тело запроса без полей (srmPing, srmGetTransferProtocols,
// операции с правами доступа).
type Empty struct{}

// KeyValue — TExtraInfo.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// PingResponse — ответ srmPing.
type PingResponse struct {
	VersionInfo string     `json:"versionInfo"`
	OtherInfo   []KeyValue `json:"otherInfo,omitempty"`
}

// Status реализует Response: srmPing всегда успешен.
func (p *PingResponse) Status() status.ReturnStatus {
	return status.OK()
}

// TransferProtocol — TSupportedTransferProtocol.
type TransferProtocol struct {
	TransferProtocol string `json:"transferProtocol"`
}

// GetTransferProtocolsResponse — ответ srmGetTransferProtocols.
type GetTransferProtocolsResponse struct {
	Base
	ProtocolInfo []TransferProtocol `json:"protocolInfo"`
}
