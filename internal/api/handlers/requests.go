package handlers

import (
	"context"
	"slices"

	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/request"
)

// maxLsLevels — глубина обхода srmLs при allLevelRecursive.
const maxLsLevels = 64

func (h *SRMHandler) prepareToGet(ctx context.Context, owner string, in wire.PrepareToGetRequest) wire.Response {
	protocols, err := h.negotiate(in.TransferParameters)
	if err != nil {
		return failed(err)
	}
	return h.submit(ctx, request.SubmitParams{
		Type:  model.RequestPrepareToGet,
		Owner: owner,
		Files: sourceFiles(in.ArrayOfFileRequests),
		Options: model.Options{
			UserRequestDescription:  in.UserRequestDescription,
			DesiredTotalRequestTime: in.DesiredTotalRequestTime,
			DesiredPinLifetime:      in.DesiredPinLifeTime,
			TransferProtocols:       protocols,
		},
	})
}

func (h *SRMHandler) bringOnline(ctx context.Context, owner string, in wire.BringOnlineRequest) wire.Response {
	protocols, err := h.negotiate(in.TransferParameters)
	if err != nil {
		return failed(err)
	}
	return h.submit(ctx, request.SubmitParams{
		Type:  model.RequestBringOnline,
		Owner: owner,
		Files: sourceFiles(in.ArrayOfFileRequests),
		Options: model.Options{
			UserRequestDescription:  in.UserRequestDescription,
			DesiredTotalRequestTime: in.DesiredTotalRequestTime,
			DesiredPinLifetime:      in.DesiredLifeTime,
			TransferProtocols:       protocols,
		},
	})
}

func (h *SRMHandler) prepareToPut(ctx context.Context, owner string, in wire.PrepareToPutRequest) wire.Response {
	protocols, err := h.negotiate(in.TransferParameters)
	if err != nil {
		return failed(err)
	}
	ow, err := overwrite(in.OverwriteOption)
	if err != nil {
		return failed(err)
	}
	files := make([]model.FileSpec, 0, len(in.ArrayOfFileRequests))
	for _, f := range in.ArrayOfFileRequests {
		files = append(files, model.FileSpec{SURL: f.TargetSURL, ExpectedSize: f.ExpectedFileSize})
	}
	return h.submit(ctx, request.SubmitParams{
		Type:  model.RequestPrepareToPut,
		Owner: owner,
		Files: files,
		Options: model.Options{
			UserRequestDescription:  in.UserRequestDescription,
			DesiredTotalRequestTime: in.DesiredTotalRequestTime,
			DesiredPinLifetime:      in.DesiredPinLifeTime,
			DesiredFileLifetime:     in.DesiredFileLifeTime,
			TargetSpaceToken:        in.TargetSpaceToken,
			Overwrite:               ow,
			TransferProtocols:       protocols,
		},
	})
}

func (h *SRMHandler) copy(ctx context.Context, owner string, in wire.CopyRequest) wire.Response {
	ow, err := overwrite(in.OverwriteOption)
	if err != nil {
		return failed(err)
	}
	files := make([]model.FileSpec, 0, len(in.ArrayOfFileRequests))
	for _, f := range in.ArrayOfFileRequests {
		files = append(files, model.FileSpec{SURL: f.SourceSURL, TargetSURL: f.TargetSURL})
	}
	return h.submit(ctx, request.SubmitParams{
		Type:  model.RequestCopy,
		Owner: owner,
		Files: files,
		Options: model.Options{
			UserRequestDescription:  in.UserRequestDescription,
			DesiredTotalRequestTime: in.DesiredTotalRequestTime,
			DesiredFileLifetime:     in.DesiredTargetSURLLifeTime,
			TargetSpaceToken:        in.TargetSpaceToken,
			Overwrite:               ow,
		},
	})
}

// ls выполняется асинхронно, как и в SRM: результат по каждому пути —
// в details статуса файла. numOfLevels = 0 трактуется как 1.
func (h *SRMHandler) ls(ctx context.Context, owner string, in wire.LsRequest) wire.Response {
	levels := 1
	switch {
	case in.AllLevelRecursive:
		levels = maxLsLevels
	case in.NumOfLevels != nil && *in.NumOfLevels > 0:
		levels = min(*in.NumOfLevels, maxLsLevels)
	}
	files := make([]model.FileSpec, 0, len(in.ArrayOfSURLs))
	for _, surl := range in.ArrayOfSURLs {
		files = append(files, model.FileSpec{SURL: surl})
	}
	return h.submit(ctx, request.SubmitParams{
		Type:  model.RequestLs,
		Owner: owner,
		Files: files,
		Options: model.Options{
			FullDetailedList: in.FullDetailedList,
			NumOfLevels:      levels,
		},
	})
}

func (h *SRMHandler) statusOfGet(ctx context.Context, owner string, in wire.StatusOfRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestPrepareToGet, in)
}

func (h *SRMHandler) statusOfBringOnline(ctx context.Context, owner string, in wire.StatusOfRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestBringOnline, in)
}

func (h *SRMHandler) statusOfPut(ctx context.Context, owner string, in wire.StatusOfRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestPrepareToPut, in)
}

func (h *SRMHandler) statusOfCopy(ctx context.Context, owner string, in wire.StatusOfRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestCopy, in)
}

func (h *SRMHandler) statusOfLs(ctx context.Context, owner string, in wire.StatusOfRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestLs, in)
}

func (h *SRMHandler) requestSummary(ctx context.Context, owner string, in wire.GetRequestSummaryRequest) wire.Response {
	if len(in.ArrayOfRequestTokens) == 0 {
		return failed(status.Errorf(status.InvalidRequest, "пустой список токенов"))
	}
	results := h.manager.Summary(ctx, in.ArrayOfRequestTokens, owner)
	resp := &wire.GetRequestSummaryResponse{}
	codes := make([]status.Code, 0, len(results))
	for _, r := range results {
		resp.ArrayOfRequestSummaries = append(resp.ArrayOfRequestSummaries,
			wire.RequestSummaryOf(r.Token, r.Status, r.Summary))
		codes = append(codes, r.Status.Code)
	}
	resp.ReturnStatus = status.New(status.Aggregate(codes, status.Flags{}), "")
	return resp
}

func (h *SRMHandler) requestTokens(ctx context.Context, owner string, in wire.GetRequestTokensRequest) wire.Response {
	tokens, err := h.manager.Tokens(ctx, owner, in.UserRequestDescription)
	if err != nil {
		return failed(err)
	}
	return &wire.GetRequestTokensResponse{
		Base:                 wire.Base{ReturnStatus: status.OK()},
		ArrayOfRequestTokens: tokens,
	}
}

// --- Вспомогательные функции ---

// submit отправляет запрос и возвращает его начальный снимок.
func (h *SRMHandler) submit(ctx context.Context, p request.SubmitParams) wire.Response {
	tok, err := h.manager.Submit(ctx, p)
	if err != nil {
		return failed(err)
	}
	snap, err := h.manager.StatusOf(ctx, tok, p.Owner)
	if err != nil {
		return failed(err)
	}
	return requestResponse(snap)
}

// statusOf возвращает статус запроса ожидаемого типа.
func (h *SRMHandler) statusOf(ctx context.Context, owner string, typ model.RequestType, in wire.StatusOfRequest) wire.Response {
	if in.RequestToken == "" {
		return failed(status.Errorf(status.InvalidRequest, "не задан токен запроса"))
	}
	snap, err := h.manager.StatusOfFiles(ctx, in.RequestToken, owner, in.SURLs())
	if err != nil {
		return failed(err)
	}
	if snap.Type != typ {
		return failed(status.Errorf(status.InvalidRequest,
			"запрос %s имеет тип %s, ожидался %s", in.RequestToken, snap.Type, typ))
	}
	return requestResponse(snap)
}

// negotiate выбирает протоколы передачи, общие для клиента и сервера.
func (h *SRMHandler) negotiate(tp *wire.TransferParameters) ([]string, error) {
	if tp == nil || len(tp.ArrayOfTransferProtocols) == 0 {
		return h.protocols, nil
	}
	var common []string
	for _, p := range tp.ArrayOfTransferProtocols {
		if slices.Contains(h.protocols, p) {
			common = append(common, p)
		}
	}
	if len(common) == 0 {
		return nil, status.Errorf(status.NotSupported,
			"ни один из протоколов %v не поддерживается", tp.ArrayOfTransferProtocols)
	}
	return common, nil
}

// overwrite разбирает overwriteOption.
func overwrite(opt string) (bool, error) {
	switch opt {
	case "", wire.OverwriteNever:
		return false, nil
	case wire.OverwriteAlways:
		return true, nil
	case wire.OverwriteWhenFilesAreDifferent:
		return false, status.Errorf(status.NotSupported, "режим перезаписи %s не поддерживается", opt)
	}
	return false, status.Errorf(status.InvalidRequest, "недопустимый режим перезаписи %q", opt)
}

func sourceFiles(reqs []wire.FileRequest) []model.FileSpec {
	files := make([]model.FileSpec, 0, len(reqs))
	for _, f := range reqs {
		files = append(files, model.FileSpec{SURL: f.SourceSURL, IsDirectory: f.IsSourceADirectory})
	}
	return files
}

func requestResponse(snap model.RequestSnapshot) *wire.RequestResponse {
	return &wire.RequestResponse{
		Base:                      wire.Base{ReturnStatus: snap.Status},
		RequestToken:              snap.Token,
		RemainingTotalRequestTime: snap.RemainingTotalTime,
		ArrayOfFileStatuses:       snap.Files,
	}
}

// failed — ответ с общим статусом из ошибки ядра.
func failed(err error) *wire.RequestResponse {
	return &wire.RequestResponse{Base: wire.Base{ReturnStatus: status.FromError(err)}}
}
