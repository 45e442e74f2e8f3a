package handlers

import (
	"context"

	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/request"
)

func (h *SRMHandler) abortRequest(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.manager.AbortRequest(ctx, in.RequestToken, owner)))
}

func (h *SRMHandler) suspendRequest(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.manager.SuspendRequest(ctx, in.RequestToken, owner)))
}

func (h *SRMHandler) resumeRequest(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.manager.ResumeRequest(ctx, in.RequestToken, owner)))
}

func (h *SRMHandler) abortFiles(ctx context.Context, owner string, in wire.FilesRequest) wire.Response {
	return filesResponse(h.manager.AbortFiles(ctx, in.RequestToken, owner, in.ArrayOfSURLs))
}

func (h *SRMHandler) releaseFiles(ctx context.Context, owner string, in wire.FilesRequest) wire.Response {
	return filesResponse(h.manager.ReleaseFiles(ctx, in.RequestToken, owner, in.ArrayOfSURLs))
}

func (h *SRMHandler) putDone(ctx context.Context, owner string, in wire.FilesRequest) wire.Response {
	return filesResponse(h.manager.PutDone(ctx, in.RequestToken, owner, in.ArrayOfSURLs))
}

func (h *SRMHandler) extendFileLifeTime(ctx context.Context, owner string, in wire.ExtendFileLifeTimeRequest) wire.Response {
	return filesResponse(h.manager.ExtendFileLifetime(ctx, in.RequestToken, owner,
		in.ArrayOfSURLs, in.NewFileLifeTime, in.NewPinLifeTime))
}

// filesResponse собирает ответ операции над файлами.
// Общий статус: SRM_SUCCESS, если успешны все файлы, SRM_FAILURE — если
// ни один, иначе SRM_PARTIAL_SUCCESS.
func filesResponse(results []request.FileResult, err error) wire.Response {
	if err != nil {
		return &wire.FilesResponse{Base: wire.Base{ReturnStatus: status.FromError(err)}}
	}
	statuses := make([]wire.SURLStatus, 0, len(results))
	for _, r := range results {
		statuses = append(statuses, wire.SURLStatus{
			SURL:         r.SURL,
			Status:       r.Status,
			FileLifetime: r.RemainingFileLifetime,
			PinLifetime:  r.RemainingPinLifetime,
		})
	}
	return surlStatuses(statuses)
}

func surlStatuses(statuses []wire.SURLStatus) *wire.FilesResponse {
	codes := make([]status.Code, 0, len(statuses))
	for _, s := range statuses {
		codes = append(codes, s.Status.Code)
	}
	return &wire.FilesResponse{
		Base:                wire.Base{ReturnStatus: status.New(status.Aggregate(codes, status.Flags{}), "")},
		ArrayOfFileStatuses: statuses,
	}
}
