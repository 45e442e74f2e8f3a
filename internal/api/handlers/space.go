package handlers

import (
	"context"

	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/space"
)

// reserveSpace — srmReserveSpace. Если гарантированный размер не задан,
// он вычисляется как сумма arrayOfExpectedFileSizes.
func (h *SRMHandler) reserveSpace(ctx context.Context, owner string, in wire.ReserveSpaceRequest) wire.Response {
	guaranteed := in.DesiredSizeOfGuaranteedSpace
	if guaranteed == 0 {
		for _, size := range in.ArrayOfExpectedFileSizes {
			guaranteed += size
		}
	}
	result := h.manager.ReserveSpace(ctx, space.ReserveParams{
		Owner:                 owner,
		Description:           in.UserSpaceTokenDescription,
		RetentionPolicyInfo:   in.RetentionPolicyInfo,
		DesiredTotalSize:      in.DesiredSizeOfTotalSpace,
		DesiredGuaranteedSize: guaranteed,
		DesiredLifetime:       in.DesiredLifetimeOfReservedSpace,
	})
	return wire.SpaceResponseOf(result.RequestToken, result.Status, result.Space)
}

func (h *SRMHandler) statusOfReserveSpace(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return h.statusOfSpace(ctx, owner, model.RequestReserveSpace, in.RequestToken)
}

func (h *SRMHandler) updateSpace(ctx context.Context, owner string, in wire.UpdateSpaceRequest) wire.Response {
	result := h.manager.UpdateSpace(ctx, in.SpaceToken, space.UpdateParams{
		Owner:             owner,
		NewTotalSize:      in.NewSizeOfTotalSpaceDesired,
		NewGuaranteedSize: in.NewSizeOfGuaranteedSpaceDesired,
		NewLifetime:       in.NewLifeTime,
	})
	return wire.SpaceResponseOf(result.RequestToken, result.Status, result.Space)
}

func (h *SRMHandler) statusOfUpdateSpace(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return h.statusOfSpace(ctx, owner, model.RequestUpdateSpace, in.RequestToken)
}

func (h *SRMHandler) releaseSpace(ctx context.Context, owner string, in wire.ReleaseSpaceRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.spaces.ReleaseSpace(ctx, in.SpaceToken, owner, in.ForceFileRelease)))
}

// spaceMetaData — srmGetSpaceMetaData. Статус — у каждого токена отдельно.
func (h *SRMHandler) spaceMetaData(_ context.Context, _ string, in wire.GetSpaceMetaDataRequest) wire.Response {
	if len(in.ArrayOfSpaceTokens) == 0 {
		return wire.StatusOnly(status.New(status.InvalidRequest, "пустой список токенов резервирования"))
	}
	resp := &wire.GetSpaceMetaDataResponse{}
	codes := make([]status.Code, 0, len(in.ArrayOfSpaceTokens))
	for _, tok := range in.ArrayOfSpaceTokens {
		detail := wire.SpaceDetail{SpaceToken: tok}
		snap, err := h.spaces.Get(tok)
		if err != nil {
			detail.Status = status.FromError(err)
		} else {
			detail.Status = snap.Status
			detail.Space = &snap
		}
		resp.ArrayOfSpaceDetails = append(resp.ArrayOfSpaceDetails, detail)
		codes = append(codes, detail.Status.Code)
	}
	resp.ReturnStatus = status.New(status.Aggregate(codes, status.Flags{}), "")
	return resp
}

func (h *SRMHandler) spaceTokens(_ context.Context, owner string, in wire.GetSpaceTokensRequest) wire.Response {
	tokens := h.spaces.Tokens(owner, in.UserSpaceTokenDescription)
	if len(tokens) == 0 {
		return wire.StatusOnly(status.Newf(status.InvalidRequest,
			"резервирования с описанием %q не найдены", in.UserSpaceTokenDescription))
	}
	return &wire.GetSpaceTokensResponse{
		Base:               wire.Base{ReturnStatus: status.OK()},
		ArrayOfSpaceTokens: tokens,
	}
}

func (h *SRMHandler) changeSpaceForFiles(ctx context.Context, owner string, in wire.ChangeSpaceForFilesRequest) wire.Response {
	tok, err := h.manager.ChangeSpaceForFiles(ctx, owner, in.TargetSpaceToken, in.ArrayOfSURLs)
	if err != nil {
		return failed(err)
	}
	snap, err := h.manager.StatusOf(ctx, tok, owner)
	if err != nil {
		return failed(err)
	}
	return requestResponse(snap)
}

func (h *SRMHandler) statusOfChangeSpaceForFiles(ctx context.Context, owner string, in wire.TokenRequest) wire.Response {
	return h.statusOf(ctx, owner, model.RequestChangeSpaceForFiles, wire.StatusOfRequest{RequestToken: in.RequestToken})
}

func (h *SRMHandler) extendFileLifeTimeInSpace(_ context.Context, owner string, in wire.ExtendFileLifeTimeInSpaceRequest) wire.Response {
	if err := h.ownSpace(in.SpaceToken, owner); err != nil {
		return wire.StatusOnly(status.FromError(err))
	}
	results, err := h.spaces.ExtendFiles(in.SpaceToken, in.ArrayOfSURLs, in.NewLifeTime)
	return spaceFilesResponse(results, err)
}

func (h *SRMHandler) purgeFromSpace(ctx context.Context, owner string, in wire.PurgeFromSpaceRequest) wire.Response {
	if len(in.ArrayOfSURLs) == 0 {
		return wire.StatusOnly(status.New(status.InvalidRequest, "пустой список файлов"))
	}
	results, err := h.spaces.PurgeFiles(ctx, in.SpaceToken, owner, in.ArrayOfSURLs)
	return spaceFilesResponse(results, err)
}

// statusOfSpace возвращает итог запроса над резервированием.
func (h *SRMHandler) statusOfSpace(ctx context.Context, owner string, typ model.RequestType, requestToken string) wire.Response {
	snap, err := h.manager.StatusOf(ctx, requestToken, owner)
	if err != nil {
		return wire.SpaceResponseOf(requestToken, status.FromError(err), nil)
	}
	if snap.Type != typ {
		return wire.SpaceResponseOf(requestToken, status.Newf(status.InvalidRequest,
			"запрос %s имеет тип %s, ожидался %s", requestToken, snap.Type, typ), nil)
	}
	return wire.SpaceResponseOf(requestToken, snap.Status, snap.Space)
}

// ownSpace проверяет, что резервирование принадлежит пользователю.
func (h *SRMHandler) ownSpace(spaceToken, owner string) error {
	snap, err := h.spaces.Get(spaceToken)
	if err != nil {
		return err
	}
	if snap.Owner != owner {
		return status.Errorf(status.AuthorizationFailure, "резервирование %s принадлежит другому пользователю", spaceToken)
	}
	return nil
}

func spaceFilesResponse(results []space.FileResult, err error) wire.Response {
	if err != nil {
		return &wire.FilesResponse{Base: wire.Base{ReturnStatus: status.FromError(err)}}
	}
	statuses := make([]wire.SURLStatus, 0, len(results))
	for _, r := range results {
		statuses = append(statuses, wire.SURLStatus{SURL: r.SURL, Status: r.Status, FileLifetime: r.Lifetime})
	}
	return surlStatuses(statuses)
}
