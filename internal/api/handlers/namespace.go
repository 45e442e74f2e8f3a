package handlers

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/config"
	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// srmVersion — версия протокола в ответе srmPing.
const srmVersion = "v2.2"

func (h *SRMHandler) mkdir(ctx context.Context, _ string, in wire.PathRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.ns.Mkdir(ctx, in.SURL)))
}

func (h *SRMHandler) rmdir(ctx context.Context, _ string, in wire.PathRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.ns.Rmdir(ctx, in.SURL, in.Recursive)))
}

// rm удаляет файлы и снимает их с резервирований.
func (h *SRMHandler) rm(ctx context.Context, _ string, in wire.RmRequest) wire.Response {
	if len(in.ArrayOfSURLs) == 0 {
		return wire.StatusOnly(status.New(status.InvalidRequest, "пустой список файлов"))
	}
	statuses := make([]wire.SURLStatus, 0, len(in.ArrayOfSURLs))
	for _, surl := range in.ArrayOfSURLs {
		err := h.ns.Rm(ctx, surl)
		if err == nil {
			if tok, ok := h.spaces.SpaceOf(surl); ok {
				freed := h.spaces.ReleaseFile(tok, surl)
				h.logger.Debug("Файл снят с резервирования",
					slog.String("surl", surl),
					slog.String("space_token", tok),
					slog.Uint64("bytes", freed),
				)
			}
		}
		statuses = append(statuses, wire.SURLStatus{SURL: surl, Status: status.FromError(err)})
	}
	return surlStatuses(statuses)
}

func (h *SRMHandler) mv(ctx context.Context, _ string, in wire.MvRequest) wire.Response {
	return wire.StatusOnly(status.FromError(h.ns.Mv(ctx, in.FromSURL, in.ToSURL)))
}

func (h *SRMHandler) transferProtocols(_ context.Context, _ string, _ wire.Empty) wire.Response {
	resp := &wire.GetTransferProtocolsResponse{Base: wire.Base{ReturnStatus: status.OK()}}
	for _, p := range h.protocols {
		resp.ProtocolInfo = append(resp.ProtocolInfo, wire.TransferProtocol{TransferProtocol: p})
	}
	return resp
}

func (h *SRMHandler) ping(_ context.Context, owner string, _ wire.Empty) wire.Response {
	return &wire.PingResponse{
		VersionInfo: srmVersion,
		OtherInfo: []wire.KeyValue{
			{Key: "backend_type", Value: "srm-manager"},
			{Key: "backend_version", Value: config.Version},
			{Key: "go_version", Value: runtime.Version()},
			{Key: "subject", Value: owner},
		},
	}
}

// notSupported — операции с правами доступа (srmSetPermission,
// srmCheckPermission, srmGetPermission).
func notSupported(_ context.Context, _ string, _ wire.Empty) wire.Response {
	return wire.StatusOnly(status.New(status.NotSupported, "управление правами доступа не поддерживается"))
}
