package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/srm-manager/internal/api/middleware"
	"github.com/bigkaa/srm-manager/internal/api/wire"
	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/engine/local"
	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/request"
	"github.com/bigkaa/srm-manager/internal/space"
	"github.com/bigkaa/srm-manager/internal/token"
)

const host = "srm://se.example.org"

// harness — SRM-фасад поверх настоящего менеджера и локального движка.
type harness struct {
	router http.Handler
	dir    string
}

func newHarness(t *testing.T, mw func(http.Handler) http.Handler) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	clock := lifetime.SystemClock{}
	gen := &token.SequenceGenerator{}

	spaces := space.NewRegistry(space.NewPool(1<<20), gen, clock,
		lifetime.Policy{Default: time.Hour, Max: 24 * time.Hour}, logger)
	manager := request.NewManager(request.Config{
		PinLifetime:       lifetime.Policy{Default: time.Hour, Max: 24 * time.Hour},
		FinishedRetention: time.Hour,
	}, spaces, gen, clock, logger)

	engine := local.New(local.NewResolver(dir, "file://"+dir), manager, 2, logger)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("ошибка запуска движка: %v", err)
	}
	t.Cleanup(engine.Stop)
	manager.SetEngine(engine)

	h := NewSRMHandler(manager, spaces, engine, []string{"file", "https"}, logger)
	r := chi.NewRouter()
	r.Use(mw)
	r.Post("/srm/v2/{operation}", h.Handle)
	return &harness{router: r, dir: dir}
}

// do выполняет операцию и возвращает HTTP-ответ.
func (hs *harness) do(t *testing.T, op string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/srm/v2/"+op, &buf)
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

// call выполняет операцию, ожидает HTTP 200 и декодирует ответ.
func call[T any](t *testing.T, hs *harness, op string, body any) T {
	t.Helper()
	rec := hs.do(t, op, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: ожидался статус 200, получен %d, тело: %s", op, rec.Code, rec.Body.String())
	}
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s: ошибка декодирования ответа: %v", op, err)
	}
	return out
}

// pollFile опрашивает статус запроса, пока файл не выйдет из обработки.
func pollFile(t *testing.T, hs *harness, op, tok string) model.FileStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := call[wire.RequestResponse](t, hs, op, wire.StatusOfRequest{RequestToken: tok})
		if len(resp.ArrayOfFileStatuses) == 1 && !status.IsProcessing(resp.ArrayOfFileStatuses[0].Status.Code) {
			return resp.ArrayOfFileStatuses[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s: файл не обработан за отведённое время", op)
	return model.FileStatus{}
}

func expectCode(t *testing.T, got, want status.Code) {
	t.Helper()
	if got != want {
		t.Errorf("ожидался %s, получен %s", want, got)
	}
}

// TestHandle_TransportErrors проверяет ошибки транспортного уровня.
func TestHandle_TransportErrors(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	if rec := hs.do(t, "srmFoo", nil); rec.Code != http.StatusNotFound {
		t.Errorf("неизвестная операция: ожидался 404, получен %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/srm/v2/srmLs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректное тело: ожидался 400, получен %d", rec.Code)
	}
}

// TestHandle_Scopes проверяет проверку scope для операций чтения и записи.
func TestHandle_Scopes(t *testing.T) {
	readOnly := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &middleware.AuthClaims{Subject: "reader", Scopes: []string{middleware.ScopeRead}}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyClaims, claims)))
		})
	}
	hs := newHarness(t, readOnly)

	if rec := hs.do(t, "srmMkdir", wire.PathRequest{SURL: host + "/dir"}); rec.Code != http.StatusForbidden {
		t.Errorf("запись без srm:write: ожидался 403, получен %d", rec.Code)
	}
	ping := call[wire.PingResponse](t, hs, "srmPing", nil)
	if ping.VersionInfo != srmVersion {
		t.Errorf("ожидалась версия %s, получена %s", srmVersion, ping.VersionInfo)
	}
}

// TestServiceOperations проверяет srmGetTransferProtocols и операции с правами.
func TestServiceOperations(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	protocols := call[wire.GetTransferProtocolsResponse](t, hs, "srmGetTransferProtocols", nil)
	expectCode(t, protocols.ReturnStatus.Code, status.Success)
	if len(protocols.ProtocolInfo) != 2 || protocols.ProtocolInfo[0].TransferProtocol != "file" {
		t.Errorf("неожиданные протоколы: %+v", protocols.ProtocolInfo)
	}

	for _, op := range []string{"srmSetPermission", "srmCheckPermission", "srmGetPermission"} {
		resp := call[wire.Base](t, hs, op, map[string]any{"arrayOfSURLs": []string{host + "/a"}})
		expectCode(t, resp.ReturnStatus.Code, status.NotSupported)
	}
}

// TestPrepareToGet проверяет получение файла, статус и снятие закрепления.
func TestPrepareToGet(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())
	if err := os.WriteFile(filepath.Join(hs.dir, "data.bin"), []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}

	resp := call[wire.RequestResponse](t, hs, "srmPrepareToGet", wire.PrepareToGetRequest{
		ArrayOfFileRequests: []wire.FileRequest{{SourceSURL: host + "/data.bin"}},
	})
	if resp.RequestToken == "" {
		t.Fatalf("не получен токен запроса: %+v", resp)
	}

	fs := pollFile(t, hs, "srmStatusOfGetRequest", resp.RequestToken)
	expectCode(t, fs.Status.Code, status.FilePinned)
	if !strings.HasSuffix(fs.TransferURL, "/data.bin") {
		t.Errorf("неожиданный TURL: %s", fs.TransferURL)
	}
	if fs.FileSize == nil || *fs.FileSize != 5 {
		t.Errorf("ожидался размер 5, получен %v", fs.FileSize)
	}

	// Статус запроса другого типа
	wrong := call[wire.RequestResponse](t, hs, "srmStatusOfPutRequest", wire.StatusOfRequest{RequestToken: resp.RequestToken})
	expectCode(t, wrong.ReturnStatus.Code, status.InvalidRequest)

	released := call[wire.FilesResponse](t, hs, "srmReleaseFiles", wire.FilesRequest{
		RequestToken: resp.RequestToken,
		ArrayOfSURLs: []string{host + "/data.bin"},
	})
	expectCode(t, released.ReturnStatus.Code, status.Success)
}

// TestPrepareToGet_Protocols проверяет согласование протоколов передачи.
func TestPrepareToGet_Protocols(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	resp := call[wire.RequestResponse](t, hs, "srmPrepareToGet", wire.PrepareToGetRequest{
		ArrayOfFileRequests: []wire.FileRequest{{SourceSURL: host + "/data.bin"}},
		TransferParameters:  &wire.TransferParameters{ArrayOfTransferProtocols: []string{"gsiftp"}},
	})
	expectCode(t, resp.ReturnStatus.Code, status.NotSupported)
	if resp.RequestToken != "" {
		t.Error("запрос не должен быть создан")
	}
}

// TestPrepareToPut проверяет запись файла через TURL и srmPutDone.
func TestPrepareToPut(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())
	surl := host + "/upload/new.dat"
	if err := os.Mkdir(filepath.Join(hs.dir, "upload"), 0o750); err != nil {
		t.Fatal(err)
	}

	resp := call[wire.RequestResponse](t, hs, "srmPrepareToPut", wire.PrepareToPutRequest{
		ArrayOfFileRequests: []wire.FileRequest{{TargetSURL: surl, ExpectedFileSize: 4}},
	})
	fs := pollFile(t, hs, "srmStatusOfPutRequest", resp.RequestToken)
	expectCode(t, fs.Status.Code, status.SpaceAvailable)

	staging := strings.TrimPrefix(fs.TransferURL, "file://")
	if err := os.WriteFile(staging, []byte("data"), 0o640); err != nil {
		t.Fatalf("ошибка записи по TURL %s: %v", fs.TransferURL, err)
	}

	done := call[wire.FilesResponse](t, hs, "srmPutDone", wire.FilesRequest{
		RequestToken: resp.RequestToken,
		ArrayOfSURLs: []string{surl},
	})
	expectCode(t, done.ReturnStatus.Code, status.Success)

	data, err := os.ReadFile(filepath.Join(hs.dir, "upload", "new.dat"))
	if err != nil || string(data) != "data" {
		t.Errorf("файл не зафиксирован: %q, %v", data, err)
	}

	final := call[wire.RequestResponse](t, hs, "srmStatusOfPutRequest", wire.StatusOfRequest{RequestToken: resp.RequestToken})
	expectCode(t, final.ReturnStatus.Code, status.Success)
}

// TestPrepareToPut_Overwrite проверяет разбор overwriteOption.
func TestPrepareToPut_Overwrite(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())
	files := []wire.FileRequest{{TargetSURL: host + "/f"}}

	resp := call[wire.RequestResponse](t, hs, "srmPrepareToPut", wire.PrepareToPutRequest{
		ArrayOfFileRequests: files,
		OverwriteOption:     wire.OverwriteWhenFilesAreDifferent,
	})
	expectCode(t, resp.ReturnStatus.Code, status.NotSupported)

	resp = call[wire.RequestResponse](t, hs, "srmPrepareToPut", wire.PrepareToPutRequest{
		ArrayOfFileRequests: files,
		OverwriteOption:     "SOMETIMES",
	})
	expectCode(t, resp.ReturnStatus.Code, status.InvalidRequest)
}

// TestAbortAndSummary проверяет прерывание и сводку запросов.
func TestAbortAndSummary(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	unknown := call[wire.Base](t, hs, "srmAbortRequest", wire.TokenRequest{RequestToken: "nope"})
	expectCode(t, unknown.ReturnStatus.Code, status.InvalidRequest)

	resp := call[wire.RequestResponse](t, hs, "srmPrepareToPut", wire.PrepareToPutRequest{
		ArrayOfFileRequests:    []wire.FileRequest{{TargetSURL: host + "/a"}},
		UserRequestDescription: "batch-1",
	})
	pollFile(t, hs, "srmStatusOfPutRequest", resp.RequestToken)

	aborted := call[wire.Base](t, hs, "srmAbortRequest", wire.TokenRequest{RequestToken: resp.RequestToken})
	expectCode(t, aborted.ReturnStatus.Code, status.Success)

	summary := call[wire.GetRequestSummaryResponse](t, hs, "srmGetRequestSummary", wire.GetRequestSummaryRequest{
		ArrayOfRequestTokens: []string{resp.RequestToken, "nope"},
	})
	expectCode(t, summary.ReturnStatus.Code, status.PartialSuccess)
	if len(summary.ArrayOfRequestSummaries) != 2 {
		t.Fatalf("ожидалось 2 сводки, получено %d", len(summary.ArrayOfRequestSummaries))
	}
	first := summary.ArrayOfRequestSummaries[0]
	if first.Status.Code != status.Aborted || first.TotalNumFilesInRequest != 1 || first.NumOfFailedFiles != 1 {
		t.Errorf("ожидался прерванный запрос с одним файлом, получено %+v", first)
	}

	tokens := call[wire.GetRequestTokensResponse](t, hs, "srmGetRequestTokens", wire.GetRequestTokensRequest{
		UserRequestDescription: "batch-1",
	})
	if len(tokens.ArrayOfRequestTokens) != 1 || tokens.ArrayOfRequestTokens[0].Token != resp.RequestToken {
		t.Errorf("неожиданные токены: %+v", tokens.ArrayOfRequestTokens)
	}
}

// TestSpaceLifecycle проверяет резервирование, метаданные и освобождение.
func TestSpaceLifecycle(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	reserved := call[wire.SpaceResponse](t, hs, "srmReserveSpace", wire.ReserveSpaceRequest{
		UserSpaceTokenDescription: "analysis",
		RetentionPolicyInfo:       model.RetentionPolicyInfo{RetentionPolicy: model.RetentionReplica},
		ArrayOfExpectedFileSizes:  []uint64{100, 200},
	})
	expectCode(t, reserved.ReturnStatus.Code, status.Success)
	if reserved.SpaceToken == "" || reserved.SizeOfGuaranteedReservedSpace == nil || *reserved.SizeOfGuaranteedReservedSpace != 300 {
		t.Fatalf("неожиданное резервирование: %+v", reserved)
	}

	st := call[wire.SpaceResponse](t, hs, "srmStatusOfReserveSpaceRequest", wire.TokenRequest{RequestToken: reserved.RequestToken})
	expectCode(t, st.ReturnStatus.Code, status.Success)
	if st.SpaceToken != reserved.SpaceToken {
		t.Errorf("ожидался токен %s, получен %s", reserved.SpaceToken, st.SpaceToken)
	}

	meta := call[wire.GetSpaceMetaDataResponse](t, hs, "srmGetSpaceMetaData", wire.GetSpaceMetaDataRequest{
		ArrayOfSpaceTokens: []string{reserved.SpaceToken},
	})
	expectCode(t, meta.ReturnStatus.Code, status.Success)
	if meta.ArrayOfSpaceDetails[0].Space == nil || meta.ArrayOfSpaceDetails[0].Space.UnusedSize != 300 {
		t.Errorf("неожиданные метаданные: %+v", meta.ArrayOfSpaceDetails[0])
	}

	tokens := call[wire.GetSpaceTokensResponse](t, hs, "srmGetSpaceTokens", wire.GetSpaceTokensRequest{UserSpaceTokenDescription: "analysis"})
	if len(tokens.ArrayOfSpaceTokens) != 1 {
		t.Errorf("ожидался 1 токен, получено %v", tokens.ArrayOfSpaceTokens)
	}

	released := call[wire.Base](t, hs, "srmReleaseSpace", wire.ReleaseSpaceRequest{SpaceToken: reserved.SpaceToken})
	expectCode(t, released.ReturnStatus.Code, status.Success)

	after := call[wire.GetSpaceTokensResponse](t, hs, "srmGetSpaceTokens", wire.GetSpaceTokensRequest{UserSpaceTokenDescription: "analysis"})
	expectCode(t, after.ReturnStatus.Code, status.InvalidRequest)
}

// TestNamespaceOperations проверяет srmMkdir, srmMv, srmRm и srmRmdir.
func TestNamespaceOperations(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())

	mk := call[wire.Base](t, hs, "srmMkdir", wire.PathRequest{SURL: host + "/dir"})
	expectCode(t, mk.ReturnStatus.Code, status.Success)
	mk = call[wire.Base](t, hs, "srmMkdir", wire.PathRequest{SURL: host + "/dir"})
	expectCode(t, mk.ReturnStatus.Code, status.DuplicationError)

	if err := os.WriteFile(filepath.Join(hs.dir, "dir", "a"), []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	mv := call[wire.Base](t, hs, "srmMv", wire.MvRequest{FromSURL: host + "/dir/a", ToSURL: host + "/dir/b"})
	expectCode(t, mv.ReturnStatus.Code, status.Success)

	rm := call[wire.FilesResponse](t, hs, "srmRm", wire.RmRequest{ArrayOfSURLs: []string{host + "/dir/b", host + "/dir/missing"}})
	expectCode(t, rm.ReturnStatus.Code, status.PartialSuccess)
	expectCode(t, rm.ArrayOfFileStatuses[1].Status.Code, status.InvalidPath)

	rmdir := call[wire.Base](t, hs, "srmRmdir", wire.PathRequest{SURL: host + "/dir"})
	expectCode(t, rmdir.ReturnStatus.Code, status.Success)
}

// TestLs проверяет асинхронный srmLs.
func TestLs(t *testing.T) {
	hs := newHarness(t, middleware.Anonymous())
	if err := os.WriteFile(filepath.Join(hs.dir, "f.txt"), []byte("abc"), 0o640); err != nil {
		t.Fatal(err)
	}

	resp := call[wire.RequestResponse](t, hs, "srmLs", wire.LsRequest{ArrayOfSURLs: []string{host + "/f.txt"}})
	fs := pollFile(t, hs, "srmStatusOfLsRequest", resp.RequestToken)
	expectCode(t, fs.Status.Code, status.Success)
	if fs.Detail == nil || fs.Detail.Size != 3 || fs.Detail.Type != model.PathTypeFile {
		t.Errorf("неожиданные метаданные: %+v", fs.Detail)
	}
}
