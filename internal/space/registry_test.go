package space

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/token"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(capacity uint64) (*Registry, *lifetime.ManualClock) {
	clock := lifetime.NewManualClock(epoch)
	r := NewRegistry(NewPool(capacity), &token.SequenceGenerator{}, clock,
		lifetime.Policy{Default: time.Hour, Max: 24 * time.Hour}, testLogger())
	return r, clock
}

func replica() model.RetentionPolicyInfo {
	return model.RetentionPolicyInfo{RetentionPolicy: model.RetentionReplica, AccessLatency: model.LatencyOnline}
}

func reserve(t *testing.T, r *Registry, total, guaranteed uint64) model.SpaceSnapshot {
	t.Helper()
	snap, _, err := r.Reserve(context.Background(), ReserveParams{
		Owner:                 "alice",
		Description:           "test",
		RetentionPolicyInfo:   replica(),
		DesiredTotalSize:      total,
		DesiredGuaranteedSize: guaranteed,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	return snap
}

// assertInvariants проверяет unused <= total и guaranteed <= total.
func assertInvariants(t *testing.T, r *Registry, tok string) model.SpaceSnapshot {
	t.Helper()
	snap, err := r.Get(tok)
	if err != nil {
		t.Fatalf("Get(%s): %v", tok, err)
	}
	if snap.UnusedSize > snap.TotalSize {
		t.Errorf("unused %d > total %d", snap.UnusedSize, snap.TotalSize)
	}
	if snap.GuaranteedSize > snap.TotalSize {
		t.Errorf("guaranteed %d > total %d", snap.GuaranteedSize, snap.TotalSize)
	}
	return snap
}

func TestReserve(t *testing.T) {
	r, _ := newTestRegistry(10_000)

	snap := reserve(t, r, 1000, 1000)
	if snap.TotalSize != 1000 || snap.UnusedSize != 1000 || snap.GuaranteedSize != 1000 {
		t.Errorf("снимок = %+v", snap)
	}
	if snap.LifetimeAssigned != 3600 || snap.LifetimeLeft != 3600 {
		t.Errorf("lifetime = %d/%d, ожидается 3600/3600", snap.LifetimeAssigned, snap.LifetimeLeft)
	}
}

func TestReserve_LowerSpaceGranted(t *testing.T) {
	r, _ := newTestRegistry(1500)

	snap, rs, err := r.Reserve(context.Background(), ReserveParams{
		Owner:                 "alice",
		RetentionPolicyInfo:   replica(),
		DesiredTotalSize:      2000,
		DesiredGuaranteedSize: 1000,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if rs.Code != status.LowerSpaceGranted {
		t.Errorf("статус = %s, ожидается SRM_LOWER_SPACE_GRANTED", rs.Code)
	}
	if snap.TotalSize != 1500 {
		t.Errorf("total = %d, ожидается 1500", snap.TotalSize)
	}
}

func TestReserve_NoFreeSpace(t *testing.T) {
	r, _ := newTestRegistry(500)

	_, _, err := r.Reserve(context.Background(), ReserveParams{
		RetentionPolicyInfo:   replica(),
		DesiredGuaranteedSize: 1000,
	})
	if status.CodeOf(err) != status.NoFreeSpace {
		t.Errorf("ошибка = %v, ожидается SRM_NO_FREE_SPACE", err)
	}
}

func TestReserve_Validation(t *testing.T) {
	r, _ := newTestRegistry(10_000)

	tests := []struct {
		name string
		p    ReserveParams
	}{
		{"нет гарантированного", ReserveParams{RetentionPolicyInfo: replica(), DesiredTotalSize: 10}},
		{"guaranteed > total", ReserveParams{RetentionPolicyInfo: replica(), DesiredTotalSize: 10, DesiredGuaranteedSize: 20}},
		{"неизвестная политика", ReserveParams{
			RetentionPolicyInfo:   model.RetentionPolicyInfo{RetentionPolicy: "TAPE"},
			DesiredGuaranteedSize: 10,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Reserve(context.Background(), tt.p)
			if status.CodeOf(err) != status.InvalidRequest {
				t.Errorf("ошибка = %v, ожидается SRM_INVALID_REQUEST", err)
			}
		})
	}
}

// TestCharge_Overcommit: 1000 байт, списания 400 и 700 — второе отклоняется,
// свободно остаётся 600.
func TestCharge_Overcommit(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	snap := reserve(t, r, 1000, 1000)

	if err := r.Charge(snap.Token, 400); err != nil {
		t.Fatalf("Charge(400): %v", err)
	}
	err := r.Charge(snap.Token, 700)
	if status.CodeOf(err) != status.NoFreeSpace {
		t.Errorf("Charge(700) = %v, ожидается SRM_NO_FREE_SPACE", err)
	}

	got := assertInvariants(t, r, snap.Token)
	if got.UnusedSize != 600 {
		t.Errorf("unused = %d, ожидается 600", got.UnusedSize)
	}
}

// TestChargeRelease_RoundTrip: серия списаний и возвратов возвращает unused к исходному.
func TestChargeRelease_RoundTrip(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	snap := reserve(t, r, 5000, 5000)
	rnd := rand.New(rand.NewSource(7))

	var charged []uint64
	for i := 0; i < 200; i++ {
		amount := uint64(rnd.Intn(300) + 1)
		if err := r.Charge(snap.Token, amount); err == nil {
			charged = append(charged, amount)
		}
		assertInvariants(t, r, snap.Token)
	}
	for _, a := range charged {
		r.Release(snap.Token, a)
		assertInvariants(t, r, snap.Token)
	}

	got := assertInvariants(t, r, snap.Token)
	if got.UnusedSize != 5000 {
		t.Errorf("unused после возврата = %d, ожидается 5000", got.UnusedSize)
	}

	// Лишний возврат не превышает total
	r.Release(snap.Token, 10_000)
	if got := assertInvariants(t, r, snap.Token); got.UnusedSize != 5000 {
		t.Errorf("unused = %d, ожидается не больше total", got.UnusedSize)
	}
}

// TestCharge_Concurrent: параллельные списания не превышают резервирование.
func TestCharge_Concurrent(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	snap := reserve(t, r, 1000, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Charge(snap.Token, 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("успешных списаний = %d, ожидается 10", succeeded)
	}
	if got := assertInvariants(t, r, snap.Token); got.UnusedSize != 0 {
		t.Errorf("unused = %d, ожидается 0", got.UnusedSize)
	}
}

func TestCharge_UnknownToken(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	if err := r.Charge("nope", 1); status.CodeOf(err) != status.InvalidRequest {
		t.Errorf("Charge(nope) = %v, ожидается SRM_INVALID_REQUEST", err)
	}
}

func TestExpiry(t *testing.T) {
	r, clock := newTestRegistry(10_000)
	snap := reserve(t, r, 1000, 1000)

	clock.Advance(2 * time.Hour)

	// Истечение видно до очистки
	if err := r.Charge(snap.Token, 1); status.CodeOf(err) != status.SpaceLifetimeExpired {
		t.Errorf("Charge после истечения = %v, ожидается SRM_SPACE_LIFETIME_EXPIRED", err)
	}
	if !r.Expired(snap.Token) {
		t.Error("Expired() = false, ожидается true")
	}

	res := r.PurgeExpired(context.Background(), clock.Now())
	if res.Expired != 1 {
		t.Errorf("PurgeExpired.Expired = %d, ожидается 1", res.Expired)
	}

	got, err := r.Get(snap.Token)
	if err != nil {
		t.Fatalf("Get после очистки: %v", err)
	}
	if got.Status.Code != status.SpaceLifetimeExpired {
		t.Errorf("статус = %s, ожидается SRM_SPACE_LIFETIME_EXPIRED", got.Status.Code)
	}

	// Ёмкость возвращена в пул
	reserve(t, r, 10_000, 10_000)

	// Запись удаляется по истечении срока хранения
	clock.Advance(tombstoneRetention)
	if res := r.PurgeExpired(context.Background(), clock.Now()); res.Removed != 1 {
		t.Errorf("PurgeExpired.Removed = %d, ожидается 1", res.Removed)
	}
	if _, err := r.Get(snap.Token); err == nil {
		t.Error("запись должна быть удалена")
	}
}

func TestChargeFile_MoveAndPurge(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	a := reserve(t, r, 1000, 1000)
	b := reserve(t, r, 1000, 1000)

	if err := r.ChargeFile(a.Token, "srm://se/f1", "", 300, 0); err != nil {
		t.Fatalf("ChargeFile: %v", err)
	}

	results, err := r.MoveFiles(b.Token, []string{"srm://se/f1", "srm://se/missing"})
	if err != nil {
		t.Fatalf("MoveFiles: %v", err)
	}
	if results[0].Status.Code != status.Success {
		t.Errorf("перенос f1: %+v", results[0].Status)
	}
	if results[1].Status.Code != status.InvalidPath {
		t.Errorf("перенос missing: %s, ожидается SRM_INVALID_PATH", results[1].Status.Code)
	}

	if got := assertInvariants(t, r, a.Token); got.UnusedSize != 1000 || got.Files != 0 {
		t.Errorf("источник: unused=%d files=%d", got.UnusedSize, got.Files)
	}
	if got := assertInvariants(t, r, b.Token); got.UnusedSize != 700 || got.Files != 1 {
		t.Errorf("цель: unused=%d files=%d", got.UnusedSize, got.Files)
	}

	results, err = r.PurgeFiles(context.Background(), b.Token, "alice", []string{"srm://se/f1"})
	if err != nil {
		t.Fatalf("PurgeFiles: %v", err)
	}
	if results[0].Status.Code != status.Success {
		t.Errorf("purge: %+v", results[0].Status)
	}
	if got := assertInvariants(t, r, b.Token); got.UnusedSize != 1000 {
		t.Errorf("unused после purge = %d, ожидается 1000", got.UnusedSize)
	}
}

func TestChargeFile_Holder(t *testing.T) {
	r, _ := newTestRegistry(10_000)
	a := reserve(t, r, 1000, 1000)
	b := reserve(t, r, 1000, 1000)
	const surl = "srm://se/x"

	if err := r.ChargeFile(a.Token, surl, "req-1", 100, 0); err != nil {
		t.Fatalf("ChargeFile req-1: %v", err)
	}
	for _, target := range []string{a.Token, b.Token} {
		err := r.ChargeFile(target, surl, "req-2", 100, 0)
		if status.CodeOf(err) != status.FileBusy {
			t.Errorf("списание req-2 на %s: %v, ожидается SRM_FILE_BUSY", target, err)
		}
	}
	if got := assertInvariants(t, r, b.Token); got.UnusedSize != 1000 {
		t.Errorf("unused цели после отказа = %d, ожидается 1000", got.UnusedSize)
	}

	// Чужой запрос не снимает списание.
	if freed := r.ReleaseFileOf(a.Token, surl, "req-2"); freed != 0 {
		t.Errorf("ReleaseFileOf(req-2) = %d, ожидается 0", freed)
	}
	if got := assertInvariants(t, r, a.Token); got.UnusedSize != 900 {
		t.Errorf("unused = %d, ожидается 900", got.UnusedSize)
	}

	// После фиксации файл можно перезаписать, а владелец его уже не снимает.
	r.CommitFile(a.Token, surl, "req-1")
	if freed := r.ReleaseFileOf(a.Token, surl, "req-1"); freed != 0 {
		t.Errorf("ReleaseFileOf после фиксации = %d, ожидается 0", freed)
	}
	if err := r.ChargeFile(a.Token, surl, "req-2", 200, 0); err != nil {
		t.Fatalf("перезапись req-2: %v", err)
	}
	if got := assertInvariants(t, r, a.Token); got.UnusedSize != 800 || got.Files != 1 {
		t.Errorf("после перезаписи: unused=%d files=%d", got.UnusedSize, got.Files)
	}
	if freed := r.ReleaseFileOf(a.Token, surl, "req-2"); freed != 200 {
		t.Errorf("ReleaseFileOf(req-2) = %d, ожидается 200", freed)
	}
	if _, ok := r.SpaceOf(surl); ok {
		t.Error("файл не должен числиться за резервированием")
	}
}

func TestExtendFiles(t *testing.T) {
	r, clock := newTestRegistry(10_000)
	snap := reserve(t, r, 1000, 1000)

	if err := r.ChargeFile(snap.Token, "srm://se/f", "", 10, 10*time.Minute); err != nil {
		t.Fatalf("ChargeFile: %v", err)
	}

	clock.Advance(5 * time.Minute)
	results, err := r.ExtendFiles(snap.Token, []string{"srm://se/f"}, lifetime.Seconds(2*3600))
	if err != nil {
		t.Fatalf("ExtendFiles: %v", err)
	}
	// Ограничено временем жизни резервирования: осталось 55 минут
	if results[0].Lifetime == nil || *results[0].Lifetime != 55*60 {
		t.Errorf("lifetime = %v, ожидается 3300", results[0].Lifetime)
	}
}

func TestUpdate(t *testing.T) {
	r, _ := newTestRegistry(3000)
	snap := reserve(t, r, 1000, 1000)
	if err := r.Charge(snap.Token, 600); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	grow := uint64(2000)
	got, rs, err := r.Update(context.Background(), snap.Token, UpdateParams{Owner: "alice", NewTotalSize: &grow})
	if err != nil {
		t.Fatalf("Update(grow): %v", err)
	}
	if rs.Code != status.Success || got.TotalSize != 2000 || got.UnusedSize != 1400 {
		t.Errorf("после увеличения: %s total=%d unused=%d", rs.Code, got.TotalSize, got.UnusedSize)
	}

	shrink := uint64(500)
	_, _, err = r.Update(context.Background(), snap.Token, UpdateParams{NewTotalSize: &shrink, NewGuaranteedSize: &shrink})
	if status.CodeOf(err) != status.NoFreeSpace {
		t.Errorf("уменьшение ниже занятого = %v, ожидается SRM_NO_FREE_SPACE", err)
	}

	_, _, err = r.Update(context.Background(), snap.Token, UpdateParams{Owner: "bob", NewTotalSize: &grow})
	if status.CodeOf(err) != status.AuthorizationFailure {
		t.Errorf("чужое резервирование = %v, ожидается SRM_AUTHORIZATION_FAILURE", err)
	}

	assertInvariants(t, r, snap.Token)
}

func TestReleaseSpace(t *testing.T) {
	r, _ := newTestRegistry(1000)
	snap := reserve(t, r, 1000, 1000)
	if err := r.ChargeFile(snap.Token, "srm://se/f", "", 10, 0); err != nil {
		t.Fatalf("ChargeFile: %v", err)
	}

	if err := r.ReleaseSpace(context.Background(), snap.Token, "alice", false); status.CodeOf(err) != status.Failure {
		t.Errorf("ReleaseSpace без force = %v, ожидается SRM_FAILURE", err)
	}
	if err := r.ReleaseSpace(context.Background(), snap.Token, "alice", true); err != nil {
		t.Fatalf("ReleaseSpace(force): %v", err)
	}
	if err := r.ReleaseSpace(context.Background(), snap.Token, "alice", true); status.CodeOf(err) != status.InvalidRequest {
		t.Errorf("повторный ReleaseSpace = %v, ожидается SRM_INVALID_REQUEST", err)
	}

	// Ёмкость возвращена
	reserve(t, r, 1000, 1000)

	if toks := r.Tokens("alice", "test"); len(toks) != 1 {
		t.Errorf("Tokens = %v, ожидается одно активное резервирование", toks)
	}
}

type memStore struct {
	mu     sync.Mutex
	spaces map[string]model.SpaceSnapshot
}

func (m *memStore) SaveSpace(_ context.Context, s model.SpaceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[s.Token] = s
	return nil
}

func (m *memStore) DeleteSpace(_ context.Context, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, tok)
	return nil
}

func (m *memStore) LoadSpaces(_ context.Context) ([]model.SpaceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SpaceSnapshot, 0, len(m.spaces))
	for _, s := range m.spaces {
		out = append(out, s)
	}
	return out, nil
}

func TestRestore(t *testing.T) {
	store := &memStore{spaces: make(map[string]model.SpaceSnapshot)}
	r, _ := newTestRegistry(10_000)
	r.WithStore(store)
	snap := reserve(t, r, 1000, 500)

	r2, _ := newTestRegistry(10_000)
	r2.WithStore(store)
	n, err := r2.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("восстановлено %d, ожидается 1", n)
	}
	got := assertInvariants(t, r2, snap.Token)
	if got.TotalSize != 1000 || got.GuaranteedSize != 500 {
		t.Errorf("восстановленное резервирование: %+v", got)
	}
}
