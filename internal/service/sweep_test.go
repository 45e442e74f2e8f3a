package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/srm-manager/internal/lifetime"
	"github.com/bigkaa/srm-manager/internal/request"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSweeper — фиксирует вызовы и возвращает заданные результаты.
type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	times   []time.Time
	result  request.SweepResult
	removed int
}

func (f *fakeSweeper) SweepExpired(_ context.Context, now time.Time) request.SweepResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.times = append(f.times, now)
	return f.result
}

func (f *fakeSweeper) RemoveFinished(_ context.Context, _ time.Time) int {
	return f.removed
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweepRunOnce(t *testing.T) {
	clock := lifetime.NewManualClock(epoch)
	sweeper := &fakeSweeper{
		result:  request.SweepResult{Requests: 2, TimedOut: 5, LifetimeExpired: 3},
		removed: 4,
	}
	svc := NewSweepService(sweeper, clock, time.Hour, testLogger())

	result := svc.RunOnce(context.Background())

	if result.TimedOut != 2 {
		t.Errorf("TimedOut: хотели 2, получили %d", result.TimedOut)
	}
	if result.FilesExpired != 3 {
		t.Errorf("FilesExpired: хотели 3, получили %d", result.FilesExpired)
	}
	if result.Removed != 4 {
		t.Errorf("Removed: хотели 4, получили %d", result.Removed)
	}
	if !sweeper.times[0].Equal(epoch) {
		t.Errorf("время прохода должно браться из часов: %v", sweeper.times[0])
	}
}

func TestSweepStartStop(t *testing.T) {
	sweeper := &fakeSweeper{}
	svc := NewSweepService(sweeper, lifetime.SystemClock{}, 10*time.Millisecond, testLogger())

	svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := sweeper.callCount(); n < 3 {
		t.Fatalf("ожидали не менее 3 проходов, получили %d", n)
	}

	svc.Stop()
	time.Sleep(30 * time.Millisecond)
	after := sweeper.callCount()
	time.Sleep(50 * time.Millisecond)
	if sweeper.callCount() != after {
		t.Error("после Stop проходы не должны выполняться")
	}
}
