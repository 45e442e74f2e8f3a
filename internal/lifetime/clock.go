// Пакет lifetime — источник времени и вычисление сроков жизни.
//
// Сроки хранятся как абсолютные моменты (deadline); оставшееся время
// вычисляется только в момент чтения через Remaining.
package lifetime

import (
	"sync"
	"time"
)

// Clock — монотонный источник текущего времени.
type Clock interface {
	Now() time.Time
}

// SystemClock — Clock на основе time.Now (UTC).
type SystemClock struct{}

// Now возвращает текущее время.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock — управляемые часы для тестов. Потокобезопасны.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock создаёт часы, показывающие start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now возвращает текущее показание часов.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд на d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set устанавливает показание часов.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Policy — значение по умолчанию и верхняя граница срока жизни.
type Policy struct {
	// Default применяется, если клиент не указал желаемое значение.
	Default time.Duration
	// Max — верхняя граница; 0 — без ограничения.
	Max time.Duration
}

// Resolve вычисляет срок жизни по желаемому значению клиента в секундах.
// nil или значение <= 0 → Default; значение больше Max обрезается до Max.
func (p Policy) Resolve(desired *int64) time.Duration {
	d := p.Default
	if desired != nil && *desired > 0 {
		d = time.Duration(*desired) * time.Second
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Deadline возвращает момент истечения срока, начиная со start.
func (p Policy) Deadline(start time.Time, desired *int64) time.Time {
	return start.Add(p.Resolve(desired))
}

// Remaining — оставшееся время до deadline в целых секундах, не меньше нуля.
func Remaining(deadline, now time.Time) int64 {
	if !now.Before(deadline) {
		return 0
	}
	return int64(deadline.Sub(now) / time.Second)
}

// RemainingPtr — как Remaining, но nil для нулевого deadline (срок не задан).
func RemainingPtr(deadline, now time.Time) *int64 {
	if deadline.IsZero() {
		return nil
	}
	r := Remaining(deadline, now)
	return &r
}

// Expired — срок истёк (нулевой deadline никогда не истекает).
func Expired(deadline, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

// Seconds — удобный конструктор указателя на секунды для необязательных параметров.
func Seconds(v int64) *int64 {
	return &v
}
