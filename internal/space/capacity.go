package space

import (
	"sync"

	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// Capacity — внешняя ёмкость хранилища, из которой выделяются резервирования.
type Capacity interface {
	// Allocate выделяет не больше desired и не меньше minimum байт.
	// Если доступно меньше minimum — SRM_NO_FREE_SPACE.
	Allocate(desired, minimum uint64) (uint64, error)
	// Free возвращает ранее выделенный объём.
	Free(amount uint64)
}

// Pool — статическая ёмкость фиксированного размера (SRM_MAX_CAPACITY).
type Pool struct {
	mu        sync.Mutex
	total     uint64
	allocated uint64
}

// NewPool создаёт пул ёмкостью total байт.
func NewPool(total uint64) *Pool {
	return &Pool{total: total}
}

// Allocate реализует Capacity.
func (p *Pool) Allocate(desired, minimum uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := p.total - p.allocated
	if free < minimum {
		return 0, status.Errorf(status.NoFreeSpace,
			"недостаточно свободного места: требуется %d, доступно %d", minimum, free)
	}
	granted := desired
	if granted > free {
		granted = free
	}
	p.allocated += granted
	return granted, nil
}

// Free реализует Capacity.
func (p *Pool) Free(amount uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount > p.allocated {
		amount = p.allocated
	}
	p.allocated -= amount
}

// Usage возвращает общий и выделенный объём.
func (p *Pool) Usage() (total, allocated uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.allocated
}
