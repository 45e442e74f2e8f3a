// Пакет token — генерация уникальных токенов запросов и резервирований.
package token

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator выдаёт токены, уникальные в пределах процесса.
type Generator interface {
	NewRequestToken() string
	NewSpaceToken() string
}

// UUIDGenerator — генератор на основе UUID v4.
type UUIDGenerator struct{}

// NewRequestToken возвращает новый токен запроса.
func (UUIDGenerator) NewRequestToken() string {
	return uuid.NewString()
}

// NewSpaceToken возвращает новый токен резервирования.
func (UUIDGenerator) NewSpaceToken() string {
	return "space-" + uuid.NewString()
}

// SequenceGenerator — детерминированный генератор (префикс + счётчик).
// Используется в тестах и при отладке.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

// NewRequestToken возвращает следующий токен запроса.
func (g *SequenceGenerator) NewRequestToken() string {
	return fmt.Sprintf("%sreq-%d", g.Prefix, g.n.Add(1))
}

// NewSpaceToken возвращает следующий токен резервирования.
func (g *SequenceGenerator) NewSpaceToken() string {
	return fmt.Sprintf("%sspace-%d", g.Prefix, g.n.Add(1))
}
