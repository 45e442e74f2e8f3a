// Пакет repository — хранение SRM-запросов и резервирований в PostgreSQL.
// SQL пишется вручную и выполняется через pgx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound — токена нет в хранилище.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким токеном уже сохранена.
	ErrConflict = errors.New("запись уже существует")
)

// pgUniqueViolation — SQLSTATE нарушения уникального ключа.
const pgUniqueViolation = "23505"

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx: репозитории
// работают одинаково внутри транзакции и вне её.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет функцию в транзакции пула.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx коммитит транзакцию, если fn вернула nil, иначе откатывает
// её и возвращает ошибку fn без изменений.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("ошибка отката транзакции: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// storeError оборачивает ошибку записи: нарушение уникальности
// становится ErrConflict, остальное — ошибкой операции what.
func storeError(err error, what, token string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s %s", ErrConflict, what, token)
	}
	return fmt.Errorf("ошибка сохранения (%s %s): %w", what, token, err)
}
