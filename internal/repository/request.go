package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/srm-manager/internal/domain/model"
)

// RequestRepository — архив завершённых SRM-запросов (таблицы srm_requests
// и srm_request_history).
type RequestRepository interface {
	// Save сохраняет снимок запроса. ErrConflict — запрос уже в архиве.
	Save(ctx context.Context, snap model.RequestSnapshot) error
	// AppendHistory добавляет записи истории переходов запроса.
	AppendHistory(ctx context.Context, token string, records []model.HistoryRecord) error
	// Get возвращает снимок запроса вместе с историей.
	Get(ctx context.Context, token string) (model.RequestSnapshot, error)
	// ListTokens возвращает токены запросов владельца.
	// Пустой description — без фильтра по описанию.
	ListTokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error)
}

// requestRepo — реализация RequestRepository.
type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий архива запросов.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) Save(ctx context.Context, snap model.RequestSnapshot) error {
	// История хранится отдельной таблицей
	history := snap.History
	snap.History = nil
	data, err := json.Marshal(snap)
	snap.History = history
	if err != nil {
		return fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	query := `
		INSERT INTO srm_requests (token, request_type, owner, description,
			status, explanation, submitted_at, deadline, finished_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		snap.Token, string(snap.Type), snap.Owner, snap.Description,
		string(snap.Status.Code), snap.Status.Explanation,
		snap.SubmittedAt, snap.Deadline, snap.FinishedAt, data,
	)
	if err != nil {
		return storeError(err, "запрос", snap.Token)
	}
	return nil
}

func (r *requestRepo) AppendHistory(ctx context.Context, token string, records []model.HistoryRecord) error {
	query := `
		INSERT INTO srm_request_history (token, status, description, at)
		VALUES ($1, $2, $3, $4)`

	for _, h := range records {
		if _, err := r.db.Exec(ctx, query, token, string(h.Status), h.Description, h.Timestamp); err != nil {
			return fmt.Errorf("ошибка сохранения истории запроса: %w", err)
		}
	}
	return nil
}

func (r *requestRepo) Get(ctx context.Context, token string) (model.RequestSnapshot, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT snapshot FROM srm_requests WHERE token = $1`, token).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RequestSnapshot{}, ErrNotFound
		}
		return model.RequestSnapshot{}, fmt.Errorf("ошибка получения запроса: %w", err)
	}

	var snap model.RequestSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.RequestSnapshot{}, fmt.Errorf("ошибка разбора снимка запроса %s: %w", token, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT status, description, at
		FROM srm_request_history
		WHERE token = $1
		ORDER BY at, id`, token)
	if err != nil {
		return model.RequestSnapshot{}, fmt.Errorf("ошибка получения истории запроса: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h model.HistoryRecord
		if err := rows.Scan(&h.Status, &h.Description, &h.Timestamp); err != nil {
			return model.RequestSnapshot{}, fmt.Errorf("ошибка сканирования истории: %w", err)
		}
		snap.History = append(snap.History, h)
	}
	if err := rows.Err(); err != nil {
		return model.RequestSnapshot{}, err
	}
	return snap, nil
}

func (r *requestRepo) ListTokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error) {
	// Пустой owner — запросы всех пользователей.
	conditions := []string{"TRUE"}
	var args []any
	if owner != "" {
		args = append(args, owner)
		conditions = append(conditions, fmt.Sprintf("owner = $%d", len(args)))
	}
	if description != "" {
		args = append(args, description)
		conditions = append(conditions, fmt.Sprintf("description = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT token, submitted_at
		FROM srm_requests
		WHERE %s
		ORDER BY submitted_at`, strings.Join(conditions, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка запросов: %w", err)
	}
	defer rows.Close()

	var result []model.RequestTokenInfo
	for rows.Next() {
		var info model.RequestTokenInfo
		if err := rows.Scan(&info.Token, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, info)
	}
	return result, rows.Err()
}

// RequestArchive — архив запросов поверх пула: снимок и история
// сохраняются одной транзакцией.
type RequestArchive struct {
	RequestRepository
	tx *TxRunner
}

// NewRequestArchive создаёт архив запросов.
func NewRequestArchive(pool *pgxpool.Pool) *RequestArchive {
	return &RequestArchive{
		RequestRepository: NewRequestRepository(pool),
		tx:                NewTxRunner(pool),
	}
}

// Archive сохраняет снимок запроса с историей. ErrConflict — запрос уже в архиве.
func (a *RequestArchive) Archive(ctx context.Context, snap model.RequestSnapshot) error {
	return a.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewRequestRepository(tx)
		if err := repo.Save(ctx, snap); err != nil {
			return err
		}
		return repo.AppendHistory(ctx, snap.Token, snap.History)
	})
}
