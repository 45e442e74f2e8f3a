package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// SpaceRepository — хранилище резервирований пространства (таблица
// space_reservations). Реализует space.Store.
type SpaceRepository struct {
	db DBTX
}

// NewSpaceRepository создаёт репозиторий резервирований.
func NewSpaceRepository(db DBTX) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// SaveSpace вставляет или обновляет резервирование (INSERT ON CONFLICT UPDATE).
func (r *SpaceRepository) SaveSpace(ctx context.Context, s model.SpaceSnapshot) error {
	query := `
		INSERT INTO space_reservations (token, owner, description,
			retention_policy, access_latency, total_size, guaranteed_size, unused_size,
			lifetime_assigned, status, explanation, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (token) DO UPDATE SET
			total_size = EXCLUDED.total_size,
			guaranteed_size = EXCLUDED.guaranteed_size,
			unused_size = EXCLUDED.unused_size,
			lifetime_assigned = EXCLUDED.lifetime_assigned,
			status = EXCLUDED.status,
			explanation = EXCLUDED.explanation,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		s.Token, s.Owner, s.Description,
		string(s.RetentionPolicyInfo.RetentionPolicy), string(s.RetentionPolicyInfo.AccessLatency),
		int64(s.TotalSize), int64(s.GuaranteedSize), int64(s.UnusedSize),
		s.LifetimeAssigned, string(s.Status.Code), s.Status.Explanation,
		s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return storeError(err, "резервирование", s.Token)
	}
	return nil
}

// DeleteSpace удаляет резервирование. Отсутствие записи не является ошибкой.
func (r *SpaceRepository) DeleteSpace(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM space_reservations WHERE token = $1`, token); err != nil {
		return fmt.Errorf("ошибка удаления резервирования: %w", err)
	}
	return nil
}

// LoadSpaces возвращает все сохранённые резервирования.
func (r *SpaceRepository) LoadSpaces(ctx context.Context) ([]model.SpaceSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT token, owner, description, retention_policy, access_latency,
			total_size, guaranteed_size, unused_size, lifetime_assigned,
			status, explanation, created_at, expires_at
		FROM space_reservations
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения резервирований: %w", err)
	}
	defer rows.Close()

	var result []model.SpaceSnapshot
	for rows.Next() {
		var (
			s                         model.SpaceSnapshot
			retention, latency, code  string
			total, guaranteed, unused int64
		)
		err := rows.Scan(
			&s.Token, &s.Owner, &s.Description, &retention, &latency,
			&total, &guaranteed, &unused, &s.LifetimeAssigned,
			&code, &s.Status.Explanation, &s.CreatedAt, &s.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования резервирования: %w", err)
		}
		s.RetentionPolicyInfo = model.RetentionPolicyInfo{
			RetentionPolicy: model.RetentionPolicy(retention),
			AccessLatency:   model.AccessLatency(latency),
		}
		s.TotalSize, s.GuaranteedSize, s.UnusedSize = uint64(total), uint64(guaranteed), uint64(unused)
		s.Status.Code = status.Code(code)
		result = append(result, s)
	}
	return result, rows.Err()
}
