// archive_cache.go — архив завершённых запросов с LRU-кэшем.
// Обёртка над hashicorp/golang-lru/v2/expirable перед PostgreSQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/repository"
	"github.com/bigkaa/srm-manager/internal/request"
)

// Prometheus-метрики кэша архива.
var (
	archiveCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_archive_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш архива запросов.",
	})
	archiveCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_archive_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша архива запросов.",
	})
	archiveSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srm_archive_saved_total",
		Help: "Общее количество запросов, сохранённых в архив.",
	})
)

// ArchiveStore — персистентное хранилище архива (repository.RequestArchive).
type ArchiveStore interface {
	Archive(ctx context.Context, snap model.RequestSnapshot) error
	Get(ctx context.Context, token string) (model.RequestSnapshot, error)
	ListTokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error)
}

// ArchiveCache реализует request.Archive: запросы, выгруженные из памяти,
// сохраняются в PostgreSQL, повторные чтения обслуживаются из кэша.
type ArchiveCache struct {
	store  ArchiveStore
	cache  *expirable.LRU[string, model.RequestSnapshot]
	logger *slog.Logger
}

// NewArchiveCache создаёт архив с кэшем на maxSize записей и временем жизни ttl.
func NewArchiveCache(store ArchiveStore, maxSize int, ttl time.Duration, logger *slog.Logger) *ArchiveCache {
	return &ArchiveCache{
		store:  store,
		cache:  expirable.NewLRU[string, model.RequestSnapshot](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "archive")),
	}
}

// SaveRequest сохраняет снимок запроса. Повторное сохранение не является ошибкой.
func (a *ArchiveCache) SaveRequest(ctx context.Context, snap model.RequestSnapshot) error {
	err := a.store.Archive(ctx, snap)
	switch {
	case errors.Is(err, repository.ErrConflict):
		a.logger.Debug("Запрос уже в архиве", slog.String("request_token", snap.Token))
	case err != nil:
		return fmt.Errorf("ошибка архивации запроса %s: %w", snap.Token, err)
	default:
		archiveSavedTotal.Inc()
	}
	a.cache.Add(snap.Token, snap)
	return nil
}

// LoadRequest возвращает снимок запроса из кэша или PostgreSQL.
// Неизвестный токен — request.ErrNotArchived.
func (a *ArchiveCache) LoadRequest(ctx context.Context, token string) (model.RequestSnapshot, error) {
	if snap, ok := a.cache.Get(token); ok {
		archiveCacheHitsTotal.Inc()
		return snap, nil
	}
	archiveCacheMissesTotal.Inc()

	snap, err := a.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.RequestSnapshot{}, request.ErrNotArchived
		}
		return model.RequestSnapshot{}, err
	}
	a.cache.Add(token, snap)
	return snap, nil
}

// FindRequestTokens возвращает токены архивных запросов владельца.
func (a *ArchiveCache) FindRequestTokens(ctx context.Context, owner, description string) ([]model.RequestTokenInfo, error) {
	return a.store.ListTokens(ctx, owner, description)
}
