package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/persister"
	"github.com/phrazzld/studycache/internal/querycache"
)

// CacheService exposes the query cache to delivery code.
type CacheService interface {
	// Query returns the state of key, fetching it when not fresh.
	// A failed fetch returns ErrFetchFailed together with the error state.
	Query(ctx context.Context, key domain.QueryKey) (domain.QueryState, error)

	// Restore returns the live persisted snapshot.
	Restore(ctx context.Context) *domain.Snapshot

	// Persist writes the given queries.
	Persist(ctx context.Context, queries []domain.QueryState) (persister.PersistResult, error)

	// Clear wipes the persisted cache.
	Clear(ctx context.Context)

	// Invalidate marks a query family stale after a mutation.
	Invalidate(ctx context.Context, family string) int

	// Stats reports the persisted cache's contents and storage usage.
	Stats(ctx context.Context) (persister.Stats, error)
}

// Clearer wipes the persisted cache.
type Clearer interface {
	Clear(ctx context.Context)
}

type cacheService struct {
	client    *querycache.Client
	persister *persister.Persister
	clearer   Clearer
	logger    *slog.Logger
}

var _ CacheService = (*cacheService)(nil)

// NewCacheService creates a CacheService. Clears go through clearer, which
// lets the caller order them with queued persists; a nil clearer clears
// directly.
func NewCacheService(
	client *querycache.Client,
	p *persister.Persister,
	clearer Clearer,
	logger *slog.Logger,
) (CacheService, error) {
	if client == nil {
		return nil, fmt.Errorf("query client cannot be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("persister cannot be nil")
	}
	if clearer == nil {
		clearer = p
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &cacheService{
		client:    client,
		persister: p,
		clearer:   clearer,
		logger:    logger.With("component", "cache_service"),
	}, nil
}

func (s *cacheService) Query(ctx context.Context, key domain.QueryKey) (domain.QueryState, error) {
	if err := key.Validate(); err != nil {
		return domain.QueryState{}, err
	}
	state, err := s.client.Fetch(ctx, key)
	if err != nil {
		if state.Status == domain.QueryStatusError {
			return state, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		return state, err
	}
	return state, nil
}

func (s *cacheService) Restore(ctx context.Context) *domain.Snapshot {
	return s.persister.Restore(ctx)
}

func (s *cacheService) Persist(ctx context.Context, queries []domain.QueryState) (persister.PersistResult, error) {
	if len(queries) == 0 {
		return persister.PersistResult{}, ErrEmptySnapshot
	}
	for i := range queries {
		if err := queries[i].Key.Validate(); err != nil {
			return persister.PersistResult{}, fmt.Errorf("query %d: %w", i, err)
		}
		if !queries[i].Status.IsValid() {
			return persister.PersistResult{}, fmt.Errorf("query %d: %w: %q",
				i, domain.ErrInvalidQueryStatus, queries[i].Status)
		}
	}
	return s.persister.Persist(ctx, queries), nil
}

func (s *cacheService) Clear(ctx context.Context) {
	s.logger.InfoContext(ctx, "clearing persisted cache")
	s.clearer.Clear(ctx)
}

func (s *cacheService) Invalidate(ctx context.Context, family string) int {
	n := s.client.Invalidate(family)
	s.logger.DebugContext(ctx, "invalidated family", "family", family, "count", n)
	return n
}

func (s *cacheService) Stats(ctx context.Context) (persister.Stats, error) {
	return s.persister.Stats(ctx)
}
