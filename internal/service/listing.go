package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openpantry/listings/internal/cache"
	"github.com/openpantry/listings/internal/metrics"
	"github.com/openpantry/listings/internal/model"
	"go.uber.org/zap"
)

// Fetcher is the repository surface the service consumes.
type Fetcher interface {
	FetchNearby(ctx context.Context, center model.GeoPoint, radiusKm float64, limit, offset int, typeFilter string) (model.Page, error)
	FetchRecent(ctx context.Context, limit, offset int, typeFilter string) (model.Page, error)
	FetchTrending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error)
	FetchFiltered(ctx context.Context, q model.Query) (model.Page, error)
	FetchByID(ctx context.Context, id uuid.UUID) (model.Listing, error)
}

// ListingService wraps the repository with a read-through page cache. A TTL
// of zero disables caching entirely. Single-listing fetches bypass the cache;
// staleness is acceptable for browse pages, not for the detail view a user is
// about to act on.
type ListingService struct {
	repo    Fetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewListingService creates the caching service layer.
func NewListingService(repo Fetcher, c cache.Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *ListingService {
	return &ListingService{
		repo:    repo,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// Nearby returns active listings around a center point.
func (s *ListingService) Nearby(ctx context.Context, center model.GeoPoint, radiusKm float64, limit, offset int, typeFilter string) (model.Page, error) {
	key := fmt.Sprintf("listings:nearby:%.4f:%.4f:%.1f:%d:%d:%s", center.Lat, center.Lng, radiusKm, limit, offset, typeFilter)
	return s.cachedPage(ctx, key, func() (model.Page, error) {
		return s.repo.FetchNearby(ctx, center, radiusKm, limit, offset, typeFilter)
	})
}

// Recent returns the newest active listings.
func (s *ListingService) Recent(ctx context.Context, limit, offset int, typeFilter string) (model.Page, error) {
	return s.cachedPage(ctx, s.recentKey(limit, offset, typeFilter), func() (model.Page, error) {
		return s.repo.FetchRecent(ctx, limit, offset, typeFilter)
	})
}

// Trending returns engagement-ranked listings around a center point.
func (s *ListingService) Trending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error) {
	key := fmt.Sprintf("listings:trending:%.4f:%.4f:%.1f:%d", center.Lat, center.Lng, radiusKm, limit)

	if s.ttl <= 0 {
		return s.repo.FetchTrending(ctx, center, radiusKm, limit)
	}

	var cached []model.Listing
	if hit := s.lookup(ctx, key, &cached); hit {
		return cached, nil
	}

	items, err := s.repo.FetchTrending(ctx, center, radiusKm, limit)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, items)
	return items, nil
}

// Filtered runs a filtered search. Cursor pages are cached under their own
// keys, so a cursor round-trip does not collide with offset pagination.
func (s *ListingService) Filtered(ctx context.Context, q model.Query) (model.Page, error) {
	center := "none"
	if q.Center != nil {
		center = fmt.Sprintf("%.4f:%.4f:%.1f", q.Center.Lat, q.Center.Lng, q.RadiusKm)
	}
	key := fmt.Sprintf("listings:filtered:%s:%d:%d:%s:%s:%s:%s", center, q.Limit, q.Offset, q.Type, q.CategoryID, q.Sort, q.Cursor)

	return s.cachedPage(ctx, key, func() (model.Page, error) {
		return s.repo.FetchFiltered(ctx, q)
	})
}

// ByID fetches a single listing, always fresh.
func (s *ListingService) ByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	return s.repo.FetchByID(ctx, id)
}

// WarmRecent refreshes the cached first page of recent listings, overwriting
// whatever is there. Used by the periodic warmer so the most-hit page stays
// served from cache even across TTL expiry.
func (s *ListingService) WarmRecent(ctx context.Context, limit int) error {
	if s.ttl <= 0 {
		return nil
	}

	page, err := s.repo.FetchRecent(ctx, limit, 0, "")
	if err != nil {
		return err
	}

	s.store(ctx, s.recentKey(limit, 0, ""), page)
	return nil
}

func (s *ListingService) recentKey(limit, offset int, typeFilter string) string {
	return fmt.Sprintf("listings:recent:%d:%d:%s", limit, offset, typeFilter)
}

func (s *ListingService) cachedPage(ctx context.Context, key string, fetch func() (model.Page, error)) (model.Page, error) {
	if s.ttl <= 0 {
		return fetch()
	}

	var page model.Page
	if hit := s.lookup(ctx, key, &page); hit {
		return page, nil
	}

	page, err := fetch()
	if err != nil {
		return model.Page{}, err
	}

	s.store(ctx, key, page)
	return page, nil
}

func (s *ListingService) lookup(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		s.metrics.CacheMiss()
		return false
	}
	if hit {
		s.metrics.CacheHit()
		return true
	}
	s.metrics.CacheMiss()
	return false
}

func (s *ListingService) store(ctx context.Context, key string, value any) {
	if err := s.cache.SetJSON(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
