// Package repository implements the dual-path fetch façade: every listing
// query tries the primary API first and fails over once to the read view on
// transient errors, under a shared outbound request budget. Callers receive
// one normalized result and never observe which path produced it.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/openpantry/listings/internal/client"
	"github.com/openpantry/listings/internal/geo"
	"github.com/openpantry/listings/internal/metrics"
	"github.com/openpantry/listings/internal/model"
	"github.com/openpantry/listings/internal/rank"
	"github.com/openpantry/listings/internal/retry"
	"go.uber.org/zap"
)

// Operation names used in logs and metric labels.
const (
	opNearby   = "nearby"
	opRecent   = "recent"
	opTrending = "trending"
	opFiltered = "filtered"
	opGet      = "get"
)

// budgetKey identifies the shared outbound quota. Primary and fallback
// attempts draw from the same window.
const budgetKey = "upstream"

// PrimarySource is the preferred remote path.
type PrimarySource interface {
	Search(ctx context.Context, q model.Query) (model.Page, error)
	Trending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error)
}

// FallbackSource is the degraded path over the read view.
type FallbackSource interface {
	Select(ctx context.Context, q client.ReadQuery) ([]model.Listing, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error)
}

// RequestBudget limits outbound request volume. Acquire blocks until a unit
// is free; TryAcquire fails fast with limiter.ErrLimitExceeded.
type RequestBudget interface {
	Acquire(ctx context.Context, key string) error
	TryAcquire(ctx context.Context, key string) error
}

// Config wires a ListingRepository. Everything is constructor-injected; the
// repository holds no ambient global state.
type Config struct {
	Primary  PrimarySource
	Fallback FallbackSource
	Budget   RequestBudget
	Retry    retry.Policy
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// FailFast selects the quota exhaustion policy: surface
	// limiter.ErrLimitExceeded instead of waiting for the window to reset.
	// The default (false) waits, matching the behavior of the mobile data
	// layer this service replaces.
	FailFast bool

	// TrendingCandidateFactor overrides rank.CandidateFactor when positive.
	TrendingCandidateFactor int
}

// ListingRepository is the resilient data-access façade over the two
// upstream paths.
type ListingRepository struct {
	primary   PrimarySource
	fallback  FallbackSource
	budget    RequestBudget
	retry     retry.Policy
	logger    *zap.Logger
	metrics   *metrics.Metrics
	failFast  bool
	candidate int
}

// NewListingRepository creates the façade from its configuration.
func NewListingRepository(cfg Config) *ListingRepository {
	factor := cfg.TrendingCandidateFactor
	if factor <= 0 {
		factor = rank.CandidateFactor
	}

	return &ListingRepository{
		primary:   cfg.Primary,
		fallback:  cfg.Fallback,
		budget:    cfg.Budget,
		retry:     cfg.Retry,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		failFast:  cfg.FailFast,
		candidate: factor,
	}
}

// FetchNearby returns active listings around a center point. The fallback
// approximates the radius with a bounding box.
func (r *ListingRepository) FetchNearby(ctx context.Context, center model.GeoPoint, radiusKm float64, limit, offset int, typeFilter string) (model.Page, error) {
	q := model.Query{
		Center:   &center,
		RadiusKm: radiusKm,
		Limit:    limit,
		Offset:   offset,
		Type:     typeFilter,
	}

	page, err := r.primarySearch(ctx, opNearby, q)
	if err == nil {
		page.Items = capLimit(page.Items, limit)
		return page, nil
	}
	if !model.IsTransient(err) {
		return model.Page{}, err
	}

	r.failover(opNearby, err)

	bounds := geo.BoundingBox(center, radiusKm)
	items, ferr := r.fallbackSelect(ctx, opNearby, client.ReadQuery{
		Bounds: &bounds,
		Type:   typeFilter,
		Limit:  limit,
		Offset: offset,
	})
	if ferr != nil {
		return model.Page{}, fmt.Errorf("nearby: fallback after primary failure: %w", ferr)
	}

	return model.Page{Items: capLimit(items, limit)}, nil
}

// FetchRecent returns the newest active listings.
func (r *ListingRepository) FetchRecent(ctx context.Context, limit, offset int, typeFilter string) (model.Page, error) {
	q := model.Query{
		Limit:  limit,
		Offset: offset,
		Type:   typeFilter,
		Sort:   model.SortNewest,
	}

	page, err := r.primarySearch(ctx, opRecent, q)
	if err == nil {
		page.Items = capLimit(page.Items, limit)
		return page, nil
	}
	if !model.IsTransient(err) {
		return model.Page{}, err
	}

	r.failover(opRecent, err)

	items, ferr := r.fallbackSelect(ctx, opRecent, client.ReadQuery{
		Type:   typeFilter,
		Limit:  limit,
		Offset: offset,
	})
	if ferr != nil {
		return model.Page{}, fmt.Errorf("recent: fallback after primary failure: %w", ferr)
	}

	return model.Page{Items: capLimit(items, limit)}, nil
}

// FetchTrending returns engagement-ranked listings around a center point.
// The primary API ranks server-side; the fallback fetches extra candidates
// from the read view and re-ranks them locally with the same formula.
func (r *ListingRepository) FetchTrending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	items, err := r.primary.Trending(ctx, center, radiusKm, limit)
	r.observe(opTrending, metrics.PathPrimary, err)
	if err == nil {
		return capLimit(items, limit), nil
	}
	if !model.IsTransient(err) {
		return nil, err
	}

	r.failover(opTrending, err)

	bounds := geo.BoundingBox(center, radiusKm)
	candidates, ferr := r.fallbackSelect(ctx, opTrending, client.ReadQuery{
		Bounds: &bounds,
		Limit:  limit * r.candidate,
	})
	if ferr != nil {
		return nil, fmt.Errorf("trending: fallback after primary failure: %w", ferr)
	}

	return rank.TopN(candidates, limit), nil
}

// FetchFiltered runs a filtered search. On fallback the opaque cursor is
// discarded and pagination restarts from the numeric offset; popularity
// ordering is recomputed locally, closest ordering degrades to newest-first
// within the bounding box.
func (r *ListingRepository) FetchFiltered(ctx context.Context, q model.Query) (model.Page, error) {
	page, err := r.primarySearch(ctx, opFiltered, q)
	if err == nil {
		page.Items = capLimit(page.Items, q.Limit)
		return page, nil
	}
	if !model.IsTransient(err) {
		return model.Page{}, err
	}

	r.failover(opFiltered, err)
	if q.Cursor != "" {
		r.logger.Debug("discarding primary cursor on fallback, page restarts from offset",
			zap.String("op", opFiltered),
			zap.Int("offset", q.Offset),
		)
	}

	readQ := client.ReadQuery{
		Type:       q.Type,
		CategoryID: q.CategoryID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Center != nil {
		bounds := geo.BoundingBox(*q.Center, q.RadiusKm)
		readQ.Bounds = &bounds
	}
	if q.Sort == model.SortPopular {
		readQ.Limit = q.Limit * r.candidate
	}

	items, ferr := r.fallbackSelect(ctx, opFiltered, readQ)
	if ferr != nil {
		return model.Page{}, fmt.Errorf("filtered: fallback after primary failure: %w", ferr)
	}

	if q.Sort == model.SortPopular {
		items = rank.TopN(items, q.Limit)
	} else {
		items = capLimit(items, q.Limit)
	}

	return model.Page{Items: items}, nil
}

// FetchByID fetches a single listing. The primary attempt is wrapped in the
// retry helper; only after retries are exhausted on transient errors does the
// call fail over to the read view.
func (r *ListingRepository) FetchByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	listing, err := retry.Do(ctx, r.retry, r.logger, func(ctx context.Context) (model.Listing, error) {
		if err := r.acquire(ctx); err != nil {
			return model.Listing{}, err
		}
		l, err := r.primary.GetByID(ctx, id)
		r.observe(opGet, metrics.PathPrimary, err)
		return l, err
	})
	if err == nil {
		return listing, nil
	}
	if !model.IsTransient(err) {
		return model.Listing{}, err
	}

	r.failover(opGet, err)

	if err := r.acquire(ctx); err != nil {
		return model.Listing{}, err
	}
	l, ferr := r.fallback.GetByID(ctx, id)
	r.observe(opGet, metrics.PathFallback, ferr)
	if ferr != nil {
		return model.Listing{}, fmt.Errorf("get: fallback after primary failure: %w", ferr)
	}

	return l, nil
}

func (r *ListingRepository) primarySearch(ctx context.Context, op string, q model.Query) (model.Page, error) {
	if err := r.acquire(ctx); err != nil {
		return model.Page{}, err
	}
	page, err := r.primary.Search(ctx, q)
	r.observe(op, metrics.PathPrimary, err)
	return page, err
}

func (r *ListingRepository) fallbackSelect(ctx context.Context, op string, q client.ReadQuery) ([]model.Listing, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	items, err := r.fallback.Select(ctx, q)
	r.observe(op, metrics.PathFallback, err)
	return items, err
}

func (r *ListingRepository) acquire(ctx context.Context) error {
	if r.failFast {
		return r.budget.TryAcquire(ctx, budgetKey)
	}
	return r.budget.Acquire(ctx, budgetKey)
}

func (r *ListingRepository) failover(op string, err error) {
	r.logger.Warn("primary path failed, falling back to read view",
		zap.String("op", op),
		zap.Error(err),
	)
	r.metrics.Fallback(op)
}

func (r *ListingRepository) observe(op, path string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	r.metrics.FetchAttempt(op, path, outcome)
}

func capLimit(items []model.Listing, limit int) []model.Listing {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
