package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openpantry/listings/internal/client"
	"github.com/openpantry/listings/internal/limiter"
	"github.com/openpantry/listings/internal/model"
	"github.com/openpantry/listings/internal/retry"
	"go.uber.org/zap"
)

type stubPrimary struct {
	searchCalls   int
	searchFn      func(q model.Query) (model.Page, error)
	trendingCalls int
	trendingFn    func() ([]model.Listing, error)
	getCalls      int
	getFn         func() (model.Listing, error)
}

func (s *stubPrimary) Search(ctx context.Context, q model.Query) (model.Page, error) {
	s.searchCalls++
	return s.searchFn(q)
}

func (s *stubPrimary) Trending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error) {
	s.trendingCalls++
	return s.trendingFn()
}

func (s *stubPrimary) GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	s.getCalls++
	return s.getFn()
}

type stubFallback struct {
	selectCalls int
	lastQuery   client.ReadQuery
	selectFn    func(q client.ReadQuery) ([]model.Listing, error)
	getCalls    int
	getFn       func() (model.Listing, error)
}

func (s *stubFallback) Select(ctx context.Context, q client.ReadQuery) ([]model.Listing, error) {
	s.selectCalls++
	s.lastQuery = q
	return s.selectFn(q)
}

func (s *stubFallback) GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	s.getCalls++
	return s.getFn()
}

type countingBudget struct {
	acquires int
	err      error
}

func (b *countingBudget) Acquire(ctx context.Context, key string) error {
	b.acquires++
	return b.err
}

func (b *countingBudget) TryAcquire(ctx context.Context, key string) error {
	b.acquires++
	return b.err
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func newTestRepo(p PrimarySource, f FallbackSource, b RequestBudget, failFast bool) *ListingRepository {
	return NewListingRepository(Config{
		Primary:  p,
		Fallback: f,
		Budget:   b,
		Retry:    fastRetry(),
		Logger:   zap.NewNop(),
		FailFast: failFast,
	})
}

func makeListings(n int) []model.Listing {
	items := make([]model.Listing, n)
	for i := range items {
		items[i] = model.Listing{ID: uuid.New(), Title: "listing", Status: model.StatusActive}
	}
	return items
}

func TestFetchNearbyPrimarySuccessSkipsFallback(t *testing.T) {
	items := makeListings(20)
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{Items: items, NextCursor: "next"}, nil
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return nil, nil
	}}
	budget := &countingBudget{}

	repo := newTestRepo(primary, fallback, budget, false)
	page, err := repo.FetchNearby(context.Background(), model.GeoPoint{Lat: 40.0, Lng: -74.0}, 5, 20, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(page.Items) != 20 {
		t.Errorf("expected 20 items unmodified, got %d", len(page.Items))
	}
	if page.NextCursor != "next" {
		t.Errorf("primary cursor should pass through, got %q", page.NextCursor)
	}
	if fallback.selectCalls != 0 {
		t.Errorf("fallback must not be invoked when primary succeeds, got %d calls", fallback.selectCalls)
	}
	if primary.searchCalls != 1 {
		t.Errorf("primary should be called exactly once, got %d", primary.searchCalls)
	}
	if budget.acquires != 1 {
		t.Errorf("expected 1 quota unit consumed, got %d", budget.acquires)
	}
}

func TestFetchNearbyTransientFailureFallsBackOnce(t *testing.T) {
	fallbackItems := makeListings(3)
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{}, model.Transient("primary search", errors.New("timeout"))
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return fallbackItems, nil
	}}
	budget := &countingBudget{}

	repo := newTestRepo(primary, fallback, budget, false)
	page, err := repo.FetchNearby(context.Background(), model.GeoPoint{Lat: 40.0, Lng: -74.0}, 5, 20, 0, "produce")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if primary.searchCalls != 1 {
		t.Errorf("primary must not be re-attempted after failover, got %d calls", primary.searchCalls)
	}
	if fallback.selectCalls != 1 {
		t.Errorf("fallback should be invoked exactly once, got %d calls", fallback.selectCalls)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected fallback result, got %d items", len(page.Items))
	}
	if page.NextCursor != "" {
		t.Errorf("fallback pages carry no cursor, got %q", page.NextCursor)
	}

	// Both paths draw from the same budget.
	if budget.acquires != 2 {
		t.Errorf("expected 2 quota units consumed, got %d", budget.acquires)
	}

	// Fallback query carries the equivalent filters.
	if fallback.lastQuery.Type != "produce" {
		t.Errorf("type filter not forwarded: %+v", fallback.lastQuery)
	}
	if fallback.lastQuery.Bounds == nil {
		t.Fatalf("bounding box missing from fallback query")
	}
	if fallback.lastQuery.Bounds.MaxLat <= 40.0 || fallback.lastQuery.Bounds.MinLat >= 40.0 {
		t.Errorf("bounding box does not surround the center: %+v", fallback.lastQuery.Bounds)
	}
}

func TestFetchNearbyNonTransientErrorsPropagate(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"unauthorized", model.ErrUnauthorized},
		{"not found", model.ErrNotFound},
		{"decode", &model.DecodeError{Source: "primary", Err: errors.New("bad shape")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
				return model.Page{}, tc.err
			}}
			fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
				return nil, nil
			}}

			repo := newTestRepo(primary, fallback, &countingBudget{}, false)
			_, err := repo.FetchNearby(context.Background(), model.GeoPoint{}, 5, 20, 0, "")
			if !errors.Is(err, tc.err) && err.Error() != tc.err.Error() {
				t.Fatalf("expected original error, got %v", err)
			}
			if fallback.selectCalls != 0 {
				t.Errorf("non-transient errors must not trigger fallback")
			}
		})
	}
}

func TestFetchNearbyCapsAtLimit(t *testing.T) {
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{Items: makeListings(30)}, nil
	}}

	repo := newTestRepo(primary, &stubFallback{}, &countingBudget{}, false)
	page, err := repo.FetchNearby(context.Background(), model.GeoPoint{}, 5, 20, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) > 20 {
		t.Errorf("result must be capped at limit, got %d items", len(page.Items))
	}
}

func TestFetchNearbyFallbackFailureSurfaces(t *testing.T) {
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{}, model.Transient("primary search", errors.New("timeout"))
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return nil, model.Transient("readview select", errors.New("connection refused"))
	}}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	_, err := repo.FetchNearby(context.Background(), model.GeoPoint{}, 5, 20, 0, "")
	if err == nil {
		t.Fatal("expected error when both paths fail")
	}
	if fallback.selectCalls != 1 {
		t.Errorf("no second fallback after fallback failure, got %d calls", fallback.selectCalls)
	}
}

func TestFetchTrendingFallbackReRanksCandidates(t *testing.T) {
	// Candidate scores: 10, 30, 20, 30. Stable descending rank expects the
	// two score-30 listings first in their original order.
	candidates := []model.Listing{
		{ID: uuid.New(), Title: "a", Views: 10},
		{ID: uuid.New(), Title: "b", Views: 30},
		{ID: uuid.New(), Title: "c", Views: 20},
		{ID: uuid.New(), Title: "d", Views: 10, Likes: 10},
	}

	primary := &stubPrimary{trendingFn: func() ([]model.Listing, error) {
		return nil, model.Transient("primary trending", errors.New("timeout"))
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return append([]model.Listing(nil), candidates...), nil
	}}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	items, err := repo.FetchTrending(context.Background(), model.GeoPoint{Lat: 40, Lng: -74}, 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Over-fetch factor: the fallback should request limit * 2 candidates.
	if fallback.lastQuery.Limit != 4 {
		t.Errorf("expected candidate limit 4, got %d", fallback.lastQuery.Limit)
	}

	if len(items) != 2 {
		t.Fatalf("expected truncation to limit 2, got %d", len(items))
	}
	if items[0].Title != "b" || items[1].Title != "d" {
		t.Errorf("expected stable rank [b d], got [%s %s]", items[0].Title, items[1].Title)
	}
}

func TestFetchTrendingPrimaryServesRanked(t *testing.T) {
	ranked := makeListings(5)
	primary := &stubPrimary{trendingFn: func() ([]model.Listing, error) {
		return ranked, nil
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return nil, nil
	}}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	items, err := repo.FetchTrending(context.Background(), model.GeoPoint{}, 5, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 5 || fallback.selectCalls != 0 {
		t.Errorf("primary trending should be returned as-is without fallback")
	}
}

func TestFetchFilteredFallbackDiscardsCursorAndReRanksPopular(t *testing.T) {
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{}, model.Transient("primary search", errors.New("timeout"))
	}}
	fallback := &stubFallback{selectFn: func(q client.ReadQuery) ([]model.Listing, error) {
		return []model.Listing{
			{Title: "cold", Views: 1},
			{Title: "hot", Views: 90},
		}, nil
	}}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	center := model.GeoPoint{Lat: 40, Lng: -74}
	page, err := repo.FetchFiltered(context.Background(), model.Query{
		Center:     &center,
		RadiusKm:   5,
		Limit:      10,
		Offset:     20,
		Cursor:     "opaque-token",
		CategoryID: "bread",
		Sort:       model.SortPopular,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fallback.lastQuery.CategoryID != "bread" {
		t.Errorf("category filter not forwarded: %+v", fallback.lastQuery)
	}
	if fallback.lastQuery.Offset != 20 {
		t.Errorf("numeric offset should survive the failover, got %d", fallback.lastQuery.Offset)
	}
	if fallback.lastQuery.Limit != 20 {
		t.Errorf("popular sort should over-fetch candidates, got limit %d", fallback.lastQuery.Limit)
	}
	if len(page.Items) != 2 || page.Items[0].Title != "hot" {
		t.Errorf("fallback should re-rank locally for popular sort: %+v", page.Items)
	}
}

func TestFetchByIDRetriesTransientThenSucceeds(t *testing.T) {
	want := model.Listing{ID: uuid.New(), Title: "found"}
	failures := 2

	primary := &stubPrimary{getFn: func() (model.Listing, error) {
		if failures > 0 {
			failures--
			return model.Listing{}, model.Transient("primary get", errors.New("timeout"))
		}
		return want, nil
	}}
	fallback := &stubFallback{}
	budget := &countingBudget{}

	repo := newTestRepo(primary, fallback, budget, false)
	got, err := repo.FetchByID(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("wrong listing returned: %+v", got)
	}
	if primary.getCalls != 3 {
		t.Errorf("expected 3 primary attempts (2 failures + success), got %d", primary.getCalls)
	}
	if fallback.getCalls != 0 {
		t.Errorf("fallback should not be touched when retries succeed")
	}
	// One quota unit per attempt.
	if budget.acquires != 3 {
		t.Errorf("expected 3 quota units, got %d", budget.acquires)
	}
}

func TestFetchByIDFallsBackAfterRetryExhaustion(t *testing.T) {
	want := model.Listing{ID: uuid.New(), Title: "from read view"}

	primary := &stubPrimary{getFn: func() (model.Listing, error) {
		return model.Listing{}, model.Transient("primary get", errors.New("timeout"))
	}}
	fallback := &stubFallback{getFn: func() (model.Listing, error) {
		return want, nil
	}}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	got, err := repo.FetchByID(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != want.Title {
		t.Errorf("expected fallback listing, got %+v", got)
	}
	if primary.getCalls != 3 {
		t.Errorf("expected retry exhaustion after 3 attempts, got %d", primary.getCalls)
	}
	if fallback.getCalls != 1 {
		t.Errorf("fallback should be invoked exactly once, got %d", fallback.getCalls)
	}
}

func TestFetchByIDNotFoundSkipsRetryAndFallback(t *testing.T) {
	primary := &stubPrimary{getFn: func() (model.Listing, error) {
		return model.Listing{}, model.ErrNotFound
	}}
	fallback := &stubFallback{}

	repo := newTestRepo(primary, fallback, &countingBudget{}, false)
	_, err := repo.FetchByID(context.Background(), uuid.New())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if primary.getCalls != 1 {
		t.Errorf("not-found must not be retried, got %d attempts", primary.getCalls)
	}
	if fallback.getCalls != 0 {
		t.Errorf("not-found must not trigger fallback")
	}
}

func TestFailFastSurfacesLimitExceeded(t *testing.T) {
	primary := &stubPrimary{searchFn: func(q model.Query) (model.Page, error) {
		return model.Page{}, nil
	}}
	budget := &countingBudget{err: limiter.ErrLimitExceeded}

	repo := newTestRepo(primary, &stubFallback{}, budget, true)
	_, err := repo.FetchRecent(context.Background(), 10, 0, "")
	if !errors.Is(err, limiter.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if primary.searchCalls != 0 {
		t.Errorf("no upstream call should happen once the quota is exhausted")
	}
}
