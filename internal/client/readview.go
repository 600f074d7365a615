package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openpantry/listings/internal/geo"
	"github.com/openpantry/listings/internal/model"
	"go.uber.org/zap"
)

// ReadView queries the denormalized listings_feed view directly, the
// degraded-fidelity path used when the primary API is down: bounding-box
// range filters instead of a radius search, creation-time ordering instead of
// server-side ranking, numeric offsets instead of cursors.
type ReadView struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewReadView creates a read-view client. The timeout bounds every attempt.
func NewReadView(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *ReadView {
	return &ReadView{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ReadQuery is the filter set the read view supports.
type ReadQuery struct {
	Bounds     *geo.Bounds
	Type       string
	CategoryID string
	Limit      int
	Offset     int
}

// readViewRow is the flat row shape of the listings_feed view.
type readViewRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ListingType string    `json:"listing_type"`
	CategoryID  string    `json:"category_id"`
	Status      string    `json:"status"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	ViewCount   int64     `json:"view_count"`
	LikeCount   int64     `json:"like_count"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r readViewRow) toModel() (model.Listing, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.Listing{}, &model.DecodeError{Source: "readview", Err: fmt.Errorf("listing id %q: %w", r.ID, err)}
	}

	return model.Listing{
		ID:         id,
		Title:      r.Title,
		Type:       r.ListingType,
		CategoryID: r.CategoryID,
		Status:     r.Status,
		Location:   model.GeoPoint{Lat: r.Lat, Lng: r.Lng},
		Views:      r.ViewCount,
		Likes:      r.LikeCount,
		ImageURL:   r.ImageURL,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// Select queries active listings ordered by creation time descending,
// bounded by the query's filters.
func (c *ReadView) Select(ctx context.Context, q ReadQuery) ([]model.Listing, error) {
	params := url.Values{}
	params.Set("status", "eq."+model.StatusActive)
	if q.Type != "" {
		params.Set("listing_type", "eq."+q.Type)
	}
	if q.CategoryID != "" {
		params.Set("category_id", "eq."+q.CategoryID)
	}
	if q.Bounds != nil {
		params.Add("lat", "gte."+formatCoord(q.Bounds.MinLat))
		params.Add("lat", "lte."+formatCoord(q.Bounds.MaxLat))
		params.Add("lng", "gte."+formatCoord(q.Bounds.MinLng))
		params.Add("lng", "lte."+formatCoord(q.Bounds.MaxLng))
	}
	params.Set("order", "created_at.desc")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var rows []readViewRow
	if err := c.get(ctx, params, "readview select", &rows); err != nil {
		return nil, err
	}

	listings := make([]model.Listing, 0, len(rows))
	for _, row := range rows {
		l, err := row.toModel()
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}

	return listings, nil
}

// GetByID fetches a single listing row. An empty result set maps to
// ErrNotFound, matching the primary client's semantics.
func (c *ReadView) GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	params := url.Values{}
	params.Set("id", "eq."+id.String())
	params.Set("limit", "1")

	var rows []readViewRow
	if err := c.get(ctx, params, "readview get", &rows); err != nil {
		return model.Listing{}, err
	}

	if len(rows) == 0 {
		return model.Listing{}, model.ErrNotFound
	}

	return rows[0].toModel()
}

func (c *ReadView) get(ctx context.Context, params url.Values, op string, dest any) error {
	u := c.baseURL + "/listings_feed"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["apikey"] = c.apiKey
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	return getJSON(ctx, c.http, u, headers, op, "readview", dest)
}
