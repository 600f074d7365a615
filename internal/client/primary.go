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
	"github.com/openpantry/listings/internal/model"
	"go.uber.org/zap"
)

// PrimaryAPI calls the listings API, the preferred path hosting the
// server-side logic the fallback cannot reproduce: engagement-ranked trending
// and true radius search.
type PrimaryAPI struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewPrimaryAPI creates a primary listings API client. The timeout bounds
// every attempt.
func NewPrimaryAPI(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *PrimaryAPI {
	return &PrimaryAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// listingPayload is the primary API's nested response shape. It exists only
// at this boundary; everything past the mapping works with model.Listing.
type listingPayload struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"listing_type"`
	CategoryID string `json:"category_id"`
	Status     string `json:"status"`
	Location   struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Stats struct {
		Views int64 `json:"view_count"`
		Likes int64 `json:"like_count"`
	} `json:"stats"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type searchResponse struct {
	Items      []listingPayload `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

func (p listingPayload) toModel() (model.Listing, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return model.Listing{}, &model.DecodeError{Source: "primary", Err: fmt.Errorf("listing id %q: %w", p.ID, err)}
	}

	return model.Listing{
		ID:         id,
		Title:      p.Title,
		Type:       p.Type,
		CategoryID: p.CategoryID,
		Status:     p.Status,
		Location:   model.GeoPoint{Lat: p.Location.Lat, Lng: p.Location.Lng},
		Views:      p.Stats.Views,
		Likes:      p.Stats.Likes,
		ImageURL:   p.ImageURL,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

func mapPayloads(payloads []listingPayload) ([]model.Listing, error) {
	listings := make([]model.Listing, 0, len(payloads))
	for _, p := range payloads {
		l, err := p.toModel()
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// Search queries /v1/listings with the query's filters. The cursor, when
// set, takes precedence over the numeric offset, which the primary API does
// not understand.
func (c *PrimaryAPI) Search(ctx context.Context, q model.Query) (model.Page, error) {
	params := url.Values{}
	if q.Center != nil {
		params.Set("lat", formatCoord(q.Center.Lat))
		params.Set("lng", formatCoord(q.Center.Lng))
	}
	if q.RadiusKm > 0 {
		params.Set("radius_km", strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.CategoryID != "" {
		params.Set("category_id", q.CategoryID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Sort != "" {
		params.Set("sort", string(q.Sort))
	}

	var resp searchResponse
	if err := c.get(ctx, "/v1/listings", params, "primary search", &resp); err != nil {
		return model.Page{}, err
	}

	items, err := mapPayloads(resp.Items)
	if err != nil {
		return model.Page{}, err
	}

	return model.Page{Items: items, NextCursor: resp.NextCursor}, nil
}

// Trending queries the server-side engagement ranking around a center point.
func (c *PrimaryAPI) Trending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(center.Lat))
	params.Set("lng", formatCoord(center.Lng))
	params.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp searchResponse
	if err := c.get(ctx, "/v1/listings/trending", params, "primary trending", &resp); err != nil {
		return nil, err
	}

	return mapPayloads(resp.Items)
}

// GetByID fetches a single listing.
func (c *PrimaryAPI) GetByID(ctx context.Context, id uuid.UUID) (model.Listing, error) {
	var payload listingPayload
	if err := c.get(ctx, "/v1/listings/"+id.String(), nil, "primary get", &payload); err != nil {
		return model.Listing{}, err
	}

	return payload.toModel()
}

func (c *PrimaryAPI) get(ctx context.Context, path string, params url.Values, op string, dest any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	return getJSON(ctx, c.http, u, headers, op, "primary", dest)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
