package model

import (
	"time"

	"github.com/google/uuid"
)

// Listing status values on the read view. Only active listings are served;
// arranged ones have already been claimed by another user.
const (
	StatusActive   = "active"
	StatusArranged = "arranged"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing is the canonical food listing entity. Both upstream response shapes
// (the primary API's nested payload and the read view's flat row) map into this
// one type, so callers never observe which path served the data.
type Listing struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	CategoryID string    `json:"category_id,omitempty"`
	Status     string    `json:"status"`
	Location   GeoPoint  `json:"location"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// SortOption selects the ordering of a filtered search.
type SortOption string

const (
	SortNewest  SortOption = "newest"
	SortClosest SortOption = "closest"
	SortPopular SortOption = "popular"
)

// Query carries the parameters of one fetch call. Immutable per call.
//
// Offset is always meaningful; Cursor is an opaque primary-API token and is
// discarded when the call falls back to the read view (an accepted page reset).
type Query struct {
	Center     *GeoPoint
	RadiusKm   float64
	Limit      int
	Offset     int
	Cursor     string
	Type       string
	CategoryID string
	Sort       SortOption
}

// Page is one page of listings. NextCursor is populated only when the primary
// path served the page; fallback pages paginate by numeric offset alone.
type Page struct {
	Items      []Listing `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
