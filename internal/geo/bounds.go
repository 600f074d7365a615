package geo

import (
	"math"

	"github.com/openpantry/listings/internal/model"
)

// kmPerDegree is the approximate length of one degree of latitude in
// kilometers. Longitude degrees shrink with the cosine of the latitude.
const kmPerDegree = 111.0

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBox returns the box approximating a radius search around center.
// The corners of the box lie farther than radiusKm from the center; this
// inaccuracy is the accepted trade-off of the fallback path and is kept as-is
// rather than replaced with a great-circle distance check.
func BoundingBox(center model.GeoPoint, radiusKm float64) Bounds {
	latDelta := radiusKm / kmPerDegree
	lngDelta := radiusKm / (kmPerDegree * math.Cos(center.Lat*math.Pi/180))

	return Bounds{
		MinLat: center.Lat - latDelta,
		MaxLat: center.Lat + latDelta,
		MinLng: center.Lng - lngDelta,
		MaxLng: center.Lng + lngDelta,
	}
}

// Contains reports whether p falls inside the box, boundaries included.
func (b Bounds) Contains(p model.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// FilterWithin returns the listings whose location falls inside the box,
// preserving order.
func FilterWithin(items []model.Listing, b Bounds) []model.Listing {
	filtered := make([]model.Listing, 0, len(items))
	for _, item := range items {
		if b.Contains(item.Location) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
