package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/openpantry/listings/internal/limiter"
	"github.com/openpantry/listings/internal/model"
	"go.uber.org/zap"
)

// Pagination defaults. The limit is capped so one request cannot drain the
// outbound budget with an oversized candidate fetch.
const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service is the listing surface the HTTP layer exposes.
type Service interface {
	Nearby(ctx context.Context, center model.GeoPoint, radiusKm float64, limit, offset int, typeFilter string) (model.Page, error)
	Recent(ctx context.Context, limit, offset int, typeFilter string) (model.Page, error)
	Trending(ctx context.Context, center model.GeoPoint, radiusKm float64, limit int) ([]model.Listing, error)
	Filtered(ctx context.Context, q model.Query) (model.Page, error)
	ByID(ctx context.Context, id uuid.UUID) (model.Listing, error)
}

// ListingsHandler handles listing read operations
type ListingsHandler struct {
	service Service
	logger  *zap.Logger
}

// NewListingsHandler creates a new listings handler
func NewListingsHandler(service Service, logger *zap.Logger) *ListingsHandler {
	return &ListingsHandler{
		service: service,
		logger:  logger,
	}
}

// Nearby handles GET /v1/listings/nearby - listings around a point
func (h *ListingsHandler) Nearby() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center, radiusKm, err := parseCenter(r, true)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit, offset, err := parsePagination(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		page, err := h.service.Nearby(r.Context(), *center, radiusKm, limit, offset, r.URL.Query().Get("type"))
		if err != nil {
			h.writeServiceError(w, "nearby", err)
			return
		}

		h.writeJSON(w, http.StatusOK, pageResponse(page))
	}
}

// Recent handles GET /v1/listings/recent - newest listings
func (h *ListingsHandler) Recent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePagination(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		page, err := h.service.Recent(r.Context(), limit, offset, r.URL.Query().Get("type"))
		if err != nil {
			h.writeServiceError(w, "recent", err)
			return
		}

		h.writeJSON(w, http.StatusOK, pageResponse(page))
	}
}

// Trending handles GET /v1/listings/trending - engagement-ranked listings
func (h *ListingsHandler) Trending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center, radiusKm, err := parseCenter(r, true)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit, _, err := parsePagination(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		items, err := h.service.Trending(r.Context(), *center, radiusKm, limit)
		if err != nil {
			h.writeServiceError(w, "trending", err)
			return
		}

		h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// List handles GET /v1/listings - filtered search
func (h *ListingsHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center, radiusKm, err := parseCenter(r, false)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit, offset, err := parsePagination(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		params := r.URL.Query()
		sort := model.SortOption(params.Get("sort"))
		switch sort {
		case "", model.SortNewest, model.SortClosest, model.SortPopular:
		default:
			h.writeError(w, http.StatusBadRequest, "invalid sort: "+params.Get("sort"))
			return
		}
		if sort == model.SortClosest && center == nil {
			h.writeError(w, http.StatusBadRequest, "sort=closest requires lat and lng")
			return
		}

		q := model.Query{
			Center:     center,
			RadiusKm:   radiusKm,
			Limit:      limit,
			Offset:     offset,
			Cursor:     params.Get("cursor"),
			Type:       params.Get("type"),
			CategoryID: params.Get("category_id"),
			Sort:       sort,
		}

		page, err := h.service.Filtered(r.Context(), q)
		if err != nil {
			h.writeServiceError(w, "list", err)
			return
		}

		h.writeJSON(w, http.StatusOK, pageResponse(page))
	}
}

// ByID handles GET /v1/listings/{id} - single listing detail
func (h *ListingsHandler) ByID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, err := uuid.Parse(vars["id"])
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid listing id")
			return
		}

		listing, err := h.service.ByID(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, "by_id", err)
			return
		}

		h.writeJSON(w, http.StatusOK, listing)
	}
}

// Helper methods

func pageResponse(page model.Page) map[string]any {
	resp := map[string]any{"items": page.Items}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	return resp
}

// parseCenter reads lat/lng/radius_km. When required is false a missing pair
// yields a nil center; a half-specified pair is always an error.
func parseCenter(r *http.Request, required bool) (*model.GeoPoint, float64, error) {
	params := r.URL.Query()
	latStr, lngStr := params.Get("lat"), params.Get("lng")

	if latStr == "" && lngStr == "" {
		if required {
			return nil, 0, errors.New("lat and lng are required")
		}
		return nil, 0, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, 0, errors.New("lat and lng must be provided together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, 0, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, 0, errors.New("invalid lng")
	}

	radiusKm := 10.0
	if s := params.Get("radius_km"); s != "" {
		radiusKm, err = strconv.ParseFloat(s, 64)
		if err != nil || radiusKm <= 0 {
			return nil, 0, errors.New("invalid radius_km")
		}
	}

	return &model.GeoPoint{Lat: lat, Lng: lng}, radiusKm, nil
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	params := r.URL.Query()

	limit = defaultLimit
	if s := params.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	if s := params.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}

	return limit, offset, nil
}

// writeServiceError maps domain errors onto HTTP statuses. Transient errors
// mean both upstream paths failed, so the request is retryable.
func (h *ListingsHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var decodeErr *model.DecodeError

	switch {
	case errors.Is(err, model.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, model.ErrUnauthorized):
		h.logger.Error("upstream rejected credentials", zap.String("op", op), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "upstream authorization failed")
	case errors.As(err, &decodeErr):
		h.logger.Error("upstream returned malformed payload", zap.String("op", op), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "upstream returned malformed data")
	case errors.Is(err, limiter.ErrLimitExceeded):
		h.writeError(w, http.StatusTooManyRequests, "request budget exhausted")
	case model.IsTransient(err):
		h.logger.Error("all upstream paths failed", zap.String("op", op), zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "listings temporarily unavailable")
	default:
		h.logger.Error("listing fetch failed", zap.String("op", op), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *ListingsHandler) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *ListingsHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, map[string]string{"error": message})
}
