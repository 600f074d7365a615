package rank

import (
	"sort"

	"github.com/openpantry/listings/internal/model"
)

// CandidateFactor is how many times the requested limit the fallback path
// fetches before re-ranking, so that listings that would have trended
// server-side are less likely to be cut off by pagination. Tunable.
const CandidateFactor = 2

// Score is the engagement score of a listing. Likes weigh double views,
// matching the server-side trending formula.
func Score(l model.Listing) int64 {
	return l.Views + l.Likes*2
}

// ByEngagement sorts listings by descending engagement score in place.
// The sort is stable: listings with equal scores keep their relative order.
func ByEngagement(items []model.Listing) {
	sort.SliceStable(items, func(i, j int) bool {
		return Score(items[i]) > Score(items[j])
	})
}

// TopN re-ranks items by engagement and truncates to at most n.
func TopN(items []model.Listing, n int) []model.Listing {
	ByEngagement(items)
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}
