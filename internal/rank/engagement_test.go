package rank

import (
	"testing"

	"github.com/openpantry/listings/internal/model"
)

func listingWithScore(title string, views, likes int64) model.Listing {
	return model.Listing{Title: title, Views: views, Likes: likes}
}

func TestScoreWeighsLikesDouble(t *testing.T) {
	l := listingWithScore("soup", 10, 5)
	if got := Score(l); got != 20 {
		t.Errorf("expected score 20, got %d", got)
	}
}

func TestByEngagementStableOnTies(t *testing.T) {
	// Scores: 10, 30, 20, 30. The two score-30 listings must keep their
	// original relative order.
	items := []model.Listing{
		listingWithScore("a", 10, 0),
		listingWithScore("b", 30, 0),
		listingWithScore("c", 20, 0),
		listingWithScore("d", 10, 10),
	}

	ByEngagement(items)

	want := []string{"b", "d", "c", "a"}
	for i, title := range want {
		if items[i].Title != title {
			t.Errorf("position %d: expected %q, got %q", i, title, items[i].Title)
		}
	}
}

func TestTopNTruncates(t *testing.T) {
	items := []model.Listing{
		listingWithScore("low", 1, 0),
		listingWithScore("high", 100, 0),
		listingWithScore("mid", 50, 0),
	}

	top := TopN(items, 2)

	if len(top) != 2 {
		t.Fatalf("expected 2 items, got %d", len(top))
	}
	if top[0].Title != "high" || top[1].Title != "mid" {
		t.Errorf("expected [high mid], got [%s %s]", top[0].Title, top[1].Title)
	}
}

func TestTopNShorterThanLimit(t *testing.T) {
	items := []model.Listing{listingWithScore("only", 1, 0)}

	top := TopN(items, 5)

	if len(top) != 1 {
		t.Fatalf("expected 1 item, got %d", len(top))
	}
}
