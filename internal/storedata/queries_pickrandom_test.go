package storedata

import (
	"database/sql"
	"testing"
)

func withLastViewed(id string, ms int64) *Photo {
	return &Photo{PhotoID: id, LastViewedAt: sql.NullInt64{Int64: ms, Valid: true}}
}

func unseen(id string) *Photo {
	return &Photo{PhotoID: id}
}

func TestPickRandom_restrictsToLowestLastViewedGroup(t *testing.T) {
	photos := []*Photo{unseen("old"), withLastViewed("recent", 100)}

	for i := 0; i < 50; i++ {
		got := PickRandom(photos)
		if got.PhotoID != "old" {
			t.Fatalf("PickRandom() = %q, want old (the only unseen/NULL candidate) every time", got.PhotoID)
		}
	}
}

func TestPickRandom_breaksTiesAmongEqualLastViewed(t *testing.T) {
	photos := []*Photo{
		withLastViewed("a", 100),
		withLastViewed("b", 100),
		withLastViewed("c", 200),
	}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := PickRandom(photos)
		if got.PhotoID == "c" {
			t.Fatalf("PickRandom() picked %q, which has a higher lastViewedAt than the tie group", got.PhotoID)
		}
		seen[got.PhotoID] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("PickRandom() over many draws only returned %v, want both a and b represented", seen)
	}
}

func TestPickRandom_restrictsToLowestAmongMultipleUnseen(t *testing.T) {
	photos := []*Photo{unseen("a"), unseen("b"), withLastViewed("c", 1)}

	for i := 0; i < 50; i++ {
		got := PickRandom(photos)
		if got.PhotoID == "c" {
			t.Fatal("PickRandom() picked a viewed photo while unseen candidates remained")
		}
	}
}

func TestPickRandom_emptySliceReturnsNil(t *testing.T) {
	if got := PickRandom(nil); got != nil {
		t.Errorf("PickRandom(nil) = %v, want nil", got)
	}
}
