package matching

import (
	"reflect"
	"testing"
)

func TestNormalizeInterests(t *testing.T) {
	got := NormalizeInterests([]string{" Music", "travel", "", "MUSIC", "  ", "Art "})
	want := []string{"music", "travel", "art"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := NormalizeInterests(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCommonInterests_OrderFollowsFirstArgument(t *testing.T) {
	got := CommonInterests([]string{"c", "a", "b"}, []string{"B", "C"})
	want := []string{"c", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCommonInterests_IsSubsetOfBoth(t *testing.T) {
	a := []string{"music", "travel", "chess"}
	b := []string{"chess", "art", "music"}

	for _, in := range CommonInterests(a, b) {
		if !contains(a, in) || !contains(b, in) {
			t.Errorf("%q is not in both sets", in)
		}
	}
}

func TestOverlapScore(t *testing.T) {
	if s := OverlapScore([]string{"a", "b", "c"}, []string{"C", "b", "x"}); s != 2 {
		t.Fatalf("expected 2, got %d", s)
	}
	if s := OverlapScore(nil, []string{"a"}); s != 0 {
		t.Fatalf("expected 0, got %d", s)
	}
}

func TestBestOverlap_HighestScoreWins(t *testing.T) {
	candidates := []Candidate{
		{UserID: "one", Interests: []string{"music"}},
		{UserID: "two", Interests: []string{"music", "travel"}},
		{UserID: "three", Interests: []string{"art"}},
	}

	best, common, ok := BestOverlap([]string{"music", "travel"}, candidates)
	if !ok || best.UserID != "two" {
		t.Fatalf("expected two, got %+v ok=%v", best, ok)
	}
	if !reflect.DeepEqual(common, []string{"music", "travel"}) {
		t.Errorf("unexpected common interests %v", common)
	}
}

func TestBestOverlap_TieGoesToFirst(t *testing.T) {
	candidates := []Candidate{
		{UserID: "first", Interests: []string{"music"}},
		{UserID: "second", Interests: []string{"music"}},
	}
	best, _, ok := BestOverlap([]string{"music"}, candidates)
	if !ok || best.UserID != "first" {
		t.Fatalf("expected first, got %+v", best)
	}
}

func TestBestOverlap_ZeroScoresExcluded(t *testing.T) {
	candidates := []Candidate{{UserID: "x", Interests: []string{"art"}}}
	if _, _, ok := BestOverlap([]string{"music"}, candidates); ok {
		t.Fatal("zero-score candidate must not be returned")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
