package domain

import "testing"

func TestEnginesUsed(t *testing.T) {
	hits := []RawHit{
		{Engine: "google"},
		{Engine: "bing"},
		{Engine: "google"},
		{Engine: ""},
	}
	got := EnginesUsed(hits)
	want := []string{"google", "bing", "unknown"}
	if len(got) != len(want) {
		t.Fatalf("EnginesUsed() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnginesUsed()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
