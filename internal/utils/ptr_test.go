package utils

import "testing"

func TestDerefFallsBackOnNil(t *testing.T) {
	if got := Deref[string](nil, "🔊"); got != "🔊" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := Deref(Ptr("alt"), "🔊"); got != "alt" {
		t.Fatalf("expected pointed value, got %q", got)
	}
}
