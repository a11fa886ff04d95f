package handlers

import (
	"testing"
	"time"

	"treeline/internal/models"
	"treeline/internal/services"
)

func TestStatsCacheRoundtrip(t *testing.T) {
	sc := NewStatsCache(time.Minute)
	entry := &cachedProjectStats{
		Stats: map[string]services.SectionStats{
			"active": {TotalRuntime: 42, StatusCount: map[string]int{"completed": 1}},
		},
		Children: []models.ProjectChild{{ID: "c1", Name: "p/c1"}},
	}

	sc.Set("acme", "p1", models.VisibilityActive, entry)

	got, found := sc.Get("acme", "p1", models.VisibilityActive)
	if !found {
		t.Fatal("entry not found after Set")
	}
	if got.Stats["active"].TotalRuntime != 42 {
		t.Errorf("cached runtime = %d, want 42", got.Stats["active"].TotalRuntime)
	}

	// Different visibility or tenant must miss.
	if _, found := sc.Get("acme", "p1", models.VisibilityArchived); found {
		t.Error("archived-state lookup must not hit the active-state entry")
	}
	if _, found := sc.Get("other", "p1", models.VisibilityActive); found {
		t.Error("other tenant must not hit the entry")
	}
}

func TestStatsCacheInvalidate(t *testing.T) {
	sc := NewStatsCache(time.Minute)
	for _, state := range []models.EntityVisibility{"", models.VisibilityActive, models.VisibilityArchived} {
		sc.Set("acme", "p1", state, &cachedProjectStats{})
		sc.Set("acme", "p2", state, &cachedProjectStats{})
	}

	sc.Invalidate("acme", "p1")

	for _, state := range []models.EntityVisibility{"", models.VisibilityActive, models.VisibilityArchived} {
		if _, found := sc.Get("acme", "p1", state); found {
			t.Errorf("p1 entry for state %q survived invalidation", state)
		}
		if _, found := sc.Get("acme", "p2", state); !found {
			t.Errorf("p2 entry for state %q was dropped by p1 invalidation", state)
		}
	}
}
