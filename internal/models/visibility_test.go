package models

import (
	"testing"
)

func TestVisibilitySections(t *testing.T) {
	both := EntityVisibility("").Sections()
	if len(both) != 2 {
		t.Fatalf("unfiltered visibility yields %d sections, want 2", len(both))
	}
	active := VisibilityActive.Sections()
	if len(active) != 1 || active[0] != VisibilityActive {
		t.Fatalf("active visibility yields %v, want [active]", active)
	}
}
