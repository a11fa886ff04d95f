package handlers

import (
	"time"

	"github.com/patrickmn/go-cache"

	"treeline/internal/models"
	"treeline/internal/services"
)

// StatsCache memoizes per-project subtree statistics for a short period.
// Mutation handlers invalidate it with the affected-project-id sets the
// tree engine returns, so a cached entry never outlives a structural
// change to its subtree by more than the handler round-trip.
type StatsCache struct {
	entries *cache.Cache
}

// NewStatsCache creates a stats cache with the given entry lifetime.
func NewStatsCache(ttl time.Duration) *StatsCache {
	return &StatsCache{
		entries: cache.New(ttl, 2*ttl),
	}
}

type cachedProjectStats struct {
	Stats    map[string]services.SectionStats
	Children []models.ProjectChild
}

func statsKey(company, projectID string, state models.EntityVisibility) string {
	return company + "/" + projectID + "/" + string(state)
}

// Get returns the cached entry for one project, if present.
func (sc *StatsCache) Get(company, projectID string, state models.EntityVisibility) (*cachedProjectStats, bool) {
	value, found := sc.entries.Get(statsKey(company, projectID, state))
	if !found {
		return nil, false
	}
	entry, ok := value.(*cachedProjectStats)
	return entry, ok
}

// Set stores one project's stats under the visibility it was computed for.
func (sc *StatsCache) Set(company, projectID string, state models.EntityVisibility, entry *cachedProjectStats) {
	sc.entries.Set(statsKey(company, projectID, state), entry, cache.DefaultExpiration)
}

// Invalidate drops every visibility variant for the given project ids.
func (sc *StatsCache) Invalidate(company string, projectIDs ...string) {
	states := []models.EntityVisibility{"", models.VisibilityActive, models.VisibilityArchived}
	for _, id := range projectIDs {
		for _, state := range states {
			sc.entries.Delete(statsKey(company, id, state))
		}
	}
}
