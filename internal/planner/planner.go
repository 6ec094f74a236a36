// Package planner computes the per-source allocation for a distribution
// session before any job is launched. Pure functions only: no side effects,
// no I/O, no clock.
package planner

import (
	"math"
	"sort"

	"github.com/ternarybob/disperse/internal/models"
)

// Plan divides a bounded total-result quota across prioritized sources.
//
// When every source carries pre-computed pagination hints the allocation is
// taken from those hints verbatim; this path trusts an upstream planner and
// performs no weighting. Otherwise sources are sorted by ascending priority
// (lower number = higher priority) and each receives
// round(quota * (1/priority) / sum(1/priority_i)) units.
//
// Rounding may cause the sum of allocations to differ from the quota by up
// to len(sources); this slack is accepted and never redistributed.
func Plan(sources []models.SourceInput, quota int) ([]models.SourceAllocation, error) {
	if len(sources) == 0 {
		return nil, &models.ConfigurationError{Reason: "source list is empty"}
	}
	if quota <= 0 {
		return nil, &models.ConfigurationError{Reason: "quota must be positive"}
	}
	for i := range sources {
		if sources[i].Priority < 1 {
			return nil, &models.ConfigurationError{Reason: "source priority must be at least 1"}
		}
	}

	if allHaveHints(sources) {
		return planFromHints(sources), nil
	}

	return planWeighted(sources, quota), nil
}

// allHaveHints reports whether every source carries an explicit page window
func allHaveHints(sources []models.SourceInput) bool {
	for i := range sources {
		if !sources[i].HasHints() {
			return false
		}
	}
	return true
}

// planFromHints passes the caller's page ranges through unchanged. Sequence
// order follows input order; the running offset still accumulates so each
// source owns a contiguous index range for bookkeeping.
func planFromHints(sources []models.SourceInput) []models.SourceAllocation {
	allocations := make([]models.SourceAllocation, 0, len(sources))
	offset := 0

	for i, src := range sources {
		allocated := src.Allocated
		alloc := models.SourceAllocation{
			SourceID:      src.SourceID,
			Template:      src.Template,
			Priority:      src.Priority,
			Allocated:     allocated,
			SequenceOrder: i + 1,
			StartPage:     src.StartPage,
			PageCount:     src.PageCount,
			StartOffset:   offset,
			EndOffset:     offset + allocated,
		}
		offset += allocated
		allocations = append(allocations, alloc)
	}

	return allocations
}

// planWeighted allocates by inverse priority weight
func planWeighted(sources []models.SourceInput, quota int) []models.SourceAllocation {
	ordered := make([]models.SourceInput, len(sources))
	copy(ordered, sources)

	// Stable sort keeps the caller's order for equal priorities
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	totalWeight := 0.0
	for i := range ordered {
		totalWeight += 1.0 / float64(ordered[i].Priority)
	}

	allocations := make([]models.SourceAllocation, 0, len(ordered))
	offset := 0

	for i, src := range ordered {
		weight := 1.0 / float64(src.Priority)
		allocated := int(math.Round(float64(quota) * weight / totalWeight))

		alloc := models.SourceAllocation{
			SourceID:      src.SourceID,
			Template:      src.Template,
			Priority:      src.Priority,
			Allocated:     allocated,
			SequenceOrder: i + 1,
			StartOffset:   offset,
			EndOffset:     offset + allocated,
		}
		offset += allocated
		allocations = append(allocations, alloc)
	}

	return allocations
}
