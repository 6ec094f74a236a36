package recovery

import (
	"github.com/ternarybob/disperse/internal/models"
)

// Postprocess normalizes a recovered batch: deduplicates by the composite
// profile-id + name key, rewrites the legacy connection-degree spelling to
// canonical form, and flags records whose identity fields are entirely
// empty. The second return value reports whether the whole batch is
// incomplete, which reliably indicates a masked no-results condition and
// forces escalation to the output-text tier.
func Postprocess(records []*models.Lead) ([]*models.Lead, bool) {
	if len(records) == 0 {
		return nil, false
	}

	seen := make(map[string]bool, len(records))
	result := make([]*models.Lead, 0, len(records))
	incompleteCount := 0

	for _, record := range records {
		if record == nil {
			continue
		}

		record.ConnectionDegree = models.NormalizeDegree(record.ConnectionDegree)
		record.Incomplete = record.IsIncomplete()
		if record.Incomplete {
			incompleteCount++
			result = append(result, record)
			continue
		}

		key := record.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, record)
	}

	allIncomplete := len(result) > 0 && incompleteCount == len(result)
	return result, allIncomplete
}
