package models

import "strings"

// Connection degree values as the runner should emit them. The runner
// sometimes emits the legacy "2d" spelling for second-degree connections;
// NormalizeDegree rewrites that single variant to its canonical form.
const (
	DegreeFirst  = "1st"
	DegreeSecond = "2nd"
	DegreeThird  = "3rd"

	legacyDegreeSecond = "2d"
)

// Lead is one record relayed from a finished runner job. The engine treats
// leads as opaque beyond the identity fields used for deduplication and the
// connection degree normalized at the boundary.
type Lead struct {
	ProfileID        string                 `json:"profile_id,omitempty"`
	ProfileURL       string                 `json:"profile_url,omitempty"`
	FullName         string                 `json:"full_name,omitempty"`
	Headline         string                 `json:"headline,omitempty"`
	Company          string                 `json:"company,omitempty"`
	Location         string                 `json:"location,omitempty"`
	ConnectionDegree string                 `json:"connection_degree,omitempty"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
	// Incomplete is set during post-processing when every identity field
	// is empty
	Incomplete bool `json:"incomplete,omitempty"`
}

// DedupeKey is the composite identity used to collapse duplicate leads
// within one recovered batch.
func (l *Lead) DedupeKey() string {
	return strings.ToLower(l.ProfileID) + "|" + strings.ToLower(l.FullName)
}

// IsIncomplete reports whether every identity field is empty. A batch made
// up entirely of incomplete leads reliably indicates a masked no-results
// condition from the runner.
func (l *Lead) IsIncomplete() bool {
	return strings.TrimSpace(l.ProfileID) == "" &&
		strings.TrimSpace(l.ProfileURL) == "" &&
		strings.TrimSpace(l.FullName) == ""
}

// NormalizeDegree rewrites the single known legacy spelling to canonical
// form. All other values pass through unchanged.
func NormalizeDegree(degree string) string {
	if degree == legacyDegreeSecond {
		return DegreeSecond
	}
	return degree
}
