package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/disperse/internal/models"
)

func TestPostprocessDedupe(t *testing.T) {
	records := []*models.Lead{
		{ProfileID: "p1", FullName: "Ada Lovelace"},
		{ProfileID: "P1", FullName: "ada lovelace"}, // case-insensitive duplicate
		{ProfileID: "p2", FullName: "Grace Hopper"},
		{ProfileID: "p1", FullName: "Ada Lovelace"},
	}

	result, allIncomplete := Postprocess(records)

	assert.False(t, allIncomplete)
	require.Len(t, result, 2)
	assert.Equal(t, "p1", result[0].ProfileID)
	assert.Equal(t, "p2", result[1].ProfileID)
}

func TestPostprocessNormalizesLegacyDegree(t *testing.T) {
	records := []*models.Lead{
		{ProfileID: "p1", FullName: "Ada", ConnectionDegree: "2d"},
		{ProfileID: "p2", FullName: "Grace", ConnectionDegree: "2nd"},
		{ProfileID: "p3", FullName: "Katherine", ConnectionDegree: "3rd"},
	}

	result, _ := Postprocess(records)

	require.Len(t, result, 3)
	assert.Equal(t, models.DegreeSecond, result[0].ConnectionDegree)
	assert.Equal(t, models.DegreeSecond, result[1].ConnectionDegree)
	assert.Equal(t, models.DegreeThird, result[2].ConnectionDegree)
}

func TestPostprocessFlagsIncomplete(t *testing.T) {
	records := []*models.Lead{
		{ProfileID: "p1", FullName: "Ada"},
		{Headline: "only a headline, no identity"},
	}

	result, allIncomplete := Postprocess(records)

	assert.False(t, allIncomplete)
	require.Len(t, result, 2)
	assert.False(t, result[0].Incomplete)
	assert.True(t, result[1].Incomplete)
}

func TestPostprocessAllIncomplete(t *testing.T) {
	// Every identity field empty across the whole batch: the masked
	// no-results shape the recovery chain escalates on
	records := []*models.Lead{
		{Headline: "x"},
		{Company: "Acme", Location: "Berlin"},
	}

	result, allIncomplete := Postprocess(records)

	assert.True(t, allIncomplete)
	assert.Len(t, result, 2)
}

func TestPostprocessEmptyAndNil(t *testing.T) {
	result, allIncomplete := Postprocess(nil)
	assert.Nil(t, result)
	assert.False(t, allIncomplete)

	result, allIncomplete = Postprocess([]*models.Lead{nil})
	assert.Empty(t, result)
	assert.False(t, allIncomplete)
}

func TestPostprocessIncompleteRecordsNotDeduped(t *testing.T) {
	// Incomplete records all share the empty dedupe key; they must be kept
	// individually so the caller can see the batch size
	records := []*models.Lead{
		{Headline: "a"},
		{Headline: "b"},
		{Headline: "c"},
	}

	result, allIncomplete := Postprocess(records)

	assert.True(t, allIncomplete)
	assert.Len(t, result, 3)
}
