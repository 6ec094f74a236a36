package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/disperse/internal/models"
)

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		expected models.ErrorCategory
	}{
		{"credits", "Error: no more credits remaining on this account", models.CategoryCreditsExhausted},
		{"credits time limit", "execution time limit reached for this period", models.CategoryCreditsExhausted},
		{"arguments", "launch rejected: invalid argument 'searches'", models.CategoryArgumentValidation},
		{"no results", "Scrape finished. No results found for this search.", models.CategoryNoResultsFound},
		{"auth", "your session cookie has expired, please log in again", models.CategoryAuthentication},
		{"permission", "403 Forbidden: account lacks access to this feature", models.CategoryPermission},
		{"agent missing", "agent not found for the given identifier", models.CategoryAgentNotFound},
		{"connectivity", "request timed out while contacting endpoint", models.CategoryConnectivity},
		{"rate limit", "HTTP 429: too many requests, slow down", models.CategoryRateLimit},
		{"stopped", "container was manually stopped before completion", models.CategoryManuallyStopped},
		{"malformed", "SyntaxError: unexpected token < in JSON at position 0", models.CategoryMalformedData},
		{"unknown", "something nobody has ever seen before", models.CategoryUnknown},
		{"empty", "", models.CategoryUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Classify(tc.text)
			assert.Equal(t, tc.expected, result.Category)
		})
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// "no more credits" and "session cookie" both present: credits is
	// evaluated earlier in the table and must win
	result := Classify("no more credits; also your session cookie looks stale")
	assert.Equal(t, models.CategoryCreditsExhausted, result.Category)

	// agent_not_found ranks above connectivity even when a timeout phrase
	// is also present
	result = Classify("agent not found after request timed out")
	assert.Equal(t, models.CategoryArgumentValidation, Classify("invalid argument and no results found").Category)
	assert.Equal(t, models.CategoryAgentNotFound, result.Category)
}

func TestClassifyTableOrderIsContract(t *testing.T) {
	// The taxonomy evaluation order is part of the contract; a reordering
	// of the table is a behavior change and must fail this test.
	expected := []models.ErrorCategory{
		models.CategoryCreditsExhausted,
		models.CategoryArgumentValidation,
		models.CategoryNoResultsFound,
		models.CategoryAuthentication,
		models.CategoryPermission,
		models.CategoryAgentNotFound,
		models.CategoryConnectivity,
		models.CategoryRateLimit,
		models.CategoryManuallyStopped,
		models.CategoryMalformedData,
		models.CategoryUnknown,
	}
	assert.Equal(t, expected, Categories())
}

func TestClassifyLowerCasesInput(t *testing.T) {
	result := Classify("NO MORE CREDITS")
	assert.Equal(t, models.CategoryCreditsExhausted, result.Category)
}

func TestClassifyConcatenatesAllFields(t *testing.T) {
	result := Classify("exit status nonzero", "", "rate limit hit on page 3")
	assert.Equal(t, models.CategoryRateLimit, result.Category)
	assert.Equal(t, "rate limit", result.Details["matched_phrase"])
}
