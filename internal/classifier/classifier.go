// Package classifier assigns taxonomy categories to failed or ambiguous
// runner outcomes. Classification is phrase matching over the lower-cased
// concatenation of all available text, evaluated against an ordered rule
// table so the priority between overlapping phrases is a visible, testable
// artifact rather than implicit control flow.
package classifier

import (
	"strings"

	"github.com/ternarybob/disperse/internal/models"
)

// rule pairs a category with the phrases that select it
type rule struct {
	category models.ErrorCategory
	phrases  []string
}

// rules is evaluated top to bottom; the first matching category wins. The
// order is a hard contract: many phrases could plausibly match more than
// one category (credits before auth before generic connectivity).
var rules = []rule{
	{models.CategoryCreditsExhausted, []string{
		"no more credits",
		"credits exhausted",
		"out of credits",
		"credit limit reached",
		"execution time limit",
	}},
	{models.CategoryArgumentValidation, []string{
		"invalid argument",
		"invalid parameter",
		"argument validation",
		"missing required argument",
		"bad request",
	}},
	{models.CategoryNoResultsFound, []string{
		"no results found",
		"0 results found",
		"nothing to scrape",
		"no new results",
	}},
	{models.CategoryAuthentication, []string{
		"session cookie",
		"not logged in",
		"authentication failed",
		"invalid session",
		"unauthorized",
		"login required",
	}},
	{models.CategoryPermission, []string{
		"permission denied",
		"forbidden",
		"access denied",
		"not allowed",
	}},
	{models.CategoryAgentNotFound, []string{
		"agent not found",
		"job not found",
		"container not found",
		"404",
	}},
	{models.CategoryConnectivity, []string{
		"connection refused",
		"connection reset",
		"network error",
		"timed out",
		"timeout",
		"dns",
		"unreachable",
	}},
	{models.CategoryRateLimit, []string{
		"rate limit",
		"too many requests",
		"429",
		"slow down",
	}},
	{models.CategoryManuallyStopped, []string{
		"manually stopped",
		"stopped by user",
		"aborted by user",
		"killed",
	}},
	{models.CategoryMalformedData, []string{
		"unexpected token",
		"parse error",
		"malformed",
		"invalid json",
		"unmarshal",
	}},
}

// Classify inspects the concatenated text of a runner response and returns
// the first matching taxonomy category. Unmatched text degrades to
// unknown_error; classification is diagnostic and never fails.
func Classify(texts ...string) models.Classification {
	haystack := strings.ToLower(strings.Join(texts, "\n"))

	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(haystack, phrase) {
				return models.Classification{
					Category: r.category,
					Message:  summarize(haystack, phrase),
					Details: map[string]interface{}{
						"matched_phrase": phrase,
					},
				}
			}
		}
	}

	return models.Classification{
		Category: models.CategoryUnknown,
		Message:  summarize(haystack, ""),
	}
}

// Categories returns the taxonomy in evaluation order
func Categories() []models.ErrorCategory {
	categories := make([]models.ErrorCategory, 0, len(rules)+1)
	for _, r := range rules {
		categories = append(categories, r.category)
	}
	return append(categories, models.CategoryUnknown)
}

// summarize produces a short human-readable message from the raw text
func summarize(text, phrase string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		if phrase != "" {
			return phrase
		}
		return "no output available"
	}

	// First non-empty line, capped so operator views stay readable
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 200 {
			return line[:200]
		}
		return line
	}
	return "no output available"
}
