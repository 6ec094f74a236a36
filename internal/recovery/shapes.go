package recovery

import (
	"encoding/json"
	"strings"

	"github.com/ternarybob/disperse/internal/models"
)

// ShapeKind tags the normalized form of a runner result payload
type ShapeKind string

const (
	ShapeRecords     ShapeKind = "records"
	ShapeDownloadURL ShapeKind = "download_url"
	ShapeUnknown     ShapeKind = "unknown"
)

// ResultShape is the normalized view of whatever the runner handed back:
// inline records, a URL to fetch them from, or something unrecognizable.
type ResultShape struct {
	Kind        ShapeKind
	Records     []*models.Lead
	DownloadURL string
}

// recordFields are the object keys known to carry the record array when the
// payload is not a bare array.
var recordFields = []string{"resultObject", "records", "results", "data", "leads"}

// urlFields are the object keys known to carry a download URL instead of
// inline data.
var urlFields = []string{"downloadUrl", "download_url", "jsonUrl", "csvUrl", "resultUrl"}

// ParseResultPayload normalizes any of the runner's known payload shapes.
// The runner variously returns a bare record array, an object with a named
// array field, a serialized container whose string value is itself JSON, or
// an object pointing at a download URL. Anything else is ShapeUnknown.
func ParseResultPayload(raw json.RawMessage) ResultShape {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ResultShape{Kind: ShapeUnknown}
	}

	// Bare array of records
	if strings.HasPrefix(trimmed, "[") {
		if records, ok := parseRecordArray(raw); ok {
			return ResultShape{Kind: ShapeRecords, Records: records}
		}
		return ResultShape{Kind: ShapeUnknown}
	}

	// Double-encoded payload: a JSON string whose content is the real thing
	if strings.HasPrefix(trimmed, "\"") {
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			return ParseResultPayload(json.RawMessage(inner))
		}
		return ResultShape{Kind: ShapeUnknown}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ResultShape{Kind: ShapeUnknown}
	}

	for _, field := range urlFields {
		if value, ok := obj[field]; ok {
			var url string
			if err := json.Unmarshal(value, &url); err == nil && url != "" {
				return ResultShape{Kind: ShapeDownloadURL, DownloadURL: url}
			}
		}
	}

	for _, field := range recordFields {
		value, ok := obj[field]
		if !ok {
			continue
		}

		inner := strings.TrimSpace(string(value))
		if inner == "" || inner == "null" {
			continue
		}

		// The named field is sometimes a serialized string rather than an
		// inline array; recurse to handle both, including a string that
		// turns out to hold a download URL container.
		if strings.HasPrefix(inner, "\"") || strings.HasPrefix(inner, "[") || strings.HasPrefix(inner, "{") {
			shape := ParseResultPayload(value)
			if shape.Kind != ShapeUnknown {
				return shape
			}
		}
	}

	return ResultShape{Kind: ShapeUnknown}
}

func parseRecordArray(raw json.RawMessage) ([]*models.Lead, bool) {
	var records []*models.Lead
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	return records, true
}

// ExtractEmbeddedPayload finds a JSON document embedded in free-form job
// output. Runners often interleave log lines with the final serialized
// result; the first balanced array or object wins.
func ExtractEmbeddedPayload(output string) (json.RawMessage, bool) {
	for _, opener := range []byte{'[', '{'} {
		start := strings.IndexByte(output, opener)
		if start < 0 {
			continue
		}
		if candidate, ok := balancedSlice(output[start:], opener); ok {
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), true
			}
		}
	}
	return nil, false
}

func balancedSlice(s string, opener byte) (string, bool) {
	closer := byte(']')
	if opener == '{' {
		closer = '}'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
