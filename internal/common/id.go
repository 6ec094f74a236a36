package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID generates a short unique session ID with the "ses_" prefix.
// Format: ses_<first uuid block>
func NewSessionID() string {
	return "ses_" + strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// NewSourceID generates a unique source ID with the "src_" prefix for
// callers that do not supply their own.
func NewSourceID() string {
	return "src_" + uuid.New().String()
}
