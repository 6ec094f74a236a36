package models

import "time"

// ErrorCategory is the taxonomy bucket assigned to a terminal or ambiguous
// runner outcome.
type ErrorCategory string

const (
	CategoryCreditsExhausted   ErrorCategory = "credits_exhausted"
	CategoryArgumentValidation ErrorCategory = "argument_validation_error"
	CategoryNoResultsFound     ErrorCategory = "no_results_found"
	CategoryAuthentication     ErrorCategory = "authentication_error"
	CategoryPermission         ErrorCategory = "permission_error"
	CategoryAgentNotFound      ErrorCategory = "agent_not_found"
	CategoryConnectivity       ErrorCategory = "connectivity_error"
	CategoryRateLimit          ErrorCategory = "rate_limit_error"
	CategoryManuallyStopped    ErrorCategory = "manually_stopped"
	CategoryMalformedData      ErrorCategory = "malformed_data_error"
	CategoryUnknown            ErrorCategory = "unknown_error"
)

// KnownError is one persisted row per job handle that produced a terminal or
// ambiguous failure. Upserted idempotently on repeated detection; marked
// resolved by an operator action.
type KnownError struct {
	JobHandle   string                 `json:"job_handle" badgerhold:"key"`
	Category    ErrorCategory          `json:"category" badgerhold:"index"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ExitSignal  int                    `json:"exit_signal"`
	EndType     string                 `json:"end_type,omitempty"`
	Duration    time.Duration          `json:"duration,omitempty"`
	Resolved    bool                   `json:"resolved"`
	Resolution  string                 `json:"resolution,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// Classification is the classifier's verdict for one raw runner response.
type Classification struct {
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}
