package models

import (
	"github.com/go-playground/validator/v10"
)

// SourceInput is one prioritized target supplied by the caller when a
// sequence is initialized. Pagination hints are optional; when every source
// carries them the planner trusts the upstream allocation verbatim. A blank
// SourceID is assigned a generated one at initialization.
type SourceInput struct {
	SourceID  string `json:"source_id,omitempty"`
	Template  string `json:"template" validate:"required"`
	Priority  int    `json:"priority" validate:"gte=1"`
	StartPage int    `json:"start_page,omitempty" validate:"gte=0"`
	PageCount int    `json:"page_count,omitempty" validate:"gte=0"`
	// Allocated carries an upstream-computed allocation alongside the
	// pagination hints. Only honored when every source in the request
	// supplies hints.
	Allocated int `json:"allocated,omitempty" validate:"gte=0"`
}

// HasHints reports whether the caller supplied an explicit page window
func (s *SourceInput) HasHints() bool {
	return s.PageCount > 0
}

// InitializeSequenceRequest starts or resumes a distribution sequence for a
// campaign.
type InitializeSequenceRequest struct {
	CampaignID string        `json:"campaign_id" validate:"required"`
	Sources    []SourceInput `json:"sources" validate:"required,min=1,dive"`
	Quota      int           `json:"quota" validate:"required,gt=0"`
}

// Validate validates the request using go-playground/validator.
func (r *InitializeSequenceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// AdvanceSequenceRequest launches the next pending source in a session.
type AdvanceSequenceRequest struct {
	SessionID string           `json:"session_id" validate:"required"`
	Overrides *LaunchOverrides `json:"overrides,omitempty"`
}

// Validate validates the request using go-playground/validator.
func (r *AdvanceSequenceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// RecoverResultsRequest asks the recovery chain to obtain the output of a
// finished (or expired) job.
type RecoverResultsRequest struct {
	SessionID string `json:"session_id,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	JobHandle string `json:"job_handle" validate:"required"`
}

// Validate validates the request using go-playground/validator.
func (r *RecoverResultsRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ResolveKnownErrorRequest records an operator resolution for a known error.
type ResolveKnownErrorRequest struct {
	JobHandle string `json:"job_handle" validate:"required"`
	Notes     string `json:"notes" validate:"required"`
}

// Validate validates the request using go-playground/validator.
func (r *ResolveKnownErrorRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
