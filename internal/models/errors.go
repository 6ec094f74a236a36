package models

import "fmt"

// ConfigurationError indicates invalid planner input (empty source list,
// non-positive quota). Fatal, surfaced immediately, never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// LaunchError indicates the runner rejected or could not be reached when
// launching a source. The source is marked failed; the session stays active
// so a subsequent Advance can pick a different pending source.
type LaunchError struct {
	SessionID string
	SourceID  string
	Err       error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed for source %s in session %s: %v", e.SourceID, e.SessionID, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// RecoveryExhausted indicates all recovery tiers failed without a clear
// classification. Reported upward as a not-found condition; retrying the
// same handle will not help.
type RecoveryExhausted struct {
	JobHandle string
	SessionID string
	SourceID  string
}

func (e *RecoveryExhausted) Error() string {
	return fmt.Sprintf("recovery exhausted for job %s (session=%s source=%s)", e.JobHandle, e.SessionID, e.SourceID)
}

// StoreError indicates a persistence layer failure. Always fatal and
// re-raised: the engine never proceeds without durable state because
// durability is what makes session resumption correct.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
