package models

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the lifecycle state of a distribution session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// SourceStatus represents the state of one prioritized source within a session
type SourceStatus string

const (
	SourceStatusPending   SourceStatus = "pending"
	SourceStatusRunning   SourceStatus = "running"
	SourceStatusCompleted SourceStatus = "completed"
	SourceStatusFailed    SourceStatus = "failed"
)

// DistributionSession is one full run of distributing a lead quota across an
// ordered list of sources. A campaign has at most one active session at a
// time; every mutation is persisted before the next step proceeds, which is
// what makes a session resumable across process restarts.
//
// Invariant: TotalDistributed + RemainingLeads == TotalQuota at all times,
// and CurrentSequence <= TotalSources.
type DistributionSession struct {
	SessionID        string                  `json:"session_id" badgerhold:"key"`
	CampaignID       string                  `json:"campaign_id" badgerhold:"index"`
	TotalQuota       int                     `json:"total_quota"`
	CurrentOffset    int                     `json:"current_offset"`
	TotalDistributed int                     `json:"total_distributed"`
	RemainingLeads   int                     `json:"remaining_leads"`
	CurrentSequence  int                     `json:"current_sequence"`
	TotalSources     int                     `json:"total_sources"`
	// SourcePlan is the ordered source configuration snapshot taken at
	// creation time. Immutable once the session exists; reruns and audits
	// read the plan from here, never from the caller's request.
	SourcePlan []SourceAllocation      `json:"source_plan"`
	History    []ExecutionHistoryEntry `json:"history"`
	Status     SessionStatus           `json:"status" badgerhold:"index"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// SourceAllocation is the planner's output for one source: its share of the
// quota plus the page window used for bookkeeping.
type SourceAllocation struct {
	SourceID      string `json:"source_id"`
	Template      string `json:"template"`
	Priority      int    `json:"priority"`
	Allocated     int    `json:"allocated"`
	SequenceOrder int    `json:"sequence_order"`
	StartPage     int    `json:"start_page"`
	PageCount     int    `json:"page_count"`
	// StartOffset/EndOffset form the contiguous, non-overlapping index range
	// assigned to this source within the session's total quota.
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
}

// SourceState is the persisted per-source execution record. Exactly one
// SourceState per session is running at any time; sequence order is the
// total order used to pick the next pending source.
type SourceState struct {
	Key           string       `json:"-" badgerhold:"key"` // "<session_id>|<source_id>"
	SessionID     string       `json:"session_id" badgerhold:"index"`
	SourceID      string       `json:"source_id"`
	Template      string       `json:"template"`
	Priority      int          `json:"priority"`
	SequenceOrder int          `json:"sequence_order" badgerhold:"index"`
	Allocated     int          `json:"allocated"`
	StartPage     int          `json:"start_page"`
	PageCount     int          `json:"page_count"`
	JobHandle     string       `json:"job_handle,omitempty"`
	Status        SourceStatus `json:"status" badgerhold:"index"`
	ResultCount   int          `json:"result_count"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// StateKey builds the composite storage key for a source state
func StateKey(sessionID, sourceID string) string {
	return sessionID + "|" + sourceID
}

// ExecutionHistoryEntry is one append-only audit record in a session's
// execution log.
type ExecutionHistoryEntry struct {
	Event     string    `json:"event"` // "initialized", "launched", "recovered", "launch_failed", "stale_failed", "session_completed"
	SourceID  string    `json:"source_id,omitempty"`
	JobHandle string    `json:"job_handle,omitempty"`
	Allocated int       `json:"allocated,omitempty"`
	Results   int       `json:"results,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON serializes the session for logging and API responses
func (s *DistributionSession) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NextPending returns the first pending state in ascending sequence order,
// or nil when no source remains pending. States must already be ordered.
func NextPending(states []*SourceState) *SourceState {
	for _, st := range states {
		if st.Status == SourceStatusPending {
			return st
		}
	}
	return nil
}
