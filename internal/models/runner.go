package models

import "time"

// Runner job states as reported by the execution platform
const (
	JobStateRunning  = "running"
	JobStateFinished = "finished"
	JobStateStopped  = "stopped"
	JobStateUnknown  = "unknown"
)

// ExitSignalFailure is the exit signal the runner reports alongside its
// "no results found" output when a search matched nothing. Combined with
// that phrase it is a terminal, non-error completion.
const ExitSignalFailure = 1

// LaunchParams is the parameter bag handed to the runner for one job.
// Planner-computed values are merged with caller overrides before launch;
// caller-supplied values take precedence.
type LaunchParams struct {
	Template    string `json:"template"`
	ResultCount int    `json:"result_count"`
	StartPage   int    `json:"start_page,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
}

// LaunchOverrides carries caller-supplied values that replace the
// planner-computed launch parameters. Zero values mean "no override".
type LaunchOverrides struct {
	Template    string `json:"template,omitempty"`
	ResultCount int    `json:"result_count,omitempty"`
	StartPage   int    `json:"start_page,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
}

// Apply merges the overrides onto planner-computed params
func (o *LaunchOverrides) Apply(params LaunchParams) LaunchParams {
	if o == nil {
		return params
	}
	if o.Template != "" {
		params.Template = o.Template
	}
	if o.ResultCount > 0 {
		params.ResultCount = o.ResultCount
	}
	if o.StartPage > 0 {
		params.StartPage = o.StartPage
	}
	if o.PageCount > 0 {
		params.PageCount = o.PageCount
	}
	return params
}

// JobStatus is the runner's view of one launched job. Output is free text
// whose terminal phrases the recovery chain and classifier inspect.
type JobStatus struct {
	Handle     string        `json:"handle"`
	State      string        `json:"state"`
	Output     string        `json:"output,omitempty"`
	ExitSignal int           `json:"exit_signal"`
	EndType    string        `json:"end_type,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (s *JobStatus) Finished() bool {
	return s.State == JobStateFinished || s.State == JobStateStopped
}
