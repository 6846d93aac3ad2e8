package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no transition may leave s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransition reports whether a run in state s may move to next.
// pending may fail directly when the input is rejected.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusRunning || next.Terminal()
	default:
		return false
	}
}

// LogStatus is the outcome of a single log entry
type LogStatus string

const (
	LogStatusOK    LogStatus = "ok"
	LogStatusError LogStatus = "error"
)

// ErrorKind categorizes why a step or run failed
type ErrorKind string

const (
	ErrorKindValidation            ErrorKind = "ValidationError"
	ErrorKindAdapterContract       ErrorKind = "AdapterContractError"
	ErrorKindAdapterInvocation     ErrorKind = "AdapterInvocationError"
	ErrorKindTimeout               ErrorKind = "TimeoutError"
	ErrorKindCancelled             ErrorKind = "Cancelled"
	ErrorKindUnresolvableReference ErrorKind = "UnresolvableReference"
	ErrorKindStore                 ErrorKind = "StoreError"
)

// Run represents one execution of a workflow against an input payload
type Run struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	WorkflowName  string     `json:"workflow_name,omitempty"`
	InputPayload  Payload    `json:"input_payload"`
	Status        RunStatus  `json:"status"`
	OutputPayload Payload    `json:"output_payload"`
	Log           []LogEntry `json:"log"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// LogEntry records the execution of one step. StepID 0 is reserved for
// run-level entries such as input validation failures.
type LogEntry struct {
	StepID        int        `json:"step_id"`
	ComponentID   string     `json:"component_id,omitempty"`
	ComponentName string     `json:"component_name,omitempty"`
	Status        LogStatus  `json:"status"`
	InputPayload  Payload    `json:"input_payload"`
	OutputPayload Payload    `json:"output_payload"`
	Error         *StepError `json:"error,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
}

// StepError describes a failed log entry
type StepError struct {
	Kind       ErrorKind   `json:"kind"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

// StatusUpdate is a run state transition as persisted by a run store.
type StatusUpdate struct {
	Status        RunStatus
	StartedAt     *time.Time
	FinishedAt    *time.Time
	OutputPayload Payload
}
