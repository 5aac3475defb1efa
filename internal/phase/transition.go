package phase

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single transition.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Transition tracks one request to move between phases.
type Transition struct {
	ID          string     `json:"id"`
	From        Phase      `json:"from_phase"`
	To          Phase      `json:"to_phase"`
	Trigger     Trigger    `json:"trigger"`
	Status      Status     `json:"status"`
	TriggeredAt time.Time  `json:"triggered_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Errors      []string   `json:"errors,omitempty"`
}

// Error codes for the transition engine taxonomy.
const (
	CodeValidationFailed          = "VALIDATION_FAILED"
	CodePermissionDenied          = "PERMISSION_DENIED"
	CodeTransitionRequestFailed   = "TRANSITION_REQUEST_FAILED"
	CodeTransitionExecutionFailed = "TRANSITION_EXECUTION_FAILED"
	CodeInitializationFailed      = "INITIALIZATION_FAILED"
)

// Error is the structured failure surfaced to callers of the manager.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, message string, details map[string]any, now time.Time) *Error {
	return &Error{Code: code, Message: message, Details: details, Timestamp: now}
}
