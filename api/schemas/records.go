package schemas

import "time"

// SessionState is the externally visible state of an objective's session.
type SessionState string

const (
	StatePlanning         SessionState = "PLANNING"
	StateStepRunning      SessionState = "STEP_RUNNING"
	StateStepExhausted    SessionState = "STEP_EXHAUSTED"
	StateObjectiveDone    SessionState = "OBJECTIVE_DONE"
	StateObjectiveStopped SessionState = "OBJECTIVE_STOPPED"
)

// IsTerminal reports whether no further transitions are possible.
func (s SessionState) IsTerminal() bool {
	return s == StateObjectiveDone || s == StateObjectiveStopped
}

// SessionRecord is the persisted summary of one objective.
type SessionRecord struct {
	ID            string       `json:"id"`
	Objective     string       `json:"objective"`
	Mode          string       `json:"mode"`
	State         SessionState `json:"state"`
	BatchFailures int          `json:"batch_failures"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}

// ActionRecord is one executed action in a session's journal.
type ActionRecord struct {
	SessionID string    `json:"session_id"`
	StepIndex int       `json:"step_index"`
	Attempt   int       `json:"attempt"`
	Raw       string    `json:"raw"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	ErrorCode string    `json:"error_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
