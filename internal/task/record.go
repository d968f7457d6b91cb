package task

import (
	"time"

	"github.com/google/uuid"
)

// Trigger says what caused an execution.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Failure reasons recorded on ExecutionRecord.Reason.
const (
	ReasonUnknownType = "unknown task type"
	ReasonTimeout     = "timeout"
	ReasonTransient   = "transient"
	ReasonPanic       = "panic"
	ReasonError       = "error"
	// ReasonFatal marks an executor whose own persistence failed; the loop halts.
	ReasonFatal = "fatal"
)

// ExecutionRecord is the immutable audit entry for one dispatch attempt.
type ExecutionRecord struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Category   Category       `json:"category"`
	Type       string         `json:"type"`
	Parameters Params         `json:"parameters,omitempty"`
	Trigger    Trigger        `json:"trigger"`
	Success    bool           `json:"success"`
	Result     map[string]any `json:"result,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// NewRecord starts a record for t at the given time.
func NewRecord(t Task, trigger Trigger, at time.Time) ExecutionRecord {
	return ExecutionRecord{
		ID:         uuid.NewString(),
		TaskID:     t.ID,
		Timestamp:  at,
		Category:   t.Category,
		Type:       t.Type,
		Parameters: t.Parameters.Clone(),
		Trigger:    trigger,
	}
}

// Day returns the calendar-day partition key of the record.
func (r ExecutionRecord) Day() string {
	return r.Timestamp.Format(DayLayout)
}

// DayLayout is the partition key format used by history storage.
const DayLayout = "2006-01-02"
