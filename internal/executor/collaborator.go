package executor

import (
	"context"

	"autopilot/internal/task"
)

// Request is one call to the external content/publishing/monetization backend.
type Request struct {
	Category task.Category `json:"category"`
	Action   string        `json:"action"`
	Params   task.Params   `json:"params,omitempty"`
}

// Collaborator is the narrow interface to everything that actually produces,
// publishes or sells content. Errors wrapped with task.Transient are recorded
// as transient failures.
type Collaborator interface {
	Invoke(ctx context.Context, req Request) (map[string]any, error)
}

// Actions understood by collaborators beyond the task types themselves.
const (
	ActionPendingContent = "pending_content"
)
