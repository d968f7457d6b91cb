package app

import (
	"context"
	"errors"

	"autopilot/internal/task"
)

// StopReason says why RunScheduler returned.
type StopReason string

const (
	StopRunOnce  StopReason = "run_once"
	StopCanceled StopReason = "canceled"
	StopFatal    StopReason = "fatal"
	StopError    StopReason = "error"
)

func stopReasonFor(once bool, err error) StopReason {
	switch {
	case err == nil && once:
		return StopRunOnce
	case err == nil, errors.Is(err, context.Canceled):
		return StopCanceled
	case task.IsFatal(err):
		return StopFatal
	default:
		return StopError
	}
}
