package executor

import (
	"context"

	logx "autopilot/pkg/logx"
)

// DryRun is the collaborator used when no backend endpoint is configured.
// It logs the call and returns a simulated result.
type DryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log.With(logx.String("comp", "dryrun"))}
}

func (d *DryRun) Invoke(ctx context.Context, req Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.log.Info("simulated call", logx.String("category", string(req.Category)), logx.String("action", req.Action), logx.Any("params", req.Params))
	if req.Action == ActionPendingContent {
		return map[string]any{"simulated": true, "items": []any{}}, nil
	}
	return map[string]any{
		"simulated": true,
		"category":  string(req.Category),
		"action":    req.Action,
	}, nil
}
