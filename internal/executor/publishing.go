package executor

import (
	"context"
	"strings"

	"autopilot/internal/task"
)

type publishingExecutor struct {
	env  Env
	kind string
}

func (e *publishingExecutor) Execute(ctx context.Context, t task.Task) (map[string]any, error) {
	p := t.Parameters.Clone()
	if v := p.String("platform"); v != "" {
		p["platform"] = strings.ToLower(v)
	}
	if e.kind == "social" && p.String("platform") != "" {
		platform, err := normalizePlatform(p.String("platform"))
		if err != nil {
			return nil, err
		}
		p["platform"] = platform
	}
	return e.env.call(ctx, task.Publishing, e.kind, p)
}
