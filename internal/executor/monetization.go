package executor

import (
	"context"
	"fmt"

	"autopilot/internal/task"
)

type monetizationExecutor struct {
	env  Env
	kind string
}

func (e *monetizationExecutor) Execute(ctx context.Context, t task.Task) (map[string]any, error) {
	p := t.Parameters.Clone()
	switch e.kind {
	case "affiliate_content":
		if p.String("topic") == "" {
			return nil, ErrNoTopic
		}
		if p.String("platform") == "" {
			p["platform"] = "youtube"
		}
		p["strategy"] = "affiliate"
	case "affiliate_program":
		p["commission_rate"] = p.Int("commission_rate", 50)
	case "sales_report":
		period := p.String("period")
		switch period {
		case "":
			p["period"] = "weekly"
		case "daily", "weekly", "monthly":
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedPeriod, period)
		}
	}
	return e.env.call(ctx, task.Monetization, e.kind, p)
}
