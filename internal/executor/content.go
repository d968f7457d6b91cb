package executor

import (
	"context"
	"fmt"

	"autopilot/internal/storage"
	"autopilot/internal/task"
)

// contentExecutor produces one content item through the collaborator after
// checking the topic and today's production caps.
type contentExecutor struct {
	env  Env
	kind string
}

func (c *contentExecutor) Execute(ctx context.Context, t task.Task) (map[string]any, error) {
	p := t.Parameters.Clone()
	if p.String("topic") == "" {
		return nil, ErrNoTopic
	}

	lim := c.env.limits()
	day := c.env.now().Format(task.DayLayout)
	if lim.MaxDailyContent > 0 {
		n, err := c.count(ctx, day, storage.Filter{Category: task.ContentCreation, SuccessOnly: true})
		if err != nil {
			return nil, err
		}
		if n >= lim.MaxDailyContent {
			return nil, ErrContentLimit
		}
	}

	switch c.kind {
	case "ebook":
		if lim.MaxDailyEbooks > 0 {
			n, err := c.count(ctx, day, storage.Filter{Category: task.ContentCreation, Type: "ebook", SuccessOnly: true})
			if err != nil {
				return nil, err
			}
			if n >= lim.MaxDailyEbooks {
				return nil, ErrEbookLimit
			}
		}
		if _, ok := p["format"]; !ok {
			p["format"] = "pdf"
		}
		if _, ok := p["length"]; !ok {
			p["length"] = "medium"
		}
		p["chapters"] = p.Int("chapters", 5)
	case "blog":
		if _, ok := p["length"]; !ok {
			p["length"] = "medium"
		}
	case "shorts":
		if _, ok := p["method"]; !ok {
			p["method"] = "story"
		}
	case "social":
		platform, err := normalizePlatform(p.String("platform"))
		if err != nil {
			return nil, err
		}
		p["platform"] = platform
		p["with_image"] = p.Bool("with_image", true)
		if platform == "instagram" {
			if _, ok := p["post_type"]; !ok {
				p["post_type"] = "carousel"
			}
		}
	}

	return c.env.call(ctx, task.ContentCreation, c.kind, p)
}

func (c *contentExecutor) count(ctx context.Context, day string, f storage.Filter) (int, error) {
	if c.env.History == nil {
		return 0, nil
	}
	n, err := c.env.History.Count(ctx, day, f)
	if err != nil {
		return 0, task.Transient(fmt.Errorf("count today's history: %w", err))
	}
	return n, nil
}
