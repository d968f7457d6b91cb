package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopilot/internal/storage"
	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

var (
	ErrNoTopic             = errors.New("no topic provided")
	ErrContentLimit        = errors.New("daily content limit reached")
	ErrEbookLimit          = errors.New("daily ebook limit reached")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrUnsupportedPeriod   = errors.New("unsupported report period")
)

// Counter is the slice of the history store the daily limits need.
type Counter interface {
	Count(ctx context.Context, day string, f storage.Filter) (int, error)
}

// Limits are the daily production caps, read on every execution so a config
// reload applies to the next run.
type Limits struct {
	MaxDailyContent int
	MaxDailyEbooks  int
}

// Env carries what the built-in executors share.
type Env struct {
	Collaborator Collaborator
	History      Counter
	Limits       func() Limits
	Now          func() time.Time
	Log          logx.Logger
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) limits() Limits {
	if e.Limits != nil {
		return e.Limits()
	}
	return Limits{}
}

func (e Env) call(ctx context.Context, cat task.Category, action string, p task.Params) (map[string]any, error) {
	if e.Collaborator == nil {
		return nil, fmt.Errorf("%s/%s: no collaborator configured", cat, action)
	}
	return e.Collaborator.Invoke(ctx, Request{Category: cat, Action: action, Params: p})
}

// Built-in task types per category.
var (
	ContentTypes      = []string{"shorts", "blog", "ebook", "social"}
	PublishingTypes   = []string{"pending", "ebook", "social"}
	MonetizationTypes = []string{"affiliate_content", "ebook_promotion", "bundle_creation", "affiliate_program", "sales_report"}
)

// RegisterBuiltins binds the content, publishing and monetization executors.
// Maintenance executors live in their own package.
func RegisterBuiltins(reg *Registry, env Env) {
	if env.Log.IsZero() {
		env.Log = logx.Nop()
	}
	for _, typ := range ContentTypes {
		reg.Register(Key{Category: task.ContentCreation, Type: typ}, &contentExecutor{env: env, kind: typ})
	}
	for _, typ := range PublishingTypes {
		reg.Register(Key{Category: task.Publishing, Type: typ}, &publishingExecutor{env: env, kind: typ})
	}
	for _, typ := range MonetizationTypes {
		reg.Register(Key{Category: task.Monetization, Type: typ}, &monetizationExecutor{env: env, kind: typ})
	}
}

// normalizePlatform maps accepted social platform spellings to their canonical name.
func normalizePlatform(p string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "twitter", "x":
		return "twitter", nil
	case "instagram":
		return "instagram", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p)
}
