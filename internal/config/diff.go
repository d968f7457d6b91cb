package config

import (
	"reflect"
	"slices"
	"strings"

	logx "autopilot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes tokens or passwords).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Enabled != newCfg.Enabled {
		changed = append(changed, "enabled")
		attrs = append(attrs, logx.Bool("enabled", newCfg.Enabled))
	}
	if oldCfg.MaxDailyContent != newCfg.MaxDailyContent || oldCfg.MaxDailyEbooks != newCfg.MaxDailyEbooks {
		changed = append(changed, "limits")
		attrs = append(attrs,
			logx.Int("max_daily_content", newCfg.MaxDailyContent),
			logx.Int("max_daily_ebooks", newCfg.MaxDailyEbooks),
		)
	}
	if oldCfg.MaxConcurrentTasks != newCfg.MaxConcurrentTasks ||
		oldCfg.Tick() != newCfg.Tick() ||
		strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("max_concurrent_tasks", newCfg.MaxConcurrentTasks),
			logx.Duration("tick_interval", newCfg.Tick()),
			logx.String("timezone", newCfg.Timezone),
		)
	}
	if strings.TrimSpace(oldCfg.DefaultTimeout) != strings.TrimSpace(newCfg.DefaultTimeout) ||
		!reflect.DeepEqual(oldCfg.Timeouts, newCfg.Timeouts) {
		changed = append(changed, "timeouts")
	}
	if !slices.Equal(oldCfg.ContentTypes, newCfg.ContentTypes) ||
		!slices.Equal(oldCfg.Platforms, newCfg.Platforms) ||
		!slices.Equal(oldCfg.MonetizationMethods, newCfg.MonetizationMethods) {
		changed = append(changed, "catalog")
	}
	if oldCfg.EffectiveLogLevel() != newCfg.EffectiveLogLevel() || !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("log_level", newCfg.EffectiveLogLevel()))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		// Storage is opened once; a change only applies after restart.
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) || oldCfg.NotificationEmail != newCfg.NotificationEmail {
		changed = append(changed, "notifier")
		n := newCfg.Notifier
		attrs = append(attrs,
			logx.Bool("notifier.enabled", n != nil && n.Enabled),
			logx.Bool("notifier.telegram_set", n != nil && n.Telegram != nil && n.Telegram.Token != ""),
			logx.Bool("notifier.smtp_set", n != nil && n.SMTP != nil),
		)
	}
	if !reflect.DeepEqual(oldCfg.Collaborator, newCfg.Collaborator) {
		changed = append(changed, "collaborator")
		attrs = append(attrs, logx.Bool("collaborator.dry_run", newCfg.Collaborator == nil || newCfg.Collaborator.Endpoint == ""))
	}
	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.Bool("debug.enabled", newCfg.Debug != nil && newCfg.Debug.Enabled))
	}
	return changed, attrs
}
