package registry

import "autopilot/internal/task"

// DefaultTasks is the task set written when tasks.json does not exist.
func DefaultTasks() map[task.Category][]task.Task {
	return map[task.Category][]task.Task{
		task.ContentCreation: {
			{Type: "shorts", Schedule: "daily", Enabled: true, Parameters: task.Params{"topic": "productivity tips"}},
			{Type: "blog", Schedule: "weekly", Enabled: true, Parameters: task.Params{"topic": "digital marketing strategies"}},
			{Type: "ebook", Schedule: "monthly", Enabled: true, Parameters: task.Params{"topic": "passive income guide"}},
		},
		task.Publishing: {
			{Type: "social", Schedule: "daily", Enabled: true, Parameters: task.Params{"platform": "twitter"}},
		},
		task.Monetization: {
			{Type: "affiliate_content", Schedule: "weekly:fri", Enabled: true, Parameters: task.Params{"topic": "best productivity tools"}},
			{Type: "ebook_promotion", Schedule: "weekly:fri", Enabled: true},
		},
		task.Maintenance: {
			{Type: "archive_logs", Schedule: "daily", Enabled: true},
			{Type: "pending_check", Schedule: "daily", Enabled: true},
			{Type: "report", Schedule: "weekly:sun", Enabled: true, Parameters: task.Params{"period": "weekly"}},
			{Type: "report", Schedule: "monthly:1", Enabled: true, Parameters: task.Params{"period": "monthly"}},
		},
	}
}
