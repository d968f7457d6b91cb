package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled     bool
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

// Message is one alert. Senders without a subject line ignore Subject.
type Message struct {
	Subject string
	Text    string
}

// Sender delivers a message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// HistoryItem is one delivered message, kept for status output.
type HistoryItem struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject"`
}
