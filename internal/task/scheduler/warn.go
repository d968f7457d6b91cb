package scheduler

import (
	"sync"
	"time"

	logx "autopilot/pkg/logx"
)

const warnThrottle = 10 * time.Minute

// warnThrottler keeps a broken schedule from flooding the log once per tick.
type warnThrottler struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (w *warnThrottler) warn(log logx.Logger, key, msg string, fields ...logx.Field) {
	now := time.Now()
	w.mu.Lock()
	if w.last == nil {
		w.last = make(map[string]time.Time)
	}
	if prev, ok := w.last[key]; ok && now.Sub(prev) < warnThrottle {
		w.mu.Unlock()
		return
	}
	w.last[key] = now
	w.mu.Unlock()
	log.Warn(msg, fields...)
}
