package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"autopilot/internal/eventbus"
	rtsup "autopilot/internal/runtime/supervisor"
	"autopilot/internal/task"
	logx "autopilot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const (
	historySize    = 50
	dedupMaxKeys   = 1000
	sendTimeout    = 15 * time.Second
	retryMaxDelay  = 30 * time.Second
	defaultDedup   = 10 * time.Minute
	defaultRetries = 2
)

// Service implements queue + worker + rate limit + retry + dedup.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	bus     eventbus.Bus
	senders []Sender
	cfg     Config
	limiter *rate.Limiter

	queue chan Message
	sup   *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger, senders ...Sender) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		senders: senders,
		dedup:   make(map[string]time.Time),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	} else if cfg.RetryMax == 0 {
		cfg.RetryMax = defaultRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = defaultDedup
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes are not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && len(s.senders) > 0
}

// Start subscribes to failure events and starts the delivery worker.
// It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled || len(s.senders) == 0 {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Message, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	q, sup := s.queue, s.sup
	s.mu.Unlock()

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(s.cfg.QueueSize, eventbus.TaskFailed)
		sup.Go0("notifier.events", func(ctx context.Context) {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-events:
					rec, ok := ev.Data.(task.ExecutionRecord)
					if !ok {
						continue
					}
					if err := s.Notify(FormatFailure(rec)); err != nil && !errors.Is(err, ErrDisabled) {
						s.log.Warn("failure notification dropped", logx.String("task", string(rec.Category)+"/"+rec.Type), logx.Err(err))
					}
				}
			}
		})
	}
	sup.Go0("notifier.worker", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-q:
				s.deliver(ctx, m)
			}
		}
	})
	names := make([]string, 0, len(s.senders))
	for _, snd := range s.senders {
		names = append(names, snd.Name())
	}
	s.log.Info("notifier started", logx.String("channels", strings.Join(names, ",")))
}

// Stop ends the worker; queued messages are discarded.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Notify enqueues m without blocking.
func (s *Service) Notify(m Message) error {
	s.mu.Lock()
	q, sup, window := s.queue, s.sup, s.cfg.DedupWindow
	enabled := s.cfg.Enabled
	s.mu.Unlock()
	switch {
	case !enabled:
		return ErrDisabled
	case q == nil || sup == nil:
		return ErrStopped
	}
	if window > 0 && !s.dedupAllow(dedupKey(m), window) {
		s.log.Debug("duplicate notification suppressed", logx.String("subject", m.Subject))
		return nil
	}
	select {
	case q <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) deliver(ctx context.Context, m Message) {
	s.mu.Lock()
	cfg, lim, senders := s.cfg, s.limiter, s.senders
	s.mu.Unlock()

	for _, snd := range senders {
		var lastErr error
		for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			lastErr = snd.Send(callCtx, m)
			cancel()
			if lastErr == nil {
				s.appendHistory(HistoryItem{At: time.Now(), Channel: snd.Name(), Subject: m.Subject})
				break
			}
			s.log.Debug("notification send failed", logx.String("channel", snd.Name()), logx.Int("attempt", attempt), logx.Err(lastErr))
			if attempt > cfg.RetryMax {
				break
			}
			t := time.NewTimer(retryDelay(cfg.RetryBase, attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if lastErr != nil {
			s.log.Warn("notification not delivered", logx.String("channel", snd.Name()), logx.Err(lastErr))
		}
	}
}

// History returns the most recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

func dedupKey(m Message) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.Subject))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(m.Text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	if len(s.dedup) > dedupMaxKeys {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
	}
	return true
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < retryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, retryMaxDelay)
}

// FormatFailure renders a failed execution record as an alert.
func FormatFailure(rec task.ExecutionRecord) Message {
	name := string(rec.Category) + "/" + rec.Type
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s failed (%s)\n", name, rec.Reason)
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}
	fmt.Fprintf(&b, "Trigger: %s\nAt: %s\nTook: %s", rec.Trigger, rec.Timestamp.Format(time.RFC3339), rec.Duration.Round(time.Millisecond))
	return Message{
		Subject: fmt.Sprintf("[autopilot] %s failed: %s", name, rec.Reason),
		Text:    b.String(),
	}
}
