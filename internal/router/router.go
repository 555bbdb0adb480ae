// Package router delivers bot events to notifiers without blocking the
// trading loop.
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/notifier"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 30 * time.Second
)

// Config holds router configuration
type Config struct {
	// Cooldown suppresses repeats of the same event key. Urgent kinds
	// are never suppressed.
	Cooldown    time.Duration
	QueueSize   int
	SendTimeout time.Duration
}

// FromConfig maps the router section of the bot configuration.
func FromConfig(c config.RouterConfig) Config {
	return Config{Cooldown: c.Cooldown, QueueSize: c.QueueSize}
}

// Stats counts what happened to routed events.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Filtered  uint64 `json:"filtered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Router queues events and delivers them from a single worker.
type Router struct {
	cfg      Config
	registry *notifier.Registry
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	cooldowns map[string]time.Time // event key -> last routed
	closed    bool                 // queue closed by Stop

	queue     chan notifier.Event
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	delivered atomic.Uint64
	filtered  atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
		queue:     make(chan notifier.Event, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery worker. Later calls are no-ops.
func (r *Router) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

func (r *Router) run() {
	defer close(r.done)
	for e := range r.queue {
		r.deliver(e)
	}
}

func (r *Router) deliver(e notifier.Event) {
	if r.registry == nil || r.registry.Len() == 0 {
		r.delivered.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SendTimeout)
	defer cancel()

	errs := r.registry.NotifyAll(ctx, e)
	for name, err := range errs {
		r.failed.Add(1)
		r.logger.Warn("notifier failed",
			zap.String("notifier", name),
			zap.String("event", e.Key()),
			zap.Error(err),
		)
	}
	r.delivered.Add(1)

	r.logger.Debug("event routed",
		zap.String("event", e.Key()),
		zap.Int("errors", len(errs)),
	)
}

// Route queues e for delivery and returns immediately. Events inside
// their cooldown are filtered; events arriving at a full queue are
// dropped. It reports whether e was queued.
func (r *Router) Route(e notifier.Event) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}
	if !r.admit(e, now) {
		r.filtered.Add(1)
		return false
	}

	select {
	case r.queue <- e:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("notification queue full, event dropped", zap.String("event", e.Key()))
		return false
	}
}

// admit applies the cooldown and records the event time when it passes.
// r.mu must be held.
func (r *Router) admit(e notifier.Event, now time.Time) bool {
	if !e.Kind.Urgent() && r.cfg.Cooldown > 0 {
		if last, ok := r.cooldowns[e.Key()]; ok && now.Sub(last) < r.cfg.Cooldown {
			return false
		}
	}
	r.cooldowns[e.Key()] = now
	return true
}

// Stop closes the queue and waits for queued events to be delivered or
// for ctx to end.
func (r *Router) Stop(ctx context.Context) error {
	r.Start()
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearCooldown removes the cooldown for an event key
func (r *Router) ClearCooldown(key string) {
	r.mu.Lock()
	delete(r.cooldowns, key)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.Cooldown * 2
	removed := 0

	for key, lastTime := range r.cooldowns {
		if now.Sub(lastTime) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.CleanupExpiredCooldowns()
				if removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats returns delivery counters.
func (r *Router) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Filtered:  r.filtered.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}
