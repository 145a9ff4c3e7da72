// Package notifier emits side effects for new qualifying alerts.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "bell", "log").
	Name() string
	// Send emits a notification for one alert of the given severity.
	Send(ctx context.Context, sev models.Severity) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// RateLimitConfig holds dispatcher rate limit configuration.
type RateLimitConfig struct {
	Every   time.Duration // Minimum spacing between notifications once the burst is spent (default: 6s)
	Burst   int           // Notifications allowed back to back (default: 10)
	Enabled bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Every:   6 * time.Second,
		Burst:   10,
		Enabled: true,
	}
}

// Dispatcher manages multiple notifiers and routes severities to them.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	limiter   *rate.Limiter
	dropped   atomic.Int64
	verbose   bool
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	d := &Dispatcher{notifiers: make(map[string]Notifier)}
	if config.Enabled {
		if config.Every <= 0 {
			config.Every = 6 * time.Second
		}
		if config.Burst <= 0 {
			config.Burst = 10
		}
		d.limiter = rate.NewLimiter(rate.Every(config.Every), config.Burst)
	}
	return d
}

// SetVerbose enables logging of delivery failures.
func (d *Dispatcher) SetVerbose(v bool) {
	d.verbose = v
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Notify sends sev to every registered notifier. Errors are logged, not
// returned, so a broken channel never stalls alert processing.
func (d *Dispatcher) Notify(sev models.Severity) {
	if err := d.DispatchAll(context.Background(), sev); err != nil && d.verbose {
		log.Printf("[notify] %v", err)
	}
}

// Dispatch sends sev to the named notifiers. Unknown names are skipped.
// Returns ErrRateLimited if the notification is dropped due to rate limiting.
func (d *Dispatcher) Dispatch(ctx context.Context, sev models.Severity, names ...string) error {
	if len(names) == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	targets := make(map[string]Notifier, len(names))
	for _, name := range names {
		if n, ok := d.notifiers[name]; ok {
			targets[name] = n
		}
	}
	return d.send(ctx, sev, targets)
}

// DispatchAll sends sev to all registered notifiers.
// Returns ErrRateLimited if the notification is dropped due to rate limiting.
func (d *Dispatcher) DispatchAll(ctx context.Context, sev models.Severity) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.send(ctx, sev, d.notifiers)
}

// send consumes one token, refunding it when nothing was delivered.
// Caller holds d.mu.
func (d *Dispatcher) send(ctx context.Context, sev models.Severity, targets map[string]Notifier) error {
	if len(targets) == 0 {
		return nil
	}

	// Refunds are made at the reservation time; a later CancelAt restores nothing.
	now := time.Now()
	var res *rate.Reservation
	if d.limiter != nil {
		res = d.limiter.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			res.CancelAt(now)
			d.dropped.Add(1)
			return ErrRateLimited
		}
	}

	var errs []error
	for name, n := range targets {
		if err := n.Send(ctx, sev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) == len(targets) && res != nil {
		res.CancelAt(now)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}
	return nil
}

// Dropped returns the number of notifications dropped due to rate limiting.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// Func adapts a plain function to the controller's notify hook.
type Func func(models.Severity)

// Notify calls f.
func (f Func) Notify(sev models.Severity) {
	f(sev)
}
