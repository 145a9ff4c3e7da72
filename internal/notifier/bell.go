package notifier

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Bell rings the terminal bell: twice for critical alerts, once for high.
// Bursts are throttled so a flood of alerts does not flood the terminal.
type Bell struct {
	mu        sync.Mutex
	w         io.Writer
	limiter   *rate.Limiter
	throttled atomic.Int64
}

// NewBell creates a bell writing to w that rings at most once per interval.
// A non-positive interval disables throttling.
func NewBell(w io.Writer, interval time.Duration) *Bell {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Bell{
		w:       w,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name returns "bell".
func (b *Bell) Name() string {
	return "bell"
}

// Send rings the pattern for sev. Non-qualifying severities are ignored.
func (b *Bell) Send(ctx context.Context, sev models.Severity) error {
	pattern := bellPattern(sev)
	if pattern == "" {
		return nil
	}
	if !b.limiter.Allow() {
		b.throttled.Add(1)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, pattern)
	return err
}

// Throttled returns how many rings were suppressed.
func (b *Bell) Throttled() int64 {
	return b.throttled.Load()
}

// Close is a no-op.
func (b *Bell) Close() error {
	return nil
}

func bellPattern(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "\a\a"
	case models.SeverityHigh:
		return "\a"
	default:
		return ""
	}
}

// LogNotifier writes one log line per notification.
type LogNotifier struct {
	Locale string
}

// Name returns "log".
func (l *LogNotifier) Name() string {
	return "log"
}

// Send logs the alert severity.
func (l *LogNotifier) Send(ctx context.Context, sev models.Severity) error {
	log.Printf("[notify] new %s alert", sev.Label(l.Locale))
	return nil
}

// Close is a no-op.
func (l *LogNotifier) Close() error {
	return nil
}
