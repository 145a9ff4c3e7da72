// Package poller periodically pulls the alert snapshot and server statistics.
package poller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Fetcher performs the two read operations of a poll.
type Fetcher interface {
	Stats(ctx context.Context) (models.Stats, error)
	Alerts(ctx context.Context) ([]models.AlertRecord, error)
}

// StatsResult is a successful statistics fetch.
type StatsResult struct {
	Poll  uint64 // monotonic id, later fetches have larger ids
	Stats models.Stats
	At    time.Time
}

// SnapshotResult is a successful alert snapshot fetch.
type SnapshotResult struct {
	Poll   uint64
	Mark   uint64 // Sink.Mark() when the fetch was issued
	Alerts []models.AlertRecord
	At     time.Time
}

// Sink receives poll results. Mark is read just before the snapshot request
// is issued.
type Sink interface {
	Mark() uint64
	ApplyStats(StatsResult)
	ApplySnapshot(SnapshotResult)
}

// Config configures the poller.
type Config struct {
	Interval    time.Duration // How often to poll (default: 3s)
	Timeout     time.Duration // Per-fetch timeout (default: 10s)
	MaxInFlight int           // Max concurrent fetches; extra ones are skipped (default: 4)
}

// DefaultConfig returns default poll configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    3 * time.Second,
		Timeout:     10 * time.Second,
		MaxInFlight: 4,
	}
}

// Poller runs the periodic snapshot poll.
type Poller struct {
	config  Config
	fetcher Fetcher
	sink    Sink
	verbose bool

	refreshCh chan struct{}
	issueMu   sync.Mutex // keeps poll ids and marks increasing together
	pollID    atomic.Uint64
	failures  atomic.Int64
}

// New creates a poller delivering results to sink.
func New(fetcher Fetcher, sink Sink, config Config) *Poller {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = def.MaxInFlight
	}
	return &Poller{
		config:    config,
		fetcher:   fetcher,
		sink:      sink,
		refreshCh: make(chan struct{}, 1),
	}
}

// SetVerbose enables verbose logging.
func (p *Poller) SetVerbose(v bool) {
	p.verbose = v
}

// Refresh requests an extra statistics fetch without waiting for the next
// tick. Requests made while one is pending are merged.
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Issued returns the id of the most recently issued fetch. Results with a
// larger Poll id were requested after the call.
func (p *Poller) Issued() uint64 {
	return p.pollID.Load()
}

// Failures returns the number of failed fetches so far.
func (p *Poller) Failures() int64 {
	return p.failures.Load()
}

// Run polls immediately and then on every interval until ctx is done.
// It waits for in-flight fetches before returning.
func (p *Poller) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(p.config.MaxInFlight)
	defer g.Wait()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logf("poller started, interval=%v", p.config.Interval)
	p.poll(ctx, &g)

	for {
		select {
		case <-ctx.Done():
			p.logf("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, &g)
		case <-p.refreshCh:
			p.spawn(&g, "stats", func() { p.fetchStats(ctx) })
		}
	}
}

// poll issues both fetches of one tick. Neither waits for the other.
func (p *Poller) poll(ctx context.Context, g *errgroup.Group) {
	p.spawn(g, "stats", func() { p.fetchStats(ctx) })
	p.spawn(g, "alerts", func() { p.fetchAlerts(ctx) })
}

func (p *Poller) spawn(g *errgroup.Group, kind string, fn func()) {
	ok := g.TryGo(func() error {
		fn()
		return nil
	})
	if !ok {
		metrics.PollRequestsTotal.WithLabelValues(kind, "skipped").Inc()
		p.logf("skipping %s fetch, %d already in flight", kind, p.config.MaxInFlight)
	}
}

func (p *Poller) fetchStats(ctx context.Context) {
	p.issueMu.Lock()
	id := p.pollID.Add(1)
	p.issueMu.Unlock()
	fctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	stats, err := p.fetcher.Stats(fctx)
	metrics.PollDuration.WithLabelValues("stats").Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail("stats", err)
		return
	}
	metrics.PollRequestsTotal.WithLabelValues("stats", "ok").Inc()
	if ctx.Err() != nil {
		return
	}
	p.sink.ApplyStats(StatsResult{Poll: id, Stats: stats, At: time.Now()})
}

func (p *Poller) fetchAlerts(ctx context.Context) {
	p.issueMu.Lock()
	id := p.pollID.Add(1)
	mark := p.sink.Mark()
	p.issueMu.Unlock()
	fctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	alerts, err := p.fetcher.Alerts(fctx)
	metrics.PollDuration.WithLabelValues("alerts").Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail("alerts", err)
		return
	}
	metrics.PollRequestsTotal.WithLabelValues("alerts", "ok").Inc()
	if ctx.Err() != nil {
		return
	}
	p.sink.ApplySnapshot(SnapshotResult{Poll: id, Mark: mark, Alerts: alerts, At: time.Now()})
}

// fail records a transport failure. The next tick retries.
func (p *Poller) fail(kind string, err error) {
	p.failures.Add(1)
	metrics.PollRequestsTotal.WithLabelValues(kind, "error").Inc()
	p.logf("%s fetch failed: %v", kind, err)
}

func (p *Poller) logf(format string, args ...interface{}) {
	if p.verbose {
		log.Printf("[poller] "+format, args...)
	}
}
