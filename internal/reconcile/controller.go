// Package reconcile merges the push channel and the snapshot poll into one
// bounded alert history and keeps the push channel in step with the server's
// tailing state.
package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/channel"
	"github.com/good-yellow-bee/blazewatch/internal/history"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/poller"
)

var (
	// ErrNoFiles is returned by commands when no file is given or enabled.
	ErrNoFiles = errors.New("no log files selected")
	// ErrStopped is returned by reads and commands after Run has returned.
	ErrStopped = errors.New("controller stopped")
	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("controller already running")
	// ErrChannelDown is reported by Health while tailing is wanted but the
	// push channel is disconnected.
	ErrChannelDown = errors.New("push channel down")
)

// API is the subset of the dashboard API the controller uses.
type API interface {
	poller.Fetcher
	LogFiles(ctx context.Context) ([]models.LogFile, error)
	StartTailing(ctx context.Context, files []string) (models.TailStartResult, error)
	StopTailing(ctx context.Context, files []string) error
}

// Notifier is told about every new qualifying push-delivered alert.
type Notifier interface {
	Notify(models.Severity)
}

// Config configures a controller.
type Config struct {
	Channel       channel.Config
	Dialer        channel.Dialer
	Poll          poller.Config
	Notifier      Notifier
	ResumeOnStart bool // adopt a running server tailer on the first stats poll
	Capacity      int  // history capacity (default: history.DefaultCapacity)
	Verbose       bool
}

// Controller is the single writer of the alert history and the desired
// tailing flag. All mutations run on the Run goroutine.
type Controller struct {
	config Config
	api    API
	ch     *channel.Manager
	poller *poller.Poller
	subs   *subscribers

	pushCh  chan models.AlertRecord
	statsCh chan poller.StatsResult
	snapCh  chan poller.SnapshotResult
	cmdCh   chan desiredChange
	readCh  chan readRequest
	done    chan struct{}
	running atomic.Bool

	pushSeq      atomic.Uint64
	channelState atomic.Int32

	// Owned by the Run goroutine.
	buf           *history.Buffer
	pushLog       []pushEntry
	desired       bool
	resumeChecked bool
	cmdWatermark  uint64 // stats with Poll <= this predate the last command
	lastStatsPoll uint64
	lastSnapPoll  uint64
	stats         models.Stats
	status        models.TailingStatus
}

type pushEntry struct {
	seq uint64
	rec models.AlertRecord
}

type desiredChange struct {
	want      bool
	watermark uint64
	reason    string
}

type readRequest struct {
	fn   func(c *Controller)
	done chan struct{}
}

// New creates a controller. The push channel and poller are built from
// config and started by Run.
func New(api API, config Config) *Controller {
	if config.Capacity <= 0 {
		config.Capacity = history.DefaultCapacity
	}
	if config.Dialer == nil {
		config.Dialer = channel.NewWebsocketDialer()
	}

	c := &Controller{
		config:  config,
		api:     api,
		subs:    newSubscribers(),
		pushCh:  make(chan models.AlertRecord, 64),
		statsCh: make(chan poller.StatsResult, 4),
		snapCh:  make(chan poller.SnapshotResult, 4),
		cmdCh:   make(chan desiredChange),
		readCh:  make(chan readRequest),
		done:    make(chan struct{}),
		buf:     history.New(config.Capacity),
	}

	c.ch = channel.NewManager(config.Channel, config.Dialer, c.handlePush)
	c.ch.SetVerbose(config.Verbose)
	c.ch.OnStateChange(c.onChannelState)

	c.poller = poller.New(api, c, config.Poll)
	c.poller.SetVerbose(config.Verbose)
	return c
}

// Run drives the session until ctx is done. On return the push channel is
// closed and no reconnect or poll fires afterwards.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	pctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		c.poller.Run(pctx)
		return nil
	})

	defer func() {
		cancel()
		close(c.done)
		c.ch.Close()
		g.Wait()
		c.subs.closeAll()
		metrics.DesiredTailing.Set(0)
		c.logf("stopped")
	}()

	c.logf("started, capacity=%d", c.buf.Cap())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-c.pushCh:
			c.mergePush(rec)
		case r := <-c.snapCh:
			c.mergeSnapshot(r)
		case r := <-c.statsCh:
			c.mergeStats(r)
		case d := <-c.cmdCh:
			c.resumeChecked = true
			if d.watermark > c.cmdWatermark {
				c.cmdWatermark = d.watermark
			}
			c.setDesired(d.want, d.reason)
		case req := <-c.readCh:
			req.fn(c)
			close(req.done)
		}
	}
}

// Mark returns the sequence number of the last push record accepted for
// merging. It is read by the poller before each snapshot request.
func (c *Controller) Mark() uint64 {
	return c.pushSeq.Load()
}

// ApplyStats queues a stats poll result.
func (c *Controller) ApplyStats(r poller.StatsResult) {
	select {
	case c.statsCh <- r:
	case <-c.done:
	}
}

// ApplySnapshot queues an alert snapshot poll result.
func (c *Controller) ApplySnapshot(r poller.SnapshotResult) {
	select {
	case c.snapCh <- r:
	case <-c.done:
	}
}

// handlePush runs on the channel reader goroutine. Blocking here applies
// backpressure to the reader, which keeps arrival order.
func (c *Controller) handlePush(rec models.AlertRecord) {
	select {
	case c.pushCh <- rec:
	case <-c.done:
	}
}

// onChannelState runs under the channel lock and must not block.
func (c *Controller) onChannelState(s channel.State) {
	c.channelState.Store(int32(s))
	c.logf("channel %s", s)
	c.poller.Refresh()
}

func (c *Controller) mergePush(rec models.AlertRecord) {
	if err := rec.Validate(); err != nil {
		metrics.MalformedDroppedTotal.WithLabelValues("push").Inc()
		return
	}
	seq := c.pushSeq.Add(1)

	if c.buf.Contains(rec.Key()) {
		metrics.HistoryDuplicatesTotal.Inc()
		return
	}
	c.buf.Append(rec)
	c.recordPush(seq, rec)
	metrics.HistoryAppendedTotal.Inc()
	metrics.HistorySize.Set(float64(c.buf.Len()))

	if sev := rec.Level(); sev.Qualifies() {
		metrics.NotificationsTotal.WithLabelValues(string(sev)).Inc()
		if c.config.Notifier != nil {
			c.config.Notifier.Notify(sev)
		}
	}
	c.subs.publish(rec)
	c.poller.Refresh()
}

func (c *Controller) recordPush(seq uint64, rec models.AlertRecord) {
	c.pushLog = append(c.pushLog, pushEntry{seq: seq, rec: rec})
	if over := len(c.pushLog) - c.buf.Cap(); over > 0 {
		c.pushLog = append(c.pushLog[:0], c.pushLog[over:]...)
	}
}

// mergeSnapshot replaces history with the server snapshot, then re-applies
// push records the snapshot may not have seen yet.
func (c *Controller) mergeSnapshot(r poller.SnapshotResult) {
	if r.Poll < c.lastSnapPoll {
		metrics.PollStaleTotal.Inc()
		c.logf("discarding stale snapshot %d (applied %d)", r.Poll, c.lastSnapPoll)
		return
	}
	c.lastSnapPoll = r.Poll

	valid := make([]models.AlertRecord, 0, len(r.Alerts))
	for _, rec := range r.Alerts {
		if rec.Validate() != nil {
			metrics.MalformedDroppedTotal.WithLabelValues("poll").Inc()
			continue
		}
		valid = append(valid, rec)
	}
	c.buf.ReplaceAll(valid)

	kept := c.pushLog[:0]
	for _, e := range c.pushLog {
		if e.seq <= r.Mark {
			continue
		}
		kept = append(kept, e)
		if !c.buf.Contains(e.rec.Key()) {
			c.buf.Append(e.rec)
			metrics.HistoryReplayedTotal.Inc()
		}
	}
	c.pushLog = kept
	metrics.HistorySize.Set(float64(c.buf.Len()))
}

func (c *Controller) mergeStats(r poller.StatsResult) {
	if r.Poll < c.lastStatsPoll {
		c.logf("discarding stale stats %d (applied %d)", r.Poll, c.lastStatsPoll)
		return
	}
	c.lastStatsPoll = r.Poll
	c.stats = r.Stats.Clone()
	c.status = r.Stats.TailingStatus()
	c.status.UpdatedAt = r.At

	if r.Poll <= c.cmdWatermark {
		// Issued before the last command; the server may not reflect it yet.
		return
	}
	if !c.resumeChecked {
		c.resumeChecked = true
		if c.config.ResumeOnStart && r.Stats.IsTailing {
			c.setDesired(true, "server is tailing")
		}
		return
	}
	if c.desired && !r.Stats.IsTailing {
		c.setDesired(false, "server stopped tailing")
	}
}

func (c *Controller) setDesired(want bool, reason string) {
	if c.desired == want {
		return
	}
	c.desired = want
	metrics.DesiredTailing.Set(metrics.BoolGauge(want))
	c.logf("desired tailing=%v (%s)", want, reason)

	if want {
		if err := c.ch.Start(); err != nil {
			c.logf("start channel: %v", err)
		}
	} else {
		c.ch.Stop()
	}
}

// read runs fn on the loop goroutine.
func (c *Controller) read(ctx context.Context, fn func(c *Controller)) error {
	req := readRequest{fn: fn, done: make(chan struct{})}
	select {
	case c.readCh <- req:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-req.done
	return nil
}

// Snapshot returns a copy of the history, oldest first.
func (c *Controller) Snapshot(ctx context.Context) ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	err := c.read(ctx, func(c *Controller) { out = c.buf.Snapshot() })
	return out, err
}

// LastN returns a copy of the n most recent alerts, oldest first.
func (c *Controller) LastN(ctx context.Context, n int) ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	err := c.read(ctx, func(c *Controller) { out = c.buf.LastN(n) })
	return out, err
}

// Status returns the tailing status last reported by the server together
// with the local desired flag and channel state.
func (c *Controller) Status(ctx context.Context) (models.TailingStatus, error) {
	var out models.TailingStatus
	err := c.read(ctx, func(c *Controller) {
		out = c.status
		if c.status.WatchedFilePaths != nil {
			out.WatchedFilePaths = append([]string(nil), c.status.WatchedFilePaths...)
		}
		out.Desired = c.desired
		out.ChannelState = c.ChannelState().String()
	})
	return out, err
}

// Stats returns the statistics last reported by the server.
func (c *Controller) Stats(ctx context.Context) (models.Stats, error) {
	var out models.Stats
	err := c.read(ctx, func(c *Controller) { out = c.stats.Clone() })
	return out, err
}

// ChannelState returns the push channel state.
func (c *Controller) ChannelState() channel.State {
	return channel.State(c.channelState.Load())
}

// Health reports the session for the /healthz endpoint. It fails once Run
// has returned, or while tailing is wanted and the push channel is down.
func (c *Controller) Health(ctx context.Context) (map[string]any, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	details := map[string]any{
		"tailing": st.Active,
		"desired": st.Desired,
		"channel": st.ChannelState,
		"files":   st.WatchedFileCount,
	}
	return details, healthOf(st)
}

func healthOf(st models.TailingStatus) error {
	if st.Desired && st.ChannelState == channel.StateDisconnected.String() {
		return ErrChannelDown
	}
	return nil
}

// Subscribe returns a channel receiving every new push-delivered alert.
// Alerts are dropped for a subscriber whose buffer is full. The channel is
// closed by cancel or when Run returns.
func (c *Controller) Subscribe(buffer int) (<-chan models.AlertRecord, func()) {
	return c.subs.add(buffer)
}

// RequestStart asks the server to tail files, or every enabled file when
// files is empty. On success the push channel is opened.
func (c *Controller) RequestStart(ctx context.Context, files []string) (models.TailStartResult, error) {
	files, err := c.resolveFiles(ctx, "start", files)
	if err != nil {
		return models.TailStartResult{}, err
	}

	res, err := c.api.StartTailing(ctx, files)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("start", "error").Inc()
		return models.TailStartResult{}, &CommandError{Op: "start", Err: err}
	}
	metrics.CommandsTotal.WithLabelValues("start", "ok").Inc()
	if len(res.Failed) > 0 {
		c.logf("started %d/%d files, %d failed to open", len(res.Started), len(files), len(res.Failed))
	}

	if err := c.commit(ctx, desiredChange{want: true, reason: "start requested"}); err != nil {
		return res, err
	}
	return res, nil
}

// RequestStop asks the server to stop tailing files, or every enabled file
// when files is empty. On success the push channel is closed.
func (c *Controller) RequestStop(ctx context.Context, files []string) error {
	files, err := c.resolveFiles(ctx, "stop", files)
	if err != nil {
		return err
	}

	if err := c.api.StopTailing(ctx, files); err != nil {
		metrics.CommandsTotal.WithLabelValues("stop", "error").Inc()
		return &CommandError{Op: "stop", Err: err}
	}
	metrics.CommandsTotal.WithLabelValues("stop", "ok").Inc()

	return c.commit(ctx, desiredChange{want: false, reason: "stop requested"})
}

// commit hands a successful command's outcome to the loop. Stats fetched
// before this point are not allowed to correct it.
func (c *Controller) commit(ctx context.Context, d desiredChange) error {
	d.watermark = c.poller.Issued()
	select {
	case c.cmdCh <- d:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	c.poller.Refresh()
	return nil
}

func (c *Controller) resolveFiles(ctx context.Context, op string, files []string) ([]string, error) {
	if len(files) > 0 {
		return files, nil
	}
	list, err := c.api.LogFiles(ctx)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(op, "error").Inc()
		return nil, &CommandError{Op: op, Err: err}
	}
	files = models.EnabledPaths(list)
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return files, nil
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.config.Verbose {
		log.Printf("[reconcile] "+format, args...)
	}
}

// subscribers fans new alerts out to listeners without blocking the loop.
type subscribers struct {
	mu      sync.Mutex
	next    int
	closed  bool
	chans   map[int]chan models.AlertRecord
	dropped atomic.Int64
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[int]chan models.AlertRecord)}
}

func (s *subscribers) add(buffer int) (<-chan models.AlertRecord, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan models.AlertRecord, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.next
	s.next++
	s.chans[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.chans[id]; ok {
				delete(s.chans, id)
				close(c)
			}
		})
	}
}

func (s *subscribers) publish(rec models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- rec:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.chans {
		delete(s.chans, id)
		close(ch)
	}
}
