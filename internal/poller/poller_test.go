package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/testserver"
)

type fakeFetcher struct {
	mu          sync.Mutex
	statsErr    error
	alertsErr   error
	alertsBlock chan struct{}
	statsCalls  int
	alertsCalls int
}

func (f *fakeFetcher) Stats(ctx context.Context) (models.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.statsErr != nil {
		return models.Stats{}, f.statsErr
	}
	return models.Stats{IsTailing: true, TotalAlerts: f.statsCalls}, nil
}

func (f *fakeFetcher) Alerts(ctx context.Context) ([]models.AlertRecord, error) {
	f.mu.Lock()
	f.alertsCalls++
	err := f.alertsErr
	block := f.alertsBlock
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []models.AlertRecord{{Source: "web1", Line: "ERR 500"}}, nil
}

func (f *fakeFetcher) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls, f.alertsCalls
}

type fakeSink struct {
	mark      atomic.Uint64
	mu        sync.Mutex
	stats     []StatsResult
	snapshots []SnapshotResult
}

func (s *fakeSink) Mark() uint64 { return s.mark.Load() }

func (s *fakeSink) ApplyStats(r StatsResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, r)
}

func (s *fakeSink) ApplySnapshot(r SnapshotResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, r)
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats), len(s.snapshots)
}

func runPoller(t *testing.T, p *Poller) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestPoller_ImmediateFirstPoll(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: time.Hour})
	stop := runPoller(t, p)
	defer stop()

	testserver.WaitFor(t, time.Second, func() bool {
		s, a := sink.counts()
		return s == 1 && a == 1
	}, "first poll delivered")
}

func TestPoller_Periodic(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: 20 * time.Millisecond})
	stop := runPoller(t, p)
	defer stop()

	testserver.WaitFor(t, 2*time.Second, func() bool {
		s, a := sink.counts()
		return s >= 3 && a >= 3
	}, "three polls delivered")
}

func TestPoller_IndependentFailures(t *testing.T) {
	f := &fakeFetcher{alertsErr: errors.New("connection refused")}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: 20 * time.Millisecond})
	stop := runPoller(t, p)

	testserver.WaitFor(t, 2*time.Second, func() bool {
		s, _ := sink.counts()
		return s >= 2
	}, "stats delivered despite alerts failure")
	stop()

	_, a := sink.counts()
	if a != 0 {
		t.Errorf("failed alerts fetch must not deliver a snapshot, got %d", a)
	}
	if p.Failures() == 0 {
		t.Error("expected failures to be counted")
	}
}

func TestPoller_BlockedFetchDoesNotBlockOther(t *testing.T) {
	block := make(chan struct{})
	f := &fakeFetcher{alertsBlock: block}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: 20 * time.Millisecond, MaxInFlight: 8})
	stop := runPoller(t, p)
	defer func() {
		close(block)
		stop()
	}()

	testserver.WaitFor(t, 2*time.Second, func() bool {
		s, _ := sink.counts()
		return s >= 2
	}, "stats keep flowing while alerts hang")
}

func TestPoller_RetriesAfterFailure(t *testing.T) {
	f := &fakeFetcher{statsErr: errors.New("503")}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: 20 * time.Millisecond})
	stop := runPoller(t, p)
	defer stop()

	testserver.WaitFor(t, 2*time.Second, func() bool {
		s, _ := f.calls()
		return s >= 2
	}, "stats retried")

	f.mu.Lock()
	f.statsErr = nil
	f.mu.Unlock()

	testserver.WaitFor(t, 2*time.Second, func() bool {
		s, _ := sink.counts()
		return s >= 1
	}, "stats recovered")
}

func TestPoller_Refresh(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: time.Hour})
	stop := runPoller(t, p)
	defer stop()

	testserver.WaitFor(t, time.Second, func() bool {
		s, _ := sink.counts()
		return s == 1
	}, "first poll")

	p.Refresh()
	testserver.WaitFor(t, time.Second, func() bool {
		s, _ := sink.counts()
		return s == 2
	}, "refresh fetched stats")

	_, a := f.calls()
	if a != 1 {
		t.Errorf("refresh should only fetch stats, alerts calls = %d", a)
	}
}

func TestPoller_MarkAndIDs(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	sink.mark.Store(41)
	p := New(f, sink, Config{Interval: 20 * time.Millisecond})
	stop := runPoller(t, p)

	testserver.WaitFor(t, 2*time.Second, func() bool {
		_, a := sink.counts()
		return a >= 2
	}, "two snapshots")
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.snapshots[0].Mark != 41 {
		t.Errorf("Mark = %d, want 41", sink.snapshots[0].Mark)
	}
	seen := make(map[uint64]bool)
	for _, r := range sink.stats {
		seen[r.Poll] = true
	}
	for _, r := range sink.snapshots {
		if seen[r.Poll] {
			t.Errorf("duplicate poll id %d", r.Poll)
		}
		seen[r.Poll] = true
	}
}

func TestPoller_NoDeliveryAfterStop(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	p := New(f, sink, Config{Interval: 10 * time.Millisecond})
	stop := runPoller(t, p)

	testserver.WaitFor(t, time.Second, func() bool {
		s, _ := sink.counts()
		return s >= 1
	}, "first poll")
	stop()

	s1, a1 := sink.counts()
	time.Sleep(50 * time.Millisecond)
	s2, a2 := sink.counts()
	if s1 != s2 || a1 != a2 {
		t.Errorf("results delivered after Run returned: stats %d->%d, snapshots %d->%d", s1, s2, a1, a2)
	}
}
