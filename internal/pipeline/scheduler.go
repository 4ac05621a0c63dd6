package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-service/internal/dedup"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

// SchedulerConfig wires the Scheduler's collaborators. Geocoder is optional.
type SchedulerConfig struct {
	Feed        FeedFetcher
	Discussions DiscussionFetcher
	Geocoder    domain.Geocoder
	Dispatcher  *Dispatcher

	Warnings *dedup.WarningTracker
	Seen     *dedup.DiscussionTracker

	// ClearOnFetchError treats a failed warning fetch as an empty poll, so the
	// tracked set is cleared and every still-active warning is reported again
	// once the feed recovers. By default the tracked set is kept.
	ClearOnFetchError bool

	Extract            domain.ExtractOptions
	WarningInterval    time.Duration
	DiscussionInterval time.Duration

	// Clock drives the tickers; defaults to the real clock.
	Clock clockwork.Clock
}

// classState is the idle/running flag and last completion time of one class.
type classState struct {
	running atomic.Bool
	mu      sync.RWMutex
	lastRun time.Time
}

// Scheduler owns the polling state for both event classes. Each class runs at
// most one cycle at a time; a tick that finds its class still running is
// skipped.
type Scheduler struct {
	cfg     SchedulerConfig
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	states map[string]*classState
	ready  atomic.Bool
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		states: map[string]*classState{
			domain.ClassWarnings:    {},
			domain.ClassDiscussions: {},
		},
	}
}

// Run fires one cycle per class immediately and then on every tick, until ctx
// is cancelled. It returns once in-flight cycles have finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"warning_interval", s.cfg.WarningInterval,
		"discussion_interval", s.cfg.DiscussionInterval,
	)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.loop(ctx, domain.ClassWarnings, s.cfg.WarningInterval, func(ctx context.Context) { s.RunWarningCycle(ctx) })
	}()
	go func() {
		defer loops.Done()
		s.loop(ctx, domain.ClassDiscussions, s.cfg.DiscussionInterval, func(ctx context.Context) { s.RunDiscussionCycle(ctx) })
	}()

	loops.Wait()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", "reason", ctx.Err())
	return nil
}

func (s *Scheduler) loop(ctx context.Context, class string, interval time.Duration, cycle func(context.Context)) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.trigger(ctx, class, cycle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.trigger(ctx, class, cycle)
		}
	}
}

// trigger starts a cycle for class unless one is already running.
func (s *Scheduler) trigger(ctx context.Context, class string, cycle func(context.Context)) {
	st := s.states[class]
	if !st.running.CompareAndSwap(false, true) {
		s.metrics.CyclesSkipped.WithLabelValues(class).Inc()
		s.logger.Warn("previous cycle still running, skipping tick", "class", class)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer st.running.Store(false)

		start := time.Now()
		cycle(ctx)
		s.metrics.CycleDuration.WithLabelValues(class).Observe(time.Since(start).Seconds())
	}()
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Active int
	New    int
	Tally  Tally
	Err    error
}

// RunWarningCycle fetches active warnings, records them, and dispatches the
// ones not active on the previous poll. A failed fetch leaves the tracked set
// untouched unless ClearOnFetchError is set.
func (s *Scheduler) RunWarningCycle(ctx context.Context) CycleResult {
	doc, err := s.cfg.Feed.FetchActive(ctx)
	if err != nil {
		if !s.cfg.ClearOnFetchError {
			s.logger.Warn("warning feed unavailable, keeping tracked warnings", "error", err)
			return CycleResult{Err: err}
		}
		s.logger.Warn("warning feed unavailable, treating cycle as empty", "error", err)
		s.cfg.Warnings.Observe(nil)
		s.metrics.TrackedWarnings.Set(0)
		s.markRun(domain.ClassWarnings)
		return CycleResult{Err: err}
	}

	events := domain.Extract(doc, s.cfg.Extract)
	fresh := s.cfg.Warnings.Observe(events)
	s.ready.Store(true)
	s.metrics.TrackedWarnings.Set(float64(len(events)))
	s.metrics.EventsDetected.WithLabelValues(domain.ClassWarnings).Add(float64(len(fresh)))

	for i := range fresh {
		fresh[i] = domain.EnrichWithGeocoding(ctx, fresh[i], s.cfg.Geocoder, s.logger)
	}
	tally := s.cfg.Dispatcher.DispatchWarnings(ctx, fresh)
	s.markRun(domain.ClassWarnings)

	s.logger.Info("warning cycle complete",
		"features", len(doc.Features),
		"active", len(events),
		"new", len(fresh),
		"sent", tally.Sent,
		"failed", tally.Failed,
	)
	return CycleResult{Active: len(events), New: len(fresh), Tally: tally}
}

// RunDiscussionCycle fetches the discussion feed and dispatches items whose
// identifier has not been seen within the retention window.
func (s *Scheduler) RunDiscussionCycle(ctx context.Context) CycleResult {
	items, err := s.cfg.Discussions.FetchDiscussions(ctx)
	if err != nil {
		s.logger.Warn("discussion feed unavailable, treating cycle as empty", "error", err)
		return CycleResult{Err: err}
	}

	fresh := s.cfg.Seen.Filter(items)
	s.metrics.SeenDiscussions.Set(float64(s.cfg.Seen.Len()))
	s.metrics.EventsDetected.WithLabelValues(domain.ClassDiscussions).Add(float64(len(fresh)))

	tally := s.cfg.Dispatcher.DispatchDiscussions(ctx, fresh)
	s.markRun(domain.ClassDiscussions)

	s.logger.Info("discussion cycle complete",
		"items", len(items),
		"new", len(fresh),
		"sent", tally.Sent,
		"failed", tally.Failed,
	)
	return CycleResult{Active: len(items), New: len(fresh), Tally: tally}
}

func (s *Scheduler) markRun(class string) {
	st := s.states[class]
	st.mu.Lock()
	st.lastRun = s.clock.Now().UTC()
	st.mu.Unlock()
}

// Warnings returns the warnings active as of the last successful poll.
func (s *Scheduler) Warnings() []domain.WarningEvent {
	return s.cfg.Warnings.Current()
}

// LastRun reports when a cycle of class last completed with data.
func (s *Scheduler) LastRun(class string) (time.Time, bool) {
	st, ok := s.states[class]
	if !ok {
		return time.Time{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.lastRun, !st.lastRun.IsZero()
}

// Running reports whether a cycle of class is in flight.
func (s *Scheduler) Running(class string) bool {
	st, ok := s.states[class]
	return ok && st.running.Load()
}

// CheckReadiness returns nil once the warning feed has been read successfully.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("warning feed has not been polled successfully yet")
	}
	return nil
}
