package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-service/internal/dedup"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
)

func newScheduler(h *harness, feed pipeline.FeedFetcher, disc pipeline.DiscussionFetcher, clock clockwork.Clock) *pipeline.Scheduler {
	return pipeline.NewScheduler(pipeline.SchedulerConfig{
		Feed:               feed,
		Discussions:        disc,
		Dispatcher:         h.dispatcher(),
		Warnings:           dedup.NewWarningTracker(dedup.PolicyPreviousCycle, 0, 0),
		Seen:               dedup.NewDiscussionTracker(100, time.Hour),
		Extract:            domain.DefaultExtractOptions(),
		WarningInterval:    time.Minute,
		DiscussionInterval: 5 * time.Minute,
		Clock:              clock,
	}, discardLogger(), h.metrics)
}

func postedIDs(posts []post) []string {
	var ids []string
	for _, p := range posts {
		first, _, _ := strings.Cut(p.content, "\n")
		ids = append(ids, first)
	}
	return ids
}

func TestRunWarningCycle_NotifiesOnlyNewWarnings(t *testing.T) {
	h := newHarness()
	a, b, c := warningFeature(t, "OUN", 1), warningFeature(t, "OUN", 2), warningFeature(t, "OUN", 3)
	feed := &mockFeed{results: []feedResult{
		{doc: docOf(a, b)},
		{doc: docOf(b, c)},
		{doc: docOf(b, c)},
	}}
	s := newScheduler(h, feed, &mockDiscussions{}, clockwork.NewFakeClock())
	ctx := context.Background()

	first := s.RunWarningCycle(ctx)
	assert.Equal(t, 2, first.Active)
	assert.Equal(t, 2, first.New)
	assert.Equal(t, pipeline.Tally{Sent: 2}, first.Tally)

	second := s.RunWarningCycle(ctx)
	assert.Equal(t, 2, second.Active)
	assert.Equal(t, 1, second.New)

	third := s.RunWarningCycle(ctx)
	assert.Equal(t, 0, third.New)

	assert.Equal(t, []string{
		"**Tornado Warning** OUN TO.W #1 [NEW]",
		"**Tornado Warning** OUN TO.W #2 [NEW]",
		"**Tornado Warning** OUN TO.W #3 [NEW]",
	}, postedIDs(h.poster.sent()))

	current := s.Warnings()
	require.Len(t, current, 2)
	assert.Equal(t, "2024-OUN-TO-W-0002", current[0].ID)
	assert.Equal(t, "2024-OUN-TO-W-0003", current[1].ID)
	assert.InDelta(t, 2, observability.CounterValue(h.metrics.TrackedWarnings), 0)
	assert.InDelta(t, 3, observability.CounterValue(h.metrics.EventsDetected.WithLabelValues(domain.ClassWarnings)), 0)
}

func TestRunWarningCycle_FetchErrorKeepsTrackedSet(t *testing.T) {
	h := newHarness()
	a := warningFeature(t, "OUN", 1)
	feed := &mockFeed{results: []feedResult{
		{doc: docOf(a)},
		{err: &domain.FetchError{Op: "fetch sbw", URL: "x", StatusCode: 503}},
		{doc: docOf(a)},
	}}
	s := newScheduler(h, feed, &mockDiscussions{}, clockwork.NewFakeClock())
	ctx := context.Background()

	s.RunWarningCycle(ctx)
	failed := s.RunWarningCycle(ctx)
	require.ErrorIs(t, failed.Err, domain.ErrFetch)
	assert.Len(t, s.Warnings(), 1)

	after := s.RunWarningCycle(ctx)
	assert.Equal(t, 0, after.New)
	assert.Len(t, h.poster.sent(), 1)
}

func TestRunWarningCycle_FetchErrorClearsTrackedSetWhenConfigured(t *testing.T) {
	h := newHarness()
	a := warningFeature(t, "OUN", 1)
	feed := &mockFeed{results: []feedResult{
		{doc: docOf(a)},
		{err: &domain.FetchError{Op: "fetch sbw", URL: "x", StatusCode: 503}},
		{doc: docOf(a)},
	}}
	s := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Feed:              feed,
		Discussions:       &mockDiscussions{},
		Dispatcher:        h.dispatcher(),
		Warnings:          dedup.NewWarningTracker(dedup.PolicyPreviousCycle, 0, 0),
		Seen:              dedup.NewDiscussionTracker(100, time.Hour),
		ClearOnFetchError: true,
		Extract:           domain.DefaultExtractOptions(),
		WarningInterval:   time.Minute,
		Clock:             clockwork.NewFakeClock(),
	}, discardLogger(), h.metrics)
	ctx := context.Background()

	s.RunWarningCycle(ctx)
	failed := s.RunWarningCycle(ctx)
	require.ErrorIs(t, failed.Err, domain.ErrFetch)
	assert.Empty(t, s.Warnings())
	assert.Zero(t, observability.CounterValue(h.metrics.TrackedWarnings))

	after := s.RunWarningCycle(ctx)
	assert.Equal(t, 1, after.New)
	assert.Len(t, h.poster.sent(), 2)
}

func TestRunWarningCycle_FixtureKeepsOnlyTornadoWarnings(t *testing.T) {
	h := newHarness()
	feed := &mockFeed{results: []feedResult{{doc: loadFixture(t, "sbw_active.geojson")}}}
	s := newScheduler(h, feed, &mockDiscussions{}, clockwork.NewFakeClock())

	res := s.RunWarningCycle(context.Background())
	assert.Equal(t, 2, res.Active)
	assert.Equal(t, pipeline.Tally{Sent: 2}, res.Tally)

	posts := h.poster.sent()
	require.Len(t, posts, 2)
	assert.Contains(t, posts[1].content, "**PARTICULARLY DANGEROUS SITUATION**")
	assert.Contains(t, posts[1].content, "Damage: CONSIDERABLE")
}

func TestRunWarningCycle_Geocoded(t *testing.T) {
	h := newHarness()
	feed := &mockFeed{results: []feedResult{{doc: docOf(warningFeature(t, "OUN", 45))}}}
	s := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Feed:        feed,
		Discussions: &mockDiscussions{},
		Geocoder: &mockGeocoder{result: domain.GeocodingResult{
			FormattedAddress: "Shawnee, Oklahoma, United States",
			PlaceName:        "Shawnee",
			Confidence:       1,
		}},
		Dispatcher: h.dispatcher(),
		Warnings:   dedup.NewWarningTracker(dedup.PolicyPreviousCycle, 0, 0),
		Seen:       dedup.NewDiscussionTracker(10, time.Hour),
		Extract:    domain.DefaultExtractOptions(),
		Clock:      clockwork.NewFakeClock(),
	}, discardLogger(), h.metrics)

	s.RunWarningCycle(context.Background())
	posts := h.poster.sent()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].content, "Near: Shawnee, Oklahoma, United States")
	require.Len(t, h.publisher.published, 1)
	assert.Equal(t, "reverse", h.publisher.published[0].Warning.Location.Source)
}

func TestRunDiscussionCycle_DispatchesEachItemOnce(t *testing.T) {
	h := newHarness()
	disc := &mockDiscussions{items: []domain.DiscussionItem{
		{ID: "md-0812", Title: "SPC MD 812"},
		{ID: "md-0813", Title: "SPC MD 813"},
	}}
	s := newScheduler(h, &mockFeed{}, disc, clockwork.NewFakeClock())
	ctx := context.Background()

	first := s.RunDiscussionCycle(ctx)
	assert.Equal(t, 2, first.New)

	disc.mu.Lock()
	disc.items = append(disc.items, domain.DiscussionItem{ID: "md-0814", Title: "SPC MD 814"})
	disc.mu.Unlock()

	second := s.RunDiscussionCycle(ctx)
	assert.Equal(t, 3, second.Active)
	assert.Equal(t, 1, second.New)

	posts := h.poster.sent()
	require.Len(t, posts, 3)
	assert.Equal(t, "**SPC MD 814**", posts[2].content)
	assert.InDelta(t, 3, observability.CounterValue(h.metrics.SeenDiscussions), 0)
}

func TestRunDiscussionCycle_FailedDispatchIsNotRetried(t *testing.T) {
	h := newHarness()
	h.poster.failOn = "MD 812"
	disc := &mockDiscussions{items: []domain.DiscussionItem{{ID: "md-0812", Title: "SPC MD 812"}}}
	s := newScheduler(h, &mockFeed{}, disc, clockwork.NewFakeClock())

	first := s.RunDiscussionCycle(context.Background())
	assert.Equal(t, pipeline.Tally{Failed: 1}, first.Tally)

	second := s.RunDiscussionCycle(context.Background())
	assert.Equal(t, 0, second.New)
	assert.Len(t, h.poster.sent(), 1)
}

func TestRunDiscussionCycle_FetchError(t *testing.T) {
	h := newHarness()
	disc := &mockDiscussions{err: &domain.FetchError{Op: "fetch discussions", URL: "x", StatusCode: 500}}
	s := newScheduler(h, &mockFeed{}, disc, clockwork.NewFakeClock())

	res := s.RunDiscussionCycle(context.Background())
	require.ErrorIs(t, res.Err, domain.ErrFetch)
	_, ok := s.LastRun(domain.ClassDiscussions)
	assert.False(t, ok)
}

func TestScheduler_Readiness(t *testing.T) {
	h := newHarness()
	feed := &mockFeed{results: []feedResult{
		{err: &domain.FetchError{Op: "fetch sbw", URL: "x", StatusCode: 502}},
		{doc: docOf()},
	}}
	s := newScheduler(h, feed, &mockDiscussions{}, clockwork.NewFakeClock())
	ctx := context.Background()

	require.Error(t, s.CheckReadiness(ctx))
	s.RunWarningCycle(ctx)
	require.Error(t, s.CheckReadiness(ctx))
	s.RunWarningCycle(ctx)
	require.NoError(t, s.CheckReadiness(ctx))
}

func TestScheduler_LastRun(t *testing.T) {
	at := time.Date(2024, 5, 26, 19, 0, 0, 0, time.UTC)
	h := newHarness()
	s := newScheduler(h, &mockFeed{}, &mockDiscussions{}, clockwork.NewFakeClockAt(at))

	_, ok := s.LastRun(domain.ClassWarnings)
	assert.False(t, ok)

	s.RunWarningCycle(context.Background())
	got, ok := s.LastRun(domain.ClassWarnings)
	require.True(t, ok)
	assert.Equal(t, at, got)

	_, ok = s.LastRun("unknown")
	assert.False(t, ok)
}

// blockingFeed holds FetchActive open until release is closed.
type blockingFeed struct {
	mockFeed
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingFeed) FetchActive(ctx context.Context) (domain.FeedDocument, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return docOf(), nil
}

func TestScheduler_SkipsTickWhileCycleRunning(t *testing.T) {
	h := newHarness()
	fake := clockwork.NewFakeClock()
	feed := &blockingFeed{started: make(chan struct{}), release: make(chan struct{})}
	s := newScheduler(h, feed, &mockDiscussions{}, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-feed.started
	assert.True(t, s.Running(domain.ClassWarnings))
	require.NoError(t, fake.BlockUntilContext(ctx, 2))

	fake.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		return observability.CounterValue(h.metrics.CyclesSkipped.WithLabelValues(domain.ClassWarnings)) == 1
	}, time.Second, 10*time.Millisecond)

	close(feed.release)
	assert.Eventually(t, func() bool { return !s.Running(domain.ClassWarnings) }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.InDelta(t, 0, observability.CounterValue(h.metrics.SchedulerRunning), 0)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	h := newHarness()
	disc := &mockDiscussions{items: []domain.DiscussionItem{{ID: "md-0812", Title: "SPC MD 812"}}}
	feed := &mockFeed{results: []feedResult{{doc: docOf(warningFeature(t, "OUN", 45))}}}
	s := newScheduler(h, feed, disc, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(h.poster.sent()) == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
