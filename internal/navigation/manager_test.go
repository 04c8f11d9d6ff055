package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/cache"
	"github.com/richxcame/navigator/pkg/eventbus"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/httpclient"
	redisclient "github.com/richxcame/navigator/pkg/redis"
	"github.com/richxcame/navigator/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// callLog records mock calls from other goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.all() {
		if c == name {
			n++
		}
	}
	return n
}

type managerFixture struct {
	manager   *Manager
	subjects  *callLog
	lists     *callLog
	dirs      *mocks.MockDirectionsProvider
	incidents *mocks.MockIncidentService
	publisher *mocks.MockPublisher
	redis     *mocks.MockRedisClient
	clock     *manualClock
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		dirs:      new(mocks.MockDirectionsProvider),
		incidents: new(mocks.MockIncidentService),
		publisher: new(mocks.MockPublisher),
		redis:     new(mocks.MockRedisClient),
		clock:     &manualClock{now: time.Now()},
		subjects:  &callLog{},
		lists:     &callLog{},
	}
	f.incidents.On("List", mock.Anything).
		Run(func(mock.Arguments) { f.lists.add("List") }).
		Return([]incidents.Hazard{}, nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { f.subjects.add(args.String(1)) }).
		Return(nil)
	f.redis.On("SetWithExpiration", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	deps := Dependencies{
		Directions: f.dirs,
		Incidents:  f.incidents,
		Cache:      cache.NewManager(f.redis),
		Clock:      f.clock.Now,
	}
	f.manager = NewManager(testSessionConfig(), deps, WithPublisher(f.publisher), WithIdleTTL(time.Minute))
	t.Cleanup(f.manager.Shutdown)
	return f
}

func (f *managerFixture) start(t *testing.T, ctx context.Context) *Session {
	t.Helper()
	s, err := f.manager.Start(ctx, StartRequest{
		Origin:      equator(0),
		Destination: equator(10),
		Mode:        directions.ModeDriving,
	})
	require.NoError(t, err)
	return s
}

func TestManager_StartAndEnd(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)

	ctx := httpclient.ContextWithToken(context.Background(), "user-token")
	s := f.start(t, ctx)
	assert.Equal(t, "user-token", s.token)
	assert.Equal(t, 1, f.manager.Count())

	got, err := f.manager.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, f.manager.End(s.ID(), ReasonUserEnded))
	require.Eventually(t, func() bool { return f.manager.Count() == 0 }, time.Second, 10*time.Millisecond)

	_, err = f.manager.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.manager.End(s.ID(), ReasonUserEnded), ErrSessionNotFound)

	require.Eventually(t, func() bool {
		subjects := f.subjects.all()
		return len(subjects) > 0 && subjects[len(subjects)-1] == eventbus.SubjectSessionEnded
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, f.subjects.all(), eventbus.SubjectInstructionChanged)
}

func TestManager_StartRejectsInvalidSelection(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)

	_, err := f.manager.Start(context.Background(), StartRequest{
		Origin:      equator(0),
		Destination: equator(10),
		RouteIndex:  2,
	})
	assert.ErrorIs(t, err, routes.ErrInvalidSelection)
	assert.Zero(t, f.manager.Count())
}

func TestManager_StartPropagatesDirectionsError(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(nil, directions.ErrNoRouteAvailable)

	_, err := f.manager.Start(context.Background(), StartRequest{Origin: equator(0), Destination: equator(10)})
	assert.ErrorIs(t, err, directions.ErrNoRouteAvailable)
}

func TestManager_PlanCollapsesDuplicates(t *testing.T) {
	f := newManagerFixture(t)
	path := straightPath(10, 10*stepMeters)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(path, path, parallelPath(0.0001, 10, 10*stepMeters)), nil)

	options, err := f.manager.Plan(context.Background(), directions.Request{Origin: equator(0), Destination: equator(10)})
	require.NoError(t, err)
	assert.Equal(t, 2, options.Len())
	assert.Zero(t, f.manager.Count())
}

func TestManager_RecoverUsesRouteStartWithoutOrigin(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetUserRoute", mock.Anything, (*geo.Point)(nil)).
		Return(responseFor(parallelPath(0.0002, 10, 10*stepMeters)), nil)

	s, err := f.manager.Recover(context.Background(), RecoverRequest{Destination: equator(10)})
	require.NoError(t, err)

	p := s.Progress()
	assert.Equal(t, geo.NewPoint(0.0002, 0), p.Origin)
	require.Len(t, p.Options, 1)
	assert.Equal(t, routes.CategoryRecovered, p.Options[0].Category)
}

func TestManager_ProgressFallsBackToCache(t *testing.T) {
	f := newManagerFixture(t)
	cached := Progress{SessionID: "elsewhere", State: StateTracking.String(), DistanceTraveled: 42}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	f.redis.On("GetString", mock.Anything, cache.Keys.SessionProgress("elsewhere")).Return(string(raw), nil)
	f.redis.On("GetString", mock.Anything, cache.Keys.SessionProgress("gone")).Return("", redisclient.ErrNotFound)

	p, err := f.manager.Progress(context.Background(), "elsewhere")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p.DistanceTraveled)

	_, err = f.manager.Progress(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_IncidentReportedRefreshesOtherSessions(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)

	var handler eventbus.HandlerFunc
	bus := new(mocks.MockSubscriber)
	bus.On("Subscribe", mock.Anything, eventbus.SubjectIncidentReported, "", mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(3).(eventbus.HandlerFunc) }).
		Return(nil)
	require.NoError(t, f.manager.Subscribe(context.Background(), bus))
	require.NotNil(t, handler)

	reporter := f.start(t, context.Background())
	f.start(t, context.Background())
	listCalls := func() int { return f.lists.count("List") }
	require.Eventually(t, func() bool { return listCalls() == 2 }, time.Second, 10*time.Millisecond)

	event, err := eventbus.NewEvent(eventbus.SubjectIncidentReported, "test", incidentReported{Hazard: incidents.Hazard{ID: 9}})
	require.NoError(t, err)
	event.SessionID = reporter.ID()
	require.NoError(t, handler(context.Background(), event))

	// Only the other session refreshes.
	require.Eventually(t, func() bool { return listCalls() == 3 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, listCalls())

	bad := &eventbus.Event{ID: "bad", Data: json.RawMessage(`{`)}
	assert.NoError(t, handler(context.Background(), bad))
}

func TestManager_ReportIncidentPublishes(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)
	s := f.start(t, context.Background())
	ctx := context.Background()

	require.NoError(t, s.PushFix(ctx, Fix{Point: equator(3), Timestamp: time.Now()}))
	f.incidents.On("Create", mock.Anything, mock.Anything).Return(&incidents.Hazard{ID: 5, TypeID: 1}, nil)

	hazard, err := f.manager.ReportIncident(ctx, s.ID(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), hazard.ID)

	require.Eventually(t, func() bool {
		return f.subjects.count(eventbus.SubjectIncidentReported) == 1
	}, time.Second, 10*time.Millisecond)

	_, err = f.manager.ReportIncident(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ReportIncidentUpstreamError(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)
	s := f.start(t, context.Background())
	ctx := context.Background()

	require.NoError(t, s.PushFix(ctx, Fix{Point: equator(3), Timestamp: time.Now()}))
	f.incidents.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

	_, err := f.manager.ReportIncident(ctx, s.ID(), 1)
	assert.Error(t, err)
}

func TestManager_EvictsIdleSessions(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)
	s := f.start(t, context.Background())

	f.manager.evictIdle()
	assert.Equal(t, 1, f.manager.Count())

	f.clock.Advance(2 * time.Minute)
	f.manager.evictIdle()

	<-s.Done()
	require.Eventually(t, func() bool { return f.manager.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestManager_RunShutsDownOnCancel(t *testing.T) {
	f := newManagerFixture(t)
	f.dirs.On("GetDirections", mock.Anything, mock.Anything).Return(responseFor(straightPath(10, 10*stepMeters)), nil)
	s := f.start(t, context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.manager.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, s.Progress().Ended)
	assert.Zero(t, f.manager.Count())
}
