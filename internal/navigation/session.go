package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/eta"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/async"
	"github.com/richxcame/navigator/pkg/cache"
	"github.com/richxcame/navigator/pkg/config"
	apperrors "github.com/richxcame/navigator/pkg/errors"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("navigation session not found")
	ErrSessionEnded    = errors.New("navigation session ended")
	ErrStaleFix        = errors.New("fix is older than the last accepted fix")
	ErrNoPendingRating = errors.New("no rating prompt pending for this hazard")
	ErrNoFix           = errors.New("no location received yet")
)

// Reasons carried by RouteRecalculated and SessionEnded.
const (
	ReasonOffRoute    = "off_route"
	ReasonModeChanged = "mode_changed"
	ReasonRouteStale  = "route_stale"
	ReasonUserEnded   = "user_ended"
	ReasonIdle        = "idle"
	ReasonShutdown    = "shutdown"
)

// Fix is one location sample. Speed is in m/s, bearing in degrees.
type Fix struct {
	Point     geo.Point `json:"point"`
	Speed     float64   `json:"speed"`
	Bearing   float64   `json:"bearing"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionConfig holds the per-session thresholds and timings.
type SessionConfig struct {
	Tracker           TrackerConfig
	Monitor           incidents.MonitorConfig
	ETAInterval       time.Duration
	ReconcileInterval time.Duration
	MinSpeedMps       float64
	EventBufferSize   int
	// TaskTimeout bounds each background network call.
	TaskTimeout time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Tracker:           DefaultTrackerConfig(),
		Monitor:           incidents.DefaultMonitorConfig(),
		ETAInterval:       5 * time.Second,
		ReconcileInterval: 30 * time.Second,
		MinSpeedMps:       eta.DefaultMinSpeedMps,
		EventBufferSize:   64,
		TaskTimeout:       15 * time.Second,
	}
}

// SessionConfigFrom maps the loaded configuration.
func SessionConfigFrom(cfg *config.Config) SessionConfig {
	n := cfg.Navigation
	return SessionConfig{
		Tracker: TrackerConfigFrom(n),
		Monitor: incidents.MonitorConfig{
			PromptRadiusMeters:      cfg.Incidents.PromptRadiusMeters,
			SuppressionRadiusMeters: cfg.Incidents.SuppressionRadiusMeters,
			SuppressionWindow:       cfg.Incidents.SuppressionWindow,
			RouteProximityMeters:    cfg.Incidents.RouteProximityMeters,
		},
		ETAInterval:       n.ETAInterval,
		ReconcileInterval: n.ReconcileInterval,
		MinSpeedMps:       n.MinSpeedMps,
		EventBufferSize:   n.EventBufferSize,
		TaskTimeout:       max(cfg.Directions.Timeout, cfg.Incidents.Timeout) + 5*time.Second,
	}
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Directions directions.Provider
	Incidents  incidents.Service
	Cache      *cache.Manager
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Progress is a read-only snapshot of a session.
type Progress struct {
	SessionID         string                `json:"session_id"`
	State             string                `json:"state"`
	Mode              directions.TravelMode `json:"mode"`
	Origin            geo.Point             `json:"origin"`
	Destination       geo.Point             `json:"destination"`
	SelectedRoute     int                   `json:"selected_route"`
	Options           []routes.Option       `json:"options"`
	Instruction       *InstructionChanged   `json:"instruction,omitempty"`
	DistanceTraveled  float64               `json:"distance_traveled"`
	RemainingDistance float64               `json:"remaining_distance"`
	ETA               *eta.Estimate         `json:"eta,omitempty"`
	PendingRating     *incidents.Hazard     `json:"pending_rating,omitempty"`
	LastFix           *Fix                  `json:"last_fix,omitempty"`
	Recalculating     bool                  `json:"recalculating"`
	Ended             bool                  `json:"ended"`
	LastActivityAt    time.Time             `json:"last_activity_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type command struct {
	fn    func() error
	reply chan error
}

// Session is one active navigation. A single goroutine owns the tracker,
// the monitor and the route state; every other goroutine talks to it
// through commands.
type Session struct {
	id    string
	cfg   SessionConfig
	deps  Dependencies
	token string
	now   func() time.Time

	commands  chan command
	events    chan Event
	quit      chan struct{}
	done      chan struct{}
	endOnce   sync.Once
	endReason string

	// Owned by the run loop.
	request         directions.Request
	options         *routes.OptionSet
	tracker         *Tracker
	monitor         *incidents.Monitor
	estimator       *eta.Estimator
	generation      uint64
	lastFix         *Fix
	lastInstruction *InstructionChanged
	lastETA         *eta.Estimate
	lastActivity    time.Time
	recalculating   bool
	refreshing      bool
	refreshAgain    bool

	mu       sync.RWMutex
	progress Progress
}

// newSession prepares a session on the selected option. Call start to run it.
func newSession(id string, cfg SessionConfig, deps Dependencies, req directions.Request, options *routes.OptionSet, token string) (*Session, error) {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	bufferSize := cfg.EventBufferSize
	if bufferSize <= 0 {
		bufferSize = 64
	}

	s := &Session{
		id:           id,
		cfg:          cfg,
		deps:         deps,
		token:        token,
		now:          now,
		commands:     make(chan command),
		events:       make(chan Event, bufferSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		request:      req,
		options:      options,
		monitor:      incidents.NewMonitor(cfg.Monitor, incidents.WithClock(now)),
		estimator:    eta.NewEstimator(eta.WithClock(now), eta.WithMinSpeed(cfg.MinSpeedMps)),
		lastActivity: now(),
	}

	tracker, primed, err := s.newTracker(options.Selected().Path)
	if err != nil {
		return nil, err
	}
	s.tracker = tracker
	for _, e := range primed {
		s.onTrackerEvent(e)
	}
	s.publishProgress()
	return s, nil
}

func (s *Session) start() {
	s.refreshHazards()
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)

	etaTicker := time.NewTicker(s.cfg.ETAInterval)
	defer etaTicker.Stop()
	reconcileTicker := time.NewTicker(s.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-s.quit:
			s.shutdown()
			return
		case cmd := <-s.commands:
			err := cmd.fn()
			if cmd.reply != nil {
				s.lastActivity = s.now()
			}
			s.publishProgress()
			if cmd.reply != nil {
				cmd.reply <- err
			}
		case <-etaTicker.C:
			s.updateETA()
		case <-reconcileTicker.C:
			s.reconcile()
		}
	}
}

func (s *Session) shutdown() {
	s.publishProgress()
	s.cacheProgress()
	s.tracker.Reset()
	s.monitor.Reset()

	ended := SessionEnded{Reason: s.endReason}
	select {
	case s.events <- ended:
	default:
		// Make room: the end event is always delivered.
		select {
		case dropped := <-s.events:
			eventsDroppedTotal.WithLabelValues(dropped.Type()).Inc()
		default:
		}
		s.events <- ended
	}
	close(s.events)
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.commands <- command{fn: fn, reply: reply}:
	case <-s.quit:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an async result to the session goroutine. Results for an
// ended session are discarded.
func (s *Session) post(task string, fn func()) {
	select {
	case s.commands <- command{fn: func() error { fn(); return nil }}:
	case <-s.quit:
		staleResultsTotal.WithLabelValues(task).Inc()
	}
}

// spawn runs a background network call with the session's identity and the
// user's token.
func (s *Session) spawn(task string, fn func(ctx context.Context)) {
	ctx := async.WithSessionID(context.Background(), s.id)
	async.GoWithTimeout(ctx, task, s.cfg.TaskTimeout, func(ctx context.Context) {
		fn(httpclient.ContextWithToken(ctx, s.token))
	})
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		eventsDroppedTotal.WithLabelValues(e.Type()).Inc()
		logger.Warn("navigation event dropped, buffer full",
			zap.String("session_id", s.id),
			zap.String("type", e.Type()),
		)
	}
}

// newTracker initializes a tracker on path. The events it emits while
// initializing are returned so the caller can order them after its own.
func (s *Session) newTracker(path directions.Path) (*Tracker, []Event, error) {
	var primed []Event
	t := NewTracker(s.cfg.Tracker, func(e Event) { primed = append(primed, e) })
	if err := t.Initialize(path); err != nil {
		return nil, nil, err
	}
	t.sink = s.onTrackerEvent
	return t, primed, nil
}

func (s *Session) onTrackerEvent(e Event) {
	s.emit(e)

	switch ev := e.(type) {
	case InstructionChanged:
		if s.lastInstruction != nil && ev.Index > s.lastInstruction.Index {
			instructionAdvancesTotal.Inc()
		}
		s.lastInstruction = &ev
	case OffRoute:
		offRouteTotal.Inc()
		s.recalculate(ev.Location, ReasonOffRoute)
	case DestinationReached:
		destinationsReachedTotal.Inc()
		logger.Info("destination reached", zap.String("session_id", s.id))
	}
}

// bumpGeneration invalidates every in-flight route result.
func (s *Session) bumpGeneration() {
	s.generation++
	s.recalculating = false
}

func (s *Session) swapTracker(tracker *Tracker, primed []Event) {
	s.tracker = tracker
	s.lastInstruction = nil
	for _, e := range primed {
		s.onTrackerEvent(e)
	}
	if s.lastFix != nil {
		s.tracker.UpdateLocation(s.lastFix.Point)
	}
}

func (s *Session) applyFix(fix Fix) error {
	start := time.Now()
	defer func() { fixProcessingDuration.Observe(time.Since(start).Seconds()) }()

	if s.lastFix != nil && fix.Timestamp.Before(s.lastFix.Timestamp) {
		fixesProcessedTotal.WithLabelValues("stale").Inc()
		return fmt.Errorf("%w: %s before %s", ErrStaleFix,
			fix.Timestamp.Format(time.RFC3339Nano), s.lastFix.Timestamp.Format(time.RFC3339Nano))
	}
	if fix.Bearing == 0 && s.lastFix != nil && fix.Point != s.lastFix.Point {
		fix.Bearing = geo.BearingDegrees(s.lastFix.Point, fix.Point)
	}
	s.lastFix = &fix

	s.tracker.UpdateLocation(fix.Point)
	if hazard, ok := s.monitor.CheckFix(fix.Point); ok {
		ratingPromptsTotal.Inc()
		s.emit(RatingPrompt{Hazard: hazard})
	}

	fixesProcessedTotal.WithLabelValues("accepted").Inc()
	return nil
}

// recalculate asks for a new route from `from` unless one is in flight.
func (s *Session) recalculate(from geo.Point, reason string) {
	if s.recalculating {
		return
	}
	s.recalculating = true

	req := s.request
	req.Origin = from
	generation := s.generation

	s.spawn("route-recalculation", func(ctx context.Context) {
		resp, err := s.deps.Directions.GetDirections(ctx, req)
		s.post("route-recalculation", func() {
			s.applyRecalculation(generation, req, resp, err, reason)
		})
	})
}

func (s *Session) applyRecalculation(generation uint64, req directions.Request, resp *directions.Response, err error, reason string) {
	if generation != s.generation {
		staleResultsTotal.WithLabelValues("route-recalculation").Inc()
		return
	}
	s.recalculating = false

	var (
		options *routes.OptionSet
		tracker *Tracker
		primed  []Event
	)
	if err == nil {
		options, err = routes.Build(resp, req.Destination)
	}
	if err == nil {
		tracker, primed, err = s.newTracker(options.Selected().Path)
	}
	if err != nil {
		recalculationsTotal.WithLabelValues(reason, "failed").Inc()
		logger.Warn("route recalculation failed",
			zap.String("session_id", s.id),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	s.bumpGeneration()
	s.request = req
	s.options = options
	recalculationsTotal.WithLabelValues(reason, "ok").Inc()
	s.emit(RouteRecalculated{Options: options.Options(), Selected: options.SelectedIndex(), Reason: reason})
	s.swapTracker(tracker, primed)
}

func (s *Session) refreshHazards() {
	if s.refreshing {
		s.refreshAgain = true
		return
	}
	s.refreshing = true

	s.spawn("hazard-refresh", func(ctx context.Context) {
		hazards, err := s.deps.Incidents.List(ctx)
		s.post("hazard-refresh", func() {
			s.applyHazards(hazards, err)
		})
	})
}

func (s *Session) applyHazards(hazards []incidents.Hazard, err error) {
	s.refreshing = false
	defer func() {
		if s.refreshAgain {
			s.refreshAgain = false
			s.refreshHazards()
		}
	}()

	if err != nil {
		hazardRefreshesTotal.WithLabelValues("failed").Inc()
		logger.Warn("hazard refresh failed", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	hazardRefreshesTotal.WithLabelValues("ok").Inc()

	fresh := s.monitor.SetHazards(hazards)
	if len(fresh) == 0 || s.tracker.State() == StateFinished {
		return
	}
	stale := incidents.StaleHazards(s.tracker.Points(), fresh, s.cfg.Monitor.RouteProximityMeters)
	if len(stale) == 0 {
		return
	}
	s.emit(RouteStale{Hazards: stale})
	s.recalculate(s.currentPosition(), ReasonRouteStale)
}

func (s *Session) currentPosition() geo.Point {
	if s.lastFix != nil {
		return s.lastFix.Point
	}
	return s.request.Origin
}

// reconcile refreshes hazards and retries a recalculation that failed while
// the user is still off route.
func (s *Session) reconcile() {
	s.refreshHazards()
	if s.tracker.State() == StateOffRoute && !s.recalculating {
		s.recalculate(s.currentPosition(), ReasonOffRoute)
	}
	s.publishProgress()
}

func (s *Session) updateETA() {
	if s.tracker.State() == StateFinished {
		return
	}
	speed := 0.0
	if s.lastFix != nil {
		speed = s.lastFix.Speed
	}
	estimate := s.estimator.Estimate(s.tracker.Path(), s.tracker.RemainingDistance(), speed)
	s.lastETA = &estimate
	s.emit(ETAUpdated{Estimate: estimate, Summary: estimate.Summary(nil)})
	s.publishProgress()
	s.cacheProgress()
}

func (s *Session) cacheProgress() {
	if s.deps.Cache == nil {
		return
	}
	snapshot := s.Progress()
	s.spawn("cache-progress", func(ctx context.Context) {
		if err := s.deps.Cache.Set(ctx, cache.Keys.SessionProgress(s.id), snapshot, cache.TTL.Session()); err != nil {
			logger.DebugContext(ctx, "failed to cache session progress", zap.Error(err))
		}
	})
}

func (s *Session) publishProgress() {
	p := Progress{
		SessionID:         s.id,
		State:             s.tracker.State().String(),
		Mode:              s.request.Mode,
		Origin:            s.request.Origin,
		Destination:       s.request.Destination,
		SelectedRoute:     s.options.SelectedIndex(),
		Options:           s.options.Options(),
		Instruction:       s.lastInstruction,
		DistanceTraveled:  s.tracker.DistanceTraveled(),
		RemainingDistance: s.tracker.RemainingDistance(),
		ETA:               s.lastETA,
		LastFix:           s.lastFix,
		Recalculating:     s.recalculating,
		LastActivityAt:    s.lastActivity,
		UpdatedAt:         s.now(),
	}
	if hazard, ok := s.monitor.Pending(); ok {
		p.PendingRating = &hazard
	}
	select {
	case <-s.quit:
		p.Ended = true
	default:
	}

	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Events returns the event stream. It is closed after SessionEnded.
func (s *Session) Events() <-chan Event { return s.events }

// Progress returns the latest snapshot.
func (s *Session) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// PushFix applies a location fix in arrival order.
func (s *Session) PushFix(ctx context.Context, fix Fix) error {
	return s.do(ctx, func() error { return s.applyFix(fix) })
}

// SelectRoute restarts tracking on another option of the current set.
func (s *Session) SelectRoute(ctx context.Context, index int) error {
	return s.do(ctx, func() error {
		previous := s.options.SelectedIndex()
		if err := s.options.Select(index); err != nil {
			return err
		}
		tracker, primed, err := s.newTracker(s.options.Selected().Path)
		if err != nil {
			_ = s.options.Select(previous)
			return err
		}
		s.bumpGeneration()
		s.swapTracker(tracker, primed)
		return nil
	})
}

// ChangeMode switches the travel mode and recomputes the options from the
// current position. The new route arrives as RouteRecalculated.
func (s *Session) ChangeMode(ctx context.Context, mode directions.TravelMode) error {
	return s.do(ctx, func() error {
		if mode == s.request.Mode {
			return nil
		}
		s.request.Mode = mode
		s.bumpGeneration()
		s.recalculate(s.currentPosition(), ReasonModeChanged)
		return nil
	})
}

// ReportIncident creates a hazard at the last fix and suppresses rating
// prompts around it for the suppression window.
func (s *Session) ReportIncident(ctx context.Context, typeID int) (*incidents.Hazard, error) {
	last := s.Progress().LastFix
	if last == nil {
		return nil, ErrNoFix
	}

	hazard, err := s.deps.Incidents.Create(ctx, incidents.CreateRequest{
		TypeID:    typeID,
		Latitude:  last.Point.Latitude,
		Longitude: last.Point.Longitude,
	})
	if err != nil {
		return nil, err
	}

	err = s.do(ctx, func() error {
		s.monitor.RecordSelfReport(last.Point)
		s.refreshHazards()
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "hazard reported but session did not record it", zap.Error(err))
	}
	return hazard, nil
}

// RateIncident rates the pending hazard. The prompt is cleared at once; the
// remote call runs in the background and its failure is only logged.
func (s *Session) RateIncident(ctx context.Context, id int64, positive bool) error {
	return s.do(ctx, func() error {
		pending, ok := s.monitor.Pending()
		if !ok || pending.ID != id {
			return fmt.Errorf("%w: %d", ErrNoPendingRating, id)
		}
		s.monitor.MarkRated(id)

		s.spawn("hazard-rating", func(ctx context.Context) {
			if err := s.deps.Incidents.Rate(ctx, id, positive); err != nil {
				ratingsTotal.WithLabelValues("failed").Inc()
				logger.WarnContext(ctx, "hazard rating failed", zap.Int64("hazard_id", id), zap.Error(err))
				apperrors.CaptureError(ctx, err, map[string]interface{}{"hazard_id": id})
				return
			}
			ratingsTotal.WithLabelValues("ok").Inc()
		})
		return nil
	})
}

// RefreshHazards schedules a hazard refresh.
func (s *Session) RefreshHazards() {
	s.post("hazard-refresh", s.refreshHazards)
}

// End stops the session and waits for its goroutine. Safe to call more than once.
func (s *Session) End(reason string) {
	s.endOnce.Do(func() {
		s.endReason = reason
		close(s.quit)
	})
	<-s.done
}
