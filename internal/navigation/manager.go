package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/async"
	"github.com/richxcame/navigator/pkg/cache"
	"github.com/richxcame/navigator/pkg/eventbus"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/websocket"
	"go.uber.org/zap"
)

const eventSource = "navigator"

// Subscriber is the part of the event bus the manager listens on.
type Subscriber interface {
	Subscribe(ctx context.Context, subject, consumerName string, handler eventbus.HandlerFunc) error
}

// StartRequest starts navigation on one of the planned options.
type StartRequest struct {
	Origin      geo.Point
	Destination geo.Point
	Mode        directions.TravelMode
	RouteIndex  int
}

// RecoverRequest starts navigation on the route the backend kept for the
// user. Origin is optional.
type RecoverRequest struct {
	Origin      *geo.Point
	Destination geo.Point
	Mode        directions.TravelMode
}

// incidentReported is the payload of incidents.reported.
type incidentReported struct {
	Hazard incidents.Hazard `json:"hazard"`
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPublisher publishes every session event on the bus.
func WithPublisher(p eventbus.Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// WithHub forwards every session event to the session's websocket clients.
func WithHub(h *websocket.Hub) ManagerOption {
	return func(m *Manager) { m.hub = h }
}

// WithIdleTTL ends sessions that received no command for ttl.
func WithIdleTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTTL = ttl }
}

// Manager owns the live sessions of this instance.
type Manager struct {
	cfg       SessionConfig
	deps      Dependencies
	publisher eventbus.Publisher
	hub       *websocket.Hub
	idleTTL   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewManager(cfg SessionConfig, deps Dependencies, opts ...ManagerOption) *Manager {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		idleTTL:  2 * time.Hour,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan returns the route options between two points without starting a session.
func (m *Manager) Plan(ctx context.Context, req directions.Request) (*routes.OptionSet, error) {
	resp, err := m.deps.Directions.GetDirections(ctx, req)
	if err != nil {
		return nil, err
	}
	return routes.Build(resp, req.Destination)
}

// Start plans the route and starts tracking the chosen option.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	dirReq := directions.Request{Origin: req.Origin, Destination: req.Destination, Mode: req.Mode}
	options, err := m.Plan(ctx, dirReq)
	if err != nil {
		return nil, err
	}
	if err := options.Select(req.RouteIndex); err != nil {
		return nil, err
	}
	return m.launch(ctx, dirReq, options)
}

// Recover starts tracking the server-recovered route.
func (m *Manager) Recover(ctx context.Context, req RecoverRequest) (*Session, error) {
	resp, err := m.deps.Directions.GetUserRoute(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	options, err := routes.BuildRecovered(resp, req.Destination)
	if err != nil {
		return nil, err
	}

	dirReq := directions.Request{Destination: req.Destination, Mode: req.Mode}
	if req.Origin != nil {
		dirReq.Origin = *req.Origin
	} else if points := options.Selected().Points; len(points) > 0 {
		dirReq.Origin = points[0]
	}
	return m.launch(ctx, dirReq, options)
}

func (m *Manager) launch(ctx context.Context, req directions.Request, options *routes.OptionSet) (*Session, error) {
	id := uuid.New().String()
	session, err := newSession(id, m.cfg, m.deps, req, options, httpclient.TokenFromContext(ctx))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	activeSessions.Inc()

	session.start()
	m.wg.Add(1)
	go m.forward(session)

	logger.InfoContext(ctx, "navigation session started",
		zap.String("session_id", id),
		zap.String("mode", string(req.Mode)),
		zap.Int("options", options.Len()),
		zap.Int("selected", options.SelectedIndex()),
	)
	return session, nil
}

// forward relays session events to websocket clients and the event bus until
// the session's event channel closes, then disconnects the session's clients.
func (m *Manager) forward(s *Session) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		activeSessions.Dec()
	}()

	ctx := async.WithSessionID(context.Background(), s.ID())
	for e := range s.Events() {
		if m.hub != nil {
			msg, err := websocket.NewMessage(e.Type(), s.ID(), e)
			if err != nil {
				logger.WarnContext(ctx, "failed to encode websocket message", zap.Error(err))
			} else {
				m.hub.SendToSession(s.ID(), msg)
			}
		}
		m.publish(ctx, s.ID(), e.Type(), e)
	}
	if m.hub != nil {
		m.hub.DisconnectSession(s.ID())
	}
}

func (m *Manager) publish(ctx context.Context, sessionID, subject string, data interface{}) {
	if m.publisher == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, eventSource, data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("subject", subject), zap.Error(err))
		return
	}
	event.SessionID = sessionID

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.publisher.Publish(pubCtx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish navigation event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Progress returns the snapshot of a live session, or the last cached one
// for a session that lives elsewhere or has ended.
func (m *Manager) Progress(ctx context.Context, id string) (Progress, error) {
	if s, err := m.Get(id); err == nil {
		return s.Progress(), nil
	}

	var p Progress
	if err := m.deps.Cache.Get(ctx, cache.Keys.SessionProgress(id), &p); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.WarnContext(ctx, "failed to read cached progress", zap.Error(err))
		}
		return Progress{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return p, nil
}

// End stops a session.
func (m *Manager) End(id, reason string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.End(reason)
	return nil
}

// ReportIncident reports a hazard from a session and tells the other
// instances about it.
func (m *Manager) ReportIncident(ctx context.Context, id string, typeID int) (*incidents.Hazard, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	hazard, err := s.ReportIncident(ctx, typeID)
	if err != nil {
		return nil, err
	}

	async.Go(ctx, "publish-incident-reported", func(ctx context.Context) {
		m.publish(ctx, id, eventbus.SubjectIncidentReported, incidentReported{Hazard: *hazard})
	})
	return hazard, nil
}

// Subscribe refreshes the hazards of every live session whenever any
// instance reports a hazard. The consumer is ephemeral so every instance
// receives every report.
func (m *Manager) Subscribe(ctx context.Context, bus Subscriber) error {
	return bus.Subscribe(ctx, eventbus.SubjectIncidentReported, "", m.handleIncidentReported)
}

func (m *Manager) handleIncidentReported(ctx context.Context, event *eventbus.Event) error {
	var payload incidentReported
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		// Redelivery will not fix a bad payload.
		logger.WarnContext(ctx, "ignoring malformed incident event", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	sessions := m.snapshot()
	logger.DebugContext(ctx, "hazard reported elsewhere, refreshing sessions",
		zap.Int64("hazard_id", payload.Hazard.ID),
		zap.Int("sessions", len(sessions)),
	)
	for _, s := range sessions {
		if s.ID() == event.SessionID {
			continue
		}
		s.RefreshHazards()
	}
	return nil
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run ends idle sessions until ctx is done, then ends every session.
func (m *Manager) Run(ctx context.Context) {
	interval := min(m.idleTTL/4, time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	now := m.deps.Clock()
	for _, s := range m.snapshot() {
		if now.Sub(s.Progress().LastActivityAt) > m.idleTTL {
			logger.Info("ending idle navigation session", zap.String("session_id", s.ID()))
			s.End(ReasonIdle)
		}
	}
}

// Shutdown ends every session and waits for their events to be forwarded.
func (m *Manager) Shutdown() {
	for _, s := range m.snapshot() {
		s.End(ReasonShutdown)
	}
	m.wg.Wait()
}
