package incidents

import (
	"sort"
	"time"

	"github.com/richxcame/navigator/pkg/geo"
	"github.com/uber/h3-go/v4"
)

// Beyond this prompt radius a k=1 disk at the hazard resolution may miss
// candidates, so the monitor scans every hazard instead.
const maxIndexedRadiusMeters = 50

// MonitorConfig holds the proximity thresholds.
type MonitorConfig struct {
	PromptRadiusMeters      float64
	SuppressionRadiusMeters float64
	SuppressionWindow       time.Duration
	RouteProximityMeters    float64
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PromptRadiusMeters:      20,
		SuppressionRadiusMeters: 30,
		SuppressionWindow:       5 * time.Minute,
		RouteProximityMeters:    30,
	}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor decides when the user should be asked to rate a nearby hazard.
// It is owned by one session goroutine and is not safe for concurrent use.
type Monitor struct {
	cfg MonitorConfig
	now func() time.Time

	hazards []Hazard
	// snapshot positions by H3 cell
	index  map[h3.Cell][]int
	known  map[int64]struct{}
	seeded bool

	// rated or suppressed ids; never prompted again
	done        map[int64]struct{}
	pending     *Hazard
	suppression *SuppressionWindow
}

func NewMonitor(cfg MonitorConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		cfg:   cfg,
		now:   time.Now,
		index: make(map[h3.Cell][]int),
		known: make(map[int64]struct{}),
		done:  make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHazards replaces the hazard snapshot and returns the hazards whose id
// was not known before. The first snapshot only seeds the known set.
func (m *Monitor) SetHazards(hazards []Hazard) []Hazard {
	m.hazards = append(m.hazards[:0:0], hazards...)
	m.index = make(map[h3.Cell][]int, len(hazards))
	for i, h := range m.hazards {
		cell := geo.LatLngToCell(h.Point(), geo.H3ResolutionHazard)
		m.index[cell] = append(m.index[cell], i)
	}

	var fresh []Hazard
	for _, h := range m.hazards {
		if _, ok := m.known[h.ID]; ok {
			continue
		}
		m.known[h.ID] = struct{}{}
		if m.seeded {
			fresh = append(fresh, h)
		}
	}
	m.seeded = true
	return fresh
}

// Hazards returns the current snapshot.
func (m *Monitor) Hazards() []Hazard {
	return m.hazards
}

// CheckFix evaluates a fix. It returns the hazard that became pending with
// this fix, if any. While a fix is inside this session's own report window
// the scan is skipped, and hazards inside that window are never prompted.
func (m *Monitor) CheckFix(fix geo.Point) (Hazard, bool) {
	if m.suppression.Active(fix, m.now(), m.cfg.SuppressionRadiusMeters, m.cfg.SuppressionWindow) {
		m.suppressOwnReport()
		return Hazard{}, false
	}
	if m.pending != nil {
		return Hazard{}, false
	}

	for _, i := range m.candidates(fix) {
		h := m.hazards[i]
		if _, ok := m.done[h.ID]; ok {
			continue
		}
		if geo.HaversineMeters(fix, h.Point()) <= m.cfg.PromptRadiusMeters {
			pending := h
			m.pending = &pending
			return h, true
		}
	}
	return Hazard{}, false
}

// candidates returns snapshot positions worth measuring, in snapshot order.
func (m *Monitor) candidates(fix geo.Point) []int {
	if m.cfg.PromptRadiusMeters > maxIndexedRadiusMeters {
		all := make([]int, len(m.hazards))
		for i := range all {
			all[i] = i
		}
		return all
	}

	var out []int
	for _, cell := range geo.GridDisk(fix, geo.H3ResolutionHazard, geo.H3KRingHazard) {
		out = append(out, m.index[cell]...)
	}
	sort.Ints(out)
	return out
}

func (m *Monitor) suppressOwnReport() {
	for _, h := range m.hazards {
		if geo.HaversineMeters(h.Point(), m.suppression.Location) < m.cfg.SuppressionRadiusMeters {
			m.done[h.ID] = struct{}{}
		}
	}
}

// MarkRated records a rating. The id never prompts again and any pending
// prompt is cleared, whatever the outcome of the remote call.
func (m *Monitor) MarkRated(id int64) {
	m.done[id] = struct{}{}
	m.pending = nil
}

// RecordSelfReport opens a suppression window at p.
func (m *Monitor) RecordSelfReport(p geo.Point) {
	m.suppression = &SuppressionWindow{Location: p, CreatedAt: m.now()}
}

// Pending returns the hazard awaiting a rating.
func (m *Monitor) Pending() (Hazard, bool) {
	if m.pending == nil {
		return Hazard{}, false
	}
	return *m.pending, true
}

// Reset forgets everything, including the known and rated sets.
func (m *Monitor) Reset() {
	m.hazards = nil
	m.index = make(map[h3.Cell][]int)
	m.known = make(map[int64]struct{})
	m.seeded = false
	m.done = make(map[int64]struct{})
	m.pending = nil
	m.suppression = nil
}

// StaleHazards returns the candidates lying within proximityMeters of any
// segment of route.
func StaleHazards(route []geo.Point, candidates []Hazard, proximityMeters float64) []Hazard {
	var stale []Hazard
	for _, h := range candidates {
		if geo.MinDistanceToPolylineMeters(h.Point(), route) <= proximityMeters {
			stale = append(stale, h)
		}
	}
	return stale
}
