package incidents

import (
	"testing"
	"time"

	"github.com/richxcame/navigator/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// equator returns a point i steps of 0.0001 degrees (about 11.12 m) east of 0,0.
func equator(i int) geo.Point {
	return geo.NewPoint(0, float64(i)*0.0001)
}

func hazardAt(id int64, p geo.Point) Hazard {
	return Hazard{ID: id, TypeID: 8, Latitude: p.Latitude, Longitude: p.Longitude}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestMonitor(cfg MonitorConfig) (*Monitor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewMonitor(cfg, WithClock(clock.Now)), clock
}

func TestMonitor_SetHazardsSeedsThenReportsNew(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())

	fresh := m.SetHazards([]Hazard{hazardAt(1, equator(0)), hazardAt(2, equator(5))})
	assert.Empty(t, fresh)

	fresh = m.SetHazards([]Hazard{hazardAt(1, equator(0)), hazardAt(3, equator(9))})
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(3), fresh[0].ID)
	assert.Len(t, m.Hazards(), 2)

	// id 2 disappeared and came back; it was already known
	fresh = m.SetHazards([]Hazard{hazardAt(2, equator(5))})
	assert.Empty(t, fresh)
}

func TestMonitor_PromptsWithinRadius(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(1, equator(10))})

	_, ok := m.CheckFix(equator(7))
	assert.False(t, ok, "33 m away should not prompt")

	h, ok := m.CheckFix(equator(9))
	require.True(t, ok)
	assert.Equal(t, int64(1), h.ID)

	pending, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(1), pending.ID)

	// already pending; no second prompt
	_, ok = m.CheckFix(equator(10))
	assert.False(t, ok)
}

func TestMonitor_PrefersEarlierSnapshotEntry(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(5, equator(1)), hazardAt(4, equator(0))})

	h, ok := m.CheckFix(equator(0))
	require.True(t, ok)
	assert.Equal(t, int64(5), h.ID)
}

func TestMonitor_RatedHazardNeverPromptsAgain(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(1, equator(0))})

	_, ok := m.CheckFix(equator(1))
	require.True(t, ok)

	m.MarkRated(1)
	_, ok = m.Pending()
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		_, ok = m.CheckFix(equator(0))
		assert.False(t, ok)
	}

	// survives a refresh
	m.SetHazards([]Hazard{hazardAt(1, equator(0))})
	_, ok = m.CheckFix(equator(0))
	assert.False(t, ok)
}

func TestMonitor_SelfReportSuppressesNearbyHazards(t *testing.T) {
	m, clock := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(1, equator(1)), hazardAt(2, equator(20))})

	m.RecordSelfReport(equator(0))

	_, ok := m.CheckFix(equator(1))
	assert.False(t, ok, "inside own report window")

	clock.now = clock.now.Add(6 * time.Minute)
	_, ok = m.CheckFix(equator(1))
	assert.False(t, ok, "hazard inside the window stays suppressed")

	h, ok := m.CheckFix(equator(20))
	require.True(t, ok)
	assert.Equal(t, int64(2), h.ID)
}

func TestMonitor_SuppressionKeepsPendingPrompt(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(1, equator(0))})

	_, ok := m.CheckFix(equator(0))
	require.True(t, ok)

	m.RecordSelfReport(equator(0))
	_, ok = m.CheckFix(equator(0))
	assert.False(t, ok)

	pending, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(1), pending.ID)
}

func TestMonitor_LargeRadiusScansEverything(t *testing.T) {
	cfg := DefaultMonitorConfig()
	cfg.PromptRadiusMeters = 500
	m, _ := newTestMonitor(cfg)
	m.SetHazards([]Hazard{hazardAt(1, equator(40))})

	h, ok := m.CheckFix(equator(0))
	require.True(t, ok)
	assert.Equal(t, int64(1), h.ID)
}

func TestMonitor_Reset(t *testing.T) {
	m, _ := newTestMonitor(DefaultMonitorConfig())
	m.SetHazards([]Hazard{hazardAt(1, equator(0))})
	m.CheckFix(equator(0))
	m.MarkRated(1)

	m.Reset()
	assert.Empty(t, m.Hazards())

	assert.Empty(t, m.SetHazards([]Hazard{hazardAt(1, equator(0))}))
	_, ok := m.CheckFix(equator(0))
	assert.True(t, ok)
}

func TestStaleHazards(t *testing.T) {
	route := []geo.Point{equator(0), equator(100)}
	candidates := []Hazard{
		hazardAt(1, geo.NewPoint(0.0002, 0.005)), // about 22 m off the line
		hazardAt(2, geo.NewPoint(0.001, 0.005)),  // about 111 m off
		hazardAt(3, equator(50)),
	}

	stale := StaleHazards(route, candidates, 30)
	require.Len(t, stale, 2)
	assert.Equal(t, int64(1), stale[0].ID)
	assert.Equal(t, int64(3), stale[1].ID)

	assert.Empty(t, StaleHazards(nil, candidates, 30))
}
