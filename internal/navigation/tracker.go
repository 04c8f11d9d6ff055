package navigation

import (
	"errors"
	"fmt"
	"math"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/config"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/polyline"
	"go.uber.org/zap"
)

// ErrEmptyRoute is returned when a path decodes to fewer than two points.
var ErrEmptyRoute = errors.New("route has fewer than two points")

// State is the tracker lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateTracking
	StateOffRoute
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateOffRoute:
		return "off_route"
	case StateFinished:
		return "finished"
	default:
		return "uninitialized"
	}
}

// TrackerConfig holds the distance thresholds of the tracker.
type TrackerConfig struct {
	OffRouteThresholdMeters     float64
	DestinationThresholdMeters  float64
	MinDistanceToNextMeters     float64
	ShortInstructionMeters      float64
	ShortInstructionSlackMeters float64
	MediumInstructionMeters     float64
	LongInstructionFactor       float64
	MediumInstructionFactor     float64
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		OffRouteThresholdMeters:     30,
		DestinationThresholdMeters:  20,
		MinDistanceToNextMeters:     20,
		ShortInstructionMeters:      30,
		ShortInstructionSlackMeters: 5,
		MediumInstructionMeters:     100,
		LongInstructionFactor:       0.10,
		MediumInstructionFactor:     0.08,
	}
}

// TrackerConfigFrom maps the navigation configuration section.
func TrackerConfigFrom(c config.NavigationConfig) TrackerConfig {
	return TrackerConfig{
		OffRouteThresholdMeters:     c.OffRouteThresholdMeters,
		DestinationThresholdMeters:  c.DestinationThresholdMeters,
		MinDistanceToNextMeters:     c.MinDistanceToNextMeters,
		ShortInstructionMeters:      c.ShortInstructionMeters,
		ShortInstructionSlackMeters: c.ShortInstructionSlackMeters,
		MediumInstructionMeters:     c.MediumInstructionMeters,
		LongInstructionFactor:       c.LongInstructionFactor,
		MediumInstructionFactor:     c.MediumInstructionFactor,
	}
}

// Tracker follows progress along one route. It is driven by a single
// goroutine and is not safe for concurrent use.
//
// Distance traveled is estimated by snapping the fix to the nearest polyline
// vertex, not to the nearest point on a segment. On sparse polylines this
// under- or over-counts between vertices.
type Tracker struct {
	cfg  TrackerConfig
	sink EventSink

	path         directions.Path
	points       []geo.Point
	instructions []directions.Instruction
	// instructionEnds[i] is the route distance at the end of instruction i.
	instructionEnds []float64
	// pointDistances[k] is the polyline length from the start to points[k].
	pointDistances []float64
	total          float64

	index    int
	traveled float64
	offRoute bool
	state    State
}

func NewTracker(cfg TrackerConfig, sink EventSink) *Tracker {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Tracker{cfg: cfg, sink: sink}
}

// Initialize loads path and emits the first instruction.
func (t *Tracker) Initialize(path directions.Path) error {
	points, err := polyline.Decode(path.EncodedPolyline)
	if err != nil {
		return fmt.Errorf("initialize tracker: %w", err)
	}
	if len(points) < 2 {
		return ErrEmptyRoute
	}

	t.Reset()
	t.path = path
	t.points = points

	t.pointDistances = make([]float64, len(points))
	for k := 1; k < len(points); k++ {
		t.pointDistances[k] = t.pointDistances[k-1] + geo.HaversineMeters(points[k-1], points[k])
	}

	t.instructions = path.Instructions
	if len(t.instructions) == 0 {
		t.instructions = []directions.Instruction{{
			Text:           routes.ArrivalText,
			DistanceMeters: t.pointDistances[len(points)-1],
			DurationMs:     path.DurationMs,
			Sign:           directions.SignFinish,
			PointIndex:     len(points) - 1,
		}}
	}

	t.instructionEnds = make([]float64, len(t.instructions))
	sum := 0.0
	for i, instr := range t.instructions {
		sum += math.Max(0, instr.DistanceMeters)
		t.instructionEnds[i] = sum
	}
	t.total = sum
	if t.total <= 0 {
		t.total = t.pointDistances[len(points)-1]
	}

	t.state = StateTracking
	t.sink(InstructionChanged{
		Index:          0,
		Instruction:    t.instructions[0],
		DistanceToNext: math.Max(0, t.instructions[0].DistanceMeters),
		Next:           t.next(0),
	})
	return nil
}

// UpdateLocation feeds one fix.
func (t *Tracker) UpdateLocation(fix geo.Point) {
	switch t.state {
	case StateUninitialized:
		logger.DPanic("tracker received a location before Initialize",
			zap.Float64("latitude", fix.Latitude),
			zap.Float64("longitude", fix.Longitude),
		)
		return
	case StateFinished:
		return
	}

	if geo.MinDistanceToPolylineMeters(fix, t.points) > t.cfg.OffRouteThresholdMeters {
		if !t.offRoute {
			t.offRoute = true
			t.state = StateOffRoute
			t.sink(OffRoute{Location: fix})
		}
		return
	}
	if t.offRoute {
		t.offRoute = false
		t.state = StateTracking
	}

	estimate := t.pointDistances[t.nearestVertex(fix)]
	if estimate <= t.traveled {
		return
	}
	t.traveled = estimate
	t.evaluate()
}

func (t *Tracker) nearestVertex(fix geo.Point) int {
	best, bestDistance := 0, math.Inf(1)
	for k, p := range t.points {
		if d := geo.HaversineMeters(fix, p); d < bestDistance {
			best, bestDistance = k, d
		}
	}
	return best
}

func (t *Tracker) evaluate() {
	last := len(t.instructions) - 1
	advanced := false
	for t.index < last && t.traveled >= t.advanceAt(t.index) {
		t.index++
		advanced = true
	}

	if t.index == last {
		remaining := math.Max(0, t.total-t.traveled)
		if remaining <= t.cfg.DestinationThresholdMeters {
			t.state = StateFinished
			t.sink(DestinationReached{})
			return
		}
		t.sink(InstructionChanged{
			Index:          t.index,
			Instruction:    t.instructions[t.index],
			DistanceToNext: t.distanceToNext(remaining, advanced),
		})
		return
	}

	t.sink(InstructionChanged{
		Index:          t.index,
		Instruction:    t.instructions[t.index],
		DistanceToNext: t.distanceToNext(t.instructionEnds[t.index]-t.traveled, advanced),
		Next:           t.next(t.index),
	})
}

// advanceAt is the distance traveled at which instruction i is done.
func (t *Tracker) advanceAt(i int) float64 {
	end := t.instructionEnds[i]
	length := math.Max(0, t.instructions[i].DistanceMeters)
	switch {
	case length > t.cfg.MediumInstructionMeters:
		return end - length*t.cfg.LongInstructionFactor
	case length > t.cfg.ShortInstructionMeters:
		return end - length*t.cfg.MediumInstructionFactor
	default:
		return end - t.cfg.ShortInstructionSlackMeters
	}
}

// A freshly entered instruction never shows less than the floor distance.
func (t *Tracker) distanceToNext(remaining float64, advanced bool) float64 {
	if advanced {
		return math.Max(t.cfg.MinDistanceToNextMeters, remaining)
	}
	return math.Max(0, remaining)
}

func (t *Tracker) next(i int) *directions.Instruction {
	if i+1 >= len(t.instructions) {
		return nil
	}
	next := t.instructions[i+1]
	return &next
}

// Reset returns the tracker to the uninitialized state.
func (t *Tracker) Reset() {
	t.path = directions.Path{}
	t.points = nil
	t.instructions = nil
	t.instructionEnds = nil
	t.pointDistances = nil
	t.total = 0
	t.index = 0
	t.traveled = 0
	t.offRoute = false
	t.state = StateUninitialized
}

func (t *Tracker) DistanceTraveled() float64 { return t.traveled }

func (t *Tracker) RemainingDistance() float64 {
	return math.Max(0, t.total-t.traveled)
}

func (t *Tracker) CurrentInstructionIndex() int { return t.index }

func (t *Tracker) State() State { return t.state }

// CurrentInstruction returns the active instruction, if initialized.
func (t *Tracker) CurrentInstruction() (directions.Instruction, bool) {
	if t.index >= len(t.instructions) {
		return directions.Instruction{}, false
	}
	return t.instructions[t.index], true
}

func (t *Tracker) Path() directions.Path { return t.path }

func (t *Tracker) Points() []geo.Point { return t.points }
