package eta

import (
	"fmt"
	"math"
	"time"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/pkg/geo"
)

// DefaultMinSpeedMps is the speed below which the device speed is ignored.
const DefaultMinSpeedMps = 0.5

// Estimate is the remaining time and distance to the destination.
type Estimate struct {
	RemainingSeconds float64   `json:"remaining_seconds"`
	RemainingMeters  float64   `json:"remaining_meters"`
	ArrivalAt        time.Time `json:"arrival_at"`
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		e.now = now
	}
}

// WithMinSpeed sets the speed threshold in m/s.
func WithMinSpeed(mps float64) Option {
	return func(e *Estimator) {
		e.minSpeed = mps
	}
}

// Estimator turns remaining distance and current speed into an ETA.
type Estimator struct {
	now      func() time.Time
	minSpeed float64
}

func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{now: time.Now, minSpeed: DefaultMinSpeedMps}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate uses the device speed when it is above the threshold and the
// route's own average pace otherwise. A path that carries a distance but no
// duration falls back to the default average speed.
func (e *Estimator) Estimate(path directions.Path, remainingMeters, speedMps float64) Estimate {
	remainingMeters = math.Max(0, remainingMeters)

	var seconds float64
	switch {
	case speedMps > e.minSpeed:
		seconds = remainingMeters / speedMps
	case path.DistanceMeters <= 0:
		seconds = 0
	case path.DurationMs <= 0:
		seconds = float64(geo.EstimateDuration(remainingMeters/1000)) * 60
	default:
		total := float64(path.DurationMs) / 1000
		seconds = total * remainingMeters / path.DistanceMeters
	}

	return Estimate{
		RemainingSeconds: seconds,
		RemainingMeters:  remainingMeters,
		ArrivalAt:        e.now().Add(time.Duration(seconds * float64(time.Second))),
	}
}

// FormatDuration renders seconds as "< 1 min" or "N min".
func FormatDuration(seconds float64) string {
	minutes := int(math.Round(seconds / 60))
	if minutes < 1 {
		return "< 1 min"
	}
	return fmt.Sprintf("%d min", minutes)
}

// FormatDistance renders meters as "N m" under a kilometre and "N.N km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(math.Max(0, meters))))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatArrival renders the arrival clock time as HH:MM in loc.
func FormatArrival(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("15:04")
}

// Summary is the human readable form of an Estimate.
type Summary struct {
	Duration string `json:"duration"`
	Distance string `json:"distance"`
	Arrival  string `json:"arrival"`
}

func (e Estimate) Summary(loc *time.Location) Summary {
	return Summary{
		Duration: FormatDuration(e.RemainingSeconds),
		Distance: FormatDistance(e.RemainingMeters),
		Arrival:  FormatArrival(e.ArrivalAt, loc),
	}
}
