package navigation

import (
	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/eta"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/eventbus"
	"github.com/richxcame/navigator/pkg/geo"
)

// Event is a navigation output. The set of implementations is closed; switch
// on the concrete type.
type Event interface {
	// Type is the event bus subject the event is published on.
	Type() string
	isEvent()
}

// EventSink receives tracker events synchronously.
type EventSink func(Event)

// InstructionChanged carries the instruction to display and the distance to
// its maneuver. Next is nil on the last instruction.
type InstructionChanged struct {
	Index          int                     `json:"index"`
	Instruction    directions.Instruction  `json:"instruction"`
	DistanceToNext float64                 `json:"distance_to_next"`
	Next           *directions.Instruction `json:"next,omitempty"`
}

type DestinationReached struct{}

// OffRoute is raised once when a fix leaves the route corridor.
type OffRoute struct {
	Location geo.Point `json:"location"`
}

// RouteStale lists newly reported hazards lying on the active route.
type RouteStale struct {
	Hazards []incidents.Hazard `json:"hazards"`
}

// RatingPrompt asks the user to confirm or deny a nearby hazard.
type RatingPrompt struct {
	Hazard incidents.Hazard `json:"hazard"`
}

type ETAUpdated struct {
	Estimate eta.Estimate `json:"estimate"`
	Summary  eta.Summary  `json:"summary"`
}

// RouteRecalculated replaces the option list; tracking restarts on Selected.
type RouteRecalculated struct {
	Options  []routes.Option `json:"options"`
	Selected int             `json:"selected"`
	Reason   string          `json:"reason"`
}

// SessionEnded is always the last event of a session.
type SessionEnded struct {
	Reason string `json:"reason"`
}

func (InstructionChanged) Type() string { return eventbus.SubjectInstructionChanged }
func (DestinationReached) Type() string { return eventbus.SubjectDestinationReached }
func (OffRoute) Type() string           { return eventbus.SubjectOffRoute }
func (RouteStale) Type() string         { return eventbus.SubjectRouteStale }
func (RatingPrompt) Type() string       { return eventbus.SubjectRatingPrompt }
func (ETAUpdated) Type() string         { return eventbus.SubjectETAUpdated }
func (RouteRecalculated) Type() string  { return eventbus.SubjectRouteRecalculated }
func (SessionEnded) Type() string       { return eventbus.SubjectSessionEnded }

func (InstructionChanged) isEvent() {}
func (DestinationReached) isEvent() {}
func (OffRoute) isEvent()           {}
func (RouteStale) isEvent()         {}
func (RatingPrompt) isEvent()       {}
func (ETAUpdated) isEvent()         {}
func (RouteRecalculated) isEvent()  {}
func (SessionEnded) isEvent()       {}
