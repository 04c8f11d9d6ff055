package validation

import "time"

// Coordinate is a latitude/longitude pair in a request body.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// PlanRouteRequest asks for the route options between two points.
type PlanRouteRequest struct {
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	Mode        string     `json:"mode" validate:"omitempty,travel_mode"`
}

// StartSessionRequest starts navigation on one of the planned options.
type StartSessionRequest struct {
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	Mode        string     `json:"mode" validate:"omitempty,travel_mode"`
	RouteIndex  int        `json:"route_index" validate:"gte=0,lte=3"`
}

// RecoverSessionRequest starts navigation on the route the backend kept for
// the user. Origin is optional.
type RecoverSessionRequest struct {
	Origin      *Coordinate `json:"origin" validate:"omitempty"`
	Destination Coordinate  `json:"destination"`
	Mode        string      `json:"mode" validate:"omitempty,travel_mode"`
}

// FixRequest is one location sample from the device.
type FixRequest struct {
	Latitude  float64   `json:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Speed     float64   `json:"speed" validate:"gte=0,lte=120"`
	Bearing   float64   `json:"bearing" validate:"bearing"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

type SelectRouteRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

type ChangeModeRequest struct {
	Mode string `json:"mode" validate:"required,travel_mode"`
}

// ReportIncidentRequest reports a hazard at the session's last fix.
type ReportIncidentRequest struct {
	TypeID int `json:"type_id" validate:"required,incident_type"`
}

// RateIncidentRequest confirms (positive) or denies a hazard.
type RateIncidentRequest struct {
	Positive *bool `json:"positive" validate:"required"`
}

// ValidateFix validates a fix and rejects one from the future.
func ValidateFix(req *FixRequest, now time.Time) error {
	if err := ValidateStruct(req); err != nil {
		return err
	}
	// Small allowance for device clock skew.
	if req.Timestamp.After(now.Add(30 * time.Second)) {
		return &ValidationError{Errors: map[string]string{
			"timestamp": "timestamp is in the future",
		}}
	}
	return nil
}

// ValidateRoutePoints rejects an origin equal to the destination.
func ValidateRoutePoints(origin, destination Coordinate) error {
	if origin == destination {
		return &ValidationError{Errors: map[string]string{
			"destination": "origin and destination cannot be the same",
		}}
	}
	return nil
}
