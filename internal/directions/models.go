package directions

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/logger"
	"go.uber.org/zap"
)

// ErrNoRouteAvailable means the backend could not produce a usable route.
var ErrNoRouteAvailable = errors.New("no route available")

// TravelMode is the travel mode a client asks for.
type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeBicycling TravelMode = "bicycling"
	ModeWalking   TravelMode = "walking"
)

// ParseTravelMode normalises a client mode. Unknown or empty input yields
// ModeDriving.
func ParseTravelMode(s string) TravelMode {
	mode := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return ModeDriving
	}
	return mode
}

func (m TravelMode) IsValid() bool {
	switch m {
	case ModeDriving, ModeBicycling, ModeWalking:
		return true
	}
	return false
}

// BackendMode is the profile name the directions backend expects.
func (m TravelMode) BackendMode() string {
	switch m {
	case ModeBicycling:
		return "bike"
	case ModeWalking:
		return "foot"
	default:
		return "car"
	}
}

// Instruction is one maneuver of a path. PointIndex indexes the decoded
// polyline of the owning path.
type Instruction struct {
	Text           string  `json:"text"`
	DistanceMeters float64 `json:"distance"`
	DurationMs     int64   `json:"time"`
	Sign           Sign    `json:"sign"`
	PointIndex     int     `json:"point_index"`
	StreetName     *string `json:"street_name,omitempty"`
}

// Path is one computed route: geometry plus maneuvers.
type Path struct {
	DistanceMeters  float64       `json:"distance"`
	DurationMs      int64         `json:"time"`
	EncodedPolyline string        `json:"points"`
	Instructions    []Instruction `json:"instructions"`
}

// Variant is the backend answer for one routing profile.
type Variant struct {
	Paths []Path `json:"paths"`
}

// FirstPath returns the first path of v, if any.
func (v *Variant) FirstPath() (Path, bool) {
	if v == nil || len(v.Paths) == 0 {
		return Path{}, false
	}
	return v.Paths[0], true
}

// Response holds the three route variants. Any of them may be nil.
type Response struct {
	Fastest    *Variant `json:"fastest"`
	NoToll     *Variant `json:"noToll"`
	Economical *Variant `json:"economical"`
}

// Empty reports whether no variant carries a path.
func (r *Response) Empty() bool {
	if r == nil {
		return true
	}
	for _, v := range []*Variant{r.Fastest, r.NoToll, r.Economical} {
		if _, ok := v.FirstPath(); ok {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts each variant either as an object or as a string that
// holds the object's JSON. A variant that cannot be decoded becomes nil
// instead of failing the whole response.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Fastest = decodeVariant("fastest", raw["fastest"])
	r.NoToll = decodeVariant("noToll", raw["noToll"])
	r.Economical = decodeVariant("economical", raw["economical"])
	return nil
}

func decodeVariant(name string, raw json.RawMessage) *Variant {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '"' {
		var embedded string
		if err := json.Unmarshal(raw, &embedded); err != nil {
			logger.Warn("directions variant is not a valid string", zap.String("variant", name), zap.Error(err))
			return nil
		}
		raw = json.RawMessage(embedded)
	}

	var v Variant
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn("dropping undecodable directions variant", zap.String("variant", name), zap.Error(err))
		return nil
	}
	return &v
}

// Request asks for directions between two points.
type Request struct {
	Origin      geo.Point
	Destination geo.Point
	Mode        TravelMode
}
