package incidents

import (
	"time"

	"github.com/richxcame/navigator/pkg/geo"
)

// Hazard is a hazard report from the incident service.
type Hazard struct {
	ID         int64   `json:"id"`
	TypeID     int     `json:"type_id"`
	CategoryID int     `json:"category_id"`
	Label      string  `json:"label"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

func (h Hazard) Point() geo.Point {
	return geo.NewPoint(h.Latitude, h.Longitude)
}

// CreateRequest reports a new hazard.
type CreateRequest struct {
	TypeID    int
	Latitude  float64
	Longitude float64
}

// SuppressionWindow is the zone around a hazard this session just reported
// in which no rating prompt is raised.
type SuppressionWindow struct {
	Location  geo.Point
	CreatedAt time.Time
}

// Active reports whether p at now falls inside the window.
func (w *SuppressionWindow) Active(p geo.Point, now time.Time, radiusMeters float64, window time.Duration) bool {
	if w == nil {
		return false
	}
	return now.Sub(w.CreatedAt) < window && geo.HaversineMeters(p, w.Location) < radiusMeters
}

// wireIncident is the incident service representation.
type wireIncident struct {
	ID        int64   `json:"id"`
	TypeID    int     `json:"typeId"`
	TypeName  string  `json:"typeName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type wireIncidentRequest struct {
	TypeID    int     `json:"typeId"`
	TypeName  string  `json:"typeName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type wireRating struct {
	Positive bool `json:"positive"`
}

func (w wireIncident) toHazard() Hazard {
	h := Hazard{
		ID:        w.ID,
		TypeID:    w.TypeID,
		Label:     w.TypeName,
		Latitude:  w.Latitude,
		Longitude: w.Longitude,
	}
	if t, ok := TypeByID(w.TypeID); ok {
		h.CategoryID = t.CategoryID
		if h.Label == "" {
			h.Label = t.Name
		}
	}
	return h
}
