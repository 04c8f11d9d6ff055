// Package routes turns a directions response into the list of route options
// a user picks from.
package routes

import (
	"errors"
	"fmt"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/polyline"
	"go.uber.org/zap"
)

var (
	// ErrNoRouteAvailable is the directions sentinel, so callers can match
	// either package.
	ErrNoRouteAvailable = directions.ErrNoRouteAvailable
	ErrInvalidSelection = errors.New("invalid route selection")
)

// ArrivalText labels the synthetic final segment at the destination.
const ArrivalText = "You have arrived at your destination"

// Category identifies which backend variant produced an option.
type Category string

const (
	CategoryFastest    Category = "fastest"
	CategoryNoToll     Category = "noToll"
	CategoryEconomical Category = "economical"
	CategoryRecovered  Category = "recovered"
)

var labels = map[Category]string{
	CategoryFastest:    "Best route",
	CategoryNoToll:     "No tolls",
	CategoryEconomical: "Economical",
	CategoryRecovered:  "Recovered route",
}

// Label is the display name of a category.
func (c Category) Label() string {
	return labels[c]
}

// Segment anchors an instruction text to a point of the route.
type Segment struct {
	Point geo.Point `json:"point"`
	Text  string    `json:"text"`
}

// Option is one selectable route.
type Option struct {
	Label    string          `json:"label"`
	Category Category        `json:"category"`
	Path     directions.Path `json:"path"`
	Points   []geo.Point     `json:"points"`
	Segments []Segment       `json:"segments"`
}

// OptionSet is the deduplicated list of options with the current selection.
// It is not safe for concurrent use.
type OptionSet struct {
	options  []Option
	selected int
}

type variant struct {
	category Category
	v        *directions.Variant
}

// Build makes one option per variant carrying a path, in the order fastest,
// noToll, economical. Options sharing an encoded polyline are collapsed onto
// the first. A variant whose polyline does not decode is dropped.
func Build(resp *directions.Response, destination geo.Point) (*OptionSet, error) {
	if resp == nil {
		return nil, ErrNoRouteAvailable
	}
	return build([]variant{
		{CategoryFastest, resp.Fastest},
		{CategoryNoToll, resp.NoToll},
		{CategoryEconomical, resp.Economical},
	}, destination)
}

// BuildRecovered builds the options of a server-recovered route. Only the
// first variant carrying a path is used.
func BuildRecovered(resp *directions.Response, destination geo.Point) (*OptionSet, error) {
	if resp == nil {
		return nil, ErrNoRouteAvailable
	}
	for _, v := range []*directions.Variant{resp.Fastest, resp.NoToll, resp.Economical} {
		if _, ok := v.FirstPath(); ok {
			return build([]variant{{CategoryRecovered, v}}, destination)
		}
	}
	return nil, ErrNoRouteAvailable
}

func build(variants []variant, destination geo.Point) (*OptionSet, error) {
	seen := make(map[string]struct{}, len(variants))
	options := make([]Option, 0, len(variants))

	for _, candidate := range variants {
		path, ok := candidate.v.FirstPath()
		if !ok {
			continue
		}
		if _, dup := seen[path.EncodedPolyline]; dup {
			continue
		}

		points, err := polyline.Decode(path.EncodedPolyline)
		if err != nil {
			logger.Warn("dropping route option with malformed polyline",
				zap.String("category", string(candidate.category)),
				zap.Error(err),
			)
			continue
		}

		seen[path.EncodedPolyline] = struct{}{}
		options = append(options, Option{
			Label:    candidate.category.Label(),
			Category: candidate.category,
			Path:     path,
			Points:   points,
			Segments: segments(points, path.Instructions, destination),
		})
	}

	if len(options) == 0 {
		return nil, ErrNoRouteAvailable
	}
	return &OptionSet{options: options}, nil
}

func segments(points []geo.Point, instructions []directions.Instruction, destination geo.Point) []Segment {
	out := make([]Segment, 0, len(instructions)+1)
	for _, instr := range instructions {
		if instr.PointIndex < 0 || instr.PointIndex >= len(points) {
			continue
		}
		out = append(out, Segment{Point: points[instr.PointIndex], Text: instr.Text})
	}
	return append(out, Segment{Point: destination, Text: ArrivalText})
}

// Options returns the options in display order.
func (s *OptionSet) Options() []Option {
	return s.options
}

func (s *OptionSet) Len() int {
	return len(s.options)
}

func (s *OptionSet) SelectedIndex() int {
	return s.selected
}

func (s *OptionSet) Selected() Option {
	return s.options[s.selected]
}

// Select changes the selection. An out-of-range index leaves it unchanged.
func (s *OptionSet) Select(index int) error {
	if index < 0 || index >= len(s.options) {
		return fmt.Errorf("%w: index %d of %d options", ErrInvalidSelection, index, len(s.options))
	}
	s.selected = index
	return nil
}
