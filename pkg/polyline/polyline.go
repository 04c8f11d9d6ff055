// Package polyline converts between Google Encoded Polyline strings and geo points.
//
// Coordinates are encoded with a precision of 1e-5 degrees, latitude first.
package polyline

import (
	"errors"
	"fmt"

	"github.com/richxcame/navigator/pkg/geo"
	gpolyline "github.com/twpayne/go-polyline"
)

// ErrMalformedPolyline is returned when an encoded string cannot be decoded.
var ErrMalformedPolyline = errors.New("malformed polyline")

// Decode decodes an encoded polyline into points. The empty string decodes to
// an empty slice.
func Decode(encoded string) ([]geo.Point, error) {
	if encoded == "" {
		return []geo.Point{}, nil
	}

	coords, rest, err := gpolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPolyline, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPolyline, len(rest))
	}

	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("%w: coordinate %d has %d dimensions", ErrMalformedPolyline, i, len(c))
		}
		points[i] = geo.Point{Latitude: c[0], Longitude: c[1]}
	}
	return points, nil
}

// Encode encodes points into a polyline string.
func Encode(points []geo.Point) string {
	if len(points) == 0 {
		return ""
	}
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(gpolyline.EncodeCoords(coords))
}
