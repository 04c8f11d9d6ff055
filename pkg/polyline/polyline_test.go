package polyline

import (
	"errors"
	"math"
	"testing"

	"github.com/richxcame/navigator/pkg/geo"
)

// Reference string from the polyline algorithm documentation.
const referenceEncoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func TestDecodeReference(t *testing.T) {
	points, err := Decode(referenceEncoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []geo.Point{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(points))
	}
	for i := range want {
		if math.Abs(points[i].Latitude-want[i].Latitude) > 1e-9 ||
			math.Abs(points[i].Longitude-want[i].Longitude) > 1e-9 {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], points[i])
		}
	}
}

func TestEncodeReference(t *testing.T) {
	points := []geo.Point{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	if got := Encode(points); got != referenceEncoded {
		t.Fatalf("expected %q, got %q", referenceEncoded, got)
	}
}

func TestRoundTripWithinPrecision(t *testing.T) {
	points := []geo.Point{
		{Latitude: 52.520008, Longitude: 13.404954},
		{Latitude: 52.519871, Longitude: 13.406312},
		{Latitude: -33.868820, Longitude: 151.209296},
		{Latitude: 0, Longitude: 0},
	}

	decoded, err := Decode(Encode(points))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(decoded))
	}
	for i := range points {
		if math.Abs(decoded[i].Latitude-points[i].Latitude) > 1e-5 ||
			math.Abs(decoded[i].Longitude-points[i].Longitude) > 1e-5 {
			t.Fatalf("point %d drifted: %+v vs %+v", i, points[i], decoded[i])
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	points, err := Decode("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected no points, got %d", len(points))
	}
	if Encode(nil) != "" {
		t.Fatalf("expected empty encoding for no points")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"dangling continuation": "_p~iF~ps|U_",
		"invalid byte":          "_p~iF\x01ps|U",
	}
	for name, input := range cases {
		if _, err := Decode(input); !errors.Is(err, ErrMalformedPolyline) {
			t.Fatalf("%s: expected ErrMalformedPolyline, got %v", name, err)
		}
	}
}
