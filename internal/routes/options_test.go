package routes

import (
	"testing"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lineA = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	lineB = "_p~iF~ps|U_ulLnnqC"
)

func pathVariant(encoded string, instructions ...directions.Instruction) *directions.Variant {
	return &directions.Variant{Paths: []directions.Path{{
		DistanceMeters:  1000,
		DurationMs:      60000,
		EncodedPolyline: encoded,
		Instructions:    instructions,
	}}}
}

var destination = geo.NewPoint(43.252, -126.453)

func TestBuild_OrderAndDedup(t *testing.T) {
	resp := &directions.Response{
		Fastest:    pathVariant(lineA),
		NoToll:     pathVariant(lineA),
		Economical: pathVariant(lineB),
	}

	set, err := Build(resp, destination)
	require.NoError(t, err)

	opts := set.Options()
	require.Len(t, opts, 2)
	assert.Equal(t, CategoryFastest, opts[0].Category)
	assert.Equal(t, "Best route", opts[0].Label)
	assert.Equal(t, CategoryEconomical, opts[1].Category)
	assert.Len(t, opts[0].Points, 3)
	assert.Len(t, opts[1].Points, 2)
	assert.Equal(t, 0, set.SelectedIndex())
}

func TestBuild_SkipsMissingAndMalformedVariants(t *testing.T) {
	resp := &directions.Response{
		Fastest:    pathVariant("_p~iF~ps|U_"),
		NoToll:     &directions.Variant{},
		Economical: pathVariant(lineB),
	}

	set, err := Build(resp, destination)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, CategoryEconomical, set.Selected().Category)
}

func TestBuild_MalformedDoesNotShadowLaterDuplicate(t *testing.T) {
	resp := &directions.Response{
		Fastest: pathVariant("_p~iF~ps|U_"),
		NoToll:  pathVariant("_p~iF~ps|U_"),
	}

	_, err := Build(resp, destination)
	assert.ErrorIs(t, err, ErrNoRouteAvailable)
}

func TestBuild_NoVariants(t *testing.T) {
	_, err := Build(&directions.Response{}, destination)
	assert.ErrorIs(t, err, ErrNoRouteAvailable)
	assert.ErrorIs(t, err, directions.ErrNoRouteAvailable)

	_, err = Build(nil, destination)
	assert.ErrorIs(t, err, ErrNoRouteAvailable)
}

func TestBuild_Segments(t *testing.T) {
	resp := &directions.Response{Fastest: pathVariant(lineA,
		directions.Instruction{Text: "Head south", PointIndex: 0},
		directions.Instruction{Text: "Out of range", PointIndex: 7},
		directions.Instruction{Text: "Keep right", PointIndex: 2},
	)}

	set, err := Build(resp, destination)
	require.NoError(t, err)

	segs := set.Selected().Segments
	require.Len(t, segs, 3)
	assert.Equal(t, "Head south", segs[0].Text)
	assert.InDelta(t, 38.5, segs[0].Point.Latitude, 1e-9)
	assert.Equal(t, "Keep right", segs[1].Text)
	assert.InDelta(t, 43.252, segs[1].Point.Latitude, 1e-9)
	assert.Equal(t, ArrivalText, segs[2].Text)
	assert.Equal(t, destination, segs[2].Point)
}

func TestBuildRecovered(t *testing.T) {
	resp := &directions.Response{NoToll: pathVariant(lineB), Economical: pathVariant(lineA)}

	set, err := BuildRecovered(resp, destination)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, CategoryRecovered, set.Selected().Category)
	assert.Equal(t, "Recovered route", set.Selected().Label)
	assert.Equal(t, lineB, set.Selected().Path.EncodedPolyline)

	_, err = BuildRecovered(&directions.Response{}, destination)
	assert.ErrorIs(t, err, ErrNoRouteAvailable)
}

func TestSelect(t *testing.T) {
	set, err := Build(&directions.Response{Fastest: pathVariant(lineA), Economical: pathVariant(lineB)}, destination)
	require.NoError(t, err)

	require.NoError(t, set.Select(1))
	assert.Equal(t, 1, set.SelectedIndex())
	assert.Equal(t, CategoryEconomical, set.Selected().Category)

	err = set.Select(2)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Equal(t, 1, set.SelectedIndex())

	assert.ErrorIs(t, set.Select(-1), ErrInvalidSelection)
	assert.Equal(t, 1, set.SelectedIndex())
}
