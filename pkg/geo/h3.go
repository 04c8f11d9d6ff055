package geo

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolution levels used by the navigation service.
// See: https://h3geo.org/docs/core-library/restable
const (
	// H3ResolutionHazard buckets hazard reports (~76 m edge). A k=1 disk around a
	// fix covers every hazard within the rating prompt radius.
	H3ResolutionHazard = 10

	// H3KRingHazard is the k-ring radius for hazard candidate lookup.
	H3KRingHazard = 1
)

// LatLngToCell converts a point to an H3 cell index at the given resolution.
// Invalid coordinates yield the zero cell.
func LatLngToCell(p Point, resolution int) h3.Cell {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Latitude, p.Longitude), resolution)
	if err != nil {
		return 0
	}
	return cell
}

// GridDisk returns the cells within k rings of the cell containing p.
func GridDisk(p Point, resolution, k int) []h3.Cell {
	origin := LatLngToCell(p, resolution)
	cells, err := origin.GridDisk(k)
	if err != nil {
		return []h3.Cell{origin}
	}
	return cells
}
