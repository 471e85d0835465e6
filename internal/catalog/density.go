package catalog

import (
	"cmp"
	"math"
	"slices"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

const (
	CellSizeDeg    = 3.0
	DenseThreshold = 10
)

// DenseCells buckets stations into CellSizeDeg grid cells and returns the
// centres of cells holding at least DenseThreshold stations, sorted by
// latitude then longitude.
func DenseCells(stations []radioguessr.Station) []radioguessr.DensityCell {
	counts := make(map[radioguessr.DensityCell]int)
	for _, s := range stations {
		cell := radioguessr.DensityCell{Lat: snapToGrid(s.Lat), Lon: snapToGrid(s.Lon)}
		counts[cell]++
	}

	dense := make([]radioguessr.DensityCell, 0)
	for cell, n := range counts {
		if n >= DenseThreshold {
			dense = append(dense, cell)
		}
	}
	slices.SortFunc(dense, func(a, b radioguessr.DensityCell) int {
		if n := cmp.Compare(a.Lat, b.Lat); n != 0 {
			return n
		}
		return cmp.Compare(a.Lon, b.Lon)
	})
	return dense
}

// snapToGrid rounds to the nearest multiple of CellSizeDeg, halves rounding up.
func snapToGrid(deg float64) float64 {
	v := math.Floor(deg/CellSizeDeg+0.5) * CellSizeDeg
	if v == 0 {
		return 0 // fold -0
	}
	return v
}
