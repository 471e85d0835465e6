// Package radioguessr defines the core domain types and error kinds.
// It has zero external dependencies; everything here is pure Go.
package radioguessr

import (
	"errors"
	"time"
)

var (
	// ErrEmptyCatalog means no stations are loaded: the catalog never refreshed successfully.
	ErrEmptyCatalog = errors.New("station catalog is empty")
	// ErrInsufficientCoverage means sampling ran out of attempts without finding a dense enough region.
	ErrInsufficientCoverage = errors.New("unable to find region with enough stations")
	// ErrClipFetchFailed means audio extraction failed or timed out.
	ErrClipFetchFailed = errors.New("clip fetch failed")
	// ErrInvalidRound means the round token could not be decoded.
	ErrInvalidRound = errors.New("invalid round")
	// ErrInvalidCoordinates means a guess or decoded centre lacks numeric latitude/longitude.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Coord is a point in degrees (WGS 84).
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Station struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
	URL  string
	Tags []string
}

func (s Station) Coord() Coord {
	return Coord{Lat: s.Lat, Lon: s.Lon}
}

// DensityCell is the centre of a grid cell holding at least the density threshold of stations.
type DensityCell struct {
	Lat float64
	Lon float64
}

func (c DensityCell) Coord() Coord {
	return Coord{Lat: c.Lat, Lon: c.Lon}
}

// Clip is one playable recording in a round. Station is the station's display
// name, filled in by the round service.
type Clip struct {
	ID      string `json:"clip_id"`
	Station string `json:"station,omitempty"`
	URL     string `json:"url"`
}

type Round struct {
	Token string
	Clips []Clip
}

type Reveals struct {
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags"`
}

type GuessResult struct {
	Token      string
	DistanceKm float64
	Score      int
	Actual     Coord
	Reveals    Reveals
}
