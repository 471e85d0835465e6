// Package region picks a random centre with enough radio stations around it.
package region

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

const (
	DefaultMinNeighbors = 3
	DefaultMaxAttempts  = 10
	DefaultRadiusKm     = 100.0
)

type Strategy string

const (
	// StrategyStation centres candidates on a random station.
	StrategyStation Strategy = "station"
	// StrategyDense centres candidates on a random dense grid cell.
	StrategyDense Strategy = "dense"
)

// Catalog is the read side of the station catalog the sampler needs.
type Catalog interface {
	PickRandomStation() (radioguessr.Station, error)
	PickRandomDenseCenter() (radioguessr.Coord, error)
	StationsWithinRadius(center radioguessr.Coord, radiusKm float64) []radioguessr.Station
}

type Options struct {
	MinNeighbors int
	MaxAttempts  int
	RadiusKm     float64
	Strategy     Strategy
}

func (o Options) withDefaults() Options {
	if o.MinNeighbors <= 0 {
		o.MinNeighbors = DefaultMinNeighbors
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RadiusKm <= 0 {
		o.RadiusKm = DefaultRadiusKm
	}
	if o.Strategy == "" {
		o.Strategy = StrategyStation
	}
	return o
}

// Region is an accepted centre and the stations within the radius, nearest first.
type Region struct {
	Center    radioguessr.Coord
	Neighbors []radioguessr.Station
	Attempts  int
}

type Sampler struct {
	catalog Catalog
	opts    Options
	logger  *slog.Logger
}

func NewSampler(logger *slog.Logger, catalog Catalog, opts Options) *Sampler {
	return &Sampler{catalog: catalog, opts: opts.withDefaults(), logger: logger}
}

// Sample tries up to MaxAttempts random centres and returns the first with at
// least MinNeighbors stations in range. It fails with ErrInsufficientCoverage
// once the budget is spent, and with ErrEmptyCatalog as soon as there is
// nothing to pick from.
func (s *Sampler) Sample(ctx context.Context) (Region, error) {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Region{}, err
		}

		center, err := s.candidate()
		if err != nil {
			return Region{}, err
		}

		neighbors := s.catalog.StationsWithinRadius(center, s.opts.RadiusKm)
		s.logger.Debug("region sample attempt",
			"attempt", attempt,
			"lat", center.Lat,
			"lon", center.Lon,
			"neighbors", len(neighbors),
		)

		if len(neighbors) >= s.opts.MinNeighbors {
			return Region{Center: center, Neighbors: neighbors, Attempts: attempt}, nil
		}
	}

	return Region{}, fmt.Errorf("%w: %d attempts, need %d stations within %.0f km",
		radioguessr.ErrInsufficientCoverage, s.opts.MaxAttempts, s.opts.MinNeighbors, s.opts.RadiusKm)
}

func (s *Sampler) candidate() (radioguessr.Coord, error) {
	if s.opts.Strategy == StrategyDense {
		return s.catalog.PickRandomDenseCenter()
	}
	st, err := s.catalog.PickRandomStation()
	if err != nil {
		return radioguessr.Coord{}, err
	}
	return st.Coord(), nil
}
