// Package catalog holds the process-wide set of radio stations fetched from a
// remote directory, together with the dense grid cells derived from it.
//
// The station set and its dense cells live in one immutable snapshot that is
// replaced with a single atomic store, so readers never observe a station set
// paired with cells computed from a different one.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/playperu/radioguessr/internal/geo"
	"github.com/playperu/radioguessr/internal/radioguessr"
)

const DefaultInterval = 12 * time.Hour

type Options struct {
	PrimaryURL   string
	FallbackURL  string
	UserAgent    string
	FetchTimeout time.Duration
	// Interval is how long a successful refresh is trusted before Refresh hits the network again.
	Interval time.Duration
}

type snapshot struct {
	stations    []radioguessr.Station
	dense       []radioguessr.DensityCell
	refreshedAt time.Time
}

type Catalog struct {
	opts   Options
	dir    *Directory
	store  SnapshotStore
	logger *slog.Logger

	now  func() time.Time
	intn func(n int) int

	snap  atomic.Pointer[snapshot]
	group singleflight.Group
}

// New returns an empty catalog. store may be nil, in which case snapshots are
// neither restored nor persisted.
func New(logger *slog.Logger, opts Options, store SnapshotStore) *Catalog {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	c := &Catalog{
		opts:   opts,
		dir:    NewDirectory(opts.UserAgent, opts.FetchTimeout),
		store:  store,
		logger: logger,
		now:    time.Now,
		intn:   rand.IntN,
	}
	c.snap.Store(&snapshot{})
	return c
}

// Refresh reloads the catalog unless it is non-empty and was refreshed within
// the configured interval. Fetch failures are logged and swallowed; only a
// cancelled ctx is reported.
func (c *Catalog) Refresh(ctx context.Context) error {
	s := c.snap.Load()
	if len(s.stations) > 0 && c.now().Sub(s.refreshedAt) < c.opts.Interval {
		return nil
	}
	return c.Reload(ctx)
}

// Reload fetches the directory regardless of the refresh interval. Concurrent
// callers share one fetch, which keeps running if ctx is cancelled.
func (c *Catalog) Reload(ctx context.Context) error {
	ch := c.group.DoChan("reload", func() (any, error) {
		err := c.reload(context.WithoutCancel(ctx))
		if err != nil {
			c.logger.Warn("station catalog refresh failed, keeping previous data",
				"error", err,
				"stations", len(c.snap.Load().stations),
			)
		}
		return nil, err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (c *Catalog) reload(ctx context.Context) error {
	start := c.now()
	stations, source, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	s := c.install(stations, c.now())
	c.logger.Info("station catalog refreshed",
		"source", source,
		"stations", humanize.Comma(int64(len(s.stations))),
		"dense_cells", len(s.dense),
		"duration_ms", c.now().Sub(start).Milliseconds(),
	)

	if c.store != nil {
		if err := c.store.Save(ctx, Snapshot{Stations: s.stations, RefreshedAt: s.refreshedAt}); err != nil {
			c.logger.Warn("persisting station snapshot failed", "error", err)
		}
	}
	return nil
}

// fetch tries the primary directory, then the fallback exactly once.
func (c *Catalog) fetch(ctx context.Context) ([]radioguessr.Station, string, error) {
	stations, err := c.dir.Fetch(ctx, c.opts.PrimaryURL)
	if err == nil {
		return stations, c.opts.PrimaryURL, nil
	}
	if c.opts.FallbackURL == "" {
		return nil, "", fmt.Errorf("primary directory: %w", err)
	}
	c.logger.Warn("primary station directory failed, trying fallback", "url", c.opts.PrimaryURL, "error", err)

	stations, fallbackErr := c.dir.Fetch(ctx, c.opts.FallbackURL)
	if fallbackErr != nil {
		return nil, "", errors.Join(
			fmt.Errorf("primary directory: %w", err),
			fmt.Errorf("fallback directory: %w", fallbackErr),
		)
	}
	return stations, c.opts.FallbackURL, nil
}

// install builds a new snapshot off to the side and swaps it in.
func (c *Catalog) install(stations []radioguessr.Station, at time.Time) *snapshot {
	s := &snapshot{
		stations:    stations,
		dense:       DenseCells(stations),
		refreshedAt: at,
	}
	c.snap.Store(s)
	return s
}

// Restore loads the last persisted snapshot, keeping its original refresh
// time so the interval gate still applies.
func (c *Catalog) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	saved, ok, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading station snapshot: %w", err)
	}
	if !ok || len(saved.Stations) == 0 {
		return nil
	}

	s := c.install(saved.Stations, saved.RefreshedAt)
	c.logger.Info("station catalog restored from snapshot",
		"stations", humanize.Comma(int64(len(s.stations))),
		"dense_cells", len(s.dense),
		"refreshed", humanize.Time(s.refreshedAt),
	)
	return nil
}

func (c *Catalog) PickRandomStation() (radioguessr.Station, error) {
	s := c.snap.Load()
	if len(s.stations) == 0 {
		return radioguessr.Station{}, radioguessr.ErrEmptyCatalog
	}
	return s.stations[c.intn(len(s.stations))], nil
}

// PickRandomDenseCenter returns the centre of a random dense cell. A loaded
// catalog without any dense cell reports ErrInsufficientCoverage.
func (c *Catalog) PickRandomDenseCenter() (radioguessr.Coord, error) {
	s := c.snap.Load()
	if len(s.stations) == 0 {
		return radioguessr.Coord{}, radioguessr.ErrEmptyCatalog
	}
	if len(s.dense) == 0 {
		return radioguessr.Coord{}, fmt.Errorf("%w: no cell holds %d stations", radioguessr.ErrInsufficientCoverage, DenseThreshold)
	}
	return s.dense[c.intn(len(s.dense))].Coord(), nil
}

// StationsWithinRadius returns the stations at most radiusKm from center,
// nearest first (ties by id), without duplicate ids.
func (c *Catalog) StationsWithinRadius(center radioguessr.Coord, radiusKm float64) []radioguessr.Station {
	type hit struct {
		station  radioguessr.Station
		distance float64
	}

	s := c.snap.Load()
	var hits []hit
	for _, st := range s.stations {
		if d := geo.Distance(center, st.Coord()); d <= radiusKm {
			hits = append(hits, hit{station: st, distance: d})
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if n := cmp.Compare(a.distance, b.distance); n != 0 {
			return n
		}
		return cmp.Compare(a.station.ID, b.station.ID)
	})

	seen := make(map[string]struct{}, len(hits))
	out := make([]radioguessr.Station, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.station.ID]; dup {
			continue
		}
		seen[h.station.ID] = struct{}{}
		out = append(out, h.station)
	}
	return out
}

type Stats struct {
	Stations    int
	DenseCells  int
	RefreshedAt time.Time
}

func (c *Catalog) Stats() Stats {
	s := c.snap.Load()
	return Stats{
		Stations:    len(s.stations),
		DenseCells:  len(s.dense),
		RefreshedAt: s.refreshedAt,
	}
}

// Check reports ErrEmptyCatalog until the first successful load.
func (c *Catalog) Check(_ context.Context) error {
	if len(c.snap.Load().stations) == 0 {
		return radioguessr.ErrEmptyCatalog
	}
	return nil
}
