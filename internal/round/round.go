// Package round starts game rounds and scores guesses against them.
package round

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/radioguessr/internal/clip"
	"github.com/playperu/radioguessr/internal/geo"
	"github.com/playperu/radioguessr/internal/radioguessr"
	"github.com/playperu/radioguessr/internal/region"
)

const DefaultClipsPerRound = 3

type Refresher interface {
	Refresh(ctx context.Context) error
}

type Sampler interface {
	Sample(ctx context.Context) (region.Region, error)
}

type ClipGetter interface {
	Get(ctx context.Context, stationID, streamURL string, bucket int64) (radioguessr.Clip, error)
}

type Options struct {
	ClipsPerRound int
	BucketWidth   time.Duration
}

type Service struct {
	catalog Refresher
	sampler Sampler
	clips   ClipGetter
	codec   *Codec
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(logger *slog.Logger, catalog Refresher, sampler Sampler, clips ClipGetter, codec *Codec, opts Options) *Service {
	if opts.ClipsPerRound <= 0 {
		opts.ClipsPerRound = DefaultClipsPerRound
	}
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = clip.DefaultBucketWidth
	}
	return &Service{
		catalog: catalog,
		sampler: sampler,
		clips:   clips,
		codec:   codec,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// StartRound picks a region and returns clips for its nearest stations. The
// clips are fetched in parallel; if any of them fails the round fails.
func (s *Service) StartRound(ctx context.Context) (radioguessr.Round, error) {
	if err := s.catalog.Refresh(ctx); err != nil {
		return radioguessr.Round{}, err
	}

	reg, err := s.sampler.Sample(ctx)
	if err != nil {
		return radioguessr.Round{}, err
	}
	if len(reg.Neighbors) < s.opts.ClipsPerRound {
		return radioguessr.Round{}, fmt.Errorf("%w: region has %d stations, need %d",
			radioguessr.ErrInsufficientCoverage, len(reg.Neighbors), s.opts.ClipsPerRound)
	}

	stations := reg.Neighbors[:s.opts.ClipsPerRound]
	bucket := clip.BucketAt(s.now(), s.opts.BucketWidth)
	clips := make([]radioguessr.Clip, len(stations))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stations {
		g.Go(func() error {
			c, err := s.clips.Get(gctx, st.ID, st.URL, bucket)
			if err != nil {
				return err
			}
			c.Station = st.Name
			clips[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return radioguessr.Round{}, err
	}

	token, err := s.codec.Seal(reg.Center)
	if err != nil {
		return radioguessr.Round{}, err
	}

	s.logger.Info("round started",
		"attempts", reg.Attempts,
		"neighbors", len(reg.Neighbors),
		"bucket", bucket,
	)
	return radioguessr.Round{Token: token, Clips: clips}, nil
}

// Guess is a player's answer. Lng is accepted as an alias for Lon.
type Guess struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

func (g Guess) coord() (radioguessr.Coord, error) {
	lon := g.Lon
	if lon == nil {
		lon = g.Lng
	}
	if g.Lat == nil || lon == nil {
		return radioguessr.Coord{}, fmt.Errorf("%w: guess needs lat and lon", radioguessr.ErrInvalidCoordinates)
	}
	if !finite(*g.Lat) || !finite(*lon) || *g.Lat < -90 || *g.Lat > 90 {
		return radioguessr.Coord{}, fmt.Errorf("%w: guess out of range", radioguessr.ErrInvalidCoordinates)
	}
	return radioguessr.Coord{Lat: *g.Lat, Lon: *lon}, nil
}

// ScoreGuess opens token and scores guess against the centre it carries.
func (s *Service) ScoreGuess(_ context.Context, token string, guess Guess) (radioguessr.GuessResult, error) {
	center, err := s.codec.Open(token)
	if err != nil {
		return radioguessr.GuessResult{}, err
	}
	at, err := guess.coord()
	if err != nil {
		return radioguessr.GuessResult{}, err
	}

	d := geo.Distance(center, at)
	score := geo.Score(d)
	s.logger.Debug("guess scored", "distance_km", d, "score", score)

	return radioguessr.GuessResult{
		Token:      token,
		DistanceKm: d,
		Score:      score,
		Actual:     center,
		Reveals: radioguessr.Reveals{
			Timestamp: s.now().UTC(),
			Tags:      []string{},
		},
	}, nil
}
