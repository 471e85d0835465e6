package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playperu/radioguessr/internal/catalog"
	"github.com/playperu/radioguessr/internal/radioguessr"
	"github.com/playperu/radioguessr/internal/region"
)

type fakeRefresher struct{ err error }

func (f fakeRefresher) Refresh(context.Context) error { return f.err }

type fakeSampler struct {
	region region.Region
	err    error
}

func (f fakeSampler) Sample(context.Context) (region.Region, error) { return f.region, f.err }

type fakeClips struct {
	mu      sync.Mutex
	buckets []int64
	fail    string
}

func (f *fakeClips) Get(_ context.Context, stationID, _ string, bucket int64) (radioguessr.Clip, error) {
	f.mu.Lock()
	f.buckets = append(f.buckets, bucket)
	f.mu.Unlock()
	if stationID == f.fail {
		return radioguessr.Clip{}, fmt.Errorf("%w: station %s", radioguessr.ErrClipFetchFailed, stationID)
	}
	return radioguessr.Clip{ID: stationID, URL: "/clips/" + stationID + ".mp3"}, nil
}

func ptr(f float64) *float64 { return &f }

func neighbors(ids ...string) []radioguessr.Station {
	out := make([]radioguessr.Station, len(ids))
	for i, id := range ids {
		out[i] = radioguessr.Station{ID: id, Name: id, URL: "http://stream.example/" + id}
	}
	return out
}

func newTestService(t *testing.T, ref Refresher, s Sampler, clips ClipGetter) *Service {
	t.Helper()
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc := NewService(slog.Default(), ref, s, clips, codec, Options{})
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 7, 0, 0, time.UTC) }
	return svc
}

func TestStartRound(t *testing.T) {
	clips := &fakeClips{}
	center := radioguessr.Coord{Lat: 48.1, Lon: 11.6}
	svc := newTestService(t, fakeRefresher{}, fakeSampler{region: region.Region{
		Center:    center,
		Neighbors: neighbors("n1", "n2", "n3", "n4", "n5"),
		Attempts:  1,
	}}, clips)

	round, err := svc.StartRound(context.Background())
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	var ids []string
	for _, c := range round.Clips {
		ids = append(ids, c.ID)
	}
	if got := strings.Join(ids, ","); got != "n1,n2,n3" {
		t.Errorf("clip ids = %s, want the three nearest in order", got)
	}

	// All clips of one round share the bucket.
	for _, b := range clips.buckets {
		if b != clips.buckets[0] {
			t.Errorf("buckets differ: %v", clips.buckets)
			break
		}
	}

	got, err := svc.codec.Open(round.Token)
	if err != nil {
		t.Fatalf("opening token: %v", err)
	}
	if got != center {
		t.Errorf("token centre = %v, want %v", got, center)
	}
}

func TestStartRoundErrors(t *testing.T) {
	tests := []struct {
		name    string
		ref     Refresher
		sampler Sampler
		clips   *fakeClips
		wantErr error
	}{
		{
			name:    "empty catalog",
			ref:     fakeRefresher{},
			sampler: fakeSampler{err: radioguessr.ErrEmptyCatalog},
			clips:   &fakeClips{},
			wantErr: radioguessr.ErrEmptyCatalog,
		},
		{
			name:    "insufficient coverage",
			ref:     fakeRefresher{},
			sampler: fakeSampler{err: fmt.Errorf("%w: 10 attempts", radioguessr.ErrInsufficientCoverage)},
			clips:   &fakeClips{},
			wantErr: radioguessr.ErrInsufficientCoverage,
		},
		{
			name:    "region too small",
			ref:     fakeRefresher{},
			sampler: fakeSampler{region: region.Region{Neighbors: neighbors("n1", "n2")}},
			clips:   &fakeClips{},
			wantErr: radioguessr.ErrInsufficientCoverage,
		},
		{
			name:    "one clip fails",
			ref:     fakeRefresher{},
			sampler: fakeSampler{region: region.Region{Neighbors: neighbors("n1", "n2", "n3")}},
			clips:   &fakeClips{fail: "n2"},
			wantErr: radioguessr.ErrClipFetchFailed,
		},
		{
			name:    "cancelled refresh",
			ref:     fakeRefresher{err: context.Canceled},
			sampler: fakeSampler{},
			clips:   &fakeClips{},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.ref, tt.sampler, tt.clips)
			round, err := svc.StartRound(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if round.Token != "" || len(round.Clips) != 0 {
				t.Errorf("failed round leaked data: %+v", round)
			}
		})
	}
}

func TestScoreGuess(t *testing.T) {
	svc := newTestService(t, fakeRefresher{}, fakeSampler{}, &fakeClips{})
	center := radioguessr.Coord{Lat: 51.5074, Lon: -0.1278}
	token, err := svc.codec.Seal(center)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name      string
		guess     Guess
		wantScore int
		wantErr   error
	}{
		{name: "exact", guess: Guess{Lat: ptr(51.5074), Lon: ptr(-0.1278)}, wantScore: 5000},
		{name: "lng alias", guess: Guess{Lat: ptr(51.5074), Lng: ptr(-0.1278)}, wantScore: 5000},
		{name: "lon wins over lng", guess: Guess{Lat: ptr(51.5074), Lon: ptr(-0.1278), Lng: ptr(100)}, wantScore: 5000},
		{name: "antipode", guess: Guess{Lat: ptr(-51.5074), Lon: ptr(179.8722)}, wantScore: 0},
		{name: "missing lon", guess: Guess{Lat: ptr(1)}, wantErr: radioguessr.ErrInvalidCoordinates},
		{name: "missing lat", guess: Guess{Lon: ptr(1)}, wantErr: radioguessr.ErrInvalidCoordinates},
		{name: "lat out of range", guess: Guess{Lat: ptr(91), Lon: ptr(1)}, wantErr: radioguessr.ErrInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ScoreGuess(context.Background(), token, tt.guess)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScoreGuess: %v", err)
			}
			if res.Score != tt.wantScore {
				t.Errorf("score = %d (distance %.1f), want %d", res.Score, res.DistanceKm, tt.wantScore)
			}
			if res.Actual != center {
				t.Errorf("actual = %v, want %v", res.Actual, center)
			}
			if res.Token != token {
				t.Error("token not echoed")
			}
			if res.Reveals.Tags == nil || len(res.Reveals.Tags) != 0 {
				t.Errorf("tags = %#v, want empty list", res.Reveals.Tags)
			}
			if res.Reveals.Timestamp.IsZero() {
				t.Error("reveal timestamp missing")
			}
		})
	}
}

func TestScoreGuessInvalidRound(t *testing.T) {
	svc := newTestService(t, fakeRefresher{}, fakeSampler{}, &fakeClips{})
	_, err := svc.ScoreGuess(context.Background(), "garbage", Guess{Lat: ptr(0), Lon: ptr(0)})
	if !errors.Is(err, radioguessr.ErrInvalidRound) {
		t.Errorf("err = %v, want ErrInvalidRound", err)
	}
}

func TestRoundEndToEnd(t *testing.T) {
	// Three stations around Vienna, one far away.
	body := `[
		{"stationuuid":"v1","name":"Wien 1","geo_lat":48.21,"geo_long":16.37,"url_resolved":"http://stream.example/v1","tags":""},
		{"stationuuid":"v2","name":"Wien 2","geo_lat":48.20,"geo_long":16.38,"url_resolved":"http://stream.example/v2","tags":""},
		{"stationuuid":"v3","name":"Wien 3","geo_lat":48.19,"geo_long":16.36,"url_resolved":"http://stream.example/v3","tags":""}
	]`
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer directory.Close()

	cat := catalog.New(slog.Default(), catalog.Options{PrimaryURL: directory.URL, UserAgent: "radioguessr-test"}, nil)
	sampler := region.NewSampler(slog.Default(), cat, region.Options{})
	svc := newTestService(t, cat, sampler, &fakeClips{})

	round, err := svc.StartRound(context.Background())
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if len(round.Clips) != 3 {
		t.Fatalf("clips = %d, want 3", len(round.Clips))
	}
	seen := map[string]bool{}
	for _, c := range round.Clips {
		if seen[c.ID] {
			t.Errorf("duplicate station %s in round", c.ID)
		}
		seen[c.ID] = true
	}

	// The centre is one of the stations, so guessing it scores full marks.
	center, err := svc.codec.Open(round.Token)
	if err != nil {
		t.Fatalf("opening token: %v", err)
	}
	res, err := svc.ScoreGuess(context.Background(), round.Token, Guess{Lat: ptr(center.Lat), Lng: ptr(center.Lon)})
	if err != nil {
		t.Fatalf("ScoreGuess: %v", err)
	}
	if res.DistanceKm != 0 || res.Score != 5000 {
		t.Errorf("distance %.3f score %d, want 0 and 5000", res.DistanceKm, res.Score)
	}
}
