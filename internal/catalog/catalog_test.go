package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

type directoryServer struct {
	*httptest.Server
	hits atomic.Int32
}

// newDirectoryServer serves body with status on every request.
func newDirectoryServer(t *testing.T, status int, body string) *directoryServer {
	t.Helper()
	ds := &directoryServer{}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ds.Close)
	return ds
}

func entry(id string, lat, lon float64) string {
	return fmt.Sprintf(`{"stationuuid":%q,"name":"Radio %s","geo_lat":%g,"geo_long":%g,"url_resolved":"http://stream.example/%s","tags":"pop,news"}`,
		id, id, lat, lon, id)
}

func listing(entries ...string) string {
	return "[" + strings.Join(entries, ",") + "]"
}

func newTestCatalog(primary, fallback string, store SnapshotStore) *Catalog {
	return New(slog.Default(), Options{
		PrimaryURL:   primary,
		FallbackURL:  fallback,
		UserAgent:    "radioguessr-test",
		FetchTimeout: 5 * time.Second,
	}, store)
}

func TestRefreshUsesPrimary(t *testing.T) {
	primary := newDirectoryServer(t, http.StatusOK, listing(entry("a", 52.5, 13.4), entry("b", 52.6, 13.5)))
	fallback := newDirectoryServer(t, http.StatusOK, listing(entry("z", 1, 1)))

	c := newTestCatalog(primary.URL, fallback.URL, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := c.Stats().Stations; got != 2 {
		t.Errorf("stations = %d, want 2", got)
	}
	if got := fallback.hits.Load(); got != 0 {
		t.Errorf("fallback hits = %d, want 0", got)
	}

	// Within the interval no network access happens.
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if got := primary.hits.Load(); got != 1 {
		t.Errorf("primary hits = %d, want 1", got)
	}
}

func TestRefreshAfterInterval(t *testing.T) {
	primary := newDirectoryServer(t, http.StatusOK, listing(entry("a", 52.5, 13.4)))

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCatalog(primary.URL, "", nil)
	c.now = func() time.Time { return clock }

	c.Refresh(context.Background())
	clock = clock.Add(11 * time.Hour)
	c.Refresh(context.Background())
	if got := primary.hits.Load(); got != 1 {
		t.Fatalf("hits after 11h = %d, want 1", got)
	}

	clock = clock.Add(2 * time.Hour)
	c.Refresh(context.Background())
	if got := primary.hits.Load(); got != 2 {
		t.Fatalf("hits after 13h = %d, want 2", got)
	}
	if !c.Stats().RefreshedAt.Equal(clock) {
		t.Errorf("refreshed at = %v, want %v", c.Stats().RefreshedAt, clock)
	}
}

func TestRefreshFallback(t *testing.T) {
	tests := []struct {
		name          string
		primaryStatus int
		primaryBody   string
	}{
		{name: "server error", primaryStatus: http.StatusInternalServerError, primaryBody: `oops`},
		{name: "malformed json", primaryStatus: http.StatusOK, primaryBody: `[{"stationuuid":`},
		{name: "not a collection", primaryStatus: http.StatusOK, primaryBody: `{"stations":[]}`},
		{name: "no usable records", primaryStatus: http.StatusOK, primaryBody: `[{"stationuuid":"x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newDirectoryServer(t, tt.primaryStatus, tt.primaryBody)
			fallback := newDirectoryServer(t, http.StatusOK, listing(entry("f1", 10, 10), entry("f2", 11, 11), entry("f3", 12, 12)))

			c := newTestCatalog(primary.URL, fallback.URL, nil)
			c.Refresh(context.Background())

			if got := c.Stats().Stations; got != 3 {
				t.Errorf("stations = %d, want 3", got)
			}
			if got := primary.hits.Load(); got != 1 {
				t.Errorf("primary hits = %d, want 1", got)
			}
			if got := fallback.hits.Load(); got != 1 {
				t.Errorf("fallback hits = %d, want 1", got)
			}
		})
	}
}

func TestRefreshFailureKeepsStaleData(t *testing.T) {
	primary := newDirectoryServer(t, http.StatusBadGateway, ``)
	fallback := newDirectoryServer(t, http.StatusOK, `not json`)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCatalog(primary.URL, fallback.URL, nil)
	c.now = func() time.Time { return clock }

	stale := clock.Add(-13 * time.Hour)
	c.install([]radioguessr.Station{{ID: "old", Name: "Old", Lat: 1, Lon: 1, URL: "http://old"}}, stale)

	c.Refresh(context.Background())

	st := c.Stats()
	if st.Stations != 1 {
		t.Fatalf("stations = %d, want stale 1", st.Stations)
	}
	if !st.RefreshedAt.Equal(stale) {
		t.Errorf("refreshed at advanced to %v, want %v", st.RefreshedAt, stale)
	}

	// The timestamp did not move, so the next call retries immediately.
	c.Refresh(context.Background())
	if got := primary.hits.Load(); got != 2 {
		t.Errorf("primary hits = %d, want 2", got)
	}
	if got := fallback.hits.Load(); got != 2 {
		t.Errorf("fallback hits = %d, want 2", got)
	}
}

func TestRefreshNeverSucceeded(t *testing.T) {
	primary := newDirectoryServer(t, http.StatusServiceUnavailable, ``)

	c := newTestCatalog(primary.URL, "", nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh should swallow fetch errors, got %v", err)
	}

	if _, err := c.PickRandomStation(); !errors.Is(err, radioguessr.ErrEmptyCatalog) {
		t.Errorf("PickRandomStation err = %v, want ErrEmptyCatalog", err)
	}
	if err := c.Check(context.Background()); !errors.Is(err, radioguessr.ErrEmptyCatalog) {
		t.Errorf("Check err = %v, want ErrEmptyCatalog", err)
	}
}

func TestRefreshMarksDenseCell(t *testing.T) {
	var entries []string
	// Exactly 10 stations snapping to cell (48, 12).
	for i := range 10 {
		entries = append(entries, entry(fmt.Sprintf("dense-%d", i), 47.0+float64(i)*0.2, 11.0+float64(i)*0.2))
	}
	// 9 stations in cell (-33, 150) and a few strays.
	for i := range 9 {
		entries = append(entries, entry(fmt.Sprintf("sparse-%d", i), -33.5+float64(i)*0.1, 151.0))
	}
	entries = append(entries, entry("stray-1", 40.0, -74.0), entry("stray-2", 35.6, 139.7))

	primary := newDirectoryServer(t, http.StatusOK, listing(entries...))
	c := newTestCatalog(primary.URL, "", nil)
	c.Refresh(context.Background())

	dense := c.snap.Load().dense
	if len(dense) != 1 {
		t.Fatalf("dense cells = %v, want exactly one", dense)
	}
	if want := (radioguessr.DensityCell{Lat: 48, Lon: 12}); dense[0] != want {
		t.Errorf("dense cell = %v, want %v", dense[0], want)
	}

	center, err := c.PickRandomDenseCenter()
	if err != nil {
		t.Fatalf("PickRandomDenseCenter: %v", err)
	}
	if center != (radioguessr.Coord{Lat: 48, Lon: 12}) {
		t.Errorf("dense center = %v", center)
	}
}

func TestPickRandomDenseCenterWithoutDenseCells(t *testing.T) {
	c := newTestCatalog("", "", nil)
	if _, err := c.PickRandomDenseCenter(); !errors.Is(err, radioguessr.ErrEmptyCatalog) {
		t.Errorf("empty catalog err = %v, want ErrEmptyCatalog", err)
	}

	// Loaded, but no cell reaches the threshold.
	c.install([]radioguessr.Station{
		{ID: "a", Name: "A", Lat: 10, Lon: 10, URL: "http://a"},
		{ID: "b", Name: "B", Lat: -40, Lon: 170, URL: "http://b"},
	}, time.Now())

	_, err := c.PickRandomDenseCenter()
	if !errors.Is(err, radioguessr.ErrInsufficientCoverage) {
		t.Errorf("sparse catalog err = %v, want ErrInsufficientCoverage", err)
	}
	if errors.Is(err, radioguessr.ErrEmptyCatalog) {
		t.Error("sparse catalog reported as empty")
	}
}

func TestStationsWithinRadius(t *testing.T) {
	c := newTestCatalog("", "", nil)
	c.install([]radioguessr.Station{
		{ID: "far", Lat: 50.0, Lon: 10.0},
		{ID: "b", Lat: 48.1, Lon: 11.5},
		{ID: "center", Lat: 48.0, Lon: 11.5},
		{ID: "a", Lat: 48.1, Lon: 11.5},
		{ID: "b", Lat: 48.1, Lon: 11.5},
	}, time.Now())

	got := c.StationsWithinRadius(radioguessr.Coord{Lat: 48.0, Lon: 11.5}, 100)

	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	// a and b share a position; ties break by id. Duplicates collapse.
	want := []string{"center", "a", "b"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	store, err := OpenBoltSnapshots(filepath.Join(t.TempDir(), "catalog.bolt"))
	if err != nil {
		t.Fatalf("OpenBoltSnapshots: %v", err)
	}
	defer store.Close()

	primary := newDirectoryServer(t, http.StatusOK, listing(entry("a", 52.5, 13.4), entry("b", 52.6, 13.5)))

	// First process: refresh persists the snapshot.
	first := newTestCatalog(primary.URL, "", store)
	first.Refresh(context.Background())

	// Second process: restore, then Refresh stays offline.
	second := newTestCatalog(primary.URL, "", store)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := second.Stats().Stations; got != 2 {
		t.Fatalf("restored stations = %d, want 2", got)
	}
	second.Refresh(context.Background())
	if got := primary.hits.Load(); got != 1 {
		t.Errorf("primary hits = %d, want 1", got)
	}

	st, _ := second.PickRandomStation()
	if len(st.Tags) != 2 {
		t.Errorf("restored tags = %v, want [pop news]", st.Tags)
	}
}

func TestReloadCancelledCaller(t *testing.T) {
	release := make(chan struct{})
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, listing(entry("a", 1, 1)))
	}))
	defer primary.Close()

	c := newTestCatalog(primary.URL, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Reload(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Reload err = %v, want context.Canceled", err)
	}
	close(release)

	// The shared reload keeps going without the caller.
	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().Stations == 0 {
		if time.Now().After(deadline) {
			t.Fatal("detached reload never installed stations")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
