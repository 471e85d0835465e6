package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultFetchTimeout = 60 * time.Second

var errNoUsableStations = errors.New("directory returned no usable stations")

// Directory downloads and decodes a radio-browser style station listing.
type Directory struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewDirectory(userAgent string, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Directory{
		client:    &http.Client{},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch returns the usable stations listed at rawURL. A non-2xx status, a
// payload that is not a JSON array, or a listing with no usable entries is an
// error.
func (d *Directory) Fetch(ctx context.Context, rawURL string) ([]radioguessr.Station, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("directory url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching %s: status %s", rawURL, resp.Status)
	}

	stations, err := decodeStations(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return stations, nil
}

func decodeStations(r io.Reader) ([]radioguessr.Station, error) {
	var entries []jsoniter.RawMessage
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}

	stations := make([]radioguessr.Station, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		var raw rawStation
		if err := json.Unmarshal(entry, &raw); err != nil {
			continue
		}
		st, ok := raw.station()
		if !ok {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}
		stations = append(stations, st)
	}

	if len(stations) == 0 {
		return nil, errNoUsableStations
	}
	return stations, nil
}

// rawStation is one directory entry as served by radio-browser.
type rawStation struct {
	StationUUID string    `json:"stationuuid"`
	Name        string    `json:"name"`
	GeoLat      flexFloat `json:"geo_lat"`
	GeoLong     flexFloat `json:"geo_long"`
	URLResolved string    `json:"url_resolved"`
	Tags        string    `json:"tags"`
}

func (r rawStation) station() (radioguessr.Station, bool) {
	id := strings.TrimSpace(r.StationUUID)
	name := strings.TrimSpace(r.Name)
	if id == "" || name == "" {
		return radioguessr.Station{}, false
	}
	if !r.GeoLat.ok || !r.GeoLong.ok {
		return radioguessr.Station{}, false
	}
	lat, lon := r.GeoLat.v, r.GeoLong.v
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return radioguessr.Station{}, false
	}
	// Unknown positions are frequently published as 0,0.
	if lat == 0 && lon == 0 {
		return radioguessr.Station{}, false
	}
	streamURL, ok := resolvableURL(r.URLResolved)
	if !ok {
		return radioguessr.Station{}, false
	}

	return radioguessr.Station{
		ID:   id,
		Name: name,
		Lat:  lat,
		Lon:  lon,
		URL:  streamURL,
		Tags: splitTags(r.Tags),
	}, true
}

func resolvableURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return raw, true
}

func splitTags(raw string) []string {
	tags := []string{}
	seen := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}

// flexFloat accepts a JSON number, a numeric string or null. Values that do
// not parse leave ok false instead of failing the whole entry.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.v, f.ok = v, true
	return nil
}
