// Package clip materialises short audio clips from radio streams and caches
// them per (station, time bucket).
package clip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

const DefaultTimeout = 20 * time.Second

type Options struct {
	// Dir is where clip files are written and looked up.
	Dir string
	// URLPrefix is the public path Dir is served under.
	URLPrefix string
	Timeout   time.Duration
	Spec      Spec
}

type Cache struct {
	dir       string
	urlPrefix string
	timeout   time.Duration
	spec      Spec

	index     Index
	extractor Extractor
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group
}

func New(logger *slog.Logger, index Index, extractor Extractor, opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("clip dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clip dir: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Spec == (Spec{}) {
		opts.Spec = DefaultSpec
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/clips"
	}

	return &Cache{
		dir:       opts.Dir,
		urlPrefix: strings.TrimRight(opts.URLPrefix, "/"),
		timeout:   opts.Timeout,
		spec:      opts.Spec,
		index:     index,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// FileName is the deterministic asset name for a station and bucket. Station
// ids are opaque, so they are hashed rather than used as path segments.
func FileName(stationID string, bucket int64) string {
	return fmt.Sprintf("%016x-%d.mp3", xxh3.HashString(stationID), bucket)
}

// Get returns the clip for stationID in bucket, extracting it from streamURL
// on a miss. A row whose file has vanished counts as a miss. Extraction runs
// under its own timeout and is not cancelled when ctx is: the result still
// lands in the cache for later callers.
func (c *Cache) Get(ctx context.Context, stationID, streamURL string, bucket int64) (radioguessr.Clip, error) {
	if clip, ok, err := c.lookup(ctx, stationID, bucket); err != nil || ok {
		return clip, err
	}

	key := stationID + "|" + strconv.FormatInt(bucket, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		// Another flight may have finished between our lookup and this one.
		if clip, ok, err := c.lookup(detached, stationID, bucket); err != nil || ok {
			return clip, err
		}
		return c.extract(detached, stationID, streamURL, bucket)
	})

	select {
	case <-ctx.Done():
		return radioguessr.Clip{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return radioguessr.Clip{}, res.Err
		}
		return res.Val.(radioguessr.Clip), nil
	}
}

func (c *Cache) lookup(ctx context.Context, stationID string, bucket int64) (radioguessr.Clip, bool, error) {
	e, ok, err := c.index.Get(ctx, stationID, bucket)
	if err != nil {
		return radioguessr.Clip{}, false, fmt.Errorf("reading clip index: %w", err)
	}
	if !ok {
		return radioguessr.Clip{}, false, nil
	}

	name := filepath.Base(e.Path)
	if !c.present(name) {
		c.logger.Debug("cached clip missing on disk", "station_id", stationID, "bucket", bucket, "path", e.Path)
		return radioguessr.Clip{}, false, nil
	}

	e.LastChecked = c.now()
	if err := c.index.Put(ctx, e); err != nil {
		c.logger.Debug("touching clip entry failed", "station_id", stationID, "error", err)
	}
	return c.clip(stationID, name), true, nil
}

func (c *Cache) extract(ctx context.Context, stationID, streamURL string, bucket int64) (radioguessr.Clip, error) {
	name := FileName(stationID, bucket)
	final := filepath.Join(c.dir, name)

	tmp, err := os.CreateTemp(c.dir, name+".*.part")
	if err != nil {
		return radioguessr.Clip{}, fmt.Errorf("creating temp clip: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	start := c.now()
	extractCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.extractor.Extract(extractCtx, streamURL, tmpPath, c.spec)
	cancel()
	if err != nil {
		c.logger.Error("clip extraction failed", "station_id", stationID, "bucket", bucket, "error", err)
		return radioguessr.Clip{}, fmt.Errorf("%w: station %s: %w", radioguessr.ErrClipFetchFailed, stationID, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		c.logger.Error("clip extraction produced no audio", "station_id", stationID, "bucket", bucket)
		return radioguessr.Clip{}, fmt.Errorf("%w: station %s: empty output", radioguessr.ErrClipFetchFailed, stationID)
	}

	// Only complete files ever appear under the final name.
	if err := os.Rename(tmpPath, final); err != nil {
		return radioguessr.Clip{}, fmt.Errorf("publishing clip: %w", err)
	}

	e := Entry{StationID: stationID, Bucket: bucket, Path: final, LastChecked: c.now()}
	if err := c.index.Put(ctx, e); err != nil {
		return radioguessr.Clip{}, fmt.Errorf("recording clip: %w", err)
	}

	c.logger.Info("clip extracted",
		"station_id", stationID,
		"bucket", bucket,
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", c.now().Sub(start).Milliseconds(),
	)
	return c.clip(stationID, name), nil
}

func (c *Cache) present(name string) bool {
	info, err := os.Stat(filepath.Join(c.dir, name))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func (c *Cache) clip(stationID, name string) radioguessr.Clip {
	return radioguessr.Clip{ID: stationID, URL: c.urlPrefix + "/" + name}
}
