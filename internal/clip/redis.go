package clip

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex stores each entry as a hash at clip:<station>:<bucket>.
// Keys carry no expiry; the bucket in the key is the only freshness bound.
type RedisIndex struct {
	rdb *redis.Client
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb}
}

func redisKey(stationID string, bucket int64) string {
	return "clip:" + stationID + ":" + strconv.FormatInt(bucket, 10)
}

func (r *RedisIndex) Get(ctx context.Context, stationID string, bucket int64) (Entry, bool, error) {
	vals, err := r.rdb.HGetAll(ctx, redisKey(stationID, bucket)).Result()
	if err != nil {
		return Entry{}, false, err
	}
	path := vals["path"]
	if path == "" {
		return Entry{}, false, nil
	}

	e := Entry{StationID: stationID, Bucket: bucket, Path: path}
	if ms, err := strconv.ParseInt(vals["last_checked"], 10, 64); err == nil {
		e.LastChecked = time.UnixMilli(ms)
	}
	return e, true, nil
}

func (r *RedisIndex) Put(ctx context.Context, e Entry) error {
	err := r.rdb.HSet(ctx, redisKey(e.StationID, e.Bucket),
		"path", e.Path,
		"last_checked", e.LastChecked.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("writing %s: %w", redisKey(e.StationID, e.Bucket), err)
	}
	return nil
}
