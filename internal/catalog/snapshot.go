package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

const (
	snapshotBucket = "catalog"
	snapshotKey    = "snapshot"
)

// Snapshot is the persisted form of the last successful refresh.
type Snapshot struct {
	Stations    []radioguessr.Station
	RefreshedAt time.Time
}

// SnapshotStore persists the last good station set across restarts.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, s Snapshot) error
}

type snapshotDoc struct {
	RefreshedAt time.Time    `json:"refreshedAt"`
	Stations    []stationDoc `json:"stations"`
}

type stationDoc struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	URL  string   `json:"url"`
	Tags []string `json:"tags,omitempty"`
}

// BoltSnapshots implements SnapshotStore on a single-bucket BoltDB file.
type BoltSnapshots struct {
	db *bbolt.DB
}

func OpenBoltSnapshots(path string) (*BoltSnapshots, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltSnapshots{db: db}, nil
}

func (b *BoltSnapshots) Load(_ context.Context) (Snapshot, bool, error) {
	var doc snapshotDoc
	var found bool

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotBucket)).Get([]byte(snapshotKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("reading snapshot: %w", err)
	}
	if !found {
		return Snapshot{}, false, nil
	}

	s := Snapshot{
		RefreshedAt: doc.RefreshedAt,
		Stations:    make([]radioguessr.Station, 0, len(doc.Stations)),
	}
	for _, d := range doc.Stations {
		tags := d.Tags
		if tags == nil {
			tags = []string{}
		}
		s.Stations = append(s.Stations, radioguessr.Station{
			ID: d.ID, Name: d.Name, Lat: d.Lat, Lon: d.Lon, URL: d.URL, Tags: tags,
		})
	}
	return s, true, nil
}

func (b *BoltSnapshots) Save(_ context.Context, s Snapshot) error {
	doc := snapshotDoc{
		RefreshedAt: s.RefreshedAt,
		Stations:    make([]stationDoc, 0, len(s.Stations)),
	}
	for _, st := range s.Stations {
		doc.Stations = append(doc.Stations, stationDoc{
			ID: st.ID, Name: st.Name, Lat: st.Lat, Lon: st.Lon, URL: st.URL, Tags: st.Tags,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(snapshotKey), data)
	})
}

func (b *BoltSnapshots) Close() error {
	return b.db.Close()
}
