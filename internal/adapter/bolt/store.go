// Package bolt persists device snapshots in a bbolt file: one "latest"
// document per location plus an append-only history log per location.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// ErrNotFound is returned when a location has no stored snapshot.
var ErrNotFound = errors.New("snapshot not found")

var latestBucket = []byte("latest")

const historyPrefix = "history/"

func historyBucket(loc domain.LocationID) []byte {
	return []byte(historyPrefix + loc.String())
}

// ReadingStore is the bbolt-backed reading store.
type ReadingStore struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*ReadingStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open reading store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(latestBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create latest bucket: %w", err)
	}
	return &ReadingStore{db: db}, nil
}

// Close releases the database file.
func (s *ReadingStore) Close() error {
	return s.db.Close()
}

// Save upserts the location's latest document and appends the snapshot to its
// history. It returns the stored latest document.
func (s *ReadingStore) Save(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	if err := s.SaveBatch(ctx, []domain.Snapshot{snap}); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// SaveBatch stores several snapshots in a single transaction.
func (s *ReadingStore) SaveBatch(ctx context.Context, snaps []domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		latest := tx.Bucket(latestBucket)
		for _, snap := range snaps {
			doc, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			if err := latest.Put([]byte(snap.Location.String()), doc); err != nil {
				return fmt.Errorf("put latest for location %d: %w", snap.Location, err)
			}

			hist, err := tx.CreateBucketIfNotExists(historyBucket(snap.Location))
			if err != nil {
				return fmt.Errorf("create history bucket: %w", err)
			}
			seq, err := hist.NextSequence()
			if err != nil {
				return err
			}
			if err := hist.Put(historyKey(snap.Timestamp, seq), doc); err != nil {
				return fmt.Errorf("append history for location %d: %w", snap.Location, err)
			}
		}
		return nil
	})
}

// Latest returns the latest snapshot of every location, ordered by location.
func (s *ReadingStore) Latest(ctx context.Context) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(latestBucket).ForEach(func(_, v []byte) error {
			var snap domain.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("decode latest snapshot: %w", err)
			}
			out = append(out, snap)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// LatestFor returns one location's latest snapshot, or ErrNotFound.
func (s *ReadingStore) LatestFor(ctx context.Context, loc domain.LocationID) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(latestBucket).Get([]byte(loc.String()))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &snap)
	})
	return snap, err
}

// History returns the location's readings of parameter taken at or after
// since, ordered by time. Snapshots without that parameter are skipped.
func (s *ReadingStore) History(ctx context.Context, loc domain.LocationID, parameter string, since time.Time) ([]domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parameter = strings.ToLower(parameter)
	out := []domain.Reading{}
	err := s.db.View(func(tx *bolt.Tx) error {
		hist := tx.Bucket(historyBucket(loc))
		if hist == nil {
			return nil
		}
		c := hist.Cursor()
		for k, v := c.Seek(historyKey(since, 0)); k != nil; k, v = c.Next() {
			var snap domain.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("decode history entry: %w", err)
			}
			value, ok := snap.Values[parameter]
			if !ok {
				continue
			}
			out = append(out, domain.Reading{
				Location:  loc,
				Parameter: parameter,
				Value:     value,
				Timestamp: snap.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// historyKey orders entries by time, then by insertion for equal timestamps.
// Times before the epoch sort first.
func historyKey(ts time.Time, seq uint64) []byte {
	var nanos uint64
	if !ts.IsZero() && ts.UnixNano() > 0 {
		nanos = uint64(ts.UnixNano())
	}
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], nanos)
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}
