package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

const snapshotOpenTimeout = 5 * time.Second

// snapshotEntry is the on-disk form of an Entry
type snapshotEntry struct {
	Kind            Kind            `json:"kind"`
	Slug            string          `json:"slug,omitempty"`
	LastUpdated     string          `json:"last_updated,omitempty"`
	LastUpdatedTime time.Time       `json:"last_updated_time,omitempty"`
	Value           json.RawMessage `json:"value"`
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(snapshotEntry{
		Kind:            e.Kind,
		Slug:            e.Slug,
		LastUpdated:     e.LastUpdated,
		LastUpdatedTime: e.LastUpdatedTime,
		Value:           e.Value,
	})
}

func decodeEntry(key, data []byte) (*Entry, error) {
	var se snapshotEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", key, err)
	}
	return &Entry{
		Key:             string(key),
		Kind:            se.Kind,
		Slug:            se.Slug,
		LastUpdated:     se.LastUpdated,
		LastUpdatedTime: se.LastUpdatedTime,
		Value:           se.Value,
	}, nil
}

// SaveSnapshot writes every fast tier entry to a bbolt file at path,
// replacing its previous contents. It returns the number of entries written.
func (s *Store) SaveSnapshot(path string) (int, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: snapshotOpenTimeout})
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer func() {
		_ = db.Close()
	}()

	entries := s.fast.snapshot()
	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketEntries) != nil {
			if err := tx.DeleteBucket(bucketEntries); err != nil {
				return fmt.Errorf("failed to clear entries bucket: %w", err)
			}
		}
		bucket, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return fmt.Errorf("failed to create entries bucket: %w", err)
		}

		for _, e := range entries {
			data, err := encodeEntry(e)
			if err != nil {
				return fmt.Errorf("failed to encode entry %s: %w", e.Key, err)
			}
			if err := bucket.Put([]byte(e.Key), data); err != nil {
				return fmt.Errorf("failed to write entry %s: %w", e.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// LoadSnapshot fills the fast tier from a snapshot written by SaveSnapshot.
// Keys already present in memory are kept. A missing file loads nothing.
func (s *Store) LoadSnapshot(path string) (int, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: snapshotOpenTimeout, ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer func() {
		_ = db.Close()
	}()

	loaded := 0
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			s.fast.fill(e)
			loaded++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return loaded, nil
}
