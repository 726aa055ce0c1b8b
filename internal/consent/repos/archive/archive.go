// Package archive keeps an append-only history of scan results in a bbolt
// database, so audits can be compared over time.
package archive

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

var bucketScans = []byte("scans")

// Record is one archived scan.
type Record struct {
	ID     string
	Result domain.ScanResult
}

// Store is a bbolt-backed scan archive.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the archive at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScans)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise archive: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put appends r and returns its id. Ids sort in scan-time order; results
// with the same timestamp keep insertion order.
func (s *Store) Put(r domain.ScanResult) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode scan result: %w", err)
	}
	var id string
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScans)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = key(r.Timestamp, seq)
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store scan result: %w", err)
	}
	return id, nil
}

// Get returns the result stored under id.
func (s *Store) Get(id string) (domain.ScanResult, bool, error) {
	var (
		r     domain.ScanResult
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketScans).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return domain.ScanResult{}, false, fmt.Errorf("failed to read scan %s: %w", id, err)
	}
	return r, found, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketScans).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			var r domain.ScanResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("scan %s: %w", k, err)
			}
			out = append(out, Record{ID: string(k), Result: r})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return out, nil
}

// Len returns the number of archived scans.
func (s *Store) Len() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketScans).Stats().KeyN
		return nil
	})
	return n
}

// key renders a fixed-width id so byte order matches time order.
func key(ts time.Time, seq uint64) string {
	nanos := ts.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return fmt.Sprintf("%020d-%010d", nanos, seq)
}
