// Package store persists full-state snapshot payloads to disk, in the
// same format a GAME_STATE_RESPONSE carries over the wire. It is a thin
// wrapper around bbolt: one bucket, keyed by big-endian frame number,
// valued by the exact bytes a sim.Snapshot.Serialize call produced.
package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var snapshotsBucket = []byte("snapshots")

// Store is a durable key-value store of serialized snapshots, one per
// frame a caller chose to persist (the server controller stores the
// leading snapshot each time it sends a GAME_STATE_RESPONSE).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and
// ensures the snapshots bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: create bucket")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func frameKey(frame int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(frame))
	return b[:]
}

// Put writes the serialized snapshot bytes for frame, overwriting any
// previous entry for that frame.
func (s *Store) Put(frame int64, serializedSnapshot []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		return b.Put(frameKey(frame), serializedSnapshot)
	})
}

// Get returns the serialized snapshot bytes stored for frame, or
// (nil, false) if none was persisted.
func (s *Store) Get(frame int64) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		v := b.Get(frameKey(frame))
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "store: get")
	}
	return out, out != nil, nil
}

// Latest returns the highest frame number with a persisted snapshot, or
// (0, false) if the store is empty.
func (s *Store) Latest() (int64, bool, error) {
	var frame int64
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		c := b.Cursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		frame = int64(binary.BigEndian.Uint64(k))
		ok = true
		return nil
	})
	if err != nil {
		return 0, false, errors.Wrap(err, "store: latest")
	}
	return frame, ok, nil
}

// Prune deletes every persisted snapshot older than keepFrom, bounding
// disk usage the same way cmdlog.Prune bounds memory.
func (s *Store) Prune(keepFrom int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		c := b.Cursor()
		cutoff := frameKey(keepFrom)
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoff) {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
