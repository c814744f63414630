package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const walBucket = "usage_records"

type walEntry struct {
	Key    uint64
	Record Record
}

// WAL is a local write-ahead buffer for usage records, backed by bbolt.
// Records land here before the worksheet append; entries whose append
// failed survive a restart and are flushed by the next campaign run.
type WAL struct {
	db *bolt.DB
}

// OpenWAL opens (or creates) the write-ahead buffer at the given path
func OpenWAL(path string) (*WAL, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(walBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &WAL{db: db}, nil
}

// Append stores a record as unsynced and returns its key
func (w *WAL) Append(rec Record) (uint64, error) {
	var key uint64
	err := w.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(walBucket))

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		key = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return 0, err
	}
	return key, nil
}

// MarkSynced drops a record that reached the backing store
func (w *WAL) MarkSynced(key uint64) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(walBucket)).Delete(itob(key))
	})
}

// Unsynced returns all records still awaiting a backing-store append,
// in insertion order
func (w *WAL) Unsynced() ([]walEntry, error) {
	var entries []walEntry
	err := w.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(walBucket)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			entries = append(entries, walEntry{Key: binary.BigEndian.Uint64(k), Record: rec})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the underlying database
func (w *WAL) Close() error {
	return w.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
