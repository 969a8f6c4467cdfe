package eventstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

// ErrClosed is returned when the journal is used after Close.
var ErrClosed = errors.New("eventstore: journal closed")

// Entry is a journalled event. Sequence numbers start at 1 and grow without
// gaps, so clients can resume a stream from the last sequence they saw.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Store is an append-only event journal backed by BoltDB. Keys are big-endian
// sequence numbers so a cursor scan replays in emission order.
type Store struct {
	db *bolt.DB
}

// Open initialises (and migrates) the journal at path.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append journals an event and returns the stored entry with its assigned
// sequence number.
func (s *Store) Append(eventType string, attributes map[string]string, now time.Time) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, ErrClosed
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: now.UTC(),
	}
	if len(attributes) > 0 {
		entry.Attributes = make(map[string]string, len(attributes))
		for k, v := range attributes {
			entry.Attributes[k] = v
		}
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		entry.Sequence = seq
		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), payload)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ReplaySince returns up to limit entries with sequence numbers strictly
// greater than cursor, in emission order. A limit of zero or less means no
// bound. Cursor zero replays from the beginning.
func (s *Store) ReplaySince(cursor uint64, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(sequenceKey(cursor + 1)); k != nil; k, v = c.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LastSequence reports the highest sequence number journalled so far, zero for
// an empty journal.
func (s *Store) LastSequence() (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		last = tx.Bucket(bucketEvents).Sequence()
		return nil
	})
	return last, err
}

func sequenceKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}
