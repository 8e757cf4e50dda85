package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"rag_gateway/docstore"
)

const headerLen = 8

// Store is a single-file document store. Each value is prefixed with an
// 8 byte big endian expiry in unix millis; zero means it never expires.
type Store struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

type Options struct {
	// Bucket defaults to "documents".
	Bucket string
}

var errCorrupt = errors.New("bolt: value shorter than header")

// Open initializes or opens a Store at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("fail to open %s: %w", path, err)
	}
	bucket := []byte("documents")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fail to create bucket: %w", err)
	}
	return &Store{db: db, bucket: bucket, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	buf := make([]byte, headerLen+len(value))
	binary.BigEndian.PutUint64(buf[:headerLen], uint64(expiresAt))
	copy(buf[headerLen:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), buf)
	})
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return docstore.ErrNotFound
		}
		if len(v) < headerLen {
			return errCorrupt
		}
		if s.expired(v) {
			return docstore.ErrNotFound
		}
		// v is only valid inside the transaction.
		out = append([]byte(nil), v[headerLen:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Sweep removes expired and corrupt values and returns how many were dropped.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(v) < headerLen || s.expired(v) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		// bolt forbids mutating a bucket while iterating it.
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fail to sweep: %w", err)
	}
	return removed, nil
}

func (s *Store) expired(v []byte) bool {
	expiresAt := int64(binary.BigEndian.Uint64(v[:headerLen]))
	return expiresAt > 0 && s.now().UnixMilli() >= expiresAt
}
