package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltStore persists records in a single bbolt file. bbolt allows one writer at
// a time, which serializes RunInTx.
type BoltStore struct {
	db       *bolt.DB
	lifetime Lifetime
	now      func() time.Time
}

func NewBoltStore(path string, lifetime Lifetime) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db, lifetime: lifetime, now: time.Now}, nil
}

// SetNowFunc overrides the clock used for expiry. Not safe to call concurrently
// with transactions.
func (s *BoltStore) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *BoltStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		now := s.now()
		return fn(&boltTx{
			bucket:   btx.Bucket(recordsBucket),
			now:      now,
			lifetime: s.lifetime,
		})
	})
}

func (s *BoltStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(btx *bolt.Tx) error {
		now := s.now()
		b := btx.Bucket(recordsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) >= 8 && Expired(decodeExpiry(v), now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep bolt store: %w", err)
	}
	return removed, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	bucket   *bolt.Bucket
	now      time.Time
	lifetime Lifetime
}

// Values carry an 8-byte big-endian expiry in unix nanoseconds; 0 never expires.
func decodeExpiry(v []byte) time.Time {
	ns := int64(binary.BigEndian.Uint64(v[:8]))
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func encodeExpiry(dst []byte, expiresAt time.Time) {
	var ns int64
	if !expiresAt.IsZero() {
		ns = expiresAt.UnixNano()
	}
	binary.BigEndian.PutUint64(dst, uint64(ns))
}

func (t *boltTx) GetRaw(_ context.Context, key Key) ([]byte, bool, error) {
	v := t.bucket.Get([]byte(key.String()))
	if len(v) < 8 {
		return nil, false, nil
	}
	if Expired(decodeExpiry(v), t.now) {
		return nil, false, nil
	}
	// Values are only valid for the life of the bolt transaction.
	data := make([]byte, len(v)-8)
	copy(data, v[8:])
	return data, true, nil
}

func (t *boltTx) PutRaw(_ context.Context, key Key, data []byte) error {
	v := make([]byte, 8+len(data))
	encodeExpiry(v[:8], t.lifetime.ExpiresAt(key, t.now))
	copy(v[8:], data)
	if err := t.bucket.Put([]byte(key.String()), v); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
