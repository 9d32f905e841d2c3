package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const redisKeyPrefix = "idempotency"

type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	ServedBy    string
}

// Store keeps idempotency reservations in the record store and caches
// finalized responses in Redis when a client is configured.
type Store struct {
	redis   redis.Cmdable
	records repository.Store
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(redis redis.Cmdable, records repository.Store, ttl time.Duration) *Store {
	return &Store{redis: redis, records: records, ttl: ttl, now: time.Now}
}

// storedKey is the persisted form of a reservation.
type storedKey struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	InProgress  bool   `json:"in_progress"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	CreatedAt   int64  `json:"created_at"`
}

type cacheEnvelope struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// recordKey maps a client key onto a store key. The full key is kept in the
// record; a hash collision reads as a foreign key and is treated as absent.
func recordKey(key string) repository.Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return repository.Key{Kind: repository.KindIdempotency, ID: h.Sum64()}
}

// load returns the live reservation for key, if any.
func (s *Store) load(ctx context.Context, tx repository.Tx, key string) (*storedKey, error) {
	var rec storedKey
	found, err := repository.TryGet(ctx, tx, recordKey(key), &rec)
	if err != nil || !found || rec.Key != key {
		return nil, err
	}
	if s.ttl > 0 && s.now().Unix()-rec.CreatedAt >= int64(s.ttl/time.Second) {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, redisKey(key)).Result()
		if err == nil {
			var env cacheEnvelope
			if json.Unmarshal([]byte(val), &env) == nil {
				if env.Hash != requestHash {
					return nil, ErrHashMismatch
				}
				return &Record{
					Key:         env.Key,
					RequestHash: env.Hash,
					Status:      env.Status,
					Body:        env.Body,
					ContentType: env.ContentType,
					ServedBy:    "redis",
				}, nil
			}
		} else if err != redis.Nil {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
	}

	var row *storedKey
	err := s.records.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		row, err = s.load(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	if row.Hash != requestHash {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}

	rec := Record{
		Key:         row.Key,
		RequestHash: row.Hash,
		Status:      row.Status,
		Body:        row.Body,
		ContentType: row.ContentType,
		ServedBy:    "store",
	}
	s.cache(ctx, rec)
	return &rec, nil
}

// Reserve claims key for the caller. It returns false when another request
// already holds it.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	reserved := false
	err := s.records.RunInTx(ctx, func(tx repository.Tx) error {
		reserved = false
		existing, err := s.load(ctx, tx, key)
		if err != nil || existing != nil {
			return err
		}
		reserved = true
		return repository.Put(ctx, tx, recordKey(key), storedKey{
			Key:        key,
			Hash:       requestHash,
			Method:     method,
			Path:       path,
			InProgress: true,
			CreatedAt:  s.now().Unix(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return reserved, nil
}

func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	var row *storedKey
	err := s.records.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		if row, err = s.load(ctx, tx, key); err != nil {
			return err
		}
		if row == nil || row.Hash != requestHash {
			return ErrNotFound
		}
		row.InProgress = false
		row.Status = status
		row.Body = body
		row.ContentType = contentType
		return repository.Put(ctx, tx, recordKey(key), row)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	rec := &Record{
		Key:         row.Key,
		RequestHash: row.Hash,
		Status:      row.Status,
		Body:        row.Body,
		ContentType: row.ContentType,
		ServedBy:    "store",
	}
	s.cache(ctx, *rec)
	return rec, nil
}

func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrInProgress) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		return nil, err
	}
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	env := cacheEnvelope{
		Key:         rec.Key,
		Hash:        rec.RequestHash,
		Status:      rec.Status,
		Body:        rec.Body,
		ContentType: rec.ContentType,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		zap.L().Warn("marshal idempotency cache", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
