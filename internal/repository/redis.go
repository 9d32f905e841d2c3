package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record under its own key with a native TTL. Every key
// read inside a transaction is WATCHed; a concurrent write aborts the commit
// with domain.ErrConflict.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	lifetime Lifetime
}

func NewRedisStore(client *redis.Client, lifetime Lifetime) *RedisStore {
	return &RedisStore{client: client, prefix: "custody:", lifetime: lifetime}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.String()
}

func (s *RedisStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{store: s, rtx: rtx, staged: newStaged()}
		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.staged.order) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range tx.staged.order {
				pipe.Set(ctx, s.key(k), tx.staged.writes[k], s.ttl(k))
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: watched key changed", domain.ErrConflict)
	}
	return err
}

// ttl is the Redis expiration for k; 0 keeps the key forever.
func (s *RedisStore) ttl(k Key) time.Duration {
	if Persistent(k.Kind) {
		return 0
	}
	return s.lifetime.Extend
}

// Sweep removes nothing; Redis evicts expired keys itself.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

type redisTx struct {
	store  *RedisStore
	rtx    *redis.Tx
	staged *staged
}

func (t *redisTx) GetRaw(ctx context.Context, key Key) ([]byte, bool, error) {
	if data, ok := t.staged.get(key); ok {
		return data, true, nil
	}
	k := t.store.key(key)
	if err := t.rtx.Watch(ctx, k).Err(); err != nil {
		return nil, false, fmt.Errorf("watch %s: %w", key, err)
	}
	data, err := t.rtx.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

func (t *redisTx) PutRaw(_ context.Context, key Key, data []byte) error {
	t.staged.put(key, data)
	return nil
}
