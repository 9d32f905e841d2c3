package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps records in process memory. Transactions are serialized by
// a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[Key]memoryEntry
	lifetime Lifetime
	now      func() time.Time
	closed   bool
}

func NewMemoryStore(lifetime Lifetime) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[Key]memoryEntry),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock used for expiry.
func (s *MemoryStore) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, staged: newStaged(), now: s.now()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, key := range tx.staged.order {
		s.entries[key] = memoryEntry{data: tx.staged.writes[key], expiresAt: s.lifetime.ExpiresAt(key, tx.now)}
	}
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if Expired(e.expiresAt, now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	staged *staged
	now    time.Time
}

func (t *memoryTx) GetRaw(_ context.Context, key Key) ([]byte, bool, error) {
	if data, ok := t.staged.get(key); ok {
		return data, true, nil
	}
	e, ok := t.store.entries[key]
	if !ok || Expired(e.expiresAt, t.now) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (t *memoryTx) PutRaw(_ context.Context, key Key, data []byte) error {
	t.staged.put(key, data)
	return nil
}
