package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
)

// Kind namespaces record ids so ids of different record types never alias.
type Kind string

const (
	KindEscrow      Kind = "escrow"
	KindOrder       Kind = "order"
	KindAuction     Kind = "auction"
	KindBids        Kind = "bids"
	KindFeeConfig   Kind = "fee_config"
	KindCategoryFee Kind = "category_fee"
	KindFeeTotals   Kind = "fee_totals"
	KindPayout      Kind = "payout"
	KindPayoutQueue Kind = "payout_queue"
	KindIdempotency Kind = "idempotency"
)

// persistentKinds hold engine-wide state: configuration, accumulators, the
// payout ledger and its queue. They never expire.
var persistentKinds = map[Kind]bool{
	KindFeeConfig:   true,
	KindCategoryFee: true,
	KindFeeTotals:   true,
	KindPayout:      true,
	KindPayoutQueue: true,
}

// Persistent reports whether keys of kind are exempt from expiry. Id counters
// are always persistent.
func Persistent(kind Kind) bool {
	return persistentKinds[kind] || strings.HasSuffix(string(kind), seqSuffix)
}

// KindFor maps a record kind onto its storage namespace.
func KindFor(kind domain.RecordKind) Kind {
	return Kind(kind)
}

// Key addresses one stored record.
type Key struct {
	Kind Kind
	ID   uint64
}

func (k Key) String() string {
	return string(k.Kind) + "/" + strconv.FormatUint(k.ID, 10)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return Key{}, fmt.Errorf("malformed key %q", s)
	}
	id, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed key %q: %w", s, err)
	}
	return Key{Kind: Kind(s[:i]), ID: id}, nil
}

const seqSuffix = ".seq"

// seqKey holds the id counter for kind.
func seqKey(kind Kind) Key {
	return Key{Kind: Kind(string(kind) + seqSuffix)}
}

// Lifetime controls storage expiry. Each write moves the expiry of the written
// key to now+Extend. Extend may not exceed Max.
type Lifetime struct {
	Extend time.Duration
	Max    time.Duration
}

// DefaultLifetime keeps records for 30 days after their last write.
var DefaultLifetime = Lifetime{Extend: 30 * 24 * time.Hour, Max: 365 * 24 * time.Hour}

// ExpiresAt returns when a write of key at now lapses. The zero time means
// never.
func (l Lifetime) ExpiresAt(key Key, now time.Time) time.Time {
	if Persistent(key.Kind) {
		return time.Time{}
	}
	return now.Add(l.Extend)
}

// Expired reports whether an entry with expiry expiresAt is gone at now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func (l Lifetime) Validate() error {
	if l.Extend <= 0 {
		return fmt.Errorf("%w: record ttl must be positive", domain.ErrInvalidInput)
	}
	if l.Max > 0 && l.Extend > l.Max {
		return fmt.Errorf("%w: record ttl %s exceeds max lifetime %s", domain.ErrInvalidInput, l.Extend, l.Max)
	}
	return nil
}

// Tx is a unit of work. Reads observe the transaction's own staged writes.
type Tx interface {
	// GetRaw returns the stored bytes for key; found is false for absent or
	// expired keys.
	GetRaw(ctx context.Context, key Key) (data []byte, found bool, err error)
	PutRaw(ctx context.Context, key Key, data []byte) error
}

// Store runs transactions against a backend. fn's staged writes are committed
// only if fn returns nil.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	// Sweep physically removes expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Get loads key into dst, failing with domain.ErrNotFound when absent.
func Get(ctx context.Context, tx Tx, key Key, dst any) error {
	found, err := TryGet(ctx, tx, key, dst)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return nil
}

// TryGet loads key into dst and reports whether it existed.
func TryGet(ctx context.Context, tx Tx, key Key, dst any) (bool, error) {
	data, found, err := tx.GetRaw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Exists reports whether key holds a live record.
func Exists(ctx context.Context, tx Tx, key Key) (bool, error) {
	_, found, err := tx.GetRaw(ctx, key)
	return found, err
}

// Put overwrites key unconditionally.
func Put(ctx context.Context, tx Tx, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.PutRaw(ctx, key, data)
}

// NextID allocates the next id for kind. Ids start at 1. It fails with
// domain.ErrConflict rather than hand out an id whose record is still live.
func NextID(ctx context.Context, tx Tx, kind Kind) (uint64, error) {
	var seq uint64
	if _, err := TryGet(ctx, tx, seqKey(kind), &seq); err != nil {
		return 0, err
	}
	seq++
	live, err := Exists(ctx, tx, Key{Kind: kind, ID: seq})
	if err != nil {
		return 0, err
	}
	if live {
		return 0, fmt.Errorf("%w: %s id %d is already in use", domain.ErrConflict, kind, seq)
	}
	if err := Put(ctx, tx, seqKey(kind), seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// LastID returns the highest id issued for kind, or 0.
func LastID(ctx context.Context, tx Tx, kind Kind) (uint64, error) {
	var seq uint64
	if _, err := TryGet(ctx, tx, seqKey(kind), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReserveID raises the counter for kind so a caller-assigned id is never
// handed out again.
func ReserveID(ctx context.Context, tx Tx, kind Kind, id uint64) error {
	var seq uint64
	if _, err := TryGet(ctx, tx, seqKey(kind), &seq); err != nil {
		return err
	}
	if id <= seq {
		return nil
	}
	return Put(ctx, tx, seqKey(kind), id)
}

// staged buffers writes for backends that apply them at commit.
type staged struct {
	writes map[Key][]byte
	order  []Key
}

func newStaged() *staged {
	return &staged{writes: make(map[Key][]byte)}
}

func (s *staged) get(key Key) ([]byte, bool) {
	data, ok := s.writes[key]
	return data, ok
}

func (s *staged) put(key Key, data []byte) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.writes[key] = buf
}

var errClosed = errors.New("store closed")
