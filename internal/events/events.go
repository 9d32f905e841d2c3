// Package events delivers state-change notifications to off-engine consumers.
// Delivery is at most once per committed mutation; sinks own their retry policy.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/ayo6706/custody-engine/internal/domain"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeRecordCreated   = "record.created"
	TypeRecordFunded    = "record.funded"
	TypeStateChanged    = "record.state_changed"
	TypeSettled         = "record.settled"
	TypeBidPlaced       = "auction.bid_placed"
	TypeLeaderRefunded  = "auction.leader_refunded"
	TypeFeeCollected    = "fees.collected"
	TypeConfigUpdated   = "fees.config_updated"
	TypeCategoryUpdated = "fees.category_updated"
	TypePayoutSent      = "payout.sent"
	TypePayoutReview    = "payout.manual_review"
)

// Event describes one committed mutation.
type Event struct {
	Type      string            `json:"type"`
	Kind      domain.RecordKind `json:"kind,omitempty"`
	RecordID  uint64            `json:"record_id"`
	Actor     domain.Identity   `json:"actor,omitempty"`
	From      domain.State      `json:"from,omitempty"`
	To        domain.State      `json:"to,omitempty"`
	Party     domain.Identity   `json:"party,omitempty"`
	Amount    *domain.Amount    `json:"amount,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Sink receives events after the originating transaction commits.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.L()
	}
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("type", e.Type),
			zap.String("kind", string(e.Kind)),
			zap.Uint64("record_id", e.RecordID),
			zap.Int64("timestamp", e.Timestamp),
		}
		if e.Actor != "" {
			fields = append(fields, zap.String("actor", string(e.Actor)))
		}
		if e.From != "" || e.To != "" {
			fields = append(fields, zap.String("from", string(e.From)), zap.String("to", string(e.To)))
		}
		if e.Party != "" {
			fields = append(fields, zap.String("party", string(e.Party)))
		}
		if e.Amount != nil {
			fields = append(fields, zap.String("amount", e.Amount.String()))
		}
		s.logger.Info("event", fields...)
	}
	return nil
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
