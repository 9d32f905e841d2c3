package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/repository"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDepositPayloadMismatch = errors.New("deposit payload does not match record")
)

// WebhookService accepts signed deposit confirmations from the payment rail
// and funds the matching custody record.
type WebhookService struct {
	core    *core
	hmacKey []byte
	skipSig bool
}

// NewWebhookService creates a new WebhookService instance.
func NewWebhookService(e *Engine, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		core:    e.core,
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
	}
}

// DepositWebhookPayload represents the incoming deposit webhook payload.
type DepositWebhookPayload struct {
	Kind      domain.RecordKind `json:"kind"`
	RecordID  uint64            `json:"record_id"`
	Depositor domain.Identity   `json:"depositor"`
	Asset     domain.AssetRef   `json:"asset"`
	Amount    domain.Amount     `json:"amount"`
	Reference string            `json:"reference"` // Unique reference from the payment rail
}

// DepositWebhookResponse represents the response to a deposit webhook.
type DepositWebhookResponse struct {
	Kind     domain.RecordKind `json:"kind"`
	RecordID uint64            `json:"record_id"`
	Status   string            `json:"status"`
	Message  string            `json:"message"`
}

// HandleDepositWebhook verifies the HMAC signature and funds the record. A
// replay of an already applied reference is acknowledged without change.
func (s *WebhookService) HandleDepositWebhook(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var deposit DepositWebhookPayload
	if err := json.Unmarshal(payload, &deposit); err != nil {
		return nil, fmt.Errorf("%w: invalid payload: %v", domain.ErrInvalidInput, err)
	}
	deposit.Reference = strings.TrimSpace(deposit.Reference)
	if deposit.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrInvalidInput)
	}
	if err := checkCustodyKind(deposit.Kind); err != nil {
		return nil, err
	}

	resp := &DepositWebhookResponse{Kind: deposit.Kind, RecordID: deposit.RecordID, Status: "FUNDED"}
	err := s.core.run(ctx, func(t *txn) error {
		var existing domain.CustodyRecord
		if err := repository.Get(ctx, t.tx, custodyKey(deposit.Kind, deposit.RecordID), &existing); err != nil {
			return err
		}
		if existing.Funded && existing.FundingRef == deposit.Reference {
			resp.Message = "Deposit already processed"
			return nil
		}
		_, err := fund(ctx, t, deposit.Kind, deposit.RecordID, deposit.Depositor, deposit.Reference, func(r *domain.CustodyRecord) error {
			if r.Buyer != deposit.Depositor || r.Asset != deposit.Asset || r.Amount.Cmp(deposit.Amount) != 0 {
				return ErrDepositPayloadMismatch
			}
			return nil
		})
		if err != nil {
			return err
		}
		resp.Message = "Deposit applied"
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// verifyHMAC verifies the HMAC signature of the payload.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(payload)
	expectedSig := "sha256=" + hex.EncodeToString(h.Sum(nil))

	// Use hmac.Equal for constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
