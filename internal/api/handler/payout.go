package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/service"
	"go.uber.org/zap"
)

// PayoutHandler handles HTTP requests for queued payouts.
type PayoutHandler struct {
	payoutSvc *service.PayoutService
}

func NewPayoutHandler(payoutSvc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// GetPayout handles GET /v1/payouts/{id}. Only the recipient or an admin may
// read a payout.
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payout, err := h.payoutSvc.GetPayout(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "get payout", err)
		return
	}
	if !isAdmin(r) && payout.Recipient != caller(r) {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	RespondJSON(w, http.StatusOK, payout)
}

// ListManualReviewPayouts handles GET /v1/payouts/manual-review (admin only).
func (h *PayoutHandler) ListManualReviewPayouts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r, 50)
	if !ok {
		return
	}
	payouts, err := h.payoutSvc.ListManualReviewPayouts(r.Context(), limit, offset)
	if err != nil {
		RespondDomainError(w, r, "list manual review payouts", err)
		return
	}
	total, err := h.payoutSvc.ManualReviewQueueSize(r.Context())
	if err != nil {
		zap.L().Warn("failed to compute manual review queue size", zap.Error(err))
		total = int64(len(payouts))
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":       payouts,
		"limit":       limit,
		"offset":      offset,
		"count":       len(payouts),
		"total_count": total,
	})
}

type resolveManualReviewRequest struct {
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
	GatewayRef string `json:"gateway_ref,omitempty"`
}

// ResolveManualReviewPayout handles POST /v1/payouts/{id}/resolve (admin only).
func (h *PayoutHandler) ResolveManualReviewPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveManualReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Decision = strings.TrimSpace(strings.ToLower(req.Decision))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Decision == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-decision", "decision is required")
		return
	}
	if req.Reason == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	result, err := h.payoutSvc.ResolveManualReviewPayout(r.Context(), service.ResolveManualReviewRequest{
		PayoutID:   id,
		Decision:   service.ResolveManualReviewDecision(req.Decision),
		Reason:     req.Reason,
		GatewayRef: strings.TrimSpace(req.GatewayRef),
		Actor:      caller(r),
	})
	switch {
	case err == nil:
		RespondJSON(w, http.StatusOK, result)
	case errors.Is(err, service.ErrPayoutNotInManualReview):
		RespondError(w, r, http.StatusConflict, "payout/not-in-manual-review", "Payout is not in manual review")
	case errors.Is(err, service.ErrInvalidManualReviewDecision):
		RespondError(w, r, http.StatusBadRequest, "payout/invalid-decision", "decision must be confirm_sent or retry")
	default:
		RespondDomainError(w, r, "resolve manual review payout", err)
	}
}
