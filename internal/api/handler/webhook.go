package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/custody-engine/internal/service"
	"go.uber.org/zap"
)

const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler handles deposit notifications from the payment provider.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleDepositWebhook handles POST /v1/webhooks/deposit.
// It verifies the HMAC signature and funds the referenced record.
func (h *WebhookHandler) HandleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhookSvc.HandleDepositWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		RespondJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrInvalidSignature):
		zap.L().Warn("deposit webhook rejected", zap.Error(err))
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
	case errors.Is(err, service.ErrDepositPayloadMismatch):
		RespondError(w, r, http.StatusUnprocessableEntity, "webhook/payload-mismatch", err.Error())
	default:
		RespondDomainError(w, r, "deposit webhook", err)
	}
}
