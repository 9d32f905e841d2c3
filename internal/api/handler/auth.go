package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/custody-engine/internal/api/middleware"
	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"go.uber.org/zap"
)

const defaultTokenTTL = 24 * time.Hour

type AuthHandler struct {
	adminIdentity domain.Identity
	ttl           time.Duration
}

// NewAuthHandler issues tokens for the mock login flow. The configured admin
// identity receives the admin role.
func NewAuthHandler(adminIdentity domain.Identity) *AuthHandler {
	return &AuthHandler{adminIdentity: adminIdentity, ttl: defaultTokenTTL}
}

type loginRequest struct {
	Identity string `json:"identity"` // Mock login by identity
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := domain.Identity(strings.TrimSpace(req.Identity))
	if id == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-identity", "identity is required")
		return
	}

	role := auth.RoleUser
	if h.adminIdentity != "" && id == h.adminIdentity {
		role = auth.RoleAdmin
	}
	token, err := middleware.Tokens().Sign(id, role, h.ttl)
	if err != nil {
		zap.L().Error("sign token failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-sign-failed", "Failed to sign token")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"identity":   id,
		"role":       role,
		"expires_in": int64(h.ttl / time.Second),
	})
}
