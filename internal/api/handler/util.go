package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/custody-engine/internal/api/problem"
	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies decoded by handlers.
const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps engine failures onto problem responses. Failures
// without a domain code are logged and reported as 500.
func RespondDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !problem.IsDomainError(err) {
		zap.L().Error(op+" failed", zap.Error(err), zap.String("path", r.URL.Path))
	}
	problem.WriteError(w, r, err)
}

// caller returns the identity verified by the auth middleware.
func caller(r *http.Request) domain.Identity {
	return auth.IdentityFromContext(r.Context())
}

func isAdmin(r *http.Request) bool {
	return auth.RoleFromContext(r.Context()) == auth.RoleAdmin
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		detail := "Invalid request body"
		var de *domain.Error
		if errors.As(err, &de) {
			detail = err.Error()
		}
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", detail)
		return false
	}
	return true
}

// pathID parses the uint64 route parameter name.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

// pageParams reads limit/offset query parameters.
func pageParams(w http.ResponseWriter, r *http.Request, defaultLimit int) (limit, offset int, ok bool) {
	limit = defaultLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}
