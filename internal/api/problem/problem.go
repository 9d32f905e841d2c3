package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/custody-engine/internal/domain"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.custody-engine.dev/"

// Details represents RFC 7807 Problem Details. Code carries the stable
// numeric domain error code when the failure originated in the engine.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	Code      uint32 `json:"code,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	write(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteError maps a domain failure to its HTTP status and writes it with the
// domain code attached. Uncoded errors become a 500 without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := StatusFor(code)
	detail := err.Error()
	if code == domain.CodeUnknown {
		detail = "unexpected server error"
	}
	write(w, r, Details{
		Type:   Type("custody/" + code.Slug()),
		Status: status,
		Detail: detail,
		Code:   uint32(code),
	})
}

// StatusFor returns the HTTP status used for a domain code.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthorized:
		return http.StatusForbidden
	case domain.CodeInvalidInput, domain.CodeInvalidReservePrice, domain.CodeInvalidFeeRate:
		return http.StatusBadRequest
	case domain.CodeBidTooLow, domain.CodeReservePriceNotMet:
		return http.StatusUnprocessableEntity
	case domain.CodeFeeOverflow:
		return http.StatusUnprocessableEntity
	case domain.CodeInvalidTransition, domain.CodeNotFunded, domain.CodeAuctionNotActive,
		domain.CodeCannotCancelWithBids, domain.CodeAlreadySettled, domain.CodeAlreadyLeader,
		domain.CodeAlreadyFunded, domain.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsDomainError reports whether err carries a domain code.
func IsDomainError(err error) bool {
	var de *domain.Error
	return errors.As(err, &de)
}

func write(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get("X-Trace-ID")
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
