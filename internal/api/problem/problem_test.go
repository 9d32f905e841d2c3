package problem

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorCarriesDomainCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/auctions/1/bids", nil)
	req.Header.Set("X-Trace-ID", "trace-1")
	w := httptest.NewRecorder()

	WriteError(w, req, fmt.Errorf("place bid: %w", domain.ErrBidTooLow))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var body Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint32(11), body.Code)
	assert.Equal(t, Type("custody/bid-too-low"), body.Type)
	assert.Equal(t, "/v1/auctions/1/bids", body.Instance)
	assert.Equal(t, "trace-1", body.RequestID)
}

func TestWriteErrorHidesUnknownFailures(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("pq: connection reset"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unexpected server error", body.Detail)
	assert.Zero(t, body.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.Code]int{
		domain.CodeNotFound:             http.StatusNotFound,
		domain.CodeUnauthorized:         http.StatusForbidden,
		domain.CodeInvalidInput:         http.StatusBadRequest,
		domain.CodeInvalidTransition:    http.StatusConflict,
		domain.CodeCannotCancelWithBids: http.StatusConflict,
		domain.CodeFeeOverflow:          http.StatusUnprocessableEntity,
		domain.CodeUnknown:              http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, StatusFor(code), code.Slug())
	}
}
