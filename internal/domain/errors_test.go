package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesAreStable(t *testing.T) {
	published := map[Code]uint32{
		CodeNotFound:             1,
		CodeInvalidTransition:    2,
		CodeNotFunded:            3,
		CodeAuctionNotActive:     10,
		CodeBidTooLow:            11,
		CodeReservePriceNotMet:   12,
		CodeCannotCancelWithBids: 13,
		CodeFeeOverflow:          14,
		CodeAlreadySettled:       15,
		CodeUnauthorized:         16,
	}
	for code, want := range published {
		assert.Equal(t, want, uint32(code), code.Slug())
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("settle escrow 7: %w", ErrAlreadySettled)
	assert.Equal(t, CodeAlreadySettled, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrAlreadySettled))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, "internal", CodeUnknown.Slug())
}
