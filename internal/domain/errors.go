package domain

import "errors"

// Code is the numeric error taxonomy exposed across the API boundary.
// Published values must never be renumbered.
type Code uint32

const (
	CodeUnknown              Code = 0
	CodeNotFound             Code = 1
	CodeInvalidTransition    Code = 2
	CodeNotFunded            Code = 3
	CodeInvalidInput         Code = 4
	CodeAuctionNotActive     Code = 10
	CodeBidTooLow            Code = 11
	CodeReservePriceNotMet   Code = 12
	CodeCannotCancelWithBids Code = 13
	CodeFeeOverflow          Code = 14
	CodeAlreadySettled       Code = 15
	CodeUnauthorized         Code = 16
	CodeInvalidReservePrice  Code = 17
	CodeAlreadyLeader        Code = 18
	CodeAlreadyFunded        Code = 19
	CodeInvalidFeeRate       Code = 20
	CodeConflict             Code = 21
)

var codeNames = map[Code]string{
	CodeNotFound:             "not-found",
	CodeInvalidTransition:    "invalid-transition",
	CodeNotFunded:            "not-funded",
	CodeInvalidInput:         "invalid-input",
	CodeAuctionNotActive:     "auction-not-active",
	CodeBidTooLow:            "bid-too-low",
	CodeReservePriceNotMet:   "reserve-price-not-met",
	CodeCannotCancelWithBids: "cannot-cancel-with-bids",
	CodeFeeOverflow:          "fee-overflow",
	CodeAlreadySettled:       "already-settled",
	CodeUnauthorized:         "unauthorized",
	CodeInvalidReservePrice:  "invalid-reserve-price",
	CodeAlreadyLeader:        "already-leader",
	CodeAlreadyFunded:        "already-funded",
	CodeInvalidFeeRate:       "invalid-fee-rate",
	CodeConflict:             "conflict",
}

// Slug returns the kebab-case name used in problem type URLs.
func (c Code) Slug() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "internal"
}

// Error is a coded domain failure. Sentinels below are matched with errors.Is
// and wrapped with fmt.Errorf for context.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound             = &Error{Code: CodeNotFound, Msg: "record not found"}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition, Msg: "invalid state transition"}
	ErrNotFunded            = &Error{Code: CodeNotFunded, Msg: "record is not funded"}
	ErrInvalidInput         = &Error{Code: CodeInvalidInput, Msg: "invalid input"}
	ErrAuctionNotActive     = &Error{Code: CodeAuctionNotActive, Msg: "auction is not active"}
	ErrBidTooLow            = &Error{Code: CodeBidTooLow, Msg: "bid too low"}
	ErrReservePriceNotMet   = &Error{Code: CodeReservePriceNotMet, Msg: "reserve price not met"}
	ErrCannotCancelWithBids = &Error{Code: CodeCannotCancelWithBids, Msg: "cannot cancel auction with bids"}
	ErrFeeOverflow          = &Error{Code: CodeFeeOverflow, Msg: "fee arithmetic overflow"}
	ErrAlreadySettled       = &Error{Code: CodeAlreadySettled, Msg: "already settled"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Msg: "unauthorized"}
	ErrInvalidReservePrice  = &Error{Code: CodeInvalidReservePrice, Msg: "reserve price below starting price"}
	ErrAlreadyLeader        = &Error{Code: CodeAlreadyLeader, Msg: "bidder already leads the auction"}
	ErrAlreadyFunded        = &Error{Code: CodeAlreadyFunded, Msg: "record already funded"}
	ErrInvalidFeeRate       = &Error{Code: CodeInvalidFeeRate, Msg: "fee rate exceeds 10000 bps"}
	ErrConflict             = &Error{Code: CodeConflict, Msg: "concurrent modification"}
)

// CodeOf extracts the stable code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}
