package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/service"
)

type AuctionHandler struct {
	auctions *service.AuctionService
}

func NewAuctionHandler(auctions *service.AuctionService) *AuctionHandler {
	return &AuctionHandler{auctions: auctions}
}

type createAuctionRequest struct {
	Asset           domain.AssetRef `json:"asset"`
	StartingPrice   domain.Amount   `json:"starting_price"`
	ReservePrice    domain.Amount   `json:"reserve_price"`
	BuyNowPrice     *domain.Amount  `json:"buy_now_price,omitempty"`
	StartTime       int64           `json:"start_time,omitempty"`
	DurationSeconds int64           `json:"duration_seconds"`
	FeeBps          uint32          `json:"fee_bps"`
}

// maxDurationSeconds is the largest duration representable as a time.Duration.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Create handles POST /v1/auctions. The caller becomes the seller.
func (h *AuctionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DurationSeconds < 0 || req.DurationSeconds > maxDurationSeconds {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-duration", "duration_seconds is out of range")
		return
	}
	a, err := h.auctions.CreateAuction(r.Context(), service.CreateAuctionRequest{
		Seller:        caller(r),
		Asset:         req.Asset,
		StartingPrice: req.StartingPrice,
		ReservePrice:  req.ReservePrice,
		BuyNowPrice:   req.BuyNowPrice,
		StartTime:     req.StartTime,
		Duration:      time.Duration(req.DurationSeconds) * time.Second,
		FeeBps:        req.FeeBps,
	})
	if err != nil {
		RespondDomainError(w, r, "create auction", err)
		return
	}
	RespondJSON(w, http.StatusCreated, a)
}

// Get handles GET /v1/auctions/{id}.
func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "get auction", err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

type bidRequest struct {
	Amount *domain.Amount `json:"amount,omitempty"`
}

// PlaceBid handles POST /v1/auctions/{id}/bids.
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-amount", "amount is required")
		return
	}
	a, err := h.auctions.PlaceBid(r.Context(), id, caller(r), *req.Amount)
	if err != nil {
		RespondDomainError(w, r, "place bid", err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

// BuyNow handles POST /v1/auctions/{id}/buy-now. The amount is optional and,
// when present, must equal the buy-now price.
func (h *AuctionHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bidRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.auctions.BuyNow(r.Context(), id, caller(r), req.Amount)
	if err != nil {
		RespondDomainError(w, r, "buy now", err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

// End handles POST /v1/auctions/{id}/end.
func (h *AuctionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.auctions.EndAuction(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "end auction", err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

// Settle handles POST /v1/auctions/{id}/settle.
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	dist, err := h.auctions.SettleAuction(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "settle auction", err)
		return
	}
	RespondJSON(w, http.StatusOK, dist)
}

// Cancel handles POST /v1/auctions/{id}/cancel.
func (h *AuctionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.auctions.CancelAuction(r.Context(), id, caller(r))
	if err != nil {
		RespondDomainError(w, r, "cancel auction", err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}

// Bids handles GET /v1/auctions/{id}/bids.
func (h *AuctionHandler) Bids(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	bids, err := h.auctions.GetBidHistory(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "bid history", err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"auction_id": id,
		"bids":       bids,
		"count":      len(bids),
	})
}

// HighestBid handles GET /v1/auctions/{id}/highest-bid.
func (h *AuctionHandler) HighestBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	hb, err := h.auctions.GetHighestBid(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "highest bid", err)
		return
	}
	RespondJSON(w, http.StatusOK, hb)
}
