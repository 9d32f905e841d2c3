package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/service"
)

// CustodyHandler serves one custody kind; the router mounts one instance for
// escrows and one for orders.
type CustodyHandler struct {
	custody *service.CustodyService
	kind    domain.RecordKind
}

func NewCustodyHandler(custody *service.CustodyService, kind domain.RecordKind) *CustodyHandler {
	return &CustodyHandler{custody: custody, kind: kind}
}

type createCustodyRequest struct {
	ID         uint64          `json:"id,omitempty"`
	Seller     domain.Identity `json:"seller"`
	Asset      domain.AssetRef `json:"asset"`
	Amount     domain.Amount   `json:"amount"`
	CategoryID uint32          `json:"category_id,omitempty"`
}

// Create handles POST /v1/{escrows|orders}. The caller becomes the buyer.
func (h *CustodyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCustodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := service.CreateCustodyRequest{
		ID:         req.ID,
		Buyer:      caller(r),
		Seller:     req.Seller,
		Asset:      req.Asset,
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
	}

	var (
		rec *domain.CustodyRecord
		err error
	)
	if h.kind == domain.KindOrder {
		rec, err = h.custody.CreateOrder(r.Context(), in)
	} else {
		rec, err = h.custody.CreateEscrow(r.Context(), in)
	}
	if err != nil {
		RespondDomainError(w, r, "create "+string(h.kind), err)
		return
	}
	RespondJSON(w, http.StatusCreated, rec)
}

// Get handles GET /v1/{escrows|orders}/{id}.
func (h *CustodyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.custody.GetRecord(r.Context(), h.kind, id)
	if err != nil {
		RespondDomainError(w, r, "get "+string(h.kind), err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// Fund handles POST /v1/{escrows|orders}/{id}/fund.
func (h *CustodyHandler) Fund(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "fund", func(id uint64) (any, error) {
		return h.custody.FundEscrow(r.Context(), h.kind, id, caller(r))
	})
}

type transitionRequest struct {
	State domain.State `json:"state"`
}

// Transition handles POST /v1/{escrows|orders}/{id}/transition.
func (h *CustodyHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target := domain.State(strings.ToUpper(strings.TrimSpace(string(req.State))))
	if target == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-state", "state is required")
		return
	}
	rec, err := h.custody.TransitionStatus(r.Context(), h.kind, id, caller(r), target)
	if err != nil {
		RespondDomainError(w, r, "transition "+string(h.kind), err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// Dispute handles POST /v1/{escrows|orders}/{id}/dispute.
func (h *CustodyHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "dispute", func(id uint64) (any, error) {
		return h.custody.Dispute(r.Context(), h.kind, id, caller(r))
	})
}

// Release handles POST /v1/{escrows|orders}/{id}/release.
func (h *CustodyHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "release", func(id uint64) (any, error) {
		return h.custody.Release(r.Context(), h.kind, id, caller(r))
	})
}

// Refund handles POST /v1/{escrows|orders}/{id}/refund.
func (h *CustodyHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "refund", func(id uint64) (any, error) {
		return h.custody.Refund(r.Context(), h.kind, id, caller(r))
	})
}

// Settle handles POST /v1/{escrows|orders}/{id}/settle.
func (h *CustodyHandler) Settle(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "settle", func(id uint64) (any, error) {
		return h.custody.Settle(r.Context(), h.kind, id, caller(r))
	})
}

type shipRequest struct {
	ShippingRef string `json:"shipping_ref"`
}

// Ship handles POST /v1/orders/{id}/ship.
func (h *CustodyHandler) Ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h.mutate(w, r, "ship", func(id uint64) (any, error) {
		return h.custody.Ship(r.Context(), id, caller(r), req.ShippingRef)
	})
}

// Deliver handles POST /v1/orders/{id}/deliver.
func (h *CustodyHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "deliver", func(id uint64) (any, error) {
		return h.custody.Deliver(r.Context(), id, caller(r))
	})
}

func (h *CustodyHandler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(id uint64) (any, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := fn(id)
	if err != nil {
		RespondDomainError(w, r, op+" "+string(h.kind), err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}
