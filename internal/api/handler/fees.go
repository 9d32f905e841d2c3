package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/service"
	"github.com/go-chi/chi/v5"
)

// FeeHandler exposes the fee accumulator and the admin configuration.
type FeeHandler struct {
	fees *service.FeeService
}

func NewFeeHandler(fees *service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// TotalFees handles GET /v1/fees/total.
func (h *FeeHandler) TotalFees(w http.ResponseWriter, r *http.Request) {
	total, err := h.fees.TotalFees(r.Context())
	if err != nil {
		RespondDomainError(w, r, "total fees", err)
		return
	}
	RespondJSON(w, http.StatusOK, domain.FeeTotals{TotalCollected: total})
}

// GetConfig handles GET /v1/admin/fees.
func (h *FeeHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.fees.GetConfig(r.Context())
	if err != nil {
		RespondDomainError(w, r, "get fee config", err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

type updateFeeConfigRequest struct {
	BaseFeeBps   *uint32          `json:"base_fee_bps,omitempty"`
	FeeCollector *domain.Identity `json:"fee_collector,omitempty"`
	Arbitrator   *domain.Identity `json:"arbitrator,omitempty"`
	Admin        *domain.Identity `json:"admin,omitempty"`
}

// UpdateConfig handles PUT /v1/admin/fees.
func (h *FeeHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateFeeConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.fees.UpdateConfig(r.Context(), caller(r), service.UpdateFeeConfigRequest{
		BaseFeeBps:   req.BaseFeeBps,
		FeeCollector: req.FeeCollector,
		Arbitrator:   req.Arbitrator,
		Admin:        req.Admin,
	})
	if err != nil {
		RespondDomainError(w, r, "update fee config", err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

type categoryFeeRequest struct {
	RateBps uint32 `json:"rate_bps"`
}

// SetCategoryFee handles PUT /v1/admin/categories/{id}/fee.
func (h *FeeHandler) SetCategoryFee(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}
	var req categoryFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cat, err := h.fees.SetCategoryFee(r.Context(), caller(r), id, req.RateBps)
	if err != nil {
		RespondDomainError(w, r, "set category fee", err)
		return
	}
	RespondJSON(w, http.StatusOK, cat)
}

// GetCategoryFee handles GET /v1/categories/{id}/fee.
func (h *FeeHandler) GetCategoryFee(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}
	cat, err := h.fees.GetCategoryFee(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, "get category fee", err)
		return
	}
	RespondJSON(w, http.StatusOK, cat)
}

func categoryID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-category", "invalid category id")
		return 0, false
	}
	return uint32(id), true
}
