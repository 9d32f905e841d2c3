package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/fees"
	"github.com/ayo6706/custody-engine/internal/repository"
	"go.uber.org/zap"
)

// FeeService owns the versioned fee configuration and the fee accumulator.
type FeeService struct {
	core *core
}

// Initialize writes the first configuration. It is a no-op returning the
// stored record when the engine was already initialized.
func (s *FeeService) Initialize(ctx context.Context, cfg domain.FeeConfig) (*domain.FeeConfig, error) {
	if cfg.Admin == "" {
		return nil, fmt.Errorf("%w: admin is required", domain.ErrInvalidInput)
	}
	if err := fees.ValidateRate(cfg.BaseFeeBps); err != nil {
		return nil, err
	}
	var out domain.FeeConfig
	err := s.core.run(ctx, func(t *txn) error {
		found, err := repository.TryGet(ctx, t.tx, feeConfigKey, &out)
		if err != nil || found {
			return err
		}
		out = cfg
		out.Version = 1
		out.UpdatedAt = t.now
		if err := repository.Put(ctx, t.tx, feeConfigKey, &out); err != nil {
			return err
		}
		if err := repository.Put(ctx, t.tx, feeTotalsKey, domain.FeeTotals{}); err != nil {
			return err
		}
		t.emit(events.Event{Type: events.TypeConfigUpdated, RecordID: out.Version, Actor: out.Admin})
		t.onCommit(func() {
			zap.L().Info("fee configuration initialized", zap.String("admin", string(out.Admin)), zap.Uint32("base_fee_bps", out.BaseFeeBps))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *FeeService) GetConfig(ctx context.Context) (*domain.FeeConfig, error) {
	var cfg *domain.FeeConfig
	err := s.core.run(ctx, func(t *txn) error {
		var err error
		cfg, err = loadFeeConfig(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateFeeConfigRequest carries the fields to change; nil fields are kept.
type UpdateFeeConfigRequest struct {
	BaseFeeBps   *uint32
	FeeCollector *domain.Identity
	Arbitrator   *domain.Identity
	Admin        *domain.Identity
}

// UpdateConfig applies an admin-authorized change and bumps the version.
func (s *FeeService) UpdateConfig(ctx context.Context, caller domain.Identity, req UpdateFeeConfigRequest) (*domain.FeeConfig, error) {
	if req.BaseFeeBps != nil {
		if err := fees.ValidateRate(*req.BaseFeeBps); err != nil {
			return nil, err
		}
	}
	if req.Admin != nil && *req.Admin == "" {
		return nil, fmt.Errorf("%w: admin cannot be cleared", domain.ErrInvalidInput)
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}

	var cfg *domain.FeeConfig
	err := s.core.run(ctx, func(t *txn) error {
		var err error
		if cfg, err = s.loadAsAdmin(ctx, t, caller); err != nil {
			return err
		}
		if req.BaseFeeBps != nil {
			cfg.BaseFeeBps = *req.BaseFeeBps
		}
		if req.FeeCollector != nil {
			cfg.FeeCollector = *req.FeeCollector
		}
		if req.Arbitrator != nil {
			cfg.Arbitrator = *req.Arbitrator
		}
		if req.Admin != nil {
			cfg.Admin = *req.Admin
		}
		cfg.Version++
		cfg.UpdatedAt = t.now
		if err := repository.Put(ctx, t.tx, feeConfigKey, cfg); err != nil {
			return err
		}
		t.emit(events.Event{Type: events.TypeConfigUpdated, RecordID: cfg.Version, Actor: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetCategoryFee overrides the base rate for records in categoryID.
func (s *FeeService) SetCategoryFee(ctx context.Context, caller domain.Identity, categoryID uint32, rateBps uint32) (*domain.CategoryFee, error) {
	if categoryID == 0 {
		return nil, fmt.Errorf("%w: category id must be positive", domain.ErrInvalidInput)
	}
	if err := fees.ValidateRate(rateBps); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	cat := &domain.CategoryFee{CategoryID: categoryID, RateBps: rateBps}
	err := s.core.run(ctx, func(t *txn) error {
		if _, err := s.loadAsAdmin(ctx, t, caller); err != nil {
			return err
		}
		if err := repository.Put(ctx, t.tx, categoryKey(categoryID), cat); err != nil {
			return err
		}
		t.emit(events.Event{Type: events.TypeCategoryUpdated, RecordID: uint64(categoryID), Actor: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// GetCategoryFee returns the override for categoryID, or ErrNotFound.
func (s *FeeService) GetCategoryFee(ctx context.Context, categoryID uint32) (*domain.CategoryFee, error) {
	var cat domain.CategoryFee
	err := s.core.run(ctx, func(t *txn) error {
		return repository.Get(ctx, t.tx, categoryKey(categoryID), &cat)
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// TotalFees returns everything accrued since initialization.
func (s *FeeService) TotalFees(ctx context.Context) (domain.Amount, error) {
	var totals domain.FeeTotals
	err := s.core.run(ctx, func(t *txn) error {
		_, err := repository.TryGet(ctx, t.tx, feeTotalsKey, &totals)
		return err
	})
	return totals.TotalCollected, err
}

func (s *FeeService) loadAsAdmin(ctx context.Context, t *txn, caller domain.Identity) (*domain.FeeConfig, error) {
	cfg, err := loadFeeConfig(ctx, t)
	if err != nil {
		return nil, err
	}
	if cfg.Admin != caller {
		return nil, fmt.Errorf("%w: %s is not the fee admin", domain.ErrUnauthorized, caller)
	}
	return cfg, nil
}
