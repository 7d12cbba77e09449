package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	"github.com/0xkuwabatake/normies-membership/internal/clock"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Lifecycle *config.LifecycleConfigHolder
	Registry  assetdomain.Registry
	TierRepo  tierdomain.Repository
	FeeSvc    feedomain.Service
	EventsSvc eventsdomain.Service
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	lifecycle *config.LifecycleConfigHolder
	registry  assetdomain.Registry
	tierRepo  tierdomain.Repository
	feeSvc    feedomain.Service
	eventsSvc eventsdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p ServiceParam) assetdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("asset.service"),
		clock:     p.Clock,
		lifecycle: p.Lifecycle,
		registry:  p.Registry,
		tierRepo:  p.TierRepo,
		feeSvc:    p.FeeSvc,
		eventsSvc: p.EventsSvc,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, assetID int64) (assetdomain.View, error) {
	asset, tier, err := s.load(ctx, assetID)
	if err != nil {
		return assetdomain.View{}, err
	}

	now := s.clock.Now().Unix()
	start, end := assetdomain.Window(tier, asset, now)
	return assetdomain.View{
		ID:          asset.ID,
		Owner:       asset.Owner,
		TierID:      asset.TierID,
		WindowStart: start,
		WindowEnd:   end,
		Status:      assetdomain.Status(tier, asset, now),
		FeeOwed:     assetdomain.FeeOwed(tier, s.flatFee(ctx, tier.ID), now),
	}, nil
}

func (s *Service) GetUnchecked(ctx context.Context, assetID int64) (assetdomain.View, error) {
	asset, tier, err := s.load(ctx, assetID)
	if err != nil {
		return assetdomain.View{}, err
	}

	now := s.clock.Now().Unix()
	start, end := assetdomain.UncheckedWindow(tier, asset)
	return assetdomain.View{
		ID:          asset.ID,
		Owner:       asset.Owner,
		TierID:      asset.TierID,
		WindowStart: start,
		WindowEnd:   end,
		Status:      assetdomain.Status(tier, asset, now),
		FeeOwed:     assetdomain.FeeOwed(tier, s.flatFee(ctx, tier.ID), now),
	}, nil
}

// Renew resets the asset's window to begin now, at the tier's current
// duration, against payment of the quoted fee. The snapshot update and the
// renewal events commit together or not at all.
func (s *Service) Renew(ctx context.Context, req assetdomain.RenewRequest) (assetdomain.View, error) {
	if req.AssetID <= 0 {
		return assetdomain.View{}, assetdomain.ErrAssetNotFound
	}

	lcfg := s.lifecycle.Get()
	now := s.clock.Now().Unix()

	var out assetdomain.View
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asset, err := s.registry.FindByIDForUpdate(ctx, tx, req.AssetID)
		if err != nil {
			return err
		}
		if asset == nil {
			return assetdomain.ErrAssetNotFound
		}

		tier, err := s.tierRepo.FindByID(ctx, tx, asset.TierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return tierdomain.ErrTierNotFound
		}

		flatFee, err := s.feeSvc.Fee(ctx, tier.ID, feedomain.VariantFlat)
		if err != nil {
			return err
		}

		fee, err := renewalFee(*tier, *asset, flatFee, now, lcfg)
		if err != nil {
			return err
		}
		if req.Payment < fee {
			return assetdomain.ErrInsufficientPayment
		}

		oldStart, oldEnd := assetdomain.Window(*tier, *asset, now)

		if err := s.registry.UpdateSnapshot(ctx, tx, asset.ID, now, tier.Duration); err != nil {
			return err
		}

		renewed := *asset
		renewed.CreatedTS = now
		renewed.CachedDuration = tier.Duration
		newStart, newEnd := assetdomain.Window(*tier, renewed, now)

		if err := s.eventsSvc.Emit(ctx, tx, eventsdomain.EventAssetRenewed, map[string]any{
			"asset_id":         asset.ID,
			"tier_id":          tier.ID,
			"fee":              fee,
			"old_window_start": oldStart,
			"old_window_end":   oldEnd,
			"new_window_start": newStart,
			"new_window_end":   newEnd,
		}); err != nil {
			return err
		}
		if err := s.eventsSvc.Emit(ctx, tx, eventsdomain.EventAssetMetadataRefresh, map[string]any{
			"asset_id": asset.ID,
		}); err != nil {
			return err
		}

		out = assetdomain.View{
			ID:          renewed.ID,
			Owner:       renewed.Owner,
			TierID:      renewed.TierID,
			WindowStart: newStart,
			WindowEnd:   newEnd,
			Status:      assetdomain.Status(*tier, renewed, now),
			FeeOwed:     assetdomain.FeeOwed(*tier, flatFee, now),
		}
		return nil
	})
	if err != nil {
		return assetdomain.View{}, err
	}

	s.audit(ctx, "asset.renew", out.ID, map[string]any{
		"tier_id":      out.TierID,
		"window_start": out.WindowStart,
		"window_end":   out.WindowEnd,
		"payment":      req.Payment,
	})
	return out, nil
}

// Mint creates one asset for owner under tierID. The tier must carry a
// configured, non-zero duration; the snapshot starts at now.
func (s *Service) Mint(ctx context.Context, req assetdomain.MintRequest) (assetdomain.View, error) {
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return assetdomain.View{}, assetdomain.ErrInvalidOwner
	}
	if req.TierID <= 0 {
		return assetdomain.View{}, tierdomain.ErrInvalidTierID
	}

	now := s.clock.Now().Unix()

	var out assetdomain.View
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.mintableTier(ctx, tx, req.TierID)
		if err != nil {
			return err
		}

		asset := assetdomain.Asset{
			Owner:          owner,
			TierID:         tier.ID,
			CreatedTS:      now,
			CachedDuration: tier.Duration,
			CreatedAt:      time.Unix(now, 0).UTC(),
			UpdatedAt:      time.Unix(now, 0).UTC(),
		}
		if err := s.registry.Create(ctx, tx, &asset); err != nil {
			return err
		}

		if err := s.eventsSvc.Emit(ctx, tx, eventsdomain.EventAssetMetadataRefresh, map[string]any{
			"asset_id": asset.ID,
		}); err != nil {
			return err
		}

		start, end := assetdomain.Window(*tier, asset, now)
		out = assetdomain.View{
			ID:          asset.ID,
			Owner:       asset.Owner,
			TierID:      asset.TierID,
			WindowStart: start,
			WindowEnd:   end,
			Status:      assetdomain.Status(*tier, asset, now),
		}
		return nil
	})
	if err != nil {
		return assetdomain.View{}, err
	}

	s.audit(ctx, "asset.mint", out.ID, map[string]any{"tier_id": out.TierID, "owner": out.Owner})
	return out, nil
}

// BatchMint mints one asset per owner, bounded by the configured batch size,
// all-or-nothing. One range refresh event covers the contiguous new ids.
func (s *Service) BatchMint(ctx context.Context, req assetdomain.BatchMintRequest) (assetdomain.BatchMintResponse, error) {
	lcfg := s.lifecycle.Get()
	if len(req.Owners) == 0 {
		return assetdomain.BatchMintResponse{}, assetdomain.ErrInvalidOwner
	}
	if len(req.Owners) > lcfg.MaxBatchSize {
		return assetdomain.BatchMintResponse{}, assetdomain.ErrBatchTooLarge
	}
	if req.TierID <= 0 {
		return assetdomain.BatchMintResponse{}, tierdomain.ErrInvalidTierID
	}

	now := s.clock.Now().Unix()

	var resp assetdomain.BatchMintResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.mintableTier(ctx, tx, req.TierID)
		if err != nil {
			return err
		}

		for i, rawOwner := range req.Owners {
			owner := strings.TrimSpace(rawOwner)
			if owner == "" {
				return assetdomain.ErrInvalidOwner
			}

			asset := assetdomain.Asset{
				Owner:          owner,
				TierID:         tier.ID,
				CreatedTS:      now,
				CachedDuration: tier.Duration,
				CreatedAt:      time.Unix(now, 0).UTC(),
				UpdatedAt:      time.Unix(now, 0).UTC(),
			}
			if err := s.registry.Create(ctx, tx, &asset); err != nil {
				return err
			}
			if i == 0 {
				resp.FromID = asset.ID
			}
			resp.ToID = asset.ID
		}

		return s.eventsSvc.Emit(ctx, tx, eventsdomain.EventAssetMetadataRefreshSpan, map[string]any{
			"from_asset_id": resp.FromID,
			"to_asset_id":   resp.ToID,
		})
	})
	if err != nil {
		return assetdomain.BatchMintResponse{}, err
	}

	s.audit(ctx, "asset.batch_mint", resp.FromID, map[string]any{
		"tier_id": req.TierID,
		"from_id": resp.FromID,
		"to_id":   resp.ToID,
		"count":   len(req.Owners),
	})
	return resp, nil
}

// Refresh emits a metadata refresh notification over a contiguous id range.
func (s *Service) Refresh(ctx context.Context, req assetdomain.RefreshRequest) error {
	if req.FromID <= 0 || req.ToID < req.FromID {
		return assetdomain.ErrInvalidRange
	}

	if req.FromID == req.ToID {
		exists, err := s.registry.Exists(ctx, s.db, req.FromID)
		if err != nil {
			return err
		}
		if !exists {
			return assetdomain.ErrAssetNotFound
		}
		return s.eventsSvc.Emit(ctx, s.db, eventsdomain.EventAssetMetadataRefresh, map[string]any{
			"asset_id": req.FromID,
		})
	}

	return s.eventsSvc.Emit(ctx, s.db, eventsdomain.EventAssetMetadataRefreshSpan, map[string]any{
		"from_asset_id": req.FromID,
		"to_asset_id":   req.ToID,
	})
}

func (s *Service) load(ctx context.Context, assetID int64) (assetdomain.Asset, tierdomain.Tier, error) {
	if assetID <= 0 {
		return assetdomain.Asset{}, tierdomain.Tier{}, assetdomain.ErrAssetNotFound
	}

	asset, err := s.registry.FindByID(ctx, s.db, assetID)
	if err != nil {
		return assetdomain.Asset{}, tierdomain.Tier{}, err
	}
	if asset == nil {
		return assetdomain.Asset{}, tierdomain.Tier{}, assetdomain.ErrAssetNotFound
	}

	tier, err := s.tierRepo.FindByID(ctx, s.db, asset.TierID)
	if err != nil {
		return assetdomain.Asset{}, tierdomain.Tier{}, err
	}
	if tier == nil {
		return assetdomain.Asset{}, tierdomain.Tier{}, tierdomain.ErrTierNotFound
	}
	return *asset, *tier, nil
}

func (s *Service) mintableTier(ctx context.Context, tx *gorm.DB, tierID int64) (*tierdomain.Tier, error) {
	tier, err := s.tierRepo.FindByID(ctx, tx, tierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, tierdomain.ErrTierNotFound
	}
	if tier.Duration == 0 {
		return nil, assetdomain.ErrTierNotConfigured
	}
	return tier, nil
}

// flatFee reads the flat fee for quoting; an unset fee quotes as zero.
func (s *Service) flatFee(ctx context.Context, tierID int64) uint64 {
	fee, err := s.feeSvc.Fee(ctx, tierID, feedomain.VariantFlat)
	if err != nil {
		if !errors.Is(err, feedomain.ErrUndefinedFee) {
			s.log.Warn("flat fee lookup failed", zap.Int64("tier_id", tierID), zap.Error(err))
		}
		return 0
	}
	return fee
}

// renewalFee enforces the renewal timing rules and returns the fee due.
//
// A Live tier accepts a renewal from the early window before the asset's
// window end onward, at the full flat fee. A Paused or Ending tier accepts it
// only between that point and the late cutoff before its boundary, at a fee
// prorated to the remainder; once the boundary has arrived the renewal is
// permanently disabled, which is distinct from a zero fee.
func renewalFee(tier tierdomain.Tier, asset assetdomain.Asset, flatFee uint64, now int64, lcfg config.LifecycleConfig) (uint64, error) {
	_, windowEnd := assetdomain.UncheckedWindow(tier, asset)
	earliest := windowEnd - lcfg.EarlyRenewalWindowSeconds

	switch tier.Status {
	case tierdomain.TierStatusLive:
		if now < earliest {
			return 0, tierdomain.ErrIllegalTiming
		}
		return flatFee, nil

	case tierdomain.TierStatusPaused, tierdomain.TierStatusEnding:
		boundary := tier.Boundary()
		remainder := boundary - now
		if remainder <= 0 {
			return 0, assetdomain.ErrUnableToUpdate
		}
		if now < earliest || now > boundary-lcfg.LateRenewalCutoffSeconds {
			return 0, tierdomain.ErrIllegalTiming
		}
		return assetdomain.FeeOwed(tier, flatFee, now), nil

	default:
		return 0, tierdomain.ErrIllegalStateTransition
	}
}

func (s *Service) audit(ctx context.Context, action string, assetID int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, "asset", strconv.FormatInt(assetID, 10), metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
