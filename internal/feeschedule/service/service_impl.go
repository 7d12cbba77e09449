package service

import (
	"context"
	"strconv"
	"strings"
	"time"

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
	Repo      feedomain.Repository
	TierRepo  tierdomain.Repository
	EventsSvc eventsdomain.Service
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	lifecycle *config.LifecycleConfigHolder
	repo      feedomain.Repository
	tierRepo  tierdomain.Repository
	eventsSvc eventsdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p ServiceParam) feedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("feeschedule.service"),
		clock:     p.Clock,
		lifecycle: p.Lifecycle,
		repo:      p.Repo,
		tierRepo:  p.TierRepo,
		eventsSvc: p.EventsSvc,
		auditSvc:  p.AuditSvc,
	}
}

// SetFee stores a fee magnitude for (tier, variant). Legality mirrors the
// tier state machine's parameter-freeze rules: inside an ongoing Live period
// the schedule is frozen until the reinit window; once Paused or Ending it
// thaws only after the boundary has passed.
func (s *Service) SetFee(ctx context.Context, req feedomain.SetFeeRequest) (feedomain.FeeEntry, error) {
	if req.TierID <= 0 {
		return feedomain.FeeEntry{}, tierdomain.ErrInvalidTierID
	}
	variant := strings.TrimSpace(strings.ToLower(req.Variant))
	if variant == "" {
		return feedomain.FeeEntry{}, feedomain.ErrInvalidVariant
	}

	lcfg := s.lifecycle.Get()
	if req.Amount > lcfg.MaxFeeAmount {
		return feedomain.FeeEntry{}, tierdomain.ErrInvalidMagnitude
	}

	now := s.clock.Now().Unix()

	var out feedomain.FeeEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.tierRepo.FindByID(ctx, tx, req.TierID)
		if err != nil {
			return err
		}
		// An unconfigured tier is NotLive: always settable.
		if tier != nil {
			if err := tierdomain.ParamsSettable(*tier, now, lcfg.ReinitWindowSeconds); err != nil {
				return err
			}
		}

		previous, err := s.repo.Find(ctx, tx, req.TierID, variant)
		if err != nil {
			return err
		}

		entry := feedomain.FeeEntry{
			TierID:    req.TierID,
			Variant:   variant,
			Amount:    req.Amount,
			CreatedAt: time.Unix(now, 0).UTC(),
			UpdatedAt: time.Unix(now, 0).UTC(),
		}
		if err := s.repo.Upsert(ctx, tx, &entry); err != nil {
			return err
		}

		var oldAmount uint64
		if previous != nil {
			oldAmount = previous.Amount
		}
		if err := s.eventsSvc.Emit(ctx, tx, eventsdomain.EventFeeChanged, map[string]any{
			"tier_id":    req.TierID,
			"variant":    variant,
			"old_amount": oldAmount,
			"new_amount": req.Amount,
		}); err != nil {
			return err
		}

		out = entry
		return nil
	})
	if err != nil {
		return feedomain.FeeEntry{}, err
	}

	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, "fee.set", "fee", strconv.FormatInt(req.TierID, 10), map[string]any{
			"variant": variant,
			"amount":  req.Amount,
		}); err != nil {
			s.log.Warn("audit write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) ListByTier(ctx context.Context, tierID int64) ([]feedomain.FeeEntry, error) {
	if tierID <= 0 {
		return nil, tierdomain.ErrInvalidTierID
	}
	return s.repo.ListByTier(ctx, s.db, tierID)
}

func (s *Service) Fee(ctx context.Context, tierID int64, variant string) (uint64, error) {
	if tierID <= 0 {
		return 0, tierdomain.ErrInvalidTierID
	}
	variant = strings.TrimSpace(strings.ToLower(variant))
	if variant == "" {
		return 0, feedomain.ErrInvalidVariant
	}

	entry, err := s.repo.Find(ctx, s.db, tierID, variant)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, feedomain.ErrUndefinedFee
	}
	return entry.Amount, nil
}

func (s *Service) DiscountedFee(ctx context.Context, tierID int64, variant string, bps uint64) (uint64, error) {
	base, err := s.Fee(ctx, tierID, variant)
	if err != nil {
		return 0, err
	}
	return feedomain.Discounted(base, bps)
}
