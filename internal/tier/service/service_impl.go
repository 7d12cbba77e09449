package service

import (
	"context"
	"strconv"
	"time"

	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	"github.com/0xkuwabatake/normies-membership/internal/clock"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
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
	Repo      tierdomain.Repository
	EventsSvc eventsdomain.Service
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	lifecycle *config.LifecycleConfigHolder
	repo      tierdomain.Repository
	eventsSvc eventsdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p ServiceParam) tierdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("tier.service"),
		clock:     p.Clock,
		lifecycle: p.Lifecycle,
		repo:      p.Repo,
		eventsSvc: p.EventsSvc,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context) ([]tierdomain.Tier, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Get(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	if tierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	tier, err := s.repo.FindByID(ctx, s.db, tierID)
	if err != nil {
		return tierdomain.Tier{}, err
	}
	if tier == nil {
		return tierdomain.Tier{}, tierdomain.ErrTierNotFound
	}
	return *tier, nil
}

// SetDuration configures or re-configures a tier's period length. The first
// call for an unknown tier id creates the tier and moves it out of NotLive.
func (s *Service) SetDuration(ctx context.Context, req tierdomain.SetDurationRequest) (tierdomain.Tier, error) {
	if req.TierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}

	lcfg := s.lifecycle.Get()
	if req.Duration < lcfg.MinTierDurationSeconds {
		return tierdomain.Tier{}, tierdomain.ErrInvalidMagnitude
	}

	return s.transition(ctx, req.TierID, tierdomain.OpSetDuration, 0, true, func(tier *tierdomain.Tier) {
		tier.Duration = req.Duration
	})
}

func (s *Service) SetStart(ctx context.Context, req tierdomain.SetStartRequest) (tierdomain.Tier, error) {
	if req.TierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, req.TierID, tierdomain.OpSetStart, req.StartAt, false, func(tier *tierdomain.Tier) {
		tier.StartAt = req.StartAt
	})
}

func (s *Service) Activate(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	if tierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, tierID, tierdomain.OpActivate, 0, false, nil)
}

func (s *Service) Pause(ctx context.Context, req tierdomain.SetBoundaryRequest) (tierdomain.Tier, error) {
	if req.TierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, req.TierID, tierdomain.OpPause, req.Timestamp, false, func(tier *tierdomain.Tier) {
		tier.PauseAt = req.Timestamp
		tier.EndAt = 0
	})
}

func (s *Service) SetEnd(ctx context.Context, req tierdomain.SetBoundaryRequest) (tierdomain.Tier, error) {
	if req.TierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, req.TierID, tierdomain.OpSetEnd, req.Timestamp, false, func(tier *tierdomain.Tier) {
		tier.EndAt = req.Timestamp
		tier.PauseAt = 0
	})
}

// Unpause resumes a paused tier. The pause boundary is cleared: a Live tier
// carries no terminal boundary.
func (s *Service) Unpause(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	if tierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, tierID, tierdomain.OpUnpause, 0, false, func(tier *tierdomain.Tier) {
		tier.PauseAt = 0
	})
}

// Finish retires a tier once its boundary has passed. Boundaries and start
// reset to zero; duration is retained for the next cycle.
func (s *Service) Finish(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	if tierID <= 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidTierID
	}
	return s.transition(ctx, tierID, tierdomain.OpFinish, 0, false, func(tier *tierdomain.Tier) {
		tier.StartAt = 0
		tier.PauseAt = 0
		tier.EndAt = 0
	})
}

// transition runs one life-cycle operation on a locked tier row: resolve the
// target status against the transition table, apply the field mutation, and
// emit the phase-change event in the same transaction. createIfMissing is
// used only by SetDuration (the first configuration of a tier).
func (s *Service) transition(
	ctx context.Context,
	tierID int64,
	op tierdomain.Op,
	timestamp int64,
	createIfMissing bool,
	mutate func(*tierdomain.Tier),
) (tierdomain.Tier, error) {
	lcfg := s.lifecycle.Get()
	now := s.clock.Now().Unix()

	var out tierdomain.Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.FindByIDForUpdate(ctx, tx, tierID)
		if err != nil {
			return err
		}

		created := false
		if tier == nil {
			if !createIfMissing {
				return tierdomain.ErrTierNotFound
			}
			created = true
			tier = &tierdomain.Tier{
				ID:        tierID,
				Status:    tierdomain.TierStatusNotLive,
				CreatedAt: time.Unix(now, 0).UTC(),
			}
		}

		target, err := tierdomain.Transition(*tier, op, tierdomain.GuardInput{
			Now:          now,
			Timestamp:    timestamp,
			ReinitWindow: lcfg.ReinitWindowSeconds,
			MaxTimestamp: lcfg.MaxTimestamp,
		})
		if err != nil {
			return err
		}

		from := tier.Status
		tier.Status = target
		if mutate != nil {
			mutate(tier)
		}
		tier.UpdatedAt = time.Unix(now, 0).UTC()

		if created {
			if err := s.repo.Insert(ctx, tx, tier); err != nil {
				return err
			}
		} else {
			if err := s.repo.Update(ctx, tx, tier); err != nil {
				return err
			}
		}

		if from != target {
			if err := s.eventsSvc.Emit(ctx, tx, eventsdomain.EventTierPhaseChanged, map[string]any{
				"tier_id":  tier.ID,
				"from":     string(from),
				"to":       string(target),
				"duration": tier.Duration,
				"start_at": tier.StartAt,
				"pause_at": tier.PauseAt,
				"end_at":   tier.EndAt,
			}); err != nil {
				return err
			}
		}

		out = *tier
		return nil
	})
	if err != nil {
		return tierdomain.Tier{}, err
	}

	s.audit(ctx, op, out)
	return out, nil
}

func (s *Service) audit(ctx context.Context, op tierdomain.Op, tier tierdomain.Tier) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "tier."+string(op), "tier", strconv.FormatInt(tier.ID, 10), map[string]any{
		"status":   string(tier.Status),
		"duration": tier.Duration,
		"start_at": tier.StartAt,
		"pause_at": tier.PauseAt,
		"end_at":   tier.EndAt,
	}); err != nil {
		s.log.Warn("audit write failed", zap.String("op", string(op)), zap.Error(err))
	}
}
