package authorization

import (
	"context"
	_ "embed"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := roleForActor(actor)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}
	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// roleForActor maps an actor identity to its role. "system" is the built-in
// automation identity; humans carry an explicit role prefix.
func roleForActor(actor string) (string, error) {
	if actor == "system" {
		return "role:system", nil
	}
	if id, ok := strings.CutPrefix(actor, "operator:"); ok {
		if !validActorID(id) {
			return "", ErrInvalidActor
		}
		return "role:operator", nil
	}
	if id, ok := strings.CutPrefix(actor, "viewer:"); ok {
		if !validActorID(id) {
			return "", ErrInvalidActor
		}
		return "role:viewer", nil
	}
	return "", ErrInvalidActor
}

func validActorID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return err == nil && n > 0
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor, object, action string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "authorization.denied", "authorization", object, map[string]any{
		"actor":  actor,
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectTier, ActionTierView},
		{"role:viewer", ObjectFeeSchedule, ActionFeeView},
		{"role:viewer", ObjectAsset, ActionAssetView},
		{"role:viewer", ObjectEvent, ActionEventView},

		// Operator permissions
		{"role:operator", ObjectTier, ActionTierView},
		{"role:operator", ObjectTier, ActionTierSetDuration},
		{"role:operator", ObjectTier, ActionTierSetStart},
		{"role:operator", ObjectTier, ActionTierActivate},
		{"role:operator", ObjectTier, ActionTierPause},
		{"role:operator", ObjectTier, ActionTierSetEnd},
		{"role:operator", ObjectTier, ActionTierUnpause},
		{"role:operator", ObjectTier, ActionTierFinish},
		{"role:operator", ObjectFeeSchedule, ActionFeeView},
		{"role:operator", ObjectFeeSchedule, ActionFeeSet},
		{"role:operator", ObjectAsset, ActionAssetView},
		{"role:operator", ObjectAsset, ActionAssetMint},
		{"role:operator", ObjectAsset, ActionAssetBatchMint},
		{"role:operator", ObjectAsset, ActionAssetRenew},
		{"role:operator", ObjectAsset, ActionAssetRefresh},
		{"role:operator", ObjectEvent, ActionEventView},
		{"role:operator", ObjectAuditLog, ActionAuditLogView},

		// System permissions (automation and self-service renewal)
		{"role:system", ObjectTier, ActionTierView},
		{"role:system", ObjectTier, ActionTierFinish},
		{"role:system", ObjectFeeSchedule, ActionFeeView},
		{"role:system", ObjectAsset, ActionAssetView},
		{"role:system", ObjectAsset, ActionAssetRenew},
		{"role:system", ObjectAsset, ActionAssetRefresh},
		{"role:system", ObjectEvent, ActionEventView},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
