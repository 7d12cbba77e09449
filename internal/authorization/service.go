// Package authorization enforces role-based access to mutating operations.
// Policies live in the database through the casbin gorm adapter and are
// seeded on startup.
package authorization

import (
	"context"
	"errors"
)

const (
	ObjectTier        = "tier"
	ObjectFeeSchedule = "fee_schedule"
	ObjectAsset       = "asset"
	ObjectEvent       = "event"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionTierSetDuration = "tier.set_duration"
	ActionTierSetStart    = "tier.set_start"
	ActionTierActivate    = "tier.activate"
	ActionTierPause       = "tier.pause"
	ActionTierSetEnd      = "tier.set_end"
	ActionTierUnpause     = "tier.unpause"
	ActionTierFinish      = "tier.finish"
	ActionTierView        = "tier.view"

	ActionFeeSet  = "fee_schedule.set"
	ActionFeeView = "fee_schedule.view"

	ActionAssetMint      = "asset.mint"
	ActionAssetBatchMint = "asset.batch_mint"
	ActionAssetRenew     = "asset.renew"
	ActionAssetRefresh   = "asset.refresh"
	ActionAssetView      = "asset.view"

	ActionEventView    = "event.view"
	ActionAuditLogView = "audit_log.view"
)

type Service interface {
	// Authorize returns nil when actor may perform action on object, and
	// ErrForbidden when the policy denies it.
	Authorize(ctx context.Context, actor, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
