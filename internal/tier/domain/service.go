package domain

import (
	"context"
	"errors"
)

// Op identifies a life-cycle operation for transition-table lookups.
type Op string

const (
	OpSetDuration Op = "set_duration"
	OpSetStart    Op = "set_start"
	OpActivate    Op = "activate"
	OpPause       Op = "pause"
	OpSetEnd      Op = "set_end"
	OpUnpause     Op = "unpause"
	OpFinish      Op = "finish"
)

type SetDurationRequest struct {
	TierID   int64 `json:"tier_id"`
	Duration int64 `json:"duration"`
}

type SetStartRequest struct {
	TierID  int64 `json:"tier_id"`
	StartAt int64 `json:"start_at"`
}

type SetBoundaryRequest struct {
	TierID    int64 `json:"tier_id"`
	Timestamp int64 `json:"timestamp"`
}

type Service interface {
	List(ctx context.Context) ([]Tier, error)
	Get(ctx context.Context, tierID int64) (Tier, error)
	SetDuration(ctx context.Context, req SetDurationRequest) (Tier, error)
	SetStart(ctx context.Context, req SetStartRequest) (Tier, error)
	Activate(ctx context.Context, tierID int64) (Tier, error)
	Pause(ctx context.Context, req SetBoundaryRequest) (Tier, error)
	SetEnd(ctx context.Context, req SetBoundaryRequest) (Tier, error)
	Unpause(ctx context.Context, tierID int64) (Tier, error)
	Finish(ctx context.Context, tierID int64) (Tier, error)
}

var (
	ErrIllegalStateTransition = errors.New("illegal_state_transition")
	ErrIllegalTiming          = errors.New("illegal_timing")
	ErrInvalidMagnitude       = errors.New("invalid_magnitude")
	ErrInvalidTierID          = errors.New("invalid_tier_id")
	ErrTierNotFound           = errors.New("tier_not_found")
)
