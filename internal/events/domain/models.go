// Package domain contains the append-only event stream models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event captures outbox events for life-cycle and renewal workflows. Events
// emitted by one operation share its transaction, so the stream never shows a
// partially applied mutation.
type Event struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	EventType string            `gorm:"type:text;not null;index"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey *string           `gorm:"type:text;uniqueIndex:ux_events_dedupe"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }

const (
	EventTierPhaseChanged         = "tier.phase_changed"
	EventFeeChanged               = "fee.changed"
	EventAssetRenewed             = "asset.renewed"
	EventAssetMetadataRefresh     = "asset.metadata_refresh"
	EventAssetMetadataRefreshSpan = "asset.metadata_refresh_range"
)

type ListEventsRequest struct {
	EventType string
	Limit     int
}

type Service interface {
	// Emit appends one event using tx, so it commits or rolls back with the
	// caller's mutation.
	Emit(ctx context.Context, tx *gorm.DB, eventType string, payload map[string]any) error
	List(ctx context.Context, req ListEventsRequest) ([]Event, error)
}

var ErrInvalidEventType = errors.New("invalid_event_type")
