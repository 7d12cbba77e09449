package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) eventsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("events.service"),
		genID: p.GenID,
	}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, eventType string, payload map[string]any) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return eventsdomain.ErrInvalidEventType
	}
	if tx == nil {
		tx = s.db
	}

	event := eventsdomain.Event{
		ID:        s.genID.Generate(),
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Warn("failed to append event", zap.String("event_type", eventType), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req eventsdomain.ListEventsRequest) ([]eventsdomain.Event, error) {
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	stmt := s.db.WithContext(ctx).Model(&eventsdomain.Event{})
	if eventType := strings.TrimSpace(req.EventType); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}

	var events []eventsdomain.Event
	if err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
