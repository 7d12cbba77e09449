package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	auditrepo "github.com/0xkuwabatake/normies-membership/internal/audit/repository"
	auditservice "github.com/0xkuwabatake/normies-membership/internal/audit/service"
	"github.com/0xkuwabatake/normies-membership/internal/clock"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	eventsservice "github.com/0xkuwabatake/normies-membership/internal/events/service"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/0xkuwabatake/normies-membership/internal/tier/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const day = int64(24 * 60 * 60)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&tierdomain.Tier{},
		&eventsdomain.Event{},
		&auditdomain.AuditLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) (tierdomain.Service, eventsdomain.Service) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	eventsSvc := eventsservice.NewService(eventsservice.Params{DB: db, Log: log, GenID: node})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Lifecycle: config.NewStaticLifecycleHolder(config.DefaultLifecycleConfig()),
		Repo:      repository.Provide(),
		EventsSvc: eventsSvc,
		AuditSvc:  auditSvc,
	})
	return svc, eventsSvc
}

func TestSetDurationCreatesTier(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Unix(1_000_000, 0))
	svc, _ := newTestService(t, db, clk)
	ctx := context.Background()

	tier, err := svc.SetDuration(ctx, tierdomain.SetDurationRequest{TierID: 7, Duration: 30 * day})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusReadyToStart, tier.Status)
	assert.Equal(t, 30*day, tier.Duration)

	// re-configuration while still ReadyToStart is legal
	tier, err = svc.SetDuration(ctx, tierdomain.SetDurationRequest{TierID: 7, Duration: 60 * day})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusReadyToStart, tier.Status)
	assert.Equal(t, 60*day, tier.Duration)
}

func TestSetDurationRejectsBelowMinimum(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Unix(1_000_000, 0))
	svc, _ := newTestService(t, db, clk)

	_, err := svc.SetDuration(context.Background(), tierdomain.SetDurationRequest{TierID: 7, Duration: 59})
	assert.ErrorIs(t, err, tierdomain.ErrInvalidMagnitude)
}

func TestOperationsOnUnknownTier(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Unix(1_000_000, 0))
	svc, _ := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.Activate(ctx, 99)
	assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)

	_, err = svc.Get(ctx, 99)
	assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)

	_, err = svc.Pause(ctx, tierdomain.SetBoundaryRequest{TierID: 99, Timestamp: 2_000_000})
	assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)
}

// Full walk through one life cycle: configure, schedule, go live, pause near
// the period's end, resume, schedule an end, and finish after the boundary.
func TestLifecycleRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	base := time.Unix(1_000_000, 0)
	clk := clock.NewFakeClock(base)
	svc, eventsSvc := newTestService(t, db, clk)
	ctx := context.Background()

	lcfg := config.DefaultLifecycleConfig()
	duration := 30 * day

	_, err := svc.SetDuration(ctx, tierdomain.SetDurationRequest{TierID: 1, Duration: duration})
	require.NoError(t, err)

	startAt := base.Unix() + day
	tier, err := svc.SetStart(ctx, tierdomain.SetStartRequest{TierID: 1, StartAt: startAt})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusReadyToLive, tier.Status)
	assert.Equal(t, startAt, tier.StartAt)

	// activation must happen before the scheduled start
	tier, err = svc.Activate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusLive, tier.Status)

	// pausing is frozen until the reinit window before period end
	clk.Set(time.Unix(startAt+duration-lcfg.ReinitWindowSeconds-1, 0))
	pauseAt := startAt + duration + day
	_, err = svc.Pause(ctx, tierdomain.SetBoundaryRequest{TierID: 1, Timestamp: pauseAt})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)

	clk.Advance(time.Second)
	tier, err = svc.Pause(ctx, tierdomain.SetBoundaryRequest{TierID: 1, Timestamp: pauseAt})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusPaused, tier.Status)
	assert.Equal(t, pauseAt, tier.PauseAt)
	assert.Zero(t, tier.EndAt)

	// resuming clears the boundary
	tier, err = svc.Unpause(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusLive, tier.Status)
	assert.Zero(t, tier.PauseAt)

	endAt := pauseAt + day
	tier, err = svc.SetEnd(ctx, tierdomain.SetBoundaryRequest{TierID: 1, Timestamp: endAt})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusEnding, tier.Status)
	assert.Equal(t, endAt, tier.EndAt)

	// finishing needs the boundary elapsed
	clk.Set(time.Unix(endAt, 0))
	_, err = svc.Finish(ctx, 1)
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)

	clk.Advance(time.Second)
	tier, err = svc.Finish(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusFinished, tier.Status)
	assert.Zero(t, tier.StartAt)
	assert.Zero(t, tier.PauseAt)
	assert.Zero(t, tier.EndAt)
	assert.Equal(t, duration, tier.Duration, "duration is retained across cycles")

	events, err := eventsSvc.List(ctx, eventsdomain.ListEventsRequest{
		EventType: eventsdomain.EventTierPhaseChanged,
		Limit:     250,
	})
	require.NoError(t, err)
	// NotLive→ReadyToStart, →ReadyToLive, →Live, →Paused, →Live, →Ending, →Finished
	assert.Len(t, events, 7)
}

func TestPauseReplacesScheduledEnd(t *testing.T) {
	db := setupTestDB(t)
	base := time.Unix(1_000_000, 0)
	clk := clock.NewFakeClock(base)
	svc, _ := newTestService(t, db, clk)
	ctx := context.Background()

	duration := 30 * day
	_, err := svc.SetDuration(ctx, tierdomain.SetDurationRequest{TierID: 3, Duration: duration})
	require.NoError(t, err)
	startAt := base.Unix() + day
	_, err = svc.SetStart(ctx, tierdomain.SetStartRequest{TierID: 3, StartAt: startAt})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, 3)
	require.NoError(t, err)

	// inside the reinit window
	clk.Set(time.Unix(startAt+duration-1, 0))

	endAt := startAt + duration + 2*day
	tier, err := svc.SetEnd(ctx, tierdomain.SetBoundaryRequest{TierID: 3, Timestamp: endAt})
	require.NoError(t, err)
	assert.Equal(t, tierdomain.TierStatusEnding, tier.Status)

	// an Ending tier cannot be paused; the schedule is already terminal
	_, err = svc.Pause(ctx, tierdomain.SetBoundaryRequest{TierID: 3, Timestamp: endAt + day})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalStateTransition)
}

func TestSetStartRejectsPastTimestamp(t *testing.T) {
	db := setupTestDB(t)
	base := time.Unix(1_000_000, 0)
	clk := clock.NewFakeClock(base)
	svc, _ := newTestService(t, db, clk)
	ctx := context.Background()

	_, err := svc.SetDuration(ctx, tierdomain.SetDurationRequest{TierID: 5, Duration: 30 * day})
	require.NoError(t, err)

	_, err = svc.SetStart(ctx, tierdomain.SetStartRequest{TierID: 5, StartAt: base.Unix()})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)

	_, err = svc.SetStart(ctx, tierdomain.SetStartRequest{TierID: 5, StartAt: base.Unix() - day})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)
}
