package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	"github.com/0xkuwabatake/normies-membership/internal/asset/registry"
	"github.com/0xkuwabatake/normies-membership/internal/clock"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	eventsservice "github.com/0xkuwabatake/normies-membership/internal/events/service"
	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	feerepo "github.com/0xkuwabatake/normies-membership/internal/feeschedule/repository"
	feeservice "github.com/0xkuwabatake/normies-membership/internal/feeschedule/service"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	tierrepo "github.com/0xkuwabatake/normies-membership/internal/tier/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	day  = int64(24 * 60 * 60)
	flat = uint64(30_000_000)
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A named shared in-memory DSN keeps every pooled connection on the same
	// database; a plain ":memory:" gives each new connection its own empty one.
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&tierdomain.Tier{},
		&feedomain.FeeEntry{},
		&assetdomain.Asset{},
		&eventsdomain.Event{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

type fixture struct {
	db  *gorm.DB
	clk *clock.FakeClock
	svc assetdomain.Service
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(at)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	holder := config.NewStaticLifecycleHolder(config.DefaultLifecycleConfig())

	eventsSvc := eventsservice.NewService(eventsservice.Params{DB: db, Log: log, GenID: node})
	feeSvc := feeservice.NewService(feeservice.ServiceParam{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Lifecycle: holder,
		Repo:      feerepo.Provide(),
		TierRepo:  tierrepo.Provide(),
		EventsSvc: eventsSvc,
	})
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Lifecycle: holder,
		Registry:  registry.Provide(),
		TierRepo:  tierrepo.Provide(),
		FeeSvc:    feeSvc,
		EventsSvc: eventsSvc,
	})

	return &fixture{db: db, clk: clk, svc: svc}
}

func (f *fixture) insertTier(t *testing.T, tier tierdomain.Tier) {
	t.Helper()
	require.NoError(t, f.db.Create(&tier).Error)
}

// insertFee seeds a fee entry directly, bypassing the schedule's freeze
// rules, which would reject writes against an already running tier.
func (f *fixture) insertFee(t *testing.T, tierID int64, amount uint64) {
	t.Helper()
	entry := feedomain.FeeEntry{TierID: tierID, Variant: feedomain.VariantFlat, Amount: amount}
	require.NoError(t, f.db.Create(&entry).Error)
}

func (f *fixture) countEvents(t *testing.T, eventType string) int {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&eventsdomain.Event{}).Where("event_type = ?", eventType).Count(&count).Error)
	return int(count)
}

func TestMint(t *testing.T) {
	now := int64(1_000_000)
	f := newFixture(t, time.Unix(now, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: now - day})
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.ID, "ids are sequential from 1")
	assert.Equal(t, "0xabc", view.Owner)
	assert.Equal(t, now, view.WindowStart)
	assert.Equal(t, now+30*day, view.WindowEnd)
	assert.Equal(t, assetdomain.AssetStatusActive, view.Status)

	view, err = f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xdef", TierID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.ID)

	assert.Equal(t, 2, f.countEvents(t, eventsdomain.EventAssetMetadataRefresh))
}

func TestMintValidation(t *testing.T) {
	now := int64(1_000_000)
	f := newFixture(t, time.Unix(now, 0))
	f.insertTier(t, tierdomain.Tier{ID: 2, Status: tierdomain.TierStatusNotLive})
	ctx := context.Background()

	_, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "", TierID: 1})
	assert.ErrorIs(t, err, assetdomain.ErrInvalidOwner)

	_, err = f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 99})
	assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)

	// a tier with no configured duration cannot back an asset
	_, err = f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 2})
	assert.ErrorIs(t, err, assetdomain.ErrTierNotConfigured)
}

func TestBatchMint(t *testing.T) {
	now := int64(1_000_000)
	f := newFixture(t, time.Unix(now, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: now - day})
	ctx := context.Background()

	resp, err := f.svc.BatchMint(ctx, assetdomain.BatchMintRequest{
		Owners: []string{"0xaaa", "0xbbb", "0xccc"},
		TierID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.FromID)
	assert.Equal(t, int64(3), resp.ToID)

	assert.Equal(t, 1, f.countEvents(t, eventsdomain.EventAssetMetadataRefreshSpan))
	assert.Equal(t, 0, f.countEvents(t, eventsdomain.EventAssetMetadataRefresh))
}

func TestBatchMintAllOrNothing(t *testing.T) {
	now := int64(1_000_000)
	f := newFixture(t, time.Unix(now, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: now - day})
	ctx := context.Background()

	_, err := f.svc.BatchMint(ctx, assetdomain.BatchMintRequest{
		Owners: []string{"0xaaa", "  ", "0xccc"},
		TierID: 1,
	})
	assert.ErrorIs(t, err, assetdomain.ErrInvalidOwner)

	var count int64
	require.NoError(t, f.db.Model(&assetdomain.Asset{}).Count(&count).Error)
	assert.Zero(t, count, "a failed batch leaves no assets behind")
	assert.Equal(t, 0, f.countEvents(t, eventsdomain.EventAssetMetadataRefreshSpan))
}

func TestBatchMintBounded(t *testing.T) {
	now := int64(1_000_000)
	f := newFixture(t, time.Unix(now, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: now - day})

	lcfg := config.DefaultLifecycleConfig()
	owners := make([]string, lcfg.MaxBatchSize+1)
	for i := range owners {
		owners[i] = "0xowner"
	}
	_, err := f.svc.BatchMint(context.Background(), assetdomain.BatchMintRequest{Owners: owners, TierID: 1})
	assert.ErrorIs(t, err, assetdomain.ErrBatchTooLarge)
}

func TestGetCheckedVersusUnchecked(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	pauseAt := t0 + 10*day
	f.insertTier(t, tierdomain.Tier{
		ID:       1,
		Status:   tierdomain.TierStatusPaused,
		Duration: 30 * day,
		StartAt:  t0 - day,
		PauseAt:  pauseAt,
	})
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	// reads are idempotent
	again, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, again, view)

	// past the boundary the checked window collapses but the raw arithmetic
	// is still reported
	f.clk.Set(time.Unix(pauseAt+1, 0))
	checked, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Zero(t, checked.WindowStart)
	assert.Zero(t, checked.WindowEnd)
	assert.Equal(t, assetdomain.AssetStatusActive, checked.Status, "a collapsed window is not Inactive")

	raw, err := f.svc.GetUnchecked(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, t0, raw.WindowStart)
	assert.Equal(t, t0+30*day, raw.WindowEnd)
	assert.Equal(t, raw.WindowEnd-raw.WindowStart, 30*day)
}

func TestGetUnknownAsset(t *testing.T) {
	f := newFixture(t, time.Unix(1_000_000, 0))
	_, err := f.svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, assetdomain.ErrAssetNotFound)
}

func TestRenewLiveTier(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	duration := 30 * day
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: duration, StartAt: t0 - day})
	f.insertFee(t, 1, flat)
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)
	windowEnd := view.WindowEnd

	lcfg := config.DefaultLifecycleConfig()
	earliest := windowEnd - lcfg.EarlyRenewalWindowSeconds

	// too early: the current window still has more than the early-renewal
	// margin left
	f.clk.Set(time.Unix(earliest-1, 0))
	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)

	f.clk.Set(time.Unix(earliest, 0))
	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat - 1})
	assert.ErrorIs(t, err, assetdomain.ErrInsufficientPayment)

	renewed, err := f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	require.NoError(t, err)
	assert.Equal(t, earliest, renewed.WindowStart, "renewal restarts the window at now")
	assert.Equal(t, earliest+duration, renewed.WindowEnd)
	assert.Equal(t, duration, renewed.WindowEnd-renewed.WindowStart)

	assert.Equal(t, 1, f.countEvents(t, eventsdomain.EventAssetRenewed))

	// the snapshot now carries the refreshed duration
	var asset assetdomain.Asset
	require.NoError(t, f.db.First(&asset, view.ID).Error)
	assert.Equal(t, earliest, asset.CreatedTS)
	assert.Equal(t, duration, asset.CachedDuration)
}

func TestRenewPausedTierProrated(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	duration := 30 * day
	pauseAt := t0 + 40*day
	f.insertTier(t, tierdomain.Tier{
		ID:       1,
		Status:   tierdomain.TierStatusPaused,
		Duration: duration,
		StartAt:  t0 - day,
		PauseAt:  pauseAt,
	})
	f.insertFee(t, 1, flat)
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	// ten days of purchasable time remain out of a thirty-day period
	f.clk.Set(time.Unix(pauseAt-10*day, 0))
	prorated := flat / 3

	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: prorated - 1})
	assert.ErrorIs(t, err, assetdomain.ErrInsufficientPayment)

	renewed, err := f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: prorated})
	require.NoError(t, err)
	assert.Equal(t, pauseAt-10*day, renewed.WindowStart)
}

func TestRenewPausedTierTimingBounds(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	duration := 30 * day
	pauseAt := t0 + 40*day
	f.insertTier(t, tierdomain.Tier{
		ID:       1,
		Status:   tierdomain.TierStatusPaused,
		Duration: duration,
		StartAt:  t0 - day,
		PauseAt:  pauseAt,
	})
	f.insertFee(t, 1, flat)
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	lcfg := config.DefaultLifecycleConfig()

	// inside the late-renewal cutoff before the boundary
	f.clk.Set(time.Unix(pauseAt-lcfg.LateRenewalCutoffSeconds+1, 0))
	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalTiming)

	// once the boundary has arrived the asset is permanently frozen, which
	// is a different failure than bad timing
	f.clk.Set(time.Unix(pauseAt+1, 0))
	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	assert.ErrorIs(t, err, assetdomain.ErrUnableToUpdate)
}

func TestRenewRequiresRenewablePhase(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: t0 - day})
	f.insertTier(t, tierdomain.Tier{ID: 2, Status: tierdomain.TierStatusReadyToStart, Duration: 30 * day})
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	// flip the backing tier out of a renewable phase
	require.NoError(t, f.db.Exec(`UPDATE tiers SET status = ? WHERE id = 1`, tierdomain.TierStatusFinished).Error)

	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	assert.ErrorIs(t, err, tierdomain.ErrIllegalStateTransition)
}

func TestRenewUndefinedFee(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: t0 - day})
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	f.clk.Advance(time.Duration(30*day) * time.Second)
	_, err = f.svc.Renew(ctx, assetdomain.RenewRequest{AssetID: view.ID, Payment: flat})
	assert.ErrorIs(t, err, feedomain.ErrUndefinedFee)
}

func TestRefresh(t *testing.T) {
	t0 := int64(1_000_000)
	f := newFixture(t, time.Unix(t0, 0))
	f.insertTier(t, tierdomain.Tier{ID: 1, Status: tierdomain.TierStatusLive, Duration: 30 * day, StartAt: t0 - day})
	ctx := context.Background()

	view, err := f.svc.Mint(ctx, assetdomain.MintRequest{Owner: "0xabc", TierID: 1})
	require.NoError(t, err)

	require.NoError(t, f.svc.Refresh(ctx, assetdomain.RefreshRequest{FromID: view.ID, ToID: view.ID}))
	assert.Equal(t, 2, f.countEvents(t, eventsdomain.EventAssetMetadataRefresh), "mint plus explicit refresh")

	require.NoError(t, f.svc.Refresh(ctx, assetdomain.RefreshRequest{FromID: 1, ToID: 10}))
	assert.Equal(t, 1, f.countEvents(t, eventsdomain.EventAssetMetadataRefreshSpan))

	err = f.svc.Refresh(ctx, assetdomain.RefreshRequest{FromID: 10, ToID: 1})
	assert.ErrorIs(t, err, assetdomain.ErrInvalidRange)

	err = f.svc.Refresh(ctx, assetdomain.RefreshRequest{FromID: 99, ToID: 99})
	assert.ErrorIs(t, err, assetdomain.ErrAssetNotFound)
}
