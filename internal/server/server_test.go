package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	"github.com/0xkuwabatake/normies-membership/internal/authorization"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	"github.com/0xkuwabatake/normies-membership/internal/observability"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAuthzService struct {
	denyWith error
	calls    int
}

func (f *fakeAuthzService) Authorize(ctx context.Context, actor, object, action string) error {
	f.calls++
	_ = ctx
	_ = actor
	_ = object
	_ = action
	return f.denyWith
}

type fakeTierService struct {
	tier    tierdomain.Tier
	err     error
	lastOp  string
	lastID  int64
}

func (f *fakeTierService) List(ctx context.Context) ([]tierdomain.Tier, error) {
	_ = ctx
	return []tierdomain.Tier{f.tier}, f.err
}

func (f *fakeTierService) Get(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	_ = ctx
	f.lastID = tierID
	return f.tier, f.err
}

func (f *fakeTierService) SetDuration(ctx context.Context, req tierdomain.SetDurationRequest) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "set_duration", req.TierID
	return f.tier, f.err
}

func (f *fakeTierService) SetStart(ctx context.Context, req tierdomain.SetStartRequest) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "set_start", req.TierID
	return f.tier, f.err
}

func (f *fakeTierService) Activate(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "activate", tierID
	return f.tier, f.err
}

func (f *fakeTierService) Pause(ctx context.Context, req tierdomain.SetBoundaryRequest) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "pause", req.TierID
	return f.tier, f.err
}

func (f *fakeTierService) SetEnd(ctx context.Context, req tierdomain.SetBoundaryRequest) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "set_end", req.TierID
	return f.tier, f.err
}

func (f *fakeTierService) Unpause(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "unpause", tierID
	return f.tier, f.err
}

func (f *fakeTierService) Finish(ctx context.Context, tierID int64) (tierdomain.Tier, error) {
	_ = ctx
	f.lastOp, f.lastID = "finish", tierID
	return f.tier, f.err
}

type fakeFeeService struct {
	entry feedomain.FeeEntry
	fee   uint64
	err   error
}

func (f *fakeFeeService) SetFee(ctx context.Context, req feedomain.SetFeeRequest) (feedomain.FeeEntry, error) {
	_ = ctx
	_ = req
	return f.entry, f.err
}

func (f *fakeFeeService) ListByTier(ctx context.Context, tierID int64) ([]feedomain.FeeEntry, error) {
	_ = ctx
	_ = tierID
	return []feedomain.FeeEntry{f.entry}, f.err
}

func (f *fakeFeeService) Fee(ctx context.Context, tierID int64, variant string) (uint64, error) {
	_ = ctx
	_ = tierID
	_ = variant
	return f.fee, f.err
}

func (f *fakeFeeService) DiscountedFee(ctx context.Context, tierID int64, variant string, bps uint64) (uint64, error) {
	_ = ctx
	_ = tierID
	_ = variant
	_ = bps
	return f.fee, f.err
}

type fakeAssetService struct {
	view assetdomain.View
	err  error
}

func (f *fakeAssetService) Get(ctx context.Context, assetID int64) (assetdomain.View, error) {
	_ = ctx
	_ = assetID
	return f.view, f.err
}

func (f *fakeAssetService) GetUnchecked(ctx context.Context, assetID int64) (assetdomain.View, error) {
	_ = ctx
	_ = assetID
	return f.view, f.err
}

func (f *fakeAssetService) Renew(ctx context.Context, req assetdomain.RenewRequest) (assetdomain.View, error) {
	_ = ctx
	_ = req
	return f.view, f.err
}

func (f *fakeAssetService) Mint(ctx context.Context, req assetdomain.MintRequest) (assetdomain.View, error) {
	_ = ctx
	_ = req
	return f.view, f.err
}

func (f *fakeAssetService) BatchMint(ctx context.Context, req assetdomain.BatchMintRequest) (assetdomain.BatchMintResponse, error) {
	_ = ctx
	_ = req
	return assetdomain.BatchMintResponse{}, f.err
}

func (f *fakeAssetService) Refresh(ctx context.Context, req assetdomain.RefreshRequest) error {
	_ = ctx
	_ = req
	return f.err
}

type fakeEventsService struct{}

func (fakeEventsService) Emit(ctx context.Context, tx *gorm.DB, eventType string, payload map[string]any) error {
	_ = ctx
	_ = tx
	_ = eventType
	_ = payload
	return nil
}

func (fakeEventsService) List(ctx context.Context, req eventsdomain.ListEventsRequest) ([]eventsdomain.Event, error) {
	_ = ctx
	_ = req
	return nil, nil
}

type fakeAuditService struct{}

func (fakeAuditService) AuditLog(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error {
	_ = ctx
	_ = action
	_ = targetType
	_ = targetID
	_ = metadata
	return nil
}

func (fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	_ = ctx
	_ = req
	return nil, nil
}

type serverFixture struct {
	server   *Server
	authzSvc *fakeAuthzService
	tierSvc  *fakeTierService
	assetSvc *fakeAssetService
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	authzSvc := &fakeAuthzService{}
	tierSvc := &fakeTierService{tier: tierdomain.Tier{ID: 5, Status: tierdomain.TierStatusLive}}
	assetSvc := &fakeAssetService{view: assetdomain.View{ID: 1, TierID: 5}}

	engine := NewEngine(zap.NewNop(), observability.Config{})
	srv := NewServer(ServerParams{
		Gin:       engine,
		Log:       zap.NewNop(),
		Cfg:       config.Config{},
		AuthzSvc:  authzSvc,
		AuditSvc:  fakeAuditService{},
		EventsSvc: fakeEventsService{},
		TierSvc:   tierSvc,
		FeeSvc:    &fakeFeeService{},
		AssetSvc:  assetSvc,
	})

	return &serverFixture{server: srv, authzSvc: authzSvc, tierSvc: tierSvc, assetSvc: assetSvc}
}

func (f *serverFixture) do(method, path, actor string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestMissingActorRejected(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodGet, "/v1/tiers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.authzSvc.calls, "authorization is never consulted without an actor")
}

func TestForbiddenActor(t *testing.T) {
	f := newTestServer(t)
	f.authzSvc.denyWith = authorization.ErrForbidden

	rec := f.do(http.MethodGet, "/v1/tiers", "viewer:7", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownActorFormat(t *testing.T) {
	f := newTestServer(t)
	f.authzSvc.denyWith = authorization.ErrInvalidActor

	rec := f.do(http.MethodGet, "/v1/tiers", "stranger", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTierTransitionRouting(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/v1/tiers/5/activate", "operator:1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "activate", f.tierSvc.lastOp)
	assert.Equal(t, int64(5), f.tierSvc.lastID)

	rec = f.do(http.MethodPost, "/v1/tiers/5/pause", "operator:1", []byte(`{"timestamp": 1000}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pause", f.tierSvc.lastOp)
}

func TestTierIDValidation(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/v1/tiers/abc/activate", "operator:1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/tiers/0/activate", "operator:1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"illegal transition", tierdomain.ErrIllegalStateTransition, http.StatusConflict},
		{"illegal timing", tierdomain.ErrIllegalTiming, http.StatusUnprocessableEntity},
		{"insufficient payment", assetdomain.ErrInsufficientPayment, http.StatusPaymentRequired},
		{"permanently frozen", assetdomain.ErrUnableToUpdate, http.StatusGone},
		{"asset missing", assetdomain.ErrAssetNotFound, http.StatusNotFound},
		{"undefined fee", feedomain.ErrUndefinedFee, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestServer(t)
			f.assetSvc.err = tt.err

			rec := f.do(http.MethodPost, "/v1/assets/1/renew", "operator:1", []byte(`{"payment": 1}`))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/v1/assets", "operator:1", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
