// Package server exposes the membership HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/0xkuwabatake/normies-membership/internal/asset"
	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	"github.com/0xkuwabatake/normies-membership/internal/audit"
	auditdomain "github.com/0xkuwabatake/normies-membership/internal/audit/domain"
	"github.com/0xkuwabatake/normies-membership/internal/authorization"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	"github.com/0xkuwabatake/normies-membership/internal/events"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	"github.com/0xkuwabatake/normies-membership/internal/feeschedule"
	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	"github.com/0xkuwabatake/normies-membership/internal/observability"
	"github.com/0xkuwabatake/normies-membership/internal/ratelimit"
	obsmiddleware "github.com/0xkuwabatake/normies-membership/internal/observability/logger"
	obsmetrics "github.com/0xkuwabatake/normies-membership/internal/observability/metrics"
	obstracing "github.com/0xkuwabatake/normies-membership/internal/observability/tracing"
	"github.com/0xkuwabatake/normies-membership/internal/tier"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	ratelimit.Module,
	audit.Module,
	events.Module,
	tier.Module,
	feeschedule.Module,
	asset.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	return NewEngine(log, obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	cfg        config.Config
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	eventsSvc  eventsdomain.Service
	tierSvc    tierdomain.Service
	feeSvc     feedomain.Service
	assetSvc   assetdomain.Service
	limiter    *ratelimit.AssetMutationLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Cfg        config.Config
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	EventsSvc  eventsdomain.Service
	TierSvc    tierdomain.Service
	FeeSvc     feedomain.Service
	AssetSvc   assetdomain.Service
	Limiter    *ratelimit.AssetMutationLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		cfg:        p.Cfg,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		eventsSvc:  p.EventsSvc,
		tierSvc:    p.TierSvc,
		feeSvc:     p.FeeSvc,
		assetSvc:   p.AssetSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.ActorMiddleware())

	tiers := v1.Group("/tiers")
	tiers.GET("", s.authorize(authorization.ObjectTier, authorization.ActionTierView), s.ListTiers)
	tiers.GET("/:id", s.authorize(authorization.ObjectTier, authorization.ActionTierView), s.GetTier)
	tiers.POST("/:id/duration", s.authorize(authorization.ObjectTier, authorization.ActionTierSetDuration), s.SetTierDuration)
	tiers.POST("/:id/start", s.authorize(authorization.ObjectTier, authorization.ActionTierSetStart), s.SetTierStart)
	tiers.POST("/:id/activate", s.authorize(authorization.ObjectTier, authorization.ActionTierActivate), s.ActivateTier)
	tiers.POST("/:id/pause", s.authorize(authorization.ObjectTier, authorization.ActionTierPause), s.PauseTier)
	tiers.POST("/:id/end", s.authorize(authorization.ObjectTier, authorization.ActionTierSetEnd), s.SetTierEnd)
	tiers.POST("/:id/unpause", s.authorize(authorization.ObjectTier, authorization.ActionTierUnpause), s.UnpauseTier)
	tiers.POST("/:id/finish", s.authorize(authorization.ObjectTier, authorization.ActionTierFinish), s.FinishTier)

	tiers.GET("/:id/fees", s.authorize(authorization.ObjectFeeSchedule, authorization.ActionFeeView), s.ListTierFees)
	tiers.GET("/:id/fees/:variant", s.authorize(authorization.ObjectFeeSchedule, authorization.ActionFeeView), s.GetTierFee)
	tiers.PUT("/:id/fees/:variant", s.authorize(authorization.ObjectFeeSchedule, authorization.ActionFeeSet), s.SetTierFee)

	assets := v1.Group("/assets")
	assets.GET("/:id", s.authorize(authorization.ObjectAsset, authorization.ActionAssetView), s.GetAsset)
	assets.GET("/:id/unchecked", s.authorize(authorization.ObjectAsset, authorization.ActionAssetView), s.GetAssetUnchecked)
	assets.POST("", s.authorize(authorization.ObjectAsset, authorization.ActionAssetMint), s.rateLimit(s.limiter.AllowMint), s.MintAsset)
	assets.POST("/:id/renew", s.authorize(authorization.ObjectAsset, authorization.ActionAssetRenew), s.rateLimit(s.limiter.AllowRenew), s.RenewAsset)
	assets.POST("/refresh", s.authorize(authorization.ObjectAsset, authorization.ActionAssetRefresh), s.RefreshAssets)
	v1.POST("/assets:batch", s.authorize(authorization.ObjectAsset, authorization.ActionAssetBatchMint), s.rateLimit(s.limiter.AllowMint), s.BatchMintAssets)

	v1.GET("/events", s.authorize(authorization.ObjectEvent, authorization.ActionEventView), s.ListEvents)
	v1.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
