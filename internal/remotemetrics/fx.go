package remotemetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/0xkuwabatake/normies-membership/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("remote.metrics",
	fx.Provide(NewPusher),
	fx.Provide(func(pusher Pusher) *Stats {
		if pusher == nil {
			return nil
		}
		return NewStats(prometheus.NewRegistry())
	}),
	fx.Invoke(runReporter),
)

type reporterParams struct {
	fx.In

	LC     fx.Lifecycle
	Cfg    config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Pusher Pusher `optional:"true"`
	Stats  *Stats `optional:"true"`
}

func runReporter(p reporterParams) {
	if p.Pusher == nil || p.Stats == nil {
		return
	}

	log := p.Log.Named("remote.metrics")
	interval := time.Duration(p.Cfg.RemoteMetrics.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting remote metrics reporter", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				push := func() {
					p.Stats.Collect(ctx, p.DB)
					if err := p.Pusher.Push(ctx, p.Stats.Registry()); err != nil {
						log.Warn("remote metrics push failed", zap.Error(err))
					}
				}

				push()
				for {
					select {
					case <-ticker.C:
						push()
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
