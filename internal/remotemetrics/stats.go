package remotemetrics

import (
	"context"
	"runtime"

	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Stats is the reported snapshot of one instance: table counts plus process
// memory, refreshed right before each push.
type Stats struct {
	registry *prometheus.Registry

	assetsTotal  prometheus.Gauge
	eventsTotal  prometheus.Gauge
	tiersByPhase *prometheus.GaugeVec
	memoryBytes  prometheus.Gauge
}

func NewStats(registry *prometheus.Registry) *Stats {
	s := &Stats{
		registry: registry,
		assetsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membership_assets_total",
			Help: "Number of minted assets.",
		}),
		eventsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membership_events_total",
			Help: "Number of emitted events.",
		}),
		tiersByPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "membership_tiers_total",
			Help: "Number of tiers per lifecycle phase.",
		}, []string{"status"}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membership_process_memory_bytes",
			Help: "Process memory obtained from the OS.",
		}),
	}

	registry.MustRegister(s.assetsTotal, s.eventsTotal, s.tiersByPhase, s.memoryBytes)
	return s
}

func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

// Collect refreshes every gauge from the database and the runtime. Count
// failures leave the previous value in place.
func (s *Stats) Collect(ctx context.Context, db *gorm.DB) {
	if s == nil {
		return
	}

	var count int64
	if err := db.WithContext(ctx).Model(&assetdomain.Asset{}).Count(&count).Error; err == nil {
		s.assetsTotal.Set(float64(count))
	}
	if err := db.WithContext(ctx).Model(&eventsdomain.Event{}).Count(&count).Error; err == nil {
		s.eventsTotal.Set(float64(count))
	}

	type phaseCount struct {
		Status string
		Total  int64
	}
	var phases []phaseCount
	err := db.WithContext(ctx).
		Model(&tierdomain.Tier{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&phases).Error
	if err == nil {
		s.tiersByPhase.Reset()
		for _, p := range phases {
			s.tiersByPhase.WithLabelValues(p.Status).Set(float64(p.Total))
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.memoryBytes.Set(float64(m.Sys))
}
