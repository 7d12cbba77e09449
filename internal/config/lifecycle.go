package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LifecycleConfig names every interval the life-cycle and renewal math
// depends on. All values are seconds except the bare counts. Deployments may
// shorten them (test networks run accelerated timelines), so nothing in the
// domain code hardcodes them.
type LifecycleConfig struct {
	// ReinitWindowSeconds is the interval before the end of a tier's first
	// period during which upstream parameters may still be corrected.
	ReinitWindowSeconds int64 `mapstructure:"reinitWindowSeconds"`
	// EarlyRenewalWindowSeconds is how long before an asset's window end a
	// renewal is accepted.
	EarlyRenewalWindowSeconds int64 `mapstructure:"earlyRenewalWindowSeconds"`
	// LateRenewalCutoffSeconds is the margin before a pause/end boundary
	// after which renewals are no longer accepted.
	LateRenewalCutoffSeconds int64 `mapstructure:"lateRenewalCutoffSeconds"`
	// MinTierDurationSeconds is the smallest legal tier duration.
	MinTierDurationSeconds int64 `mapstructure:"minTierDurationSeconds"`
	// MaxTimestamp is the largest representable unix timestamp for any
	// boundary. The reference deployment packs timestamps into 40 bits.
	MaxTimestamp int64 `mapstructure:"maxTimestamp"`
	// MaxFeeAmount bounds stored fee magnitudes.
	MaxFeeAmount uint64 `mapstructure:"maxFeeAmount"`
	// MaxBatchSize bounds multi-recipient mint and refresh operations.
	MaxBatchSize int `mapstructure:"maxBatchSize"`
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		ReinitWindowSeconds:       48 * 60 * 60,
		EarlyRenewalWindowSeconds: 2 * 60 * 60,
		LateRenewalCutoffSeconds:  60,
		MinTierDurationSeconds:    60 * 60,
		MaxTimestamp:              1<<40 - 1,
		MaxFeeAmount:              1 << 60,
		MaxBatchSize:              20,
	}
}

// LifecycleConfigHolder serves the current LifecycleConfig and hot-reloads it
// when the backing file changes. Readers always observe a fully validated
// snapshot.
type LifecycleConfigHolder struct {
	current atomic.Value // holds LifecycleConfig
}

func NewLifecycleConfigHolder() (*LifecycleConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("lifecycle")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/normies-membership")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEMBERSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLifecycleConfig()
	v.SetDefault("lifecycle.reinitWindowSeconds", defaults.ReinitWindowSeconds)
	v.SetDefault("lifecycle.earlyRenewalWindowSeconds", defaults.EarlyRenewalWindowSeconds)
	v.SetDefault("lifecycle.lateRenewalCutoffSeconds", defaults.LateRenewalCutoffSeconds)
	v.SetDefault("lifecycle.minTierDurationSeconds", defaults.MinTierDurationSeconds)
	v.SetDefault("lifecycle.maxTimestamp", defaults.MaxTimestamp)
	v.SetDefault("lifecycle.maxFeeAmount", defaults.MaxFeeAmount)
	v.SetDefault("lifecycle.maxBatchSize", defaults.MaxBatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg LifecycleConfig
	if err := v.UnmarshalKey("lifecycle", &cfg); err != nil {
		return nil, err
	}
	if err := validateLifecycleConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LifecycleConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LifecycleConfig
		if err := v.UnmarshalKey("lifecycle", &updated); err != nil {
			log.Printf("[lifecycle-config] reload failed: %v", err)
			return
		}
		if err := validateLifecycleConfig(updated); err != nil {
			log.Printf("[lifecycle-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[lifecycle-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticLifecycleHolder wraps a fixed config, for tests.
func NewStaticLifecycleHolder(cfg LifecycleConfig) *LifecycleConfigHolder {
	holder := &LifecycleConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *LifecycleConfigHolder) Get() LifecycleConfig {
	return h.current.Load().(LifecycleConfig)
}

func validateLifecycleConfig(cfg LifecycleConfig) error {
	if cfg.ReinitWindowSeconds < 0 || cfg.EarlyRenewalWindowSeconds < 0 || cfg.LateRenewalCutoffSeconds < 0 {
		return errors.New("lifecycle intervals cannot be negative")
	}
	if cfg.MinTierDurationSeconds <= 0 {
		return errors.New("lifecycle.minTierDurationSeconds must be positive")
	}
	if cfg.MaxTimestamp <= 0 {
		return errors.New("lifecycle.maxTimestamp must be positive")
	}
	if cfg.MaxFeeAmount == 0 {
		return errors.New("lifecycle.maxFeeAmount must be positive")
	}
	if cfg.MaxBatchSize <= 0 {
		return errors.New("lifecycle.maxBatchSize must be positive")
	}
	return nil
}
