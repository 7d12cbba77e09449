// Package metrics exposes OTLP-exported application instruments.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	tierTransitions  metric.Int64Counter
	feeChanges       metric.Int64Counter
	assetRenewals    metric.Int64Counter
	assetMints       metric.Int64Counter
	authzDenied      metric.Int64Counter
	renewalFeeQuoted metric.Int64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "membership"
	}
	meter := provider.Meter(name)

	tierTransitions, err := meter.Int64Counter("membership_tier_transitions_total")
	if err != nil {
		return nil, err
	}
	feeChanges, err := meter.Int64Counter("membership_fee_changes_total")
	if err != nil {
		return nil, err
	}
	assetRenewals, err := meter.Int64Counter("membership_asset_renewals_total")
	if err != nil {
		return nil, err
	}
	assetMints, err := meter.Int64Counter("membership_asset_mints_total")
	if err != nil {
		return nil, err
	}
	authzDenied, err := meter.Int64Counter("membership_authorization_denied_total")
	if err != nil {
		return nil, err
	}
	renewalFeeQuoted, err := meter.Int64Histogram("membership_renewal_fee_quoted")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tierTransitions:  tierTransitions,
		feeChanges:       feeChanges,
		assetRenewals:    assetRenewals,
		assetMints:       assetMints,
		authzDenied:      authzDenied,
		renewalFeeQuoted: renewalFeeQuoted,
	}, nil
}

// RecordTierTransition increments transition counts per operation and target phase.
func (m *Metrics) RecordTierTransition(ctx context.Context, op, toStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("op", strings.TrimSpace(op)),
		attribute.String("to_status", strings.TrimSpace(toStatus)),
	)
	m.tierTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFeeChange increments fee schedule update counts.
func (m *Metrics) RecordFeeChange(ctx context.Context, tierID int64, variant string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier_id", strconv.FormatInt(tierID, 10)),
		attribute.String("variant", strings.TrimSpace(variant)),
	)
	m.feeChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRenewal increments renewal counts and records the quoted fee.
func (m *Metrics) RecordRenewal(ctx context.Context, tierID int64, fee uint64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tier_id", strconv.FormatInt(tierID, 10)))
	m.assetRenewals.Add(ctx, 1, metric.WithAttributes(attrs...))
	if fee <= uint64(1<<62) {
		m.renewalFeeQuoted.Record(ctx, int64(fee), metric.WithAttributes(attrs...))
	}
}

// RecordMint increments mint counts.
func (m *Metrics) RecordMint(ctx context.Context, tierID int64, count int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tier_id", strconv.FormatInt(tierID, 10)))
	m.assetMints.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordAuthzDenied increments authorization denial counts.
func (m *Metrics) RecordAuthzDenied(ctx context.Context, object, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("object", strings.TrimSpace(object)),
		attribute.String("action", strings.TrimSpace(action)),
	)
	m.authzDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"op":          {},
	"to_status":   {},
	"tier_id":     {},
	"variant":     {},
	"object":      {},
	"action":      {},
	"status_code": {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
