package metrics

import (
	"context"
	"fmt"
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

// Metrics exposes the BOQ domain instruments.
type Metrics struct {
	certificatesSubmitted metric.Int64Counter
	certificateInvoiced   metric.Float64Counter
	variationsApplied     metric.Int64Counter
	advanceInvoiced       metric.Float64Counter
	stateTransitions      metric.Int64Counter
	rejectedOperations    metric.Int64Counter
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
		name = "boqledger"
	}
	meter := provider.Meter(name)

	certificatesSubmitted, err := meter.Int64Counter("boq_certificates_submitted_total")
	if err != nil {
		return nil, err
	}
	certificateInvoiced, err := meter.Float64Counter("boq_certificate_invoice_amount")
	if err != nil {
		return nil, err
	}
	variationsApplied, err := meter.Int64Counter("boq_variations_applied_total")
	if err != nil {
		return nil, err
	}
	advanceInvoiced, err := meter.Float64Counter("boq_advance_payment_amount")
	if err != nil {
		return nil, err
	}
	stateTransitions, err := meter.Int64Counter("boq_state_transitions_total")
	if err != nil {
		return nil, err
	}
	rejectedOperations, err := meter.Int64Counter("boq_rejected_operations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		certificatesSubmitted: certificatesSubmitted,
		certificateInvoiced:   certificateInvoiced,
		variationsApplied:     variationsApplied,
		advanceInvoiced:       advanceInvoiced,
		stateTransitions:      stateTransitions,
		rejectedOperations:    rejectedOperations,
	}, nil
}

// RecordCertificateSubmitted counts a committed certificate and the net
// amount it invoiced.
func (m *Metrics) RecordCertificateSubmitted(ctx context.Context, orgID string, netAmount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("org_id", strings.TrimSpace(orgID)))
	m.certificatesSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
	if netAmount > 0 {
		m.certificateInvoiced.Add(ctx, netAmount, metric.WithAttributes(attrs...))
	}
}

func (m *Metrics) RecordVariationApplied(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("org_id", strings.TrimSpace(orgID)))
	m.variationsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAdvanceInvoiced(ctx context.Context, orgID, lineType string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("line_type", strings.TrimSpace(lineType)),
	)
	m.advanceInvoiced.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordTransition counts a lifecycle transition of a BOQ, certificate or
// variation.
func (m *Metrics) RecordTransition(ctx context.Context, aggregate, state string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("aggregate", strings.TrimSpace(aggregate)),
		attribute.String("state", strings.TrimSpace(state)),
	)
	m.stateTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRejected counts operations rejected with a validation or user error.
func (m *Metrics) RecordRejected(ctx context.Context, operation, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("reason", strings.TrimSpace(kind)),
	)
	m.rejectedOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"org_id":    {},
	"aggregate": {},
	"state":     {},
	"operation": {},
	"reason":    {},
	"line_type": {},
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
