package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const (
	serviceName    = "salespulse"
	serviceVersion = "1.0.0"
)

// Exporter exports pipeline counters to an OTEL Collector.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	submissionsTotal metric.Int64Counter
	mergesTotal      metric.Int64Counter
	promotionsTotal  metric.Int64Counter
	reconcileTotal   metric.Int64Counter
}

// NewExporter creates an exporter pushing over OTLP/gRPC.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	e, err := newExporter(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return e, nil
}

// newExporter registers the counters on provider.
func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(serviceName)

	submissionsTotal, err := meter.Int64Counter(
		"salespulse_submissions_total",
		metric.WithDescription("Scorecard submissions processed by outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating submissions counter: %w", err)
	}

	mergesTotal, err := meter.Int64Counter(
		"salespulse_metric_merges_total",
		metric.WithDescription("Daily metric merges by producer and outcome"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating merges counter: %w", err)
	}

	promotionsTotal, err := meter.Int64Counter(
		"salespulse_household_promotions_total",
		metric.WithDescription("Household status promotions"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating promotions counter: %w", err)
	}

	reconcileTotal, err := meter.Int64Counter(
		"salespulse_reconcile_rows_total",
		metric.WithDescription("Rows handled by reconciliation sweeps"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reconcile counter: %w", err)
	}

	return &Exporter{
		provider:         provider,
		submissionsTotal: submissionsTotal,
		mergesTotal:      mergesTotal,
		promotionsTotal:  promotionsTotal,
		reconcileTotal:   reconcileTotal,
	}, nil
}

func (e *Exporter) RecordSubmission(ctx context.Context, agencyID, outcome string) {
	e.submissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agency_id", agencyID),
		attribute.String("outcome", outcome),
	))
}

func (e *Exporter) RecordMerge(ctx context.Context, producer domain.Producer, outcome string) {
	e.mergesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("producer", string(producer)),
		attribute.String("outcome", outcome),
	))
}

func (e *Exporter) RecordPromotion(ctx context.Context, from, to domain.HouseholdStatus, cause string) {
	e.promotionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("cause", cause),
	))
}

func (e *Exporter) RecordReconcile(ctx context.Context, sweep string, s domain.BatchSummary) {
	add := func(result string, n int) {
		if n == 0 {
			return
		}
		e.reconcileTotal.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("sweep", sweep),
			attribute.String("result", result),
		))
	}
	add("processed", s.Processed)
	add("skipped", s.Skipped)
	add("error", s.Errors)
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
