package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/adminkit/session-auth-service/internal/config"
)

type AppMetrics struct {
	authLoginCounter         metric.Int64Counter
	authLogoutCounter        metric.Int64Counter
	sessionValidationCounter metric.Int64Counter
	sessionEvictionCounter   metric.Int64Counter
	sessionRevocationCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("session-auth-service")
	loginCounter, err := meter.Int64Counter("auth.login.attempts")
	if err != nil {
		return nil, err
	}
	logoutCounter, err := meter.Int64Counter("auth.logout.attempts")
	if err != nil {
		return nil, err
	}
	validationCounter, err := meter.Int64Counter("session.validation.checks")
	if err != nil {
		return nil, err
	}
	evictionCounter, err := meter.Int64Counter("session.policy.evictions")
	if err != nil {
		return nil, err
	}
	revocationCounter, err := meter.Int64Counter("session.revocations")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		authLoginCounter:         loginCounter,
		authLogoutCounter:        logoutCounter,
		sessionValidationCounter: validationCounter,
		sessionEvictionCounter:   evictionCounter,
		sessionRevocationCounter: revocationCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func RecordAuthLogin(status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSessionValidation counts the request-gate hot path by outcome
// (missing_token, invalid_token, session_invalid, valid).
func RecordSessionValidation(ctx context.Context, outcome string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.sessionValidationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSessionEviction counts sessions deactivated by policy during login.
func RecordSessionEviction(ctx context.Context, reason string, count int64) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil || count <= 0 {
		return
	}
	m.sessionEvictionCounter.Add(ctx, count, metric.WithAttributes(attribute.String("reason", reason)))
}

func RecordSessionRevocation(ctx context.Context, reason string, count int64) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil || count <= 0 {
		return
	}
	m.sessionRevocationCounter.Add(ctx, count, metric.WithAttributes(attribute.String("reason", reason)))
}

var (
	repoMetricsOnce sync.Once
	repoOpCounter   metric.Int64Counter
)

// RecordRepositoryOperation counts store calls by entity, operation and
// outcome. Lazily binds its counter so repositories work before (and without)
// InitMetrics.
func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	repoMetricsOnce.Do(func() {
		counter, err := otel.Meter("session-auth-service").Int64Counter("repository.operations")
		if err == nil {
			repoOpCounter = counter
		}
	})
	if repoOpCounter == nil {
		return
	}
	repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
