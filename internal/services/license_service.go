// Package services sits between the HTTP transport and the license core,
// adding request logging and metrics around the engine's operations.
package services

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shimantoislam/flash-auth/internal/license"
)

// LicenseService exposes the core operations to the transport layer.
type LicenseService interface {
	// VerifyDevice decides whether the device presenting key is
	// authorized, registering it when a slot is free.
	VerifyDevice(ctx context.Context, key, hwid, address string) (license.Decision, error)
	// CreateLicense issues a new key.
	CreateLicense(ctx context.Context, username, expiry string, deviceLimit int) (*license.Summary, error)
	// ListLicenses returns all records with derived remaining days.
	ListLicenses(ctx context.Context) []license.Summary
	// RevokeLicense removes a key and every device bound to it.
	RevokeLicense(ctx context.Context, key string) error
}

type licenseService struct {
	engine *license.Engine
	logger *slog.Logger

	verifications  metric.Int64Counter
	verifyDuration metric.Float64Histogram
	adminOps       metric.Int64Counter
}

// NewLicenseService wraps the engine. A nil meter falls back to the global
// provider, which is a no-op until telemetry is initialized.
func NewLicenseService(engine *license.Engine, meter metric.Meter, logger *slog.Logger) (LicenseService, error) {
	if meter == nil {
		meter = otel.Meter("flash-auth")
	}

	verifications, err := meter.Int64Counter("flashauth.verifications",
		metric.WithDescription("Device verification attempts by decision"))
	if err != nil {
		return nil, err
	}
	verifyDuration, err := meter.Float64Histogram("flashauth.verify.duration",
		metric.WithDescription("Device verification latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	adminOps, err := meter.Int64Counter("flashauth.admin.operations",
		metric.WithDescription("Administrative operations by kind and outcome"))
	if err != nil {
		return nil, err
	}

	return &licenseService{
		engine:         engine,
		logger:         logger.With(slog.String("service", "license")),
		verifications:  verifications,
		verifyDuration: verifyDuration,
		adminOps:       adminOps,
	}, nil
}

func (s *licenseService) VerifyDevice(ctx context.Context, key, hwid, address string) (license.Decision, error) {
	start := time.Now()
	decision, err := s.engine.Verify(ctx, key, hwid, address)
	elapsed := time.Since(start)

	if err != nil {
		s.verifications.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decision", "error")))
		return decision, err
	}

	s.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision.String())))
	s.verifyDuration.Record(ctx, float64(elapsed.Milliseconds()))

	s.logger.InfoContext(ctx, "device verification",
		slog.String("decision", decision.String()),
		slog.Bool("granted", decision.Granted()),
		slog.String("duration", elapsed.String()),
	)
	return decision, nil
}

func (s *licenseService) CreateLicense(ctx context.Context, username, expiry string, deviceLimit int) (*license.Summary, error) {
	key, err := s.engine.Create(ctx, username, expiry, deviceLimit)
	if err != nil {
		s.adminOps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", "create"),
			attribute.String("outcome", "error")))
		return nil, err
	}
	s.adminOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "create"),
		attribute.String("outcome", "ok")))

	summary, ok := s.engine.Get(ctx, key)
	if !ok {
		// Only possible if a concurrent revoke raced the create.
		return nil, license.ErrNotFound
	}
	return summary, nil
}

func (s *licenseService) ListLicenses(ctx context.Context) []license.Summary {
	s.adminOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "list"),
		attribute.String("outcome", "ok")))
	return s.engine.List(ctx)
}

func (s *licenseService) RevokeLicense(ctx context.Context, key string) error {
	err := s.engine.Revoke(ctx, key)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.adminOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "revoke"),
		attribute.String("outcome", outcome)))
	return err
}
