package server

import (
	"context"
	"errors"
)

// HealthService defines behaviour for readiness checks.
type HealthService interface {
	Probe(ctx context.Context) error
}

// Verifier is implemented by the neuPrint graph client and the CAVE client.
type Verifier interface {
	VerifyConnectivity(ctx context.Context) error
}

// SourceHealthService verifies connectivity of the configured data sources.
type SourceHealthService struct {
	Sources map[string]Verifier
}

// Probe implements the HealthService interface.
func (s SourceHealthService) Probe(ctx context.Context) error {
	var errs []error
	for name, src := range s.Sources {
		if src == nil {
			continue
		}
		if err := src.VerifyConnectivity(ctx); err != nil {
			errs = append(errs, errors.New(name+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}
