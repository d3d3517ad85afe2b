// Package collector defines the Collector interface, the registry that runs
// collectors in isolation from each other, and the concrete probes used by
// the exporter profiles.
package collector

import (
	"context"

	"github.com/vitalis-app/exporter/internal/models"
)

// Collector is the interface that all metric collectors must implement.
// Each collector probes one external source and turns it into samples.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Describe returns the metric families this collector may emit, in the
	// order they should be exposed.
	Describe() []models.Desc

	// Collect gathers samples. The context carries the per-collector
	// timeout; implementations must return promptly once it is done.
	Collect(ctx context.Context) ([]models.Sample, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}
