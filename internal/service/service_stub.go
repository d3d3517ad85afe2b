//go:build !windows

// Package service runs an exporter in the foreground on platforms without
// a service control manager; systemd units are written by autostart.
package service

import (
	"context"

	"go.uber.org/zap"
)

// Name returns the service name of an exporter profile.
func Name(profile string) string {
	return "vitalis-exporter-" + profile
}

// Run calls fn directly.
func Run(ctx context.Context, _ string, _ *zap.Logger, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
