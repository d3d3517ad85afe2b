//go:build windows

// Package service provides Windows Service integration.
// When started by the SCM the exporter enters the service control loop;
// from a terminal it runs in the foreground.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

// Name returns the SCM service name of an exporter profile.
func Name(profile string) string {
	return "VitalisExporter-" + profile
}

// handler implements svc.Handler around a blocking run function.
type handler struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
	err    error
}

// Run executes fn under the SCM when the process is a Windows service and
// directly otherwise. fn must return once its context is cancelled.
func Run(ctx context.Context, profile string, logger *zap.Logger, fn func(ctx context.Context) error) error {
	isService, err := svc.IsWindowsService()
	if err != nil || !isService {
		return fn(ctx)
	}

	logger.Info("Running as Windows service", zap.String("service", Name(profile)))
	h := &handler{logger: logger, run: fn}
	if err := svc.Run(Name(profile), h); err != nil {
		return fmt.Errorf("service %s: %w", Name(profile), err)
	}
	return h.err
}

// Execute implements the svc.Handler interface for Windows SCM integration.
func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.run(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	h.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			h.err = err
			if err != nil {
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				h.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				h.err = <-done
				return false, 0
			default:
				h.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
