// Package main is the entry point for the Vitalis exporters. Each command
// runs one exporter profile as a standalone process on its own port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/vitalis-app/exporter/internal/autostart"
	"github.com/vitalis-app/exporter/internal/config"
	"github.com/vitalis-app/exporter/internal/logging"
	"github.com/vitalis-app/exporter/internal/service"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "Received %s, shutting down\n", sig)
		cancel()
	}()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "vitalis-exporter",
		Usage:   "Prometheus exporters for containers, NFS mounts and service health",
		Version: version,
		Commands: []*cli.Command{
			exporterCmd(config.ProfileDocker, "Export per-container resource usage from docker stats"),
			exporterCmd(config.ProfileNFS, "Export NFS mount status, latency and client operation counters"),
			exporterCmd(config.ProfileMulti, "Export NFS, HAProxy backend and database health"),
			webhookCmd(),
			configCmd(),
			installCmd(),
			uninstallCmd(),
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file (default: auto-discover)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "address",
			Usage: "Listen address (default: all interfaces)",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Listen port (default: the profile's port)",
		},
	}
}

func exporterCmd(profile, usage string) *cli.Command {
	flags := append(commonFlags(),
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Time between collection cycles (default: 30s)",
		},
		&cli.BoolFlag{
			Name:  "host",
			Usage: "Also export host CPU, memory, load and network metrics",
		},
	)
	return &cli.Command{
		Name:  profile,
		Usage: usage,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd, profile)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			e, err := newExporter(cfg, logger)
			if err != nil {
				logger.Error("Failed to initialize exporter", zap.Error(err))
				return err
			}
			err = service.Run(ctx, profile, logger, e.Run)
			logger.Info("Exporter stopped")
			return err
		},
	}
}

func webhookCmd() *cli.Command {
	return &cli.Command{
		Name:  config.ProfileWebhook,
		Usage: "Receive Alertmanager notifications and log them",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd, config.ProfileWebhook)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			err = service.Run(ctx, config.ProfileWebhook, logger, newWebhookServer(cfg, logger).Run)
			logger.Info("Webhook receiver stopped")
			return err
		},
	}
}

func configCmd() *cli.Command {
	return &cli.Command{
		Name:      "config",
		Usage:     "Write the effective configuration of a profile as YAML",
		ArgsUsage: "<profile>",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Required: true,
				Usage:    "File to write",
			},
		),
		Action: func(_ context.Context, cmd *cli.Command) error {
			profile := cmd.Args().First()
			cfg, err := loadConfig(cmd, profile)
			if err != nil {
				return err
			}
			return config.WriteConfig(cfg, cmd.String("output"))
		},
	}
}

func installCmd() *cli.Command {
	return &cli.Command{
		Name:      "install",
		Usage:     "Install a profile as a systemd service started at boot",
		ArgsUsage: "<profile>",
		Flags:     commonFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			profile := cmd.Args().First()
			cfg, err := loadConfig(cmd, profile)
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable path: %w", err)
			}
			m := autostart.New(profile, autostartOptions(cfg, cmd.String("config")))
			if err := m.Install(execPath); err != nil {
				return err
			}
			fmt.Printf("Installed and started %s\n", m.ServiceName())
			return nil
		},
	}
}

func uninstallCmd() *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Usage:     "Stop and remove the systemd service of a profile",
		ArgsUsage: "<profile>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			profile := cmd.Args().First()
			if config.DefaultPort(profile) == 0 {
				return fmt.Errorf("unknown profile %q", profile)
			}
			m := autostart.New(profile, autostart.Options{})
			if err := m.Uninstall(); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", m.ServiceName())
			return nil
		},
	}
}

// autostartOptions opens the sandbox for what the profile's collectors touch.
func autostartOptions(cfg *config.Config, configPath string) autostart.Options {
	if configPath == "" {
		configPath = config.Locate()
	}
	opts := autostart.Options{ConfigPath: configPath}
	if cfg.Collectors.Filesystem.Enabled {
		opts.WritablePaths = append(opts.WritablePaths, cfg.Collectors.Filesystem.Path)
	}
	if cfg.Logging.File != "" {
		opts.WritablePaths = append(opts.WritablePaths, filepath.Dir(cfg.Logging.File))
	}
	if cfg.Collectors.Docker.Enabled {
		opts.Groups = append(opts.Groups, "docker")
	}
	return opts
}

// loadConfig resolves and validates the configuration of profile.
func loadConfig(cmd *cli.Command, profile string) (*config.Config, error) {
	overrides := config.CLIOverrides{
		Address:  cmd.String("address"),
		Port:     cmd.Int("port"),
		Interval: cmd.Duration("interval"),
		LogLevel: cmd.String("log-level"),
		Host:     cmd.Bool("host"),
	}

	var (
		cfg *config.Config
		err error
	)
	if cmd.IsSet("config") {
		cfg, err = config.LoadLayered(profile, overrides, embeddedConfig, cmd.String("config"))
	} else {
		cfg, err = config.LoadLayered(profile, overrides, embeddedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cmd *cli.Command, profile string) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd, profile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Starting Vitalis exporter",
		zap.String("version", version),
		zap.String("profile", profile),
		zap.Int("port", cfg.Server.Port))
	return cfg, logger, nil
}
