// Package main provides the CLI entry point for remotevideo.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/remotevideo/pkg/adapters/logger"
	"github.com/user/remotevideo/pkg/adapters/sysplatform"
	"github.com/user/remotevideo/pkg/bootstrap"
	"github.com/user/remotevideo/pkg/config"
	"github.com/user/remotevideo/pkg/ports"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "remotevideo",
		Usage:   l10n.T("Decode video in a separate process and hand frames back"),
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-file",
				Aliases: []string{"c"},
				Usage:   l10n.T("YAML configuration file"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: l10n.T("Log level (debug, info, warn, error)"),
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   l10n.T("Suppress all log output"),
			},
		},
		Commands: []*cli.Command{
			decodeCommand(),
			serveCommand(),
			denylistCommand(),
			versionCommand(),
		},
	}
}

// loadSettings reads the configuration file, if any, and applies the flags
// of the running command on top of it.
func loadSettings(c *cli.Context) (config.Config, error) {
	settings := config.Defaults()
	if path := c.String("config-file"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return settings, err
		}
		settings = loaded
	}

	if c.IsSet("log-level") {
		settings.LogLevel = c.String("log-level")
	}
	if c.Bool("quiet") {
		settings.LogLevel = "quiet"
	}
	if c.IsSet("ffmpeg") {
		settings.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("shm-dir") {
		settings.Transfer.ShmDir = c.String("shm-dir")
	}
	if c.IsSet("metrics-addr") {
		settings.MetricsAddr = c.String("metrics-addr")
	}
	if c.Bool("no-hardware") {
		settings.Hardware.Enabled = false
	}
	return settings, settings.Validate()
}

// newLogger creates the command logger. Processes whose stdout carries the
// decoder stream log to stderr.
func newLogger(level ports.LogLevel, stderrOnly bool) ports.Logger {
	switch {
	case level == ports.LevelQuiet:
		return logger.NewNoop()
	case stderrOnly:
		return logger.NewStderr(level)
	default:
		return logger.NewConsole(level)
	}
}

// newProcess builds the process-wide decoder state from settings.
func newProcess(settings config.Config, tel ports.Telemetry, log ports.Logger) *bootstrap.Process {
	platform := sysplatform.New(sysplatform.Options{Logger: log})
	return bootstrap.New(bootstrap.Options{
		Platform:  platform,
		Telemetry: tel,
		Logger:    log,
		Settings:  settings.ToEngineSettings(),
		Limits:    settings.ToLimits(),
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.F("remotevideo version %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH))
			return nil
		},
	}
}
