package main

import (
	"context"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/remotevideo/pkg/adapters/osfilesystem"
	"github.com/user/remotevideo/pkg/adapters/smarttransform"
	"github.com/user/remotevideo/pkg/adapters/telemetry"
	"github.com/user/remotevideo/pkg/config"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/orchestrator"
)

func decodeCommand() *cli.Command {
	defaults := orchestrator.DefaultConfig()
	return &cli.Command{
		Name:      "decode",
		Usage:     l10n.T("Decode an MP4 file and report the frames"),
		ArgsUsage: "<file.mp4>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: l10n.T("Decode in a separate serve process"),
			},
			&cli.StringFlag{
				Name:    "snapshot-dir",
				Aliases: []string{"s"},
				Usage:   l10n.T("Directory for PNG snapshots of decoded frames"),
			},
			&cli.IntFlag{
				Name:  "snapshot-every",
				Value: defaults.SnapshotEvery,
				Usage: l10n.T("Save every Nth frame as a snapshot"),
			},
			&cli.IntFlag{
				Name:  "snapshot-width",
				Value: defaults.SnapshotWidth,
				Usage: l10n.T("Maximum snapshot width in pixels"),
			},
			&cli.StringFlag{
				Name:  "summary",
				Usage: l10n.T("Output execution summary to file (Markdown format)"),
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: l10n.T("Path to the ffmpeg executable"),
			},
			&cli.StringFlag{
				Name:  "shm-dir",
				Usage: l10n.T("Directory for shared-memory frame regions"),
			},
			&cli.BoolFlag{
				Name:  "no-hardware",
				Usage: l10n.T("Never use a hardware decoder"),
			},
			&cli.BoolFlag{
				Name:  "low-latency",
				Usage: l10n.T("Ask the decoder for low-latency output"),
			},
		},
		Action: runDecode,
	}
}

func runDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(l10n.T("An MP4 file argument is required"), 2)
	}
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	log := newLogger(settings.Level(), false)

	ctx, stop := signalContext(c.Context, log)
	defer stop()

	recorder := telemetry.NewRecorder()
	deps := orchestrator.Deps{
		FS:       osfilesystem.New(),
		Recorder: recorder,
		Logger:   log,
	}

	cfg := orchestrator.DefaultConfig()
	cfg.InputPath = c.Args().First()
	cfg.SnapshotDir = c.String("snapshot-dir")
	cfg.SnapshotEvery = c.Int("snapshot-every")
	cfg.SnapshotWidth = c.Int("snapshot-width")
	cfg.SummaryPath = c.String("summary")
	cfg.ShmDir = settings.Transfer.ShmDir
	cfg.Version = version
	cfg.Translate = l10n.T
	if c.Bool("no-hardware") {
		cfg.Options |= media.OptionHardwareDecoderNotAllowed
	}
	if c.Bool("low-latency") {
		cfg.Options |= media.OptionLowLatency
	}

	if c.Bool("remote") {
		cfg.Remote = true
		cfg.ServeCommand, err = serveCommandLine(c, settings)
		if err != nil {
			return err
		}
	} else {
		proc := newProcess(settings, recorder, log)
		if err := proc.Init(ctx); err != nil {
			return err
		}
		defer proc.Shutdown(context.Background())
		deps.Process = proc
		deps.Factory = smarttransform.New(smarttransform.Options{
			FFmpegPath: settings.FFmpegPath,
			Logger:     log,
		})
	}

	result, err := orchestrator.New(deps).Run(ctx, cfg)
	if err != nil {
		return err
	}
	if len(result.Snapshots) > 0 {
		log.Info("Saved %d snapshots to %s", len(result.Snapshots), cfg.SnapshotDir)
	}
	return nil
}

// serveCommandLine builds the command that starts the decoder subprocess
// with the settings of this process.
func serveCommandLine(c *cli.Context, settings config.Config) ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	args := []string{exe}
	if path := c.String("config-file"); path != "" {
		args = append(args, "--config-file", path)
	}
	args = append(args, "--log-level", settings.LogLevel, "serve")
	if settings.FFmpegPath != "" {
		args = append(args, "--ffmpeg", settings.FFmpegPath)
	}
	if settings.Transfer.ShmDir != "" {
		args = append(args, "--shm-dir", settings.Transfer.ShmDir)
	}
	if !settings.Hardware.Enabled {
		args = append(args, "--no-hardware")
	}
	return args, nil
}
