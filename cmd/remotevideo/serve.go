package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/remotevideo/pkg/adapters/smarttransform"
	"github.com/user/remotevideo/pkg/adapters/telemetry"
	"github.com/user/remotevideo/pkg/orchestrator"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/transfer"
)

const metricsShutdownTimeout = 2 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: l10n.T("Run decoders for a parent process over stdin and stdout"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: l10n.T("Path to the ffmpeg executable"),
			},
			&cli.StringFlag{
				Name:  "shm-dir",
				Usage: l10n.T("Directory for shared-memory frame regions"),
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: l10n.T("Serve Prometheus metrics on this address (e.g., :9464)"),
			},
			&cli.BoolFlag{
				Name:  "no-hardware",
				Usage: l10n.T("Never use a hardware decoder"),
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	log := newLogger(settings.Level(), true)

	ctx, stop := signalContext(c.Context, log)
	defer stop()

	prom := telemetry.NewPrometheus()
	if settings.MetricsAddr != "" {
		srv := startMetrics(settings.MetricsAddr, prom.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	proc := newProcess(settings, prom, log)
	if err := proc.Init(ctx); err != nil {
		return err
	}
	defer proc.Shutdown(context.Background())

	factory := smarttransform.New(smarttransform.Options{
		FFmpegPath: settings.FFmpegPath,
		Logger:     log,
	})
	// No compositor is reachable from a serve process.
	deps, err := proc.DecoderDeps(factory, nil)
	if err != nil {
		return err
	}

	conn := orchestrator.JoinConn(os.Stdin, os.Stdout)
	return orchestrator.Serve(ctx, conn, transfer.NewShmAllocator(settings.Transfer.ShmDir), deps)
}

func startMetrics(addr string, handler http.Handler, log ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped: %v", err)
		}
	}()
	return srv
}
