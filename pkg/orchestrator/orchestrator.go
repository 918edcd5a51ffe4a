// Package orchestrator runs a decode session: it reads an MP4, feeds its
// samples to a child decoder actor running in this process or in a
// `remotevideo serve` subprocess, and collects the frames into snapshots
// and a summary report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/remotevideo/pkg/actor"
	"github.com/user/remotevideo/pkg/adapters/logger"
	"github.com/user/remotevideo/pkg/adapters/mp4source"
	"github.com/user/remotevideo/pkg/adapters/snapshot"
	"github.com/user/remotevideo/pkg/adapters/telemetry"
	"github.com/user/remotevideo/pkg/bootstrap"
	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/summarizer"
)

// ErrNoProcess is returned for in-process decoding without a bootstrap.Process.
var ErrNoProcess = errors.New("orchestrator: in-process decoding needs an initialized process")

// Config contains all configuration for one decode session.
type Config struct {
	InputPath string

	// Remote decodes in a subprocess started with ServeCommand.
	Remote       bool
	ServeCommand []string
	ShmDir       string

	// SnapshotDir enables PNG snapshots of every SnapshotEvery-th frame.
	SnapshotDir   string
	SnapshotEvery int
	SnapshotWidth int

	// SummaryPath enables the Markdown report.
	SummaryPath string

	Options    media.Options
	QueueDepth int
	Version    string
	Translate  func(string) string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SnapshotEvery: 30,
		SnapshotWidth: 640,
		QueueDepth:    8,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	// Process and Factory serve in-process decoding.
	Process *bootstrap.Process
	Factory ports.TransformFactory
	Bridge  ports.GPUBridge

	FS       ports.FileSystem
	Recorder *telemetry.Recorder
	Logger   ports.Logger
	// Open reads the input. Defaults to mp4source.Open.
	Open func(path string) (*mp4source.Source, error)
	// Spawn starts the remote decoder. Defaults to SpawnServe.
	Spawn SpawnFunc
}

// Orchestrator runs decode sessions.
type Orchestrator struct {
	deps Deps
	log  ports.Logger
}

// New creates a new Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoop()
	}
	if deps.Open == nil {
		deps.Open = mp4source.Open
	}
	if deps.Spawn == nil {
		deps.Spawn = SpawnServe
	}
	return &Orchestrator{deps: deps, log: deps.Logger.WithComponent("orchestrator")}
}

// RunResult contains the results of a decode session.
type RunResult struct {
	Reply     actor.ConstructReply
	Frames    int
	Keyframes int
	Textures  int
	Format    media.PixelFormat
	First     time.Duration
	Last      time.Duration
	Snapshots []string
	Elapsed   time.Duration
}

// Run decodes cfg.InputPath. The summary, when configured, is written even
// when decoding fails.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (RunResult, error) {
	start := time.Now()
	o.log.Info("Reading %s", cfg.InputPath)
	src, err := o.deps.Open(cfg.InputPath)
	if err != nil {
		o.log.Error("Failed to read source: %v", err)
		return RunResult{}, fmt.Errorf("read source: %w", err)
	}
	o.log.Info("Source: %s %dx%d, %d samples at %.2f fps",
		src.Config.Codec, src.Config.CodedSize.Width, src.Config.CodedSize.Height, len(src.Samples), src.FrameRate)

	result, runErr := o.decode(ctx, cfg, src)
	result.Elapsed = time.Since(start)

	if cfg.SummaryPath != "" {
		if err := o.writeSummary(cfg, src, result, runErr); err != nil {
			o.log.Warn("Failed to write summary: %v", err)
		} else {
			o.log.Info("Summary written to %s", cfg.SummaryPath)
		}
	}
	if runErr != nil {
		o.log.Error("Decoding failed: %v", runErr)
		return result, runErr
	}
	o.log.Info("Decoded %d frames in %d ms", result.Frames, result.Elapsed.Milliseconds())
	return result, nil
}

func (o *Orchestrator) decode(ctx context.Context, cfg Config, src *mp4source.Source) (result RunResult, err error) {
	sess, err := o.connect(ctx, cfg)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := sess.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	child, err := actor.NewChild(sess.mgr)
	if err != nil {
		return result, err
	}
	defer child.Destroy()

	result.Reply, err = child.Construct(ctx, decoder.Params{
		Config:     src.Config,
		FrameRate:  src.FrameRate,
		Options:    cfg.Options,
		Capability: o.capability(cfg),
	})
	if result.Reply.DeniedModern != "" || result.Reply.DeniedLegacy != "" {
		o.log.Warn("Hardware decoding denied: modern=%q legacy=%q", result.Reply.DeniedModern, result.Reply.DeniedLegacy)
	}
	if err != nil {
		return result, fmt.Errorf("construct decoder: %w", err)
	}

	var snaps *snapshot.Writer
	if cfg.SnapshotDir != "" && o.deps.FS != nil {
		snaps = snapshot.New(cfg.SnapshotDir, o.deps.FS, cfg.SnapshotWidth)
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	frames := make(chan *media.DecodedFrame, depth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return feed(gctx, child, src.Samples, frames)
	})
	g.Go(func() error {
		for f := range frames {
			if err := o.collect(&result, cfg, snaps, f); err != nil {
				return err
			}
		}
		return nil
	})
	err = g.Wait()
	for f := range frames {
		f.Release()
	}
	return result, err
}

// feed decodes every sample, then drains, passing frames downstream.
func feed(ctx context.Context, child *actor.Child, samples []*media.CompressedSample, out chan<- *media.DecodedFrame) error {
	for _, s := range samples {
		decoded, err := child.Decode(ctx, s)
		if err != nil {
			return fmt.Errorf("decode sample at %v: %w", s.Time, err)
		}
		if err := forward(ctx, decoded, out); err != nil {
			return err
		}
	}
	decoded, err := child.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return forward(ctx, decoded, out)
}

func forward(ctx context.Context, frames []*media.DecodedFrame, out chan<- *media.DecodedFrame) error {
	for i, f := range frames {
		select {
		case out <- f:
		case <-ctx.Done():
			for _, rest := range frames[i:] {
				rest.Release()
			}
			return ctx.Err()
		}
	}
	return nil
}

// collect records one frame and releases it.
func (o *Orchestrator) collect(r *RunResult, cfg Config, snaps *snapshot.Writer, f *media.DecodedFrame) error {
	defer f.Release()
	index := r.Frames
	if index == 0 || f.Time < r.First {
		r.First = f.Time
	}
	if f.Time > r.Last {
		r.Last = f.Time
	}
	r.Frames++
	if f.Keyframe {
		r.Keyframes++
	}

	switch p := f.Payload.(type) {
	case *media.TextureHandle:
		r.Textures++
		return nil
	case *media.PlanarBuffer:
		r.Format = p.Format
	}

	if snaps == nil || cfg.SnapshotEvery <= 0 || index%cfg.SnapshotEvery != 0 {
		return nil
	}
	path, err := snaps.Save(index, f)
	if err != nil {
		return fmt.Errorf("snapshot frame %d: %w", index, err)
	}
	o.log.Debug("Snapshot %s", path)
	r.Snapshots = append(r.Snapshots, path)
	return nil
}

func (o *Orchestrator) capability(cfg Config) media.HardwareCapability {
	if cfg.Remote || o.deps.Bridge == nil {
		return media.HardwareCapability{}
	}
	return media.HardwareCapability{
		CompositorID:               o.deps.Bridge.ID(),
		SupportsSharedTexture:      true,
		SupportsRequiredAPIVersion: true,
	}
}

func (o *Orchestrator) writeSummary(cfg Config, src *mp4source.Source, r RunResult, runErr error) error {
	if o.deps.FS == nil {
		return errors.New("no filesystem")
	}
	var total int64
	for _, s := range src.Samples {
		total += int64(len(s.Data))
	}
	mode := "in-process"
	if cfg.Remote {
		mode = "remote"
	}
	out := summarizer.OutputInfo{
		FrameCount: r.Frames,
		Keyframes:  r.Keyframes,
		Textures:   r.Textures,
		FirstMs:    r.First.Milliseconds(),
		LastMs:     r.Last.Milliseconds(),
		Snapshots:  len(r.Snapshots),
		ElapsedMs:  r.Elapsed.Milliseconds(),
	}
	if r.Format != media.FormatUnknown {
		out.Format = r.Format.String()
	}
	if secs := r.Elapsed.Seconds(); secs > 0 {
		out.DecodeSpeed = float64(r.Frames) / secs
	}

	b := summarizer.NewBuilder().
		WithSource(summarizer.SourceInfo{
			Path:        cfg.InputPath,
			Codec:       src.Config.Codec.String(),
			Width:       src.Config.CodedSize.Width,
			Height:      src.Config.CodedSize.Height,
			FrameRate:   src.FrameRate,
			DurationMs:  src.Duration.Milliseconds(),
			SampleCount: len(src.Samples),
			TotalBytes:  total,
		}).
		WithDecoder(summarizer.DecoderInfo{
			Mode:         mode,
			Hardware:     r.Textures > 0,
			DeniedModern: r.Reply.DeniedModern,
			DeniedLegacy: r.Reply.DeniedLegacy,
		}).
		WithOutput(out).
		WithError(runErr)
	if o.deps.Recorder != nil {
		for _, s := range o.deps.Recorder.Snapshot() {
			b.WithEvent(s.Name, s.Count, s.Sum)
		}
	}

	opts := []summarizer.MarkdownOption{summarizer.WithVersion(cfg.Version)}
	if cfg.Translate != nil {
		opts = append(opts, summarizer.WithTranslator(cfg.Translate))
	}
	w := summarizer.NewWriter(summarizer.FormatterFor(cfg.SummaryPath, opts...), o.deps.FS)
	return w.Write(cfg.SummaryPath, b.Build())
}
