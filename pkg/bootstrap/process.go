// Package bootstrap owns the process-wide decoder state: the control queue,
// the denylist caches and the hardware negotiation engine. A Process is
// created explicitly at startup and shut down before exit.
package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/denylist"
	"github.com/user/remotevideo/pkg/hwaccel"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/taskqueue"
)

var (
	// ErrNotInitialized is returned before Init or after Shutdown.
	ErrNotInitialized = errors.New("bootstrap: process not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("bootstrap: process already initialized")
)

// Options configure a Process.
type Options struct {
	Platform  ports.Platform
	Telemetry ports.Telemetry
	Logger    ports.Logger
	Settings  hwaccel.Settings
	Limits    decoder.Limits
}

// Process holds the state shared by every decoder in the process.
type Process struct {
	opts Options
	log  ports.Logger

	mu      sync.Mutex
	control *taskqueue.Queue
	caches  hwaccel.Caches
	engine  *hwaccel.Engine
}

// New creates a Process. Nothing runs until Init.
func New(opts Options) *Process {
	return &Process{
		opts: opts,
		log:  opts.Logger.WithComponent("process"),
	}
}

// Init starts the control queue, creates the denylist caches and the engine
// and warms the platform probe.
func (p *Process) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.control != nil {
		return ErrAlreadyInitialized
	}

	control := taskqueue.New("control")
	caches := hwaccel.Caches{
		Modern: denylist.NewCache("modern", p.opts.Platform, p.opts.Logger),
		Legacy: denylist.NewCache("legacy", p.opts.Platform, p.opts.Logger),
	}
	engine := hwaccel.NewEngine(control, p.opts.Platform, caches, p.opts.Telemetry, p.opts.Logger, p.opts.Settings)

	pixels, err := engine.MaxH264Pixels(ctx)
	if err != nil {
		control.Close()
		return err
	}
	p.control, p.caches, p.engine = control, caches, engine
	p.log.Debug("Process ready, H.264 limit %d pixels", pixels)
	return nil
}

// Engine returns the negotiation engine.
func (p *Process) Engine() (*hwaccel.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return nil, ErrNotInitialized
	}
	return p.engine, nil
}

// Control returns the control queue.
func (p *Process) Control() *taskqueue.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.control
}

// Caches returns the denylist caches.
func (p *Process) Caches() hwaccel.Caches {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caches
}

// DecoderDeps assembles what a decoder.Manager needs from this process.
func (p *Process) DecoderDeps(factory ports.TransformFactory, bridge ports.GPUBridge) (decoder.Deps, error) {
	engine, err := p.Engine()
	if err != nil {
		return decoder.Deps{}, err
	}
	return decoder.Deps{
		Engine:    engine,
		Factory:   factory,
		Bridge:    bridge,
		Telemetry: p.opts.Telemetry,
		Logger:    p.opts.Logger,
		Limits:    p.opts.Limits,
	}, nil
}

// Shutdown clears the denylist caches on the control queue and stops it.
// Decoders must be shut down first. Safe to call more than once.
func (p *Process) Shutdown(ctx context.Context) {
	p.mu.Lock()
	control, caches := p.control, p.caches
	p.control, p.engine = nil, nil
	p.caches = hwaccel.Caches{}
	p.mu.Unlock()
	if control == nil {
		return
	}

	err := taskqueue.Run(ctx, control, func(context.Context) error {
		caches.Modern.Clear()
		caches.Legacy.Clear()
		return nil
	})
	if err != nil {
		p.log.Warn("Clearing denylist caches: %v", err)
	}
	control.Close()
	p.log.Debug("Process shut down")
}
