package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/user/remotevideo/pkg/actor"
	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/transfer"
)

// serveExitTimeout bounds how long a remote decoder may take to exit after
// its stdin is closed.
const serveExitTimeout = 5 * time.Second

// SpawnFunc starts a remote decoder and returns the stream to it. wait
// blocks until the remote side has exited.
type SpawnFunc func(ctx context.Context, cfg Config) (conn io.ReadWriteCloser, wait func() error, err error)

// session is a connected child manager and how to tear it down.
type session struct {
	mgr   *actor.ManagerChild
	close func() error
}

func (o *Orchestrator) connect(ctx context.Context, cfg Config) (*session, error) {
	if cfg.Remote {
		return o.connectRemote(ctx, cfg)
	}
	return o.connectLocal()
}

// connectLocal runs the decoder side in this process over a direct link.
func (o *Orchestrator) connectLocal() (*session, error) {
	if o.deps.Process == nil {
		return nil, ErrNoProcess
	}
	deps, err := o.deps.Process.DecoderDeps(o.deps.Factory, o.deps.Bridge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProcess, err)
	}
	childLink, parentLink := actor.NewDirectPair()
	parent, err := actor.NewManagerParent(parentLink, deps)
	if err != nil {
		return nil, err
	}
	mgr, err := actor.NewManagerChild(childLink, o.deps.Logger)
	if err != nil {
		_ = parent.Close()
		return nil, err
	}
	o.log.Debug("Decoding in process")
	return &session{
		mgr: mgr,
		close: func() error {
			return errors.Join(mgr.Close(), parent.Close())
		},
	}, nil
}

// connectRemote starts a serve subprocess and talks to it over a stream link.
func (o *Orchestrator) connectRemote(ctx context.Context, cfg Config) (*session, error) {
	conn, wait, err := o.deps.Spawn(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("start remote decoder: %w", err)
	}
	link := actor.NewStreamLink(conn, transfer.NewShmAllocator(cfg.ShmDir), o.deps.Logger)
	mgr, err := actor.NewManagerChild(link, o.deps.Logger)
	if err != nil {
		_ = conn.Close()
		_ = wait()
		return nil, err
	}
	o.log.Debug("Decoding in a remote process")
	return &session{
		mgr: mgr,
		close: func() error {
			return errors.Join(mgr.Close(), wait())
		},
	}, nil
}

// SpawnServe runs cfg.ServeCommand with its stdin and stdout as the stream.
// Its stderr is passed through. Cancelling ctx kills the subprocess.
func SpawnServe(ctx context.Context, cfg Config) (io.ReadWriteCloser, func() error, error) {
	if len(cfg.ServeCommand) == 0 {
		return nil, nil, errors.New("orchestrator: no serve command")
	}
	cmd := exec.CommandContext(ctx, cfg.ServeCommand[0], cfg.ServeCommand[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	wait := func() error {
		timer := time.AfterFunc(serveExitTimeout, func() { _ = cmd.Process.Kill() })
		defer timer.Stop()
		return cmd.Wait()
	}
	return JoinConn(stdout, stdin), wait, nil
}

// JoinConn combines a read and a write stream into one connection. Close
// closes both.
func JoinConn(r io.ReadCloser, w io.WriteCloser) io.ReadWriteCloser {
	return &joinedConn{r: r, w: w}
}

type joinedConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (c *joinedConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *joinedConn) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *joinedConn) Close() error {
	return errors.Join(c.w.Close(), c.r.Close())
}

// Serve runs the decoder side of a remote session over conn until the peer
// disconnects or ctx is cancelled. Regions for decoded frames are created
// in shm.
func Serve(ctx context.Context, conn io.ReadWriteCloser, shm *transfer.ShmAllocator, deps decoder.Deps) error {
	link := actor.NewStreamLink(conn, shm, deps.Logger)
	mgr, err := actor.NewManagerParent(link, deps)
	if err != nil {
		_ = conn.Close()
		return err
	}
	log := deps.Logger.WithComponent("serve")
	log.Info("Serving decoders")
	select {
	case <-mgr.Done():
		log.Info("Peer disconnected")
	case <-ctx.Done():
		log.Info("Stopping: %v", ctx.Err())
	}
	return mgr.Close()
}
