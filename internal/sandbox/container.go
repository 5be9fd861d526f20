package sandbox

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/rs/zerolog"

	"gamebattle/arena/internal/stream"
)

// Container is a handle to one running sandbox plus the replayable stream of
// its PTY output. After Stop the handle is unusable.
type Container struct {
	id    string
	image string

	runtime *Runtime
	logger  zerolog.Logger
	output  *stream.Stream[Frame]

	mu      sync.Mutex
	hijack  *types.HijackedResponse
	started bool
	stopped bool
	running bool
}

func newContainer(r *Runtime, id, image string) *Container {
	return &Container{
		id:      id,
		image:   image,
		runtime: r,
		logger:  r.logger.With().Str("container", id).Str("image", image).Logger(),
		output:  stream.New[Frame](),
		running: true,
	}
}

// ID exposes the engine container id.
func (c *Container) ID() string { return c.id }

// Start attaches the PTY bridge and starts the container process. It is
// idempotent; only the first call does work.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	// 1.- Attach before start so no output byte can be missed.
	var hijack types.HijackedResponse
	err := c.runtime.retry(ctx, func() error {
		var aerr error
		hijack, aerr = c.runtime.api.ContainerAttach(ctx, c.id, container.AttachOptions{
			Stream: true,
			Stdin:  true,
			Stdout: true,
			Stderr: true,
			Logs:   true,
		})
		return aerr
	})
	if err != nil {
		c.markNotRunning()
		return err
	}
	c.mu.Lock()
	c.hijack = &hijack
	c.mu.Unlock()

	if err := c.runtime.retry(ctx, func() error {
		return c.runtime.api.ContainerStart(ctx, c.id, container.StartOptions{})
	}); err != nil {
		hijack.Close()
		c.markNotRunning()
		return err
	}

	// 2.- One reader per container owns the stream; everyone else replays.
	go c.pump(hijack.Reader)
	return nil
}

// pump copies PTY bytes into the output stream until EOF, then closes it.
func (c *Container) pump(reader io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if aerr := c.output.Append(Frame{Stream: 1, Data: data, Timestamp: time.Now()}); aerr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	c.markNotRunning()
}

func (c *Container) markNotRunning() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.output.Close()
}

// Running reports whether the sandbox process is still alive.
func (c *Container) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Output exposes the replayable PTY stream.
func (c *Container) Output() *stream.Stream[Frame] { return c.output }

// Send writes bytes to the container's stdin. Once the container has exited
// it degrades to a no-op.
func (c *Container) Send(data []byte) error {
	c.mu.Lock()
	hijack := c.hijack
	alive := c.running
	c.mu.Unlock()
	if hijack == nil || !alive {
		return nil
	}
	_, err := hijack.Conn.Write(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("stdin write failed")
	}
	return nil
}

// Resize adjusts the PTY dimensions. Failures are logged, never fatal.
func (c *Container) Resize(ctx context.Context, cols, rows uint) {
	if err := c.runtime.api.ContainerResize(ctx, c.id, container.ResizeOptions{
		Width:  cols,
		Height: rows,
	}); err != nil {
		c.logger.Debug().Err(err).Msg("resize failed")
	}
}

// Stop force-kills the container, waits for it to exit and removes it. Each
// step independently swallows not-found so repeated stops are harmless.
func (c *Container) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	hijack := c.hijack
	c.hijack = nil
	c.mu.Unlock()

	if hijack != nil {
		hijack.Close()
	}

	if err := c.runtime.api.ContainerKill(ctx, c.id, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) {
		c.logger.Debug().Err(err).Msg("kill failed")
	}

	// Bounded wait; past the deadline we give up and remove anyway.
	waitCtx, cancel := context.WithTimeout(ctx, stopWait)
	defer cancel()
	waitCh, errCh := c.runtime.api.ContainerWait(waitCtx, c.id, container.WaitConditionNotRunning)
	select {
	case <-waitCh:
	case err := <-errCh:
		if err != nil && !errdefs.IsNotFound(err) {
			c.logger.Debug().Err(err).Msg("wait failed")
		}
	case <-waitCtx.Done():
	}

	if err := c.runtime.api.ContainerRemove(ctx, c.id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		c.logger.Debug().Err(err).Msg("remove failed")
	}

	c.markNotRunning()
}
