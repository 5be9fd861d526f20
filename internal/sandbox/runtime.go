// Package sandbox drives per-game containers through the Docker Engine API:
// create, start, PTY attach, resize and kill. Attached output is multiplexed
// into a replayable stream so every observer sees identical bytes.
package sandbox

import (
	"context"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/logging"
)

// stopWait bounds how long Stop waits for a killed container to exit.
const stopWait = 10 * time.Second

// Frame is one chunk of PTY output. With a TTY allocated the engine merges
// stderr onto the stdout channel, so Stream is 1 for everything the process
// writes.
type Frame struct {
	Stream    int
	Data      []byte
	Timestamp time.Time
}

// Limits carries the resource caps applied to every sandbox.
type Limits struct {
	MemoryBytes int64
	CPUNanos    int64
}

// dockerAPI is the narrow slice of the engine client the runtime needs;
// tests substitute a fake.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerResize(ctx context.Context, containerID string, options container.ResizeOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Runtime creates and supervises game sandboxes.
type Runtime struct {
	api    dockerAPI
	logger zerolog.Logger
}

// NewRuntime connects to the local Docker daemon.
func NewRuntime() (*Runtime, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(fault.ErrRuntimeUnavailable, err.Error())
	}
	return &Runtime{api: api, logger: logging.Component("sandbox")}, nil
}

// NewRuntimeWithAPI wires an explicit engine client; used by tests.
func NewRuntimeWithAPI(api dockerAPI) *Runtime {
	return &Runtime{api: api, logger: logging.Component("sandbox")}
}

// retry runs op and retries exactly once on transient failures. Not-found
// and context errors are surfaced immediately.
func (r *Runtime) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || errdefs.IsNotFound(err) || ctx.Err() != nil {
		return err
	}
	r.logger.Warn().Err(err).Msg("daemon call failed, retrying once")
	if err = op(); err != nil {
		return errors.Wrap(fault.ErrRuntimeUnavailable, err.Error())
	}
	return nil
}

// Create builds a container from an image tag with a TTY allocated, stdin
// open and resource limits applied. The image must already exist.
func (r *Runtime) Create(ctx context.Context, image string, limits Limits) (*Container, error) {
	cfg := &container.Config{
		Image:        image,
		Tty:          true,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}
	host := &container.HostConfig{
		Resources: container.Resources{
			Memory:   limits.MemoryBytes,
			NanoCPUs: limits.CPUNanos,
		},
	}

	var created container.CreateResponse
	err := r.retry(ctx, func() error {
		var cerr error
		created, cerr = r.api.ContainerCreate(ctx, cfg, host, nil, nil, "")
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return newContainer(r, created.ID, image), nil
}
