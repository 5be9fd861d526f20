package sandbox

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

type notFoundErr struct{}

func (notFoundErr) Error() string { return "no such container" }
func (notFoundErr) NotFound()     {}

var _ errdefs.ErrNotFound = notFoundErr{}

// fakeDaemon implements dockerAPI in-memory, serving the attach bridge over
// a net.Pipe so the pump reads real bytes.
type fakeDaemon struct {
	mu          sync.Mutex
	createErrs  int
	created     int
	started     int
	killed      []string
	removed     []string
	resizes     int
	missing     bool
	daemonSide  net.Conn
	clientSide  net.Conn
	waitRelease chan struct{}
}

func newFakeDaemon() *fakeDaemon {
	daemonSide, clientSide := net.Pipe()
	return &fakeDaemon{
		daemonSide:  daemonSide,
		clientSide:  clientSide,
		waitRelease: make(chan struct{}),
	}
}

func (f *fakeDaemon) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrs > 0 {
		f.createErrs--
		return container.CreateResponse{}, errors.New("dial tcp: connection refused")
	}
	f.created++
	if !config.Tty || !config.OpenStdin {
		return container.CreateResponse{}, errors.New("expected tty with open stdin")
	}
	return container.CreateResponse{ID: "ctr-1"}, nil
}

func (f *fakeDaemon) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeDaemon) ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error) {
	return types.HijackedResponse{Conn: f.clientSide, Reader: bufio.NewReader(f.clientSide)}, nil
}

func (f *fakeDaemon) ContainerResize(ctx context.Context, containerID string, options container.ResizeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes++
	return nil
}

func (f *fakeDaemon) ContainerKill(ctx context.Context, containerID, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return notFoundErr{}
	}
	f.killed = append(f.killed, signal)
	f.daemonSide.Close()
	return nil
}

func (f *fakeDaemon) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		waitCh <- container.WaitResponse{StatusCode: 137}
	}()
	return waitCh, errCh
}

func (f *fakeDaemon) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return notFoundErr{}
	}
	f.removed = append(f.removed, containerID)
	return nil
}

func TestCreateRetriesTransientFailureOnce(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.createErrs = 1
	rt := NewRuntimeWithAPI(daemon)

	if _, err := rt.Create(context.Background(), "gamebattle-alpha", Limits{MemoryBytes: 1 << 20, CPUNanos: 1}); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if daemon.created != 1 {
		t.Fatalf("expected exactly one successful create, got %d", daemon.created)
	}
}

func TestCreateSurfacesRuntimeUnavailableAfterRetry(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.createErrs = 2
	rt := NewRuntimeWithAPI(daemon)

	_, err := rt.Create(context.Background(), "gamebattle-alpha", Limits{})
	if err == nil {
		t.Fatal("expected persistent failure to surface")
	}
}

func TestOutputPumpDeliversBytesAndClosesOnEOF(t *testing.T) {
	daemon := newFakeDaemon()
	rt := NewRuntimeWithAPI(daemon)

	ctr, err := rt.Create(context.Background(), "gamebattle-alpha", Limits{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ctr.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	//1.- Feed PTY bytes from the daemon side and observe them via replay.
	go func() {
		_, _ = daemon.daemonSide.Write([]byte("hello"))
		daemon.daemonSide.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames := ctr.Output().Subscribe().Drain(ctx)

	var got []byte
	for _, frame := range frames {
		got = append(got, frame.Data...)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", string(got))
	}

	//2.- EOF must mark the container not running and end future sends.
	deadline := time.Now().Add(time.Second)
	for ctr.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ctr.Running() {
		t.Fatal("expected the container to be marked not running after EOF")
	}
	if err := ctr.Send([]byte("late")); err != nil {
		t.Fatalf("send after exit must be a no-op, got %v", err)
	}
}

func TestStopSwallowsNotFoundAndIsIdempotent(t *testing.T) {
	daemon := newFakeDaemon()
	rt := NewRuntimeWithAPI(daemon)

	ctr, err := rt.Create(context.Background(), "gamebattle-alpha", Limits{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ctr.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	daemon.missing = true
	ctr.Stop(context.Background())
	ctr.Stop(context.Background())

	if ctr.Running() {
		t.Fatal("expected stopped container to report not running")
	}
	if !ctr.Output().Closed() {
		t.Fatal("expected the output stream to be closed after stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	daemon := newFakeDaemon()
	rt := NewRuntimeWithAPI(daemon)

	ctr, err := rt.Create(context.Background(), "gamebattle-alpha", Limits{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ctr.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := ctr.Start(context.Background()); err != nil {
		t.Fatalf("second start must be a no-op, got %v", err)
	}
	if daemon.started != 1 {
		t.Fatalf("expected one engine start, got %d", daemon.started)
	}
}
