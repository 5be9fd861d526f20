// Package game binds a catalogue entry to a running sandbox and exposes the
// operations the session layer and the WebSocket bridge need.
package game

import (
	"context"
	"sync"

	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/sandbox"
	"gamebattle/arena/internal/stream"
)

// Instance is the slice of a sandbox container the game layer drives.
// *sandbox.Container satisfies it; tests substitute fakes.
type Instance interface {
	Start(ctx context.Context) error
	Send(data []byte) error
	Resize(ctx context.Context, cols, rows uint)
	Output() *stream.Stream[sandbox.Frame]
	Running() bool
	Stop(ctx context.Context)
}

// Runtime creates sandbox instances from an image tag.
type Runtime interface {
	Create(ctx context.Context, image string, limits sandbox.Limits) (Instance, error)
}

// Public is the game view exposed to voters: no team identity leaks.
type Public struct {
	Name string `json:"name"`
	Over bool   `json:"over"`
}

// Game is one running container plus its metadata. A game is owned by
// exactly one session and is destroyed with it.
type Game struct {
	meta    games.Meta
	runtime Runtime
	limits  sandbox.Limits

	mu       sync.Mutex
	instance Instance
}

// Start creates and boots a container for the given metadata.
func Start(ctx context.Context, meta games.Meta, runtime Runtime, limits sandbox.Limits) (*Game, error) {
	instance, err := runtime.Create(ctx, meta.ImageTag(), limits)
	if err != nil {
		return nil, err
	}
	if err := instance.Start(ctx); err != nil {
		return nil, err
	}
	return &Game{meta: meta, runtime: runtime, limits: limits, instance: instance}, nil
}

// Meta returns the game's catalogue entry.
func (g *Game) Meta() games.Meta { return g.meta }

func (g *Game) current() Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.instance
}

// Send forwards bytes to the game's stdin.
func (g *Game) Send(data []byte) error {
	return g.current().Send(data)
}

// Resize adjusts the PTY dimensions; best effort.
func (g *Game) Resize(ctx context.Context, cols, rows uint) {
	g.current().Resize(ctx, cols, rows)
}

// Receive opens a subscription over the merged stdout/stderr frames,
// replaying history before live output.
func (g *Game) Receive() *stream.Subscription[sandbox.Frame] {
	return g.current().Output().Subscribe()
}

// AccumulatedOutput concatenates everything the game has printed so far.
func (g *Game) AccumulatedOutput() []byte {
	var out []byte
	for _, frame := range g.current().Output().Accumulated() {
		out = append(out, frame.Data...)
	}
	return out
}

// Frames snapshots every output frame the game has produced so far.
func (g *Game) Frames() []sandbox.Frame {
	return g.current().Output().Accumulated()
}

// Restart stops the current container and boots a fresh one. Observers of
// the previous Receive see their stream close; a new subscription starts
// from the new container's first byte.
func (g *Game) Restart(ctx context.Context) error {
	g.current().Stop(ctx)
	instance, err := g.runtime.Create(ctx, g.meta.ImageTag(), g.limits)
	if err != nil {
		return err
	}
	if err := instance.Start(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.instance = instance
	g.mu.Unlock()
	return nil
}

// Stop terminates the game's container. Terminal.
func (g *Game) Stop(ctx context.Context) {
	g.current().Stop(ctx)
}

// Running reports whether the underlying container is alive.
func (g *Game) Running() bool {
	return g.current().Running()
}

// PublicView renders the voter-facing description of the game.
func (g *Game) PublicView() Public {
	return Public{Name: g.meta.Name, Over: !g.Running()}
}
