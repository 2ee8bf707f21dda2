package preview

import (
	"context"

	"github.com/echoflaresat/orbitview/loop"
	"github.com/echoflaresat/orbitview/orbit"
	"github.com/echoflaresat/orbitview/render"
)

// Surface names used in routes and metrics.
const (
	SurfacePrimary   = "primary"
	SurfaceSatellite = "satellite"
)

// Animation is what the preview server controls.
type Animation interface {
	Toggle(ctx context.Context) (loop.State, error)
	State() loop.State
	Resize(ctx context.Context, width, height int) error
	// Frame returns the latest frame of a surface, or nil.
	Frame(surface string) *render.Frame
}

// LoopAnimation drives an orbit.System through the loop that owns it. All
// mutation is handed to the loop goroutine.
type LoopAnimation struct {
	Loop   *loop.Loop
	System *orbit.System
}

func (a LoopAnimation) Toggle(ctx context.Context) (loop.State, error) {
	return a.Loop.Toggle(ctx)
}

func (a LoopAnimation) State() loop.State {
	return a.Loop.State()
}

func (a LoopAnimation) Resize(ctx context.Context, width, height int) error {
	var err error
	if doErr := a.Loop.Do(ctx, func() { err = a.System.Resize(width, height) }); doErr != nil {
		return doErr
	}
	return err
}

func (a LoopAnimation) Frame(surface string) *render.Frame {
	switch surface {
	case SurfacePrimary:
		return a.System.Primary.Frame()
	case SurfaceSatellite:
		return a.System.Secondary.Frame()
	}
	return nil
}
