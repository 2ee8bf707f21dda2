package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// State of the animation.
type State int32

const (
	Running State = iota
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrStopped = errors.New("loop: stopped")

// FrameFunc draws one frame for the given time since the loop started.
type FrameFunc func(ctx context.Context, elapsed time.Duration) error

// FrameInfo describes a finished frame.
type FrameInfo struct {
	Seq      uint64
	Elapsed  time.Duration
	Duration time.Duration // wall time spent in the FrameFunc
}

type Options struct {
	Clock  Clock  // defaults to WallClock
	Ticker Ticker // required
	// MaxFrames stops the loop after that many frames; 0 runs until the
	// context ends.
	MaxFrames uint64
	// RebaseOnResume shifts the start time by the paused interval so the
	// animation resumes where it stopped. Off by default: paused wall time
	// counts toward elapsed time.
	RebaseOnResume bool
	Logger         *slog.Logger
}

// Loop is the single scheduler of the animation. All frame work and every
// command run on the goroutine that calls Run, one at a time.
type Loop struct {
	opts  Options
	frame FrameFunc
	hooks []func(context.Context, FrameInfo) error
	log   *slog.Logger

	cmds  chan func()
	done  chan struct{}
	state atomic.Int32

	origin   time.Time
	pausedAt time.Time
	frames   uint64
}

func New(frame FrameFunc, opts Options) *Loop {
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		opts:  opts,
		frame: frame,
		log:   log.With("component", "loop"),
		cmds:  make(chan func()),
		done:  make(chan struct{}),
	}
}

// OnFrame registers fn to run after every frame. Hooks must be registered
// before Run; an error from a hook stops the loop.
func (l *Loop) OnFrame(fn func(context.Context, FrameInfo) error) {
	l.hooks = append(l.hooks, fn)
}

// State may be read from any goroutine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Do runs fn on the loop goroutine between frames and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Toggle flips between RUNNING and PAUSED and returns the new state.
func (l *Loop) Toggle(ctx context.Context) (State, error) {
	var s State
	err := l.Do(ctx, func() { s = l.toggle() })
	return s, err
}

func (l *Loop) toggle() State {
	now := l.opts.Clock.Now()
	if l.State() == Running {
		l.pausedAt = now
		l.state.Store(int32(Paused))
		l.log.Info("paused", "frames", l.frames)
		return Paused
	}

	if l.opts.RebaseOnResume {
		l.origin = l.origin.Add(now.Sub(l.pausedAt))
	}
	l.state.Store(int32(Running))
	l.log.Info("resumed", "frames", l.frames, "paused_for", now.Sub(l.pausedAt))
	return Running
}

// Run starts in RUNNING and calls the frame func on every tick until ctx
// ends, MaxFrames frames are drawn, or a frame or hook fails. Paused ticks
// are dropped. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.opts.Ticker.Stop()

	l.origin = l.opts.Clock.Now()
	l.state.Store(int32(Running))
	l.log.Debug("started", "origin", l.origin, "max_frames", l.opts.MaxFrames)

	for {
		select {
		case <-ctx.Done():
			l.log.Debug("stopped", "frames", l.frames)
			return nil
		case cmd := <-l.cmds:
			cmd()
		case tick := <-l.opts.Ticker.C():
			if l.State() != Running {
				continue
			}
			if err := l.step(ctx, tick.Sub(l.origin)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if l.opts.MaxFrames > 0 && l.frames >= l.opts.MaxFrames {
				l.log.Debug("frame limit reached", "frames", l.frames)
				return nil
			}
		}
	}
}

func (l *Loop) step(ctx context.Context, elapsed time.Duration) error {
	start := time.Now()
	if err := l.frame(ctx, elapsed); err != nil {
		return fmt.Errorf("frame %d: %w", l.frames+1, err)
	}
	l.frames++

	info := FrameInfo{Seq: l.frames, Elapsed: elapsed, Duration: time.Since(start)}
	for _, hook := range l.hooks {
		if err := hook(ctx, info); err != nil {
			return fmt.Errorf("frame %d: %w", info.Seq, err)
		}
	}
	return nil
}
