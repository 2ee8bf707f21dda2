package loop

import (
	"sync"
	"time"
)

// Clock is the time source the loop measures elapsed time against.
type Clock interface {
	Now() time.Time
}

// Ticker delivers one value per frame slot.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// WallClock reads the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

type wallTicker struct {
	t *time.Ticker
}

// NewTicker returns a ticker firing fps times per second.
func NewTicker(fps float64) Ticker {
	interval := time.Duration(float64(time.Second) / fps)
	return &wallTicker{t: time.NewTicker(interval)}
}

func (w *wallTicker) C() <-chan time.Time { return w.t.C }
func (w *wallTicker) Stop()               { w.t.Stop() }

// StepClock is a deterministic Clock and Ticker for offline rendering. A
// tick is always ready and carries a time exactly one step after the
// previous one, so frame k sees an elapsed time of k*step.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
	ch   chan time.Time
}

func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{
		now:  start,
		step: step,
		ch:   make(chan time.Time, 1),
	}
}

// StepForFPS is the frame step of a display refreshing fps times a second.
func StepForFPS(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / fps)
}

func (s *StepClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// C returns a channel holding the next tick. The clock advances when a tick
// is queued, not when C is called again with one still pending.
func (s *StepClock) C() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ch) == 0 {
		s.now = s.now.Add(s.step)
		s.ch <- s.now
	}
	return s.ch
}

func (s *StepClock) Stop() {}
