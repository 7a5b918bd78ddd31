package sim

import (
	"context"
	"math"
	"sync"
	"time"
)

// Focuser is a simulated focus actuator moving at a fixed speed.
type Focuser struct {
	name  string
	speed float64 // m/s

	mu  sync.Mutex
	pos float64
}

func NewFocuser(name string, speed float64) *Focuser {
	return &Focuser{name: name, speed: speed}
}

func (f *Focuser) Name() string { return f.name }

func (f *Focuser) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *Focuser) EstimateMove(delta float64) time.Duration {
	return time.Duration(math.Abs(delta) / f.speed * float64(time.Second))
}

// MoveAbs blocks for the duration of the move, or until ctx is done.
func (f *Focuser) MoveAbs(ctx context.Context, pos float64) error {
	f.mu.Lock()
	d := f.EstimateMove(pos - f.pos)
	f.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	f.mu.Lock()
	f.pos = pos
	f.mu.Unlock()
	return nil
}
