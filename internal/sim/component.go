// Package sim is a small simulated microscope: components with tunable
// settings, a focus actuator with finite speed and streams of every kind.
// It stands in for the real driver back-end in the CLI demo and the tests.
package sim

import (
	"sync"

	"github.com/lumascope/acquirer/internal/model"
)

// VA is a tunable setting with change notification.
type VA struct {
	unit string

	mu    sync.Mutex
	value any
	subs  map[int]func(any)
	next  int
}

func NewVA(value any, unit string) *VA {
	return &VA{
		unit:  unit,
		value: value,
		subs:  make(map[int]func(any)),
	}
}

func (v *VA) Value() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

func (v *VA) Unit() string { return v.unit }

func (v *VA) Subscribe(fn func(any)) func() {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

// Set changes the value and notifies subscribers from the caller's
// goroutine, like a hardware notification would.
func (v *VA) Set(value any) {
	v.mu.Lock()
	v.value = value
	subs := make([]func(any), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn(value)
	}
}

// Component is a named bag of VAs.
type Component struct {
	name string
	vas  map[string]*VA
}

func NewComponent(name string, vas map[string]*VA) *Component {
	return &Component{name: name, vas: vas}
}

func (c *Component) Name() string { return c.name }

func (c *Component) VAs() map[string]model.VA {
	out := make(map[string]model.VA, len(c.vas))
	for n, v := range c.vas {
		out[n] = v
	}
	return out
}

// VA gives tests direct access to one setting.
func (c *Component) VA(name string) *VA {
	return c.vas[name]
}
