package fold

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumascope/acquirer/internal/model"
)

// Multi is a combined stream driving several member streams off shared
// hardware in one acquisition. Downstream consumers may hold on to the
// instance, so folding reuses existing Multi values whenever the member
// set is unchanged.
type Multi struct {
	name    string
	kind    model.Kind
	members []model.Stream
}

// NewMulti combines member streams into one acquisition unit. The combined
// stream keeps the members' kind for scheduling.
func NewMulti(kind model.Kind, members []model.Stream) *Multi {
	names := make([]string, len(members))
	for i, s := range members {
		names[i] = s.Name()
	}
	return &Multi{
		name:    fmt.Sprintf("combined(%s)", strings.Join(names, "+")),
		kind:    kind,
		members: members,
	}
}

func (m *Multi) Name() string { return m.name }

func (m *Multi) Kind() model.Kind { return m.kind }

func (m *Multi) Streams() []model.Stream { return m.members }

// Estimate is the longest member estimate. Members share the scan, their
// detectors read out simultaneously.
func (m *Multi) Estimate() time.Duration {
	var max time.Duration
	for _, s := range m.members {
		if e := s.Estimate(); e > max {
			max = e
		}
	}
	return max
}

func (m *Multi) Leeches() []model.Leech {
	seen := make(map[model.Leech]struct{})
	var out []model.Leech
	for _, s := range m.members {
		for _, l := range s.Leeches() {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

func (m *Multi) Raw() []model.DataArray {
	var out []model.DataArray
	for _, s := range m.members {
		out = append(out, s.Raw()...)
	}
	return out
}

func (m *Multi) Focuser() model.Actuator {
	for _, s := range m.members {
		if f := s.Focuser(); f != nil {
			return f
		}
	}
	return nil
}

func (m *Multi) Emitter() model.Component {
	if len(m.members) == 0 {
		return nil
	}
	return m.members[0].Emitter()
}

// Emission is the union of the members' emission bands.
func (m *Multi) Emission() []float64 {
	var out []float64
	for _, s := range m.members {
		if b, ok := s.(model.FluoBands); ok {
			out = append(out, b.Emission()...)
		}
	}
	return out
}

func (m *Multi) Excitation() []float64 {
	var out []float64
	for _, s := range m.members {
		if b, ok := s.(model.FluoBands); ok {
			out = append(out, b.Excitation()...)
		}
	}
	return out
}

func (m *Multi) ExcitationValue() float64 {
	for _, s := range m.members {
		if b, ok := s.(model.FluoBands); ok {
			return b.ExcitationValue()
		}
	}
	return 0
}

// Acquire starts the member acquisitions together and exposes them as a
// single handle. Member outputs keep member order in the combined result.
func (m *Multi) Acquire() model.Acquisition {
	ctx, cancel := context.WithCancel(context.Background())
	a := &multiAcquisition{
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make([]model.Acquisition, len(m.members)),
	}

	g, gctx := errgroup.WithContext(ctx)
	perMember := make([][]model.DataArray, len(m.members))
	for i, s := range m.members {
		sub := s.Acquire()
		a.subs[i] = sub
		g.Go(func() error {
			data, err := sub.Result(gctx)
			if err != nil {
				return fmt.Errorf("member %s: %w", s.Name(), err)
			}
			perMember[i] = data
			return nil
		})
	}

	go func() {
		err := g.Wait()
		a.mu.Lock()
		for _, data := range perMember {
			a.data = append(a.data, data...)
		}
		a.err = err
		a.mu.Unlock()
		close(a.done)
	}()

	return a
}

type multiAcquisition struct {
	cancel context.CancelFunc
	done   chan struct{}
	subs   []model.Acquisition

	mu   sync.Mutex
	data []model.DataArray
	err  error
}

func (a *multiAcquisition) Result(ctx context.Context) ([]model.DataArray, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data, a.err
}

func (a *multiAcquisition) Cancel() bool {
	select {
	case <-a.done:
		return false
	default:
	}
	a.cancel()
	cancelled := false
	for _, sub := range a.subs {
		if sub.Cancel() {
			cancelled = true
		}
	}
	return cancelled
}
