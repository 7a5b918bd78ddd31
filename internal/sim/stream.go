package sim

import (
	"context"
	"sync"
	"time"

	"github.com/lumascope/acquirer/internal/model"
)

// Stream is a simulated acquisition stream. Failure injection and custom
// result generators make it usable for every task test scenario.
type Stream struct {
	name       string
	kind       model.Kind
	exposure   time.Duration
	excitation []float64
	emission   []float64
	emitter    model.Component
	focuser    model.Actuator
	leeches    []model.Leech
	shape      []int

	failWith error
	results  func() []model.DataArray

	mu  sync.Mutex
	raw []model.DataArray
}

type StreamOption func(*Stream)

func WithExposure(d time.Duration) StreamOption {
	return func(s *Stream) { s.exposure = d }
}

// WithBands sets the excitation and emission wavelengths, meters.
func WithBands(excitation, emission []float64) StreamOption {
	return func(s *Stream) {
		s.excitation = excitation
		s.emission = emission
	}
}

func WithEmitter(c model.Component) StreamOption {
	return func(s *Stream) { s.emitter = c }
}

func WithFocuser(f model.Actuator) StreamOption {
	return func(s *Stream) { s.focuser = f }
}

func WithLeech(l model.Leech) StreamOption {
	return func(s *Stream) { s.leeches = append(s.leeches, l) }
}

// WithFailure makes every acquisition fail with err.
func WithFailure(err error) StreamOption {
	return func(s *Stream) { s.failWith = err }
}

// WithResults overrides the generated data. Returning nil simulates a
// malformed sub-result.
func WithResults(fn func() []model.DataArray) StreamOption {
	return func(s *Stream) { s.results = fn }
}

func WithShape(shape []int) StreamOption {
	return func(s *Stream) { s.shape = shape }
}

func NewStream(name string, kind model.Kind, opts ...StreamOption) *Stream {
	s := &Stream{
		name:     name,
		kind:     kind,
		exposure: 100 * time.Millisecond,
		shape:    []int{4, 4},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) Kind() model.Kind { return s.kind }

func (s *Stream) Estimate() time.Duration { return s.exposure }

func (s *Stream) Leeches() []model.Leech { return s.leeches }

func (s *Stream) Focuser() model.Actuator { return s.focuser }

func (s *Stream) Emitter() model.Component { return s.emitter }

func (s *Stream) Emission() []float64   { return s.emission }
func (s *Stream) Excitation() []float64 { return s.excitation }

func (s *Stream) ExcitationValue() float64 {
	if len(s.excitation) == 0 {
		return 0
	}
	return s.excitation[0]
}

func (s *Stream) Raw() []model.DataArray {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DataArray(nil), s.raw...)
}

// Acquire simulates one exposure in the background and returns a
// progress-reporting handle.
func (s *Stream) Acquire() model.Acquisition {
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	h := &handle{
		start:  start,
		end:    start.Add(s.exposure),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		t := time.NewTimer(s.exposure)
		defer t.Stop()
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.err = model.ErrCancelled
			h.mu.Unlock()
			return
		case <-t.C:
		}

		if s.failWith != nil {
			h.mu.Lock()
			h.err = s.failWith
			h.mu.Unlock()
			return
		}

		data := s.makeData()
		s.mu.Lock()
		s.raw = append(s.raw, data...)
		s.mu.Unlock()
		h.mu.Lock()
		h.data = data
		h.mu.Unlock()
	}()

	return h
}

func (s *Stream) makeData() []model.DataArray {
	if s.results != nil {
		return s.results()
	}
	n := 1
	for _, d := range s.shape {
		n *= d
	}
	d := model.NewDataArray(append([]int(nil), s.shape...), make([]float64, n))
	if len(s.emission) > 0 {
		d.Metadata[model.KeyEmission] = append([]float64(nil), s.emission...)
	}
	if len(s.excitation) > 0 {
		d.Metadata[model.KeyExcitation] = append([]float64(nil), s.excitation...)
	}
	return []model.DataArray{d}
}

// handle is the sub-acquisition future of a simulated stream.
type handle struct {
	start  time.Time
	end    time.Time
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	data []model.DataArray
	err  error
}

func (h *handle) Result(ctx context.Context) ([]model.DataArray, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data, h.err
}

func (h *handle) Cancel() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	h.cancel()
	return true
}

// OnProgress reports the estimated time range once, on subscription. The
// simulation has no better knowledge while exposing.
func (h *handle) OnProgress(fn func(start, end time.Time)) func() {
	fn(h.start, h.end)
	return func() {}
}
