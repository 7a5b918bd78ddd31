// Package task runs a prioritized list of streams as one sequential,
// cancellable acquisition. Streams are never acquired in parallel, they
// typically contend for the same detector or scanning beam.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumascope/acquirer/internal/log"
	"github.com/lumascope/acquirer/internal/model"
	"github.com/lumascope/acquirer/internal/reconcile"
	"github.com/lumascope/acquirer/internal/snapshot"
	"github.com/lumascope/acquirer/internal/weight"
)

// Option configures a Task.
type Option func(*Task)

// WithSettingsObserver makes the task stamp every acquired data array with
// a deep copy of the current hardware settings.
func WithSettingsObserver(c *snapshot.Collector) Option {
	return func(t *Task) { t.snap = c }
}

// WithProgress registers a callback receiving the re-estimated end time of
// the whole acquisition whenever it changes.
func WithProgress(fn func(end time.Time)) Option {
	return func(t *Task) { t.progress = fn }
}

// Task acquires streams sequentially in priority order. Create with New,
// run once with Run. Cancel may be called from any goroutine.
type Task struct {
	snap     *snapshot.Collector
	progress func(end time.Time)

	// perStream acquires one stream completely. The Z-stack variant
	// replaces it.
	perStream func(ctx context.Context, s model.Stream) ([]model.DataArray, error)

	total time.Duration

	mu        sync.Mutex
	state     State
	current   model.Acquisition
	streams   []model.Stream
	left      map[model.Stream]struct{}
	estimates map[model.Stream]time.Duration
	remaining time.Duration
}

// New sorts the streams by weight and takes each stream's static time
// estimate, once, up front. Estimates are only refreshed mid-run through
// sub-acquisition progress callbacks.
func New(ctx context.Context, streams []model.Stream, opts ...Option) *Task {
	t := &Task{
		state:     StateRunning,
		streams:   weight.SortStreams(ctx, streams),
		left:      make(map[model.Stream]struct{}, len(streams)),
		estimates: make(map[model.Stream]time.Duration, len(streams)),
	}
	t.perStream = t.acquireStream
	for _, s := range t.streams {
		t.left[s] = struct{}{}
		e := s.Estimate()
		t.estimates[s] = e
		t.total += e
	}
	t.remaining = t.total
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EstimatedDuration is the total expected duration computed at
// construction.
func (t *Task) EstimatedDuration() time.Duration {
	return t.total
}

// Run acquires every stream in order and returns the flattened results.
// A failure on the very first stream is fatal and returns no results; a
// later failure stops the run but returns everything collected so far
// together with the error. Cancellation, whether through Cancel or through
// ctx, returns model.ErrCancelled alone.
func (t *Task) Run(ctx context.Context) ([]model.DataArray, error) {
	defer t.clear()

	streams := t.streams
	t.notifySeriesStart(ctx, streams)

	rs := &reconcile.ResultSet{}
	var acqErr error

	for i, s := range streams {
		if t.cancelledNow() {
			return nil, model.ErrCancelled
		}
		if ctx.Err() != nil {
			t.markCancelled()
			return nil, model.ErrCancelled
		}
		sctx := log.ContextAttrs(ctx, slog.String("stream", s.Name()))
		slog.DebugContext(sctx, "acquiring stream")
		data, err := t.perStream(sctx, s)
		if err != nil {
			if errors.Is(err, model.ErrCancelled) {
				return nil, model.ErrCancelled
			}
			// A failure caused by the run context going away is a
			// cancellation, not a stream fault.
			if ctx.Err() != nil {
				t.markCancelled()
				return nil, model.ErrCancelled
			}
			if i == 0 {
				return nil, fmt.Errorf("acquiring stream %s: %w", s.Name(), err)
			}
			acqErr = fmt.Errorf("acquiring stream %s: %w", s.Name(), err)
			slog.WarnContext(sctx, "stream acquisition failed, keeping partial results",
				"error", err, "collected", len(rs.Entries()))
			break
		}
		rs.Append(s, data)
	}

	if acqErr == nil {
		t.notifySeriesComplete(ctx, streams)
	}

	reconcile.Reconcile(ctx, rs)
	return rs.Flatten(), acqErr
}

// Cancel requests the task to stop and forwards the request to the
// currently running sub-acquisition, if any. It reports false only when
// forwarding failed and no stream was left un-started, meaning the task
// had effectively already completed.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateCancelled
	}
	current := t.current
	leftCount := len(t.left)
	t.mu.Unlock()

	forwarded := false
	if current != nil {
		forwarded = current.Cancel()
	}
	return forwarded || leftCount > 0
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) cancelledNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateCancelled
}

func (t *Task) markCancelled() {
	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateCancelled
	}
	t.mu.Unlock()
}

// acquireStream is the default perStream: one acquisition per stream.
func (t *Task) acquireStream(ctx context.Context, s model.Stream) ([]model.DataArray, error) {
	data, err := t.acquireOnce(ctx, s)
	if err != nil {
		return nil, err
	}
	t.consume(t.estimates[s])
	return data, nil
}

// acquireOnce starts one sub-acquisition, waits for it and applies the
// settings stamp. It maps any failure observed while the task is
// cancelled to model.ErrCancelled.
func (t *Task) acquireOnce(ctx context.Context, s model.Stream) ([]model.DataArray, error) {
	t.mu.Lock()
	if t.state == StateCancelled {
		t.mu.Unlock()
		return nil, model.ErrCancelled
	}
	acq := s.Acquire()
	t.current = acq
	delete(t.left, s)
	t.mu.Unlock()

	var unsub func()
	if p, ok := acq.(model.Progressive); ok && t.progress != nil {
		unsub = p.OnProgress(func(_, end time.Time) {
			t.onSubProgress(acq, end)
		})
	}

	data, err := acq.Result(ctx)

	if unsub != nil {
		unsub()
	}
	t.mu.Lock()
	if t.current == acq {
		t.current = nil
	}
	cancelled := t.state == StateCancelled
	t.mu.Unlock()

	if cancelled {
		return nil, model.ErrCancelled
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		slog.WarnContext(ctx, "sub-acquisition returned no data, treating as empty")
		data = []model.DataArray{}
	}
	t.stampSettings(data)
	return data, nil
}

// onSubProgress recomputes the whole-task end estimate from a
// sub-acquisition update: the sub's own end plus the static estimates of
// every stream not yet started. Updates from a handle that is no longer
// current, or arriving after the task is done, are ignored, such races are
// expected while futures transition.
func (t *Task) onSubProgress(from model.Acquisition, end time.Time) {
	t.mu.Lock()
	if t.state != StateRunning || t.current != from {
		t.mu.Unlock()
		return
	}
	var rem time.Duration
	for s := range t.left {
		rem += t.estimates[s]
	}
	t.mu.Unlock()
	t.progress(end.Add(rem))
}

// consume subtracts a completed chunk from the remaining-time estimate and
// republishes the end time.
func (t *Task) consume(d time.Duration) {
	t.mu.Lock()
	t.remaining -= d
	if t.remaining < 0 {
		t.remaining = 0
	}
	end := time.Now().Add(t.remaining)
	publish := t.progress != nil && t.state == StateRunning
	t.mu.Unlock()
	if publish {
		t.progress(end)
	}
}

func (t *Task) stampSettings(data []model.DataArray) {
	if t.snap == nil {
		return
	}
	settings := t.snap.GetAllSettings()
	for i := range data {
		if data[i].Metadata == nil {
			data[i].Metadata = make(map[model.MetadataKey]any, 1)
		}
		data[i].Metadata[model.KeyExtraSettings] = model.CopySettings(settings)
	}
}

func (t *Task) notifySeriesStart(ctx context.Context, streams []model.Stream) {
	for _, s := range streams {
		for _, l := range s.Leeches() {
			if err := l.SeriesStart(streams); err != nil {
				slog.WarnContext(ctx, "leech failed on series start, ignoring",
					"stream", s.Name(), "error", err)
			}
		}
	}
}

func (t *Task) notifySeriesComplete(ctx context.Context, streams []model.Stream) {
	for _, s := range streams {
		for _, l := range s.Leeches() {
			if err := l.SeriesComplete(s.Raw()); err != nil {
				slog.WarnContext(ctx, "leech failed on series completion, ignoring",
					"stream", s.Name(), "error", err)
			}
		}
	}
}

// clear drops every stream and hardware reference the task holds, whatever
// the outcome. The caller's streams must not be retained once Run exits.
func (t *Task) clear() {
	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateFinished
	}
	t.current = nil
	t.streams = nil
	t.left = nil
	t.estimates = nil
	t.mu.Unlock()
}
