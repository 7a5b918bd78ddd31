// Package acquirer coordinates the acquisition of several independent
// imaging streams into one ordered, cancellable, progress-reporting job.
// Streams are acquired strictly sequentially, in priority order, because
// sibling streams usually share the detector or the scanning beam.
package acquirer

import (
	"context"
	"math"
	"time"

	"github.com/lumascope/acquirer/internal/fold"
	"github.com/lumascope/acquirer/internal/log"
	"github.com/lumascope/acquirer/internal/model"
	"github.com/lumascope/acquirer/internal/snapshot"
	"github.com/lumascope/acquirer/internal/task"
	"github.com/lumascope/acquirer/internal/weight"
)

// Contracts consumed and produced by the coordinator.
type (
	Stream      = model.Stream
	MultiStream = model.MultiStream
	DataArray   = model.DataArray
	MetadataKey = model.MetadataKey
	Leech       = model.Leech
	Actuator    = model.Actuator
	Component   = model.Component
	VA          = model.VA
	Kind        = model.Kind
)

const (
	KindFluo        = model.KindFluo
	KindScannedFluo = model.KindScannedFluo
	KindOptical     = model.KindOptical
	KindFLIM        = model.KindFLIM
	KindElectron    = model.KindElectron
	KindSEMCompound = model.KindSEMCompound
	KindOverlay     = model.KindOverlay
)

// ErrCancelled is the outcome of a cancelled job.
var ErrCancelled = model.ErrCancelled

// SettingsObserver tracks the tunable settings of hardware components so
// results can be stamped with provenance metadata.
type SettingsObserver = snapshot.Collector

// NewSettingsObserver starts observing the given components. Close it once
// the acquisition is over.
func NewSettingsObserver(components ...Component) *SettingsObserver {
	return snapshot.NewCollector(components...)
}

// Option configures Acquire and AcquireZStack.
type Option func(*options)

type options struct {
	snap *snapshot.Collector
}

// WithSettingsObserver stamps every acquired data array with a deep copy
// of the observed settings.
func WithSettingsObserver(c *SettingsObserver) Option {
	return func(o *options) { o.snap = c }
}

// SortStreams orders streams for acquisition: bleaching-sensitive
// fluorescence first, overlay calibration last.
func SortStreams(ctx context.Context, streams []Stream) []Stream {
	return weight.SortStreams(ctx, streams)
}

// Fold merges streams that can share hardware into combined streams,
// reusing instances from a previous fold whose membership is unchanged.
func Fold(ctx context.Context, streams []Stream, reuse []Stream) []Stream {
	return fold.Fold(ctx, streams, reuse)
}

// Acquire starts acquiring the streams in the background and returns the
// job handle. ctx bounds the whole run, cancelling it behaves like
// Job.Cancel.
func Acquire(ctx context.Context, streams []Stream, opts ...Option) *Job {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	j := newJob()
	runCtx := log.WithJob(ctx, j.id)

	t := task.New(runCtx, streams, taskOptions(o, j)...)
	j.canceler = t
	j.publish(time.Now().Add(t.EstimatedDuration()))

	go func() {
		j.finish(t.Run(runCtx))
	}()
	return j
}

// AcquireZStack behaves like Acquire, but streams listed in zLevels are
// acquired once per focus position and their slices are assembled into a
// single Z-cube result. Every key of zLevels must be in streams.
func AcquireZStack(ctx context.Context, streams []Stream, zLevels map[Stream][]float64, opts ...Option) (*Job, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	j := newJob()
	runCtx := log.WithJob(ctx, j.id)

	t, err := task.NewZStack(runCtx, streams, zLevels, taskOptions(o, j)...)
	if err != nil {
		return nil, err
	}
	j.canceler = t
	j.publish(time.Now().Add(t.EstimatedDuration()))

	go func() {
		j.finish(t.Run(runCtx))
	}()
	return j, nil
}

func taskOptions(o options, j *Job) []task.Option {
	topts := []task.Option{task.WithProgress(j.publish)}
	if o.snap != nil {
		topts = append(topts, task.WithSettingsObserver(o.snap))
	}
	return topts
}

// EstimateDuration is the expected duration of an Acquire or AcquireZStack
// call over the given streams: per-stream estimate times the level count,
// plus the focuser steps between levels.
func EstimateDuration(streams []Stream, zLevels map[Stream][]float64) time.Duration {
	var total time.Duration
	for _, s := range streams {
		e := s.Estimate()
		lv := zLevels[s]
		f := s.Focuser()
		// Without a focuser only a single level is acquired.
		if len(lv) <= 1 || f == nil {
			total += e
			continue
		}
		total += e * time.Duration(len(lv))
		total += time.Duration(len(lv)-1) * f.EstimateMove(math.Abs(lv[1]-lv[0]))
	}
	return total
}
