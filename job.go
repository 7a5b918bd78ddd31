package acquirer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumascope/acquirer/internal/model"
)

// Job is the handle of one running acquisition: a cancellable,
// progress-reporting future over (results, error). A Job is created by
// Acquire or AcquireZStack, is terminal once the run completes or is
// cancelled, and is not reusable.
type Job struct {
	id       uuid.UUID
	canceler interface{ Cancel() bool }
	done     chan struct{}

	mu      sync.Mutex
	end     time.Time
	subs    map[int]func(end time.Time)
	nextSub int
	results []model.DataArray
	err     error
}

func newJob() *Job {
	return &Job{
		id:   uuid.New(),
		done: make(chan struct{}),
		subs: make(map[int]func(time.Time)),
	}
}

// ID identifies the job in logs.
func (j *Job) ID() uuid.UUID { return j.id }

// Cancel requests the acquisition to stop. It reports false when the
// acquisition had already completed.
func (j *Job) Cancel() bool {
	return j.canceler.Cancel()
}

// Done reports whether the job has terminated.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Result blocks until the job terminates or ctx is done. A non-nil error
// alongside non-empty results is a partial success, callers must check
// both.
func (j *Job) Result(ctx context.Context) ([]model.DataArray, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results, j.err
}

// EstimatedEnd is the latest estimate of when the acquisition finishes.
func (j *Job) EstimatedEnd() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.end
}

// OnProgress registers a callback invoked with every new end estimate and
// returns an unsubscribe function.
func (j *Job) OnProgress(fn func(end time.Time)) (unsubscribe func()) {
	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = fn
	j.mu.Unlock()
	return func() {
		j.mu.Lock()
		delete(j.subs, id)
		j.mu.Unlock()
	}
}

func (j *Job) publish(end time.Time) {
	j.mu.Lock()
	j.end = end
	subs := make([]func(time.Time), 0, len(j.subs))
	for _, fn := range j.subs {
		subs = append(subs, fn)
	}
	j.mu.Unlock()
	for _, fn := range subs {
		fn(end)
	}
}

func (j *Job) finish(results []model.DataArray, err error) {
	j.mu.Lock()
	j.results = results
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
