package sim

import (
	"sync"

	"github.com/lumascope/acquirer/internal/model"
)

// Leech records series notifications. A non-nil failWith makes every
// notification return that error, which the task must ignore.
type Leech struct {
	failWith error

	mu        sync.Mutex
	starts    int
	completes int
	lastData  []model.DataArray
}

func NewLeech(failWith error) *Leech {
	return &Leech{failWith: failWith}
}

func (l *Leech) SeriesStart(streams []model.Stream) error {
	l.mu.Lock()
	l.starts++
	l.mu.Unlock()
	return l.failWith
}

func (l *Leech) SeriesComplete(data []model.DataArray) error {
	l.mu.Lock()
	l.completes++
	l.lastData = data
	l.mu.Unlock()
	return l.failWith
}

func (l *Leech) Starts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

func (l *Leech) Completes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completes
}

func (l *Leech) LastData() []model.DataArray {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastData
}
