package task

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/lumascope/acquirer/internal/model"
)

// ZStackTask acquires selected streams once per focus level and assembles
// the slices into one Z-cube result per stream. Streams without levels, or
// with a single one, behave exactly as in a plain Task.
type ZStackTask struct {
	*Task
	levels    map[model.Stream][]float64
	singleEst map[model.Stream]time.Duration
	moveEst   map[model.Stream]time.Duration
}

// NewZStack builds a Z-stack task. Every key of levels must be present in
// streams.
func NewZStack(ctx context.Context, streams []model.Stream, levels map[model.Stream][]float64, opts ...Option) (*ZStackTask, error) {
	known := make(map[model.Stream]struct{}, len(streams))
	for _, s := range streams {
		known[s] = struct{}{}
	}
	for s := range levels {
		if _, ok := known[s]; !ok {
			return nil, fmt.Errorf("z levels given for stream %s which is not acquired", s.Name())
		}
	}

	z := &ZStackTask{
		Task:      New(ctx, streams, opts...),
		levels:    levels,
		singleEst: make(map[model.Stream]time.Duration, len(levels)),
		moveEst:   make(map[model.Stream]time.Duration, len(levels)),
	}
	z.perStream = z.acquireZStream

	for s, lv := range levels {
		// Streams without a focuser fall back to a single acquisition, so
		// their estimate stays flat.
		if len(lv) <= 1 || s.Focuser() == nil {
			continue
		}
		z.singleEst[s] = z.estimates[s]
		// One move estimate per stream, taken from the spacing of the
		// first two levels.
		z.moveEst[s] = s.Focuser().EstimateMove(math.Abs(lv[1] - lv[0]))
		n := time.Duration(len(lv))
		extra := z.estimates[s]*(n-1) + z.moveEst[s]*(n-1)
		z.estimates[s] += extra
		z.total += extra
		z.remaining += extra
	}
	return z, nil
}

// acquireZStream acquires one stream at every listed focus level and
// returns a single combined Z-cube.
func (z *ZStackTask) acquireZStream(ctx context.Context, s model.Stream) ([]model.DataArray, error) {
	levels := z.levels[s]
	if len(levels) <= 1 {
		return z.acquireStream(ctx, s)
	}
	focuser := s.Focuser()
	if focuser == nil {
		slog.WarnContext(ctx, "z stack requested for stream without focuser, acquiring a single level",
			"levels", len(levels))
		return z.acquireStream(ctx, s)
	}

	var slices []model.DataArray
	for i, pos := range levels {
		if z.cancelledNow() {
			return nil, model.ErrCancelled
		}
		if err := focuser.MoveAbs(ctx, pos); err != nil {
			return nil, fmt.Errorf("moving %s to %g m: %w", focuser.Name(), pos, err)
		}
		if z.cancelledNow() {
			return nil, model.ErrCancelled
		}

		data, err := z.acquireOnce(ctx, s)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			slog.WarnContext(ctx, "empty slice at focus level", "position", pos)
		}
		slices = append(slices, data...)

		z.consume(z.singleEst[s])
		if i < len(levels)-1 {
			z.consume(z.moveEst[s])
		}
	}

	if len(slices) == 0 {
		return []model.DataArray{}, nil
	}
	return []model.DataArray{assembleCube(slices, levels)}, nil
}

// assembleCube stacks the slices along a new leading axis. Metadata comes
// from the first slice, plus the focus positions.
func assembleCube(slices []model.DataArray, levels []float64) model.DataArray {
	shape := append([]int{len(slices)}, slices[0].Shape...)
	var samples []float64
	for _, s := range slices {
		samples = append(samples, s.Samples...)
	}
	md := model.CopyMetadata(slices[0].Metadata)
	if md == nil {
		md = make(map[model.MetadataKey]any, 1)
	}
	md[model.KeyZPositions] = append([]float64(nil), levels...)
	return model.DataArray{Shape: shape, Samples: samples, Metadata: md}
}
