package task_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumascope/acquirer/internal/model"
	"github.com/lumascope/acquirer/internal/sim"
	"github.com/lumascope/acquirer/internal/task"
)

func TestZStackProducesOneCubePerStream(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		focuser := sim.NewFocuser("focus", 10e-6)
		fluo := sim.NewStream("fluo", model.KindFluo,
			sim.WithFocuser(focuser),
			sim.WithShape([]int{4, 4}),
			sim.WithBands(nil, []float64{650e-9}))
		levels := []float64{0.0, 1.0e-6, 2.0e-6}

		tk, err := task.NewZStack(t.Context(), []model.Stream{fluo},
			map[model.Stream][]float64{fluo: levels})
		require.NoError(t, err)

		data, err := tk.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, data, 1, "three slices must fold into one cube")

		cube := data[0]
		assert.Equal(t, []int{3, 4, 4}, cube.Shape)
		assert.Len(t, cube.Samples, 3*16)
		assert.Equal(t, levels, cube.Metadata[model.KeyZPositions])
		assert.Equal(t, 2.0e-6, focuser.Position(), "focuser ends at the last level")
	})
}

func TestZStackSingleLevelBehavesLikePlainAcquisition(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		focuser := sim.NewFocuser("focus", 10e-6)
		em := sim.NewStream("em", model.KindElectron, sim.WithFocuser(focuser))

		tk, err := task.NewZStack(t.Context(), []model.Stream{em},
			map[model.Stream][]float64{em: {5e-6}})
		require.NoError(t, err)

		data, err := tk.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, data, 1)
		assert.Equal(t, []int{4, 4}, data[0].Shape, "no cube for a single level")
		assert.NotContains(t, data[0].Metadata, model.KeyZPositions)
		assert.Equal(t, 0.0, focuser.Position(), "a single level incurs no move")
	})
}

func TestZStackMixesWithPlainStreams(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		focuser := sim.NewFocuser("focus", 10e-6)
		fluo := sim.NewStream("fluo", model.KindFluo,
			sim.WithFocuser(focuser), sim.WithBands(nil, []float64{650e-9}))
		em := sim.NewStream("em", model.KindElectron)

		tk, err := task.NewZStack(t.Context(), []model.Stream{em, fluo},
			map[model.Stream][]float64{fluo: {0, 1e-6}})
		require.NoError(t, err)

		data, err := tk.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, data, 2)
		// Priority order holds, the cube sits where its stream would.
		assert.Equal(t, "fluo", data[0].Metadata[model.KeyDescription])
		assert.Equal(t, []int{2, 4, 4}, data[0].Shape)
		assert.Equal(t, "em", data[1].Metadata[model.KeyDescription])
	})
}

func TestZStackRejectsUnknownStream(t *testing.T) {
	t.Parallel()

	em := sim.NewStream("em", model.KindElectron)
	ghost := sim.NewStream("ghost", model.KindElectron)

	_, err := task.NewZStack(t.Context(), []model.Stream{em},
		map[model.Stream][]float64{ghost: {0, 1e-6}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestZStackEstimateIncludesMoves(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		// 10 um/s over 1 um steps: 100 ms per step.
		focuser := sim.NewFocuser("focus", 10e-6)
		fluo := sim.NewStream("fluo", model.KindFluo,
			sim.WithFocuser(focuser),
			sim.WithExposure(time.Second),
			sim.WithBands(nil, []float64{650e-9}))

		tk, err := task.NewZStack(t.Context(), []model.Stream{fluo},
			map[model.Stream][]float64{fluo: {0, 1e-6, 2e-6}})
		require.NoError(t, err)

		want := 3*time.Second + 2*100*time.Millisecond
		assert.Equal(t, want, tk.EstimatedDuration())
	})
}

func TestZStackWithoutFocuserKeepsFlatEstimate(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		em := sim.NewStream("em", model.KindElectron,
			sim.WithExposure(time.Second))

		tk, err := task.NewZStack(t.Context(), []model.Stream{em},
			map[model.Stream][]float64{em: {0, 1e-6, 2e-6}})
		require.NoError(t, err)

		// No focuser means a single acquisition, the estimate must match.
		assert.Equal(t, time.Second, tk.EstimatedDuration())

		start := time.Now()
		data, err := tk.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, data, 1)
		assert.Equal(t, []int{4, 4}, data[0].Shape)
		assert.Equal(t, time.Second, time.Since(start))
	})
}

func TestZStackCancelBetweenLevels(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		focuser := sim.NewFocuser("focus", 1e-6) // slow, 1 s per um
		fluo := sim.NewStream("fluo", model.KindFluo,
			sim.WithFocuser(focuser),
			sim.WithExposure(time.Second),
			sim.WithBands(nil, []float64{650e-9}))

		tk, err := task.NewZStack(t.Context(), []model.Stream{fluo},
			map[model.Stream][]float64{fluo: {0, 1e-6, 2e-6}})
		require.NoError(t, err)

		type outcome struct {
			data []model.DataArray
			err  error
		}
		done := make(chan outcome, 1)
		go func() {
			data, rerr := tk.Run(t.Context())
			done <- outcome{data, rerr}
		}()

		// Cancel while the focuser crawls towards the second level. The
		// flag is checked again right after the move completes.
		time.Sleep(1200 * time.Millisecond)
		tk.Cancel()

		out := <-done
		require.ErrorIs(t, out.err, model.ErrCancelled)
		assert.Empty(t, out.data)
	})
}

func TestZStackFocuserFailureAbortsStream(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		boom := errors.New("stage stuck")
		focuser := &failingActuator{err: boom}
		em := sim.NewStream("em", model.KindElectron)
		fluo := sim.NewStream("fluo", model.KindFluo,
			sim.WithFocuser(focuser), sim.WithBands(nil, []float64{650e-9}))

		tk, err := task.NewZStack(t.Context(), []model.Stream{fluo, em},
			map[model.Stream][]float64{fluo: {0, 1e-6}})
		require.NoError(t, err)

		data, err := tk.Run(t.Context())
		require.ErrorIs(t, err, boom, "fluo runs first, its focuser failure is fatal")
		assert.Empty(t, data)
	})
}

type failingActuator struct {
	err error
}

func (f *failingActuator) Name() string      { return "broken-focus" }
func (f *failingActuator) Position() float64 { return 0 }

func (f *failingActuator) EstimateMove(delta float64) time.Duration {
	return time.Millisecond
}

func (f *failingActuator) MoveAbs(ctx context.Context, pos float64) error {
	return f.err
}
