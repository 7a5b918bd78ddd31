package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	acquirer "github.com/lumascope/acquirer"
	"github.com/lumascope/acquirer/internal/log"
	"github.com/lumascope/acquirer/internal/model"
	"github.com/lumascope/acquirer/internal/sim"
)

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("acquirer",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	streams, zLevels, components := buildScenario(config)

	obs := acquirer.NewSettingsObserver(components...)
	defer obs.Close()

	folded := acquirer.Fold(ctx, streams, nil)
	zLevels = remapLevels(folded, zLevels)
	slog.InfoContext(ctx, "starting acquisition",
		"streams", len(folded),
		"estimated", acquirer.EstimateDuration(folded, zLevels).String())

	var job *acquirer.Job
	var err error
	if flagZStack {
		job, err = acquirer.AcquireZStack(ctx, folded, zLevels, acquirer.WithSettingsObserver(obs))
		if err != nil {
			return err
		}
	} else {
		job = acquirer.Acquire(ctx, folded, acquirer.WithSettingsObserver(obs))
	}

	unsub := job.OnProgress(func(end time.Time) {
		slog.InfoContext(ctx, "progress", "estimated_end", end.Format(time.RFC3339Nano))
	})
	defer unsub()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	g, _ := errgroup.WithContext(watchCtx)
	if flagCancelAfter > 0 {
		g.Go(func() error {
			t := time.NewTimer(flagCancelAfter)
			defer t.Stop()
			select {
			case <-watchCtx.Done():
			case <-t.C:
				slog.InfoContext(ctx, "cancelling job", "after", flagCancelAfter.String())
				job.Cancel()
			}
			return nil
		})
	}

	data, jobErr := job.Result(ctx)
	stopWatch()
	_ = g.Wait()

	for i, d := range data {
		slog.InfoContext(ctx, "acquired",
			"index", i,
			"shape", fmt.Sprint(d.Shape),
			"description", d.Metadata[model.KeyDescription])
	}
	if jobErr != nil {
		if len(data) > 0 {
			slog.WarnContext(ctx, "acquisition partially failed", "results", len(data), "error", jobErr)
			return nil
		}
		return jobErr
	}
	slog.InfoContext(ctx, "acquisition complete", "results", len(data))
	return nil
}

// buildScenario turns the yaml scenario into simulated hardware. All fluo
// streams share one light source so compatible scanned-fluo streams fold.
func buildScenario(c model.Config) ([]acquirer.Stream, map[acquirer.Stream][]float64, []acquirer.Component) {
	light := sim.NewComponent("light", map[string]*sim.VA{
		"power":    sim.NewVA(0.2, "W"),
		"exposure": sim.NewVA(0.1, "s"),
	})
	stage := sim.NewComponent("stage", map[string]*sim.VA{
		"speed": sim.NewVA(1.0e-6, "m/s"),
		"alive": sim.NewVA(true, ""),
	})
	focuser := sim.NewFocuser("focus", 10e-6)

	streams := make([]acquirer.Stream, 0, len(c.Streams))
	perStream := make(map[acquirer.Stream][]float64)
	for _, sc := range c.Streams {
		kind, _ := model.ParseKind(sc.Kind) // validated at load
		opts := []sim.StreamOption{
			sim.WithBands(sc.Excitation, sc.Emission),
		}
		if sc.Exposure > 0 {
			opts = append(opts, sim.WithExposure(time.Duration(sc.Exposure*float64(time.Second))))
		}
		switch kind {
		case model.KindFluo, model.KindScannedFluo:
			opts = append(opts, sim.WithEmitter(light))
		case model.KindOverlay:
			opts = append(opts, sim.WithResults(overlayResults))
		}
		if len(sc.ZLevels) > 0 {
			opts = append(opts, sim.WithFocuser(focuser))
		}
		s := sim.NewStream(sc.Name, kind, opts...)
		streams = append(streams, s)
		if len(sc.ZLevels) > 0 {
			perStream[s] = sc.ZLevels
		}
	}
	return streams, perStream, []acquirer.Component{light, stage}
}

// remapLevels moves Z levels keyed by a member stream onto the combined
// stream folding produced for it.
func remapLevels(folded []acquirer.Stream, levels map[acquirer.Stream][]float64) map[acquirer.Stream][]float64 {
	out := make(map[acquirer.Stream][]float64, len(levels))
	for _, s := range folded {
		if lv, ok := levels[s]; ok {
			out[s] = lv
			continue
		}
		ms, ok := s.(acquirer.MultiStream)
		if !ok {
			continue
		}
		for _, m := range ms.Streams() {
			if lv, ok := levels[m]; ok {
				out[s] = lv
				break
			}
		}
	}
	return out
}

// overlayResults emits the two correction outputs a real overlay pass
// would measure: optical first, electron second.
func overlayResults() []model.DataArray {
	opt := model.NewDataArray([]int{1}, []float64{0})
	opt.Metadata[model.KeyOpticalCor] = []float64{12e-9, -5e-9}
	el := model.NewDataArray([]int{1}, []float64{0})
	el.Metadata[model.KeyElectronCor] = []float64{-12e-9, 5e-9}
	return []model.DataArray{opt, el}
}
