// Package fold merges streams that can share hardware into combined
// acquisition units. Scanned fluorescence streams driven by the same
// scanner with the same excitation setting become one multi-channel
// stream; time-correlated streams are always wrapped individually.
package fold

import (
	"context"
	"log/slog"

	"github.com/lumascope/acquirer/internal/model"
)

type foldKey struct {
	emitter    model.Component
	excitation float64
}

// Fold groups compatible streams into combined streams. reuse holds
// combined streams from a previous fold; a group whose membership is
// unchanged gets the previous instance back, object identity matters to
// consumers watching the stream.
//
// Output order is not significant, callers re-sort by weight.
func Fold(ctx context.Context, streams []model.Stream, reuse []model.Stream) []model.Stream {
	var out []model.Stream

	groups := make(map[foldKey][]model.Stream)
	var order []foldKey // deterministic construction order

	for _, s := range streams {
		switch s.Kind() {
		case model.KindScannedFluo:
			b, ok := s.(model.FluoBands)
			if !ok || s.Emitter() == nil {
				slog.WarnContext(ctx, "scanned-fluo stream not foldable, passing through",
					"stream", s.Name())
				out = append(out, s)
				continue
			}
			k := foldKey{emitter: s.Emitter(), excitation: b.ExcitationValue()}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], s)
		case model.KindFLIM:
			// Always 1:1, the remote time correlator wants its own unit.
			out = append(out, combined(model.KindFLIM, []model.Stream{s}, reuse))
		default:
			out = append(out, s)
		}
	}

	for _, k := range order {
		out = append(out, combined(model.KindScannedFluo, groups[k], reuse))
	}
	return out
}

// combined returns a reused Multi whose member set equals members, or a
// freshly built one.
func combined(kind model.Kind, members []model.Stream, reuse []model.Stream) model.Stream {
	want := make(map[model.Stream]struct{}, len(members))
	for _, s := range members {
		want[s] = struct{}{}
	}

	for _, r := range reuse {
		ms, ok := r.(model.MultiStream)
		if !ok || r.Kind() != kind {
			continue
		}
		prev := ms.Streams()
		if len(prev) != len(want) {
			continue
		}
		match := true
		for _, s := range prev {
			if _, ok := want[s]; !ok {
				match = false
				break
			}
		}
		if match {
			return r
		}
	}

	return NewMulti(kind, members)
}
