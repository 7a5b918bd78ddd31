// Package reconcile post-processes a finished acquisition. The overlay
// pass exists only to measure fine-alignment corrections; its output is
// folded into the sibling optical and electron data and then dropped.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/lumascope/acquirer/internal/model"
)

// Entry pairs a stream with the data it produced.
type Entry struct {
	Stream model.Stream
	Data   []model.DataArray
}

// ResultSet is the ordered stream -> data mapping built during a run.
// Order is acquisition order and is preserved through reconciliation.
type ResultSet struct {
	entries []Entry
}

func (r *ResultSet) Append(s model.Stream, data []model.DataArray) {
	r.entries = append(r.entries, Entry{Stream: s, Data: data})
}

func (r *ResultSet) Entries() []Entry {
	return r.entries
}

// Flatten concatenates the per-stream data in acquisition order.
func (r *ResultSet) Flatten() []model.DataArray {
	var out []model.DataArray
	for _, e := range r.entries {
		out = append(out, e.Data...)
	}
	return out
}

// Reconcile applies the overlay corrections and stamps missing
// descriptions, in place. Reconciliation never fails, problems are logged
// and the rest of the pipeline proceeds without the correction.
func Reconcile(ctx context.Context, rs *ResultSet) {
	opticalCor, electronCor := extractOverlay(ctx, rs)

	for _, e := range rs.entries {
		var cor map[model.MetadataKey]any
		switch e.Stream.Kind() {
		case model.KindFluo, model.KindScannedFluo, model.KindOptical, model.KindFLIM:
			cor = opticalCor
		case model.KindElectron, model.KindSEMCompound:
			cor = electronCor
		}
		for i := range e.Data {
			if e.Data[i].Metadata == nil {
				e.Data[i].Metadata = make(map[model.MetadataKey]any, 1)
			}
			if cor != nil {
				// Merge, existing keys win over the correction.
				model.MergeMetadata(e.Data[i].Metadata, cor)
			}
			if _, ok := e.Data[i].Metadata[model.KeyDescription]; !ok {
				e.Data[i].Metadata[model.KeyDescription] = e.Stream.Name()
			}
		}
	}
}

// extractOverlay removes the overlay entry from the set and returns its
// two correction metadata maps (optical, electron). Either may be nil when
// no usable overlay output exists.
func extractOverlay(ctx context.Context, rs *ResultSet) (optical, electron map[model.MetadataKey]any) {
	idx := -1
	for i, e := range rs.entries {
		if e.Stream.Kind() != model.KindOverlay {
			continue
		}
		if idx >= 0 {
			slog.WarnContext(ctx, "several overlay streams acquired, using the last one",
				"previous", rs.entries[idx].Stream.Name(),
				"using", e.Stream.Name())
		}
		idx = i
	}
	if idx < 0 {
		return nil, nil
	}

	overlay := rs.entries[idx]
	rs.entries = append(rs.entries[:idx], rs.entries[idx+1:]...)

	if len(overlay.Data) < 2 {
		slog.WarnContext(ctx, "overlay stream produced no correction data, skipping alignment",
			"stream", overlay.Stream.Name(), "outputs", len(overlay.Data))
		return nil, nil
	}
	return overlay.Data[0].Metadata, overlay.Data[1].Metadata
}
