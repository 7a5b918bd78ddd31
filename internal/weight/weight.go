// Package weight orders streams for acquisition. Sensitive imaging modes
// run first (fluorescence bleaches, so longest emission wavelength goes
// before shorter, overlapping ones), corrective passes run last.
package weight

import (
	"context"
	"log/slog"
	"slices"

	"github.com/lumascope/acquirer/internal/model"
)

const (
	wFluo        = 100
	wOptical     = 90
	wFLIM        = 85
	wElectron    = 50
	wSEMCompound = 40
	wOverlay     = 10
)

// Weight returns the scheduling priority of a stream, higher runs earlier.
func Weight(ctx context.Context, s model.Stream) float64 {
	switch s.Kind() {
	case model.KindFluo, model.KindScannedFluo:
		return wFluo + fluoBonus(ctx, s)
	case model.KindOptical:
		return wOptical
	case model.KindFLIM:
		return wFLIM
	case model.KindElectron:
		return wElectron
	case model.KindSEMCompound:
		return wSEMCompound
	case model.KindOverlay:
		return wOverlay
	default:
		slog.WarnContext(ctx, "unexpected stream kind, scheduling last",
			"stream", s.Name(), "kind", s.Kind().String())
		return 0
	}
}

// fluoBonus derives a small additive bonus from the emission wavelength
// center so that longer wavelengths are acquired first. A broadband
// emission filter has no single center, then the excitation wavelength
// plus a 50 nm Stokes-shift guess is used instead. A broadband excitation
// on top of that leaves no physical basis at all, the first listed value
// is picked, any stable choice would do.
func fluoBonus(ctx context.Context, s model.Stream) float64 {
	b, ok := s.(model.FluoBands)
	if !ok {
		slog.WarnContext(ctx, "fluo stream without band info",
			"stream", s.Name())
		return 0
	}

	em := b.Emission()
	if len(em) == 1 {
		return em[0] * 1e6
	}

	ex := b.Excitation()
	if len(ex) == 0 {
		return 0
	}
	return (ex[0] + 50e-9) * 1e6
}

// SortStreams returns the streams ordered by descending weight. The sort
// is stable, equal weights keep their input order.
func SortStreams(ctx context.Context, streams []model.Stream) []model.Stream {
	out := append([]model.Stream(nil), streams...)
	slices.SortStableFunc(out, func(a, b model.Stream) int {
		wa, wb := Weight(ctx, a), Weight(ctx, b)
		switch {
		case wa > wb:
			return -1
		case wa < wb:
			return 1
		default:
			return 0
		}
	})
	return out
}
