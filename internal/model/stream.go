package model

import (
	"context"
	"time"
)

// Kind classifies a stream for scheduling purposes. It is attached at
// stream construction, classification is always a switch on Kind, never a
// probe of the concrete type.
type Kind int

const (
	KindUnknown Kind = iota
	KindFluo
	KindScannedFluo
	KindOptical
	KindFLIM
	KindElectron
	KindSEMCompound
	KindOverlay
)

func (k Kind) String() string {
	switch k {
	case KindFluo:
		return "fluo"
	case KindScannedFluo:
		return "scanned-fluo"
	case KindOptical:
		return "optical"
	case KindFLIM:
		return "flim"
	case KindElectron:
		return "electron"
	case KindSEMCompound:
		return "sem-compound"
	case KindOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// Stream is the capability contract of one imaging acquisition unit. The
// coordinator never owns a stream, it only holds references for the
// duration of one task.
type Stream interface {
	Name() string
	Kind() Kind
	// Estimate returns the expected duration of one Acquire call.
	Estimate() time.Duration
	// Acquire starts one acquisition and returns its handle. The hardware
	// work happens behind the handle, Acquire itself must not block.
	Acquire() Acquisition
	Leeches() []Leech
	// Raw is the data acquired so far, used for leech completion reports.
	Raw() []DataArray
	// Focuser is the focus actuator, nil when the stream has none.
	Focuser() Actuator
	// Emitter is the light/beam source component, nil when unknown.
	Emitter() Component
}

// FluoBands is implemented by fluorescence streams. Wavelengths are in
// meters. A single-element slice means a narrow band, several elements a
// broadband filter.
type FluoBands interface {
	Emission() []float64
	Excitation() []float64
	// ExcitationValue is the currently selected excitation setting, used
	// as the fold compatibility key.
	ExcitationValue() float64
}

// MultiStream is implemented by combined streams built by folding.
type MultiStream interface {
	Stream
	Streams() []Stream
}

// Acquisition is the handle of one running sub-acquisition.
type Acquisition interface {
	// Result blocks until the acquisition completes or ctx is done.
	Result(ctx context.Context) ([]DataArray, error)
	// Cancel requests the acquisition to stop. It reports false when the
	// acquisition had already completed.
	Cancel() bool
}

// Progressive is implemented by acquisition handles able to report an
// updated time range estimate while running. OnProgress returns an
// unsubscribe function.
type Progressive interface {
	Acquisition
	OnProgress(func(start, end time.Time)) (unsubscribe func())
}

// Leech observes a whole multi-stream acquisition series. Errors returned
// here are logged and ignored, a leech can never abort an acquisition.
type Leech interface {
	SeriesStart(streams []Stream) error
	SeriesComplete(data []DataArray) error
}

// Actuator is a positioner, used for focus (Z) moves. Positions are
// absolute, in meters.
type Actuator interface {
	Name() string
	MoveAbs(ctx context.Context, pos float64) error
	// EstimateMove returns the expected duration of a move over delta.
	EstimateMove(delta float64) time.Duration
	Position() float64
}

// Component is a hardware component exposing tunable settings.
type Component interface {
	Name() string
	VAs() map[string]VA
}

// VA is one tunable hardware setting (a "vigilant attribute"). Subscribe
// registers a listener called with the new value on every change and
// returns an unsubscribe function. Listeners may be called from arbitrary
// hardware notification goroutines.
type VA interface {
	Value() any
	Unit() string
	Subscribe(func(value any)) (unsubscribe func())
}
