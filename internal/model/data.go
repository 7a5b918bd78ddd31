package model

import "time"

// MetadataKey identifies one entry of a DataArray metadata map. The string
// values are stable identifiers, shared with exporters and the GUI.
type MetadataKey string

const (
	KeyAcqDate       MetadataKey = "Acquisition date"
	KeyDescription   MetadataKey = "Description"
	KeyExtraSettings MetadataKey = "Extra settings"
	KeyOpticalCor    MetadataKey = "Optical correction"
	KeyElectronCor   MetadataKey = "Electron correction"
	KeyZPositions    MetadataKey = "Z positions"
	KeyExcitation    MetadataKey = "Excitation wavelength"
	KeyEmission      MetadataKey = "Emission wavelength"
	KeyDwellTime     MetadataKey = "Dwell time"
)

// DataArray is one raw acquisition output: an n-dimensional sample block
// plus its metadata. The sample payload is opaque to the coordinator, only
// the metadata map is ever inspected or amended.
type DataArray struct {
	Shape    []int
	Samples  []float64
	Metadata map[MetadataKey]any
}

// NewDataArray allocates a DataArray stamped with the acquisition date.
func NewDataArray(shape []int, samples []float64) DataArray {
	return DataArray{
		Shape:   shape,
		Samples: samples,
		Metadata: map[MetadataKey]any{
			KeyAcqDate: time.Now(),
		},
	}
}

// Clone returns a deep copy, metadata included.
func (d DataArray) Clone() DataArray {
	out := DataArray{
		Shape:    append([]int(nil), d.Shape...),
		Samples:  append([]float64(nil), d.Samples...),
		Metadata: CopyMetadata(d.Metadata),
	}
	return out
}

// CopyMetadata copies a metadata map one level deep, plus any nested
// settings map stored under a key. Values other than maps are assumed
// immutable once stored.
func CopyMetadata(md map[MetadataKey]any) map[MetadataKey]any {
	if md == nil {
		return nil
	}
	out := make(map[MetadataKey]any, len(md))
	for k, v := range md {
		switch m := v.(type) {
		case map[string]map[string][2]any:
			out[k] = CopySettings(m)
		default:
			out[k] = v
		}
	}
	return out
}

// MergeMetadata copies entries of src into dst unless dst already holds the
// key. dst wins on conflicts, it is a merge, not an overwrite.
func MergeMetadata(dst, src map[MetadataKey]any) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// Settings is the shape of a hardware settings snapshot:
// component name -> va name -> [value, unit].
type Settings = map[string]map[string][2]any

// CopySettings deep-copies a settings snapshot.
func CopySettings(s Settings) Settings {
	out := make(Settings, len(s))
	for comp, vas := range s {
		cp := make(map[string][2]any, len(vas))
		for name, vu := range vas {
			cp[name] = vu
		}
		out[comp] = cp
	}
	return out
}
