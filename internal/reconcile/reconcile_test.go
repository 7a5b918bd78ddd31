package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumascope/acquirer/internal/model"
	"github.com/lumascope/acquirer/internal/reconcile"
	"github.com/lumascope/acquirer/internal/sim"
)

func array(md map[model.MetadataKey]any) model.DataArray {
	d := model.NewDataArray([]int{2, 2}, make([]float64, 4))
	for k, v := range md {
		d.Metadata[k] = v
	}
	return d
}

func TestReconcilePropagatesCorrections(t *testing.T) {
	t.Parallel()

	fluo := sim.NewStream("fluo", model.KindFluo)
	em := sim.NewStream("em", model.KindElectron)
	overlay := sim.NewStream("overlay", model.KindOverlay)

	optCor := array(map[model.MetadataKey]any{
		model.KeyOpticalCor: []float64{1e-9, 2e-9},
		model.KeyDwellTime:  42.0, // must not clobber the target's value
	})
	elCor := array(map[model.MetadataKey]any{
		model.KeyElectronCor: []float64{-1e-9, -2e-9},
	})

	rs := &reconcile.ResultSet{}
	rs.Append(fluo, []model.DataArray{array(map[model.MetadataKey]any{
		model.KeyDwellTime: 7.0,
	})})
	rs.Append(em, []model.DataArray{array(nil)})
	rs.Append(overlay, []model.DataArray{optCor, elCor})

	reconcile.Reconcile(t.Context(), rs)

	entries := rs.Entries()
	require.Len(t, entries, 2, "overlay entry must be dropped")
	require.Same(t, fluo, entries[0].Stream)
	require.Same(t, em, entries[1].Stream)

	fluoMD := entries[0].Data[0].Metadata
	assert.Equal(t, []float64{1e-9, 2e-9}, fluoMD[model.KeyOpticalCor])
	assert.Equal(t, 7.0, fluoMD[model.KeyDwellTime], "existing keys win over the correction")
	assert.NotContains(t, fluoMD, model.KeyElectronCor)

	emMD := entries[1].Data[0].Metadata
	assert.Equal(t, []float64{-1e-9, -2e-9}, emMD[model.KeyElectronCor])
	assert.NotContains(t, emMD, model.KeyOpticalCor)
}

func TestReconcileUsesLastOverlay(t *testing.T) {
	t.Parallel()

	em := sim.NewStream("em", model.KindElectron)
	ov1 := sim.NewStream("ov1", model.KindOverlay)
	ov2 := sim.NewStream("ov2", model.KindOverlay)

	rs := &reconcile.ResultSet{}
	rs.Append(em, []model.DataArray{array(nil)})
	rs.Append(ov1, []model.DataArray{
		array(map[model.MetadataKey]any{model.KeyOpticalCor: "old"}),
		array(map[model.MetadataKey]any{model.KeyElectronCor: "old"}),
	})
	rs.Append(ov2, []model.DataArray{
		array(map[model.MetadataKey]any{model.KeyOpticalCor: "new"}),
		array(map[model.MetadataKey]any{model.KeyElectronCor: "new"}),
	})

	reconcile.Reconcile(t.Context(), rs)

	// Only the last overlay is dropped and applied, the first stays as a
	// regular entry.
	entries := rs.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].Data[0].Metadata[model.KeyElectronCor])
}

func TestReconcileWithoutOverlayStillStampsDescriptions(t *testing.T) {
	t.Parallel()

	em := sim.NewStream("sem-survey", model.KindElectron)
	rs := &reconcile.ResultSet{}
	rs.Append(em, []model.DataArray{array(nil)})

	reconcile.Reconcile(t.Context(), rs)
	assert.Equal(t, "sem-survey", rs.Entries()[0].Data[0].Metadata[model.KeyDescription])
}

func TestReconcileAcceptsNilMetadata(t *testing.T) {
	t.Parallel()

	em := sim.NewStream("em", model.KindElectron)
	overlay := sim.NewStream("overlay", model.KindOverlay)

	rs := &reconcile.ResultSet{}
	// A zero DataArray carries no metadata map at all.
	rs.Append(em, []model.DataArray{{Shape: []int{2}, Samples: []float64{1, 2}}})
	rs.Append(overlay, []model.DataArray{
		array(map[model.MetadataKey]any{model.KeyElectronCor: "cor"}),
		array(map[model.MetadataKey]any{model.KeyElectronCor: "cor"}),
	})

	reconcile.Reconcile(t.Context(), rs)

	md := rs.Entries()[0].Data[0].Metadata
	require.NotNil(t, md)
	assert.Equal(t, "cor", md[model.KeyElectronCor])
	assert.Equal(t, "em", md[model.KeyDescription])
}

func TestReconcileKeepsExistingDescription(t *testing.T) {
	t.Parallel()

	em := sim.NewStream("em", model.KindElectron)
	rs := &reconcile.ResultSet{}
	rs.Append(em, []model.DataArray{array(map[model.MetadataKey]any{
		model.KeyDescription: "user label",
	})})

	reconcile.Reconcile(t.Context(), rs)
	assert.Equal(t, "user label", rs.Entries()[0].Data[0].Metadata[model.KeyDescription])
}

func TestReconcileOverlayWithoutData(t *testing.T) {
	t.Parallel()

	fluo := sim.NewStream("fluo", model.KindFluo)
	overlay := sim.NewStream("overlay", model.KindOverlay)

	rs := &reconcile.ResultSet{}
	rs.Append(fluo, []model.DataArray{array(nil)})
	rs.Append(overlay, []model.DataArray{array(nil)}) // one output, two needed

	reconcile.Reconcile(t.Context(), rs)

	entries := rs.Entries()
	require.Len(t, entries, 1, "a broken overlay is still dropped")
	assert.NotContains(t, entries[0].Data[0].Metadata, model.KeyOpticalCor)
}

func TestFlattenPreservesAcquisitionOrder(t *testing.T) {
	t.Parallel()

	a := sim.NewStream("a", model.KindFluo)
	b := sim.NewStream("b", model.KindElectron)

	first := array(nil)
	second := array(nil)
	third := array(nil)

	rs := &reconcile.ResultSet{}
	rs.Append(a, []model.DataArray{first, second})
	rs.Append(b, []model.DataArray{third})

	flat := rs.Flatten()
	require.Len(t, flat, 3)
	assert.Equal(t, first.Metadata[model.KeyAcqDate], flat[0].Metadata[model.KeyAcqDate])
}
