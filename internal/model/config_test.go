package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumascope/acquirer/internal/model"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	const scenario = `
version: 0
streams:
  - name: gfp
    kind: scanned-fluo
    excitation: [488.0e-9]
    emission: [525.0e-9]
    exposure: 0.2
  - name: sem
    kind: electron
    zlevels: [0.0, 1.0e-6]
  - name: alignment
    kind: overlay
`
	c, err := model.ParseConfig(strings.NewReader(scenario))
	require.NoError(t, err)
	require.Len(t, c.Streams, 3)

	assert.Equal(t, "gfp", c.Streams[0].Name)
	assert.Equal(t, []float64{488e-9}, c.Streams[0].Excitation)
	assert.Equal(t, 0.2, c.Streams[0].Exposure)
	assert.Equal(t, []float64{0, 1e-6}, c.Streams[1].ZLevels)

	k, err := model.ParseKind(c.Streams[2].Kind)
	require.NoError(t, err)
	assert.Equal(t, model.KindOverlay, k)
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
	}{
		{"unsupported version", "version: 3\nstreams: [{name: a, kind: electron}]"},
		{"no streams", "version: 0\nstreams: []"},
		{"missing name", "version: 0\nstreams: [{kind: electron}]"},
		{"unknown kind", "version: 0\nstreams: [{name: a, kind: xray}]"},
		{"negative exposure", "version: 0\nstreams: [{name: a, kind: electron, exposure: -1}]"},
		{"unknown field", "version: 0\nstreams: [{name: a, kind: electron, wavelenght: 1}]"},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.ParseConfig(strings.NewReader(tt.given))
			require.Error(t, err)
		})
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	for name := range map[string]struct{}{
		"fluo": {}, "scanned-fluo": {}, "optical": {}, "flim": {},
		"electron": {}, "sem-compound": {}, "overlay": {},
	} {
		k, err := model.ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, name, k.String())
	}
}
