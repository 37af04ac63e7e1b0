package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseProvenance(t *testing.T) {
	tests := map[string]Provenance{
		"":        ProvenanceGeneric,
		"generic": ProvenanceGeneric,
		"nara":    ProvenanceNARA,
		"NARA":    ProvenanceNARA,
		"barch":   ProvenanceBArch,
		" ign ":   ProvenanceIGN,
		"wur":     ProvenanceWUR,
	}
	for in, want := range tests {
		got, err := ParseProvenance(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseProvenance("loc")
	assert.Error(t, err)
}

func TestProvenance_YAML(t *testing.T) {
	var src Source
	require.NoError(t, yaml.Unmarshal([]byte("name: bundesarchiv\nlocation: data/barch.json\nprovenance: barch\n"), &src))
	assert.Equal(t, ProvenanceBArch, src.Provenance)
	assert.Equal(t, "bundesarchiv", src.String())

	err := yaml.Unmarshal([]byte("location: x.json\nprovenance: nope\n"), &src)
	assert.Error(t, err)
}

func TestProvenanceOf(t *testing.T) {
	f := geojson.NewFeature(orb.Point{1, 2})
	assert.Equal(t, ProvenanceGeneric, ProvenanceOf(f))

	f.Properties[ProvenanceProperty] = "wur"
	assert.Equal(t, ProvenanceWUR, ProvenanceOf(f))

	f.Properties[ProvenanceProperty] = "unknown-archive"
	assert.Equal(t, ProvenanceGeneric, ProvenanceOf(f))

	assert.Equal(t, ProvenanceGeneric, ProvenanceOf(nil))
}
