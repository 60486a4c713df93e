package metaconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/model"
)

func TestForType(t *testing.T) {
	tests := []struct {
		microscope model.MicroscopeType
		filename   string
		image      bool
		metadata   bool
	}{
		{model.MicroscopeVisiview, "site1_t001.stk", true, false},
		{model.MicroscopeVisiview, "experiment.nd", false, true},
		{model.MicroscopeVisiview, "notes.txt", false, false},
		{model.MicroscopeCellvoyager, "W001F001T0001Z000C1.tif", true, false},
		{model.MicroscopeCellvoyager, "MeasurementData.mlf", false, true},
		{model.MicroscopeGeneric, "img.PNG", true, false},
		{model.MicroscopeGeneric, "meta.yaml", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			r, err := ForType(tt.microscope)
			require.NoError(t, err)
			assert.Equal(t, tt.image, r.Image.MatchString(tt.filename), "image match")
			assert.Equal(t, tt.metadata, r.Metadata.MatchString(tt.filename), "metadata match")
		})
	}
}

func TestForTypeUnknown(t *testing.T) {
	_, err := ForType("electronmicroscope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported microscope type")
}

func TestTypesAllKnown(t *testing.T) {
	for _, mt := range Types() {
		assert.True(t, IsKnownType(mt), "type %q", mt)
	}
}
