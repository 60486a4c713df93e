package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLabelImage(t *testing.T) {
	tests := []struct {
		name    string
		img     [][]int32
		wantErr bool
	}{
		{name: "rectangular", img: [][]int32{{0, 1}, {1, 1}}},
		{name: "single pixel", img: [][]int32{{5}}},
		{name: "empty", img: nil, wantErr: true},
		{name: "empty rows", img: [][]int32{{}, {}}, wantErr: true},
		{name: "ragged", img: [][]int32{{0, 1}, {1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLabelImage(tt.img)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImageLabels(t *testing.T) {
	img := [][]int32{
		{0, 2, 2, 0},
		{0, 2, 0, 7},
		{3, 0, 0, 7},
	}
	assert.Equal(t, []int32{2, 3, 7}, ImageLabels(img))
	assert.Empty(t, ImageLabels([][]int32{{0, 0}, {0, -1}}))
}

func TestLabelTouchesBorder(t *testing.T) {
	img := [][]int32{
		{0, 0, 0, 0},
		{0, 1, 0, 2},
		{3, 1, 0, 0},
		{0, 0, 0, 0},
	}
	require.NoError(t, ValidateLabelImage(img))

	assert.False(t, LabelTouchesBorder(img, 1))
	assert.True(t, LabelTouchesBorder(img, 2))
	assert.True(t, LabelTouchesBorder(img, 3))
}
