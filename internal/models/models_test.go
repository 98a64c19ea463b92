package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsAreValid(t *testing.T) {
	p := DefaultParams()

	require.NoError(t, p.Validate())
	assert.Equal(t, 7, p.MedianBlurKernel)
	assert.Equal(t, 100, p.ThresholdValue)
	assert.Equal(t, 10, p.StructuringElementSize)
	assert.Equal(t, 0.9, p.DistanceTransformThreshold)
	assert.Equal(t, 0.8, p.SurfaceAreaToleranceLow)
	assert.Equal(t, 1.2, p.SurfaceAreaToleranceHigh)
	assert.Equal(t, 2, p.PhotosWide)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ExtractionParams)
	}{
		{"zero kernel", func(p *ExtractionParams) { p.MedianBlurKernel = 0 }},
		{"negative kernel", func(p *ExtractionParams) { p.MedianBlurKernel = -3 }},
		{"huge kernel", func(p *ExtractionParams) { p.MedianBlurKernel = 101 }},
		{"threshold below zero", func(p *ExtractionParams) { p.ThresholdValue = -1 }},
		{"threshold above 255", func(p *ExtractionParams) { p.ThresholdValue = 256 }},
		{"zero structuring element", func(p *ExtractionParams) { p.StructuringElementSize = 0 }},
		{"zero distance threshold", func(p *ExtractionParams) { p.DistanceTransformThreshold = 0 }},
		{"distance threshold one", func(p *ExtractionParams) { p.DistanceTransformThreshold = 1 }},
		{"negative low tolerance", func(p *ExtractionParams) { p.SurfaceAreaToleranceLow = -0.1 }},
		{"low equals high", func(p *ExtractionParams) { p.SurfaceAreaToleranceLow = 1.2 }},
		{"low above high", func(p *ExtractionParams) { p.SurfaceAreaToleranceLow = 1.5 }},
		{"zero photos wide", func(p *ExtractionParams) { p.PhotosWide = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParameterOutOfRange), "got %v", err)
		})
	}
}

func TestEffectiveMedianKernel(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{1, 1},
		{6, 7},
		{7, 7},
		{10, 11},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			p := DefaultParams()
			p.MedianBlurKernel = tt.in
			assert.Equal(t, tt.want, p.EffectiveMedianKernel())
		})
	}
}

func TestAreaBand(t *testing.T) {
	low, high := DefaultParams().AreaBand()

	assert.InDelta(t, 176000.0, low, 1e-9)
	assert.InDelta(t, 264000.0, high, 1e-9)
}

func TestRegionErrorUnwraps(t *testing.T) {
	cause := errors.New("zero area")
	err := error(&RegionError{Index: 2, Err: cause})

	assert.True(t, errors.Is(err, ErrRegionRectification))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "region 2")

	var re *RegionError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &re))
	assert.Equal(t, 2, re.Index)
}
