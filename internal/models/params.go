package models

import (
	"fmt"
)

const (
	// DetectionUnitWidth is the working-resolution width allotted to one photo column.
	DetectionUnitWidth = 500
	// DetectionUnitHeight is the fixed aspect height of one photo at working resolution.
	DetectionUnitHeight = 440
	// ExpectedPolaroidArea is the centre of the area tolerance band, in working pixels.
	ExpectedPolaroidArea = DetectionUnitWidth * DetectionUnitHeight
)

// ExtractionParams contains the tunable knobs of one extraction run.
type ExtractionParams struct {
	MedianBlurKernel           int     `mapstructure:"median_blur_kernel" json:"medianBlurKernel"`
	ThresholdValue             int     `mapstructure:"threshold_value" json:"thresholdValue"`
	StructuringElementSize     int     `mapstructure:"structuring_element_size" json:"structuringElementSize"`
	DistanceTransformThreshold float64 `mapstructure:"distance_transform_threshold" json:"distanceTransformThreshold"`
	SurfaceAreaToleranceLow    float64 `mapstructure:"surface_area_tolerance_low" json:"surfaceAreaToleranceLow"`
	SurfaceAreaToleranceHigh   float64 `mapstructure:"surface_area_tolerance_high" json:"surfaceAreaToleranceHigh"`
	PhotosWide                 int     `mapstructure:"photos_wide" json:"photosWide"`
}

// ParameterRange defines valid range for a parameter
type ParameterRange struct {
	Min float64
	Max float64
}

var ParameterRanges = map[string]ParameterRange{
	"median_blur_kernel":           {Min: 1, Max: 99},
	"threshold_value":              {Min: 0, Max: 255},
	"structuring_element_size":     {Min: 1, Max: 200},
	"distance_transform_threshold": {Min: 0, Max: 1},
	"photos_wide":                  {Min: 1, Max: 20},
}

// DefaultParams returns the parameter set the worker ships with.
func DefaultParams() ExtractionParams {
	return ExtractionParams{
		MedianBlurKernel:           7,
		ThresholdValue:             100,
		StructuringElementSize:     10,
		DistanceTransformThreshold: 0.9,
		SurfaceAreaToleranceLow:    0.8,
		SurfaceAreaToleranceHigh:   1.2,
		PhotosWide:                 2,
	}
}

// Validate checks every knob against its domain. Even median kernels are
// accepted here and rounded by EffectiveMedianKernel.
func (p ExtractionParams) Validate() error {
	if err := checkIntRange("median_blur_kernel", p.MedianBlurKernel); err != nil {
		return err
	}
	if err := checkIntRange("threshold_value", p.ThresholdValue); err != nil {
		return err
	}
	if err := checkIntRange("structuring_element_size", p.StructuringElementSize); err != nil {
		return err
	}
	if err := checkIntRange("photos_wide", p.PhotosWide); err != nil {
		return err
	}

	if p.DistanceTransformThreshold <= 0 || p.DistanceTransformThreshold >= 1 {
		return fmt.Errorf("%w: distance_transform_threshold must be in (0, 1), got %g",
			ErrParameterOutOfRange, p.DistanceTransformThreshold)
	}

	if p.SurfaceAreaToleranceLow <= 0 || p.SurfaceAreaToleranceHigh <= 0 {
		return fmt.Errorf("%w: surface area tolerances must be positive, got low=%g high=%g",
			ErrParameterOutOfRange, p.SurfaceAreaToleranceLow, p.SurfaceAreaToleranceHigh)
	}
	if p.SurfaceAreaToleranceLow >= p.SurfaceAreaToleranceHigh {
		return fmt.Errorf("%w: surface_area_tolerance_low (%g) must be below surface_area_tolerance_high (%g)",
			ErrParameterOutOfRange, p.SurfaceAreaToleranceLow, p.SurfaceAreaToleranceHigh)
	}

	return nil
}

// EffectiveMedianKernel rounds an even kernel size up to the next odd value.
func (p ExtractionParams) EffectiveMedianKernel() int {
	if p.MedianBlurKernel%2 == 0 {
		return p.MedianBlurKernel + 1
	}
	return p.MedianBlurKernel
}

// AreaBand returns the inclusive [min, max] contour area accepted as a polaroid.
func (p ExtractionParams) AreaBand() (float64, float64) {
	return ExpectedPolaroidArea * p.SurfaceAreaToleranceLow, ExpectedPolaroidArea * p.SurfaceAreaToleranceHigh
}

func checkIntRange(name string, value int) error {
	r := ParameterRanges[name]
	if float64(value) < r.Min || float64(value) > r.Max {
		return fmt.Errorf("%w: %s must be between %g and %g, got %d",
			ErrParameterOutOfRange, name, r.Min, r.Max, value)
	}
	return nil
}
