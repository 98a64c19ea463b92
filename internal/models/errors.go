package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage marks a malformed or zero-dimension input buffer.
	ErrInvalidImage = errors.New("invalid image")
	// ErrParameterOutOfRange marks a knob outside its documented domain.
	ErrParameterOutOfRange = errors.New("parameter out of range")
	// ErrRegionRectification marks a single region that could not be warped or encoded.
	ErrRegionRectification = errors.New("region rectification failed")
	// ErrRuntimeUnavailable marks an OpenCV runtime that failed to initialize.
	ErrRuntimeUnavailable = errors.New("image processing runtime unavailable")
	// ErrWorkerNotReady is returned for requests submitted before the readiness signal.
	ErrWorkerNotReady = errors.New("worker not ready")
)

// RegionError reports one region skipped by the rectifier.
type RegionError struct {
	Index int
	Err   error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %d: %v: %v", e.Index, ErrRegionRectification, e.Err)
}

func (e *RegionError) Unwrap() []error {
	return []error{ErrRegionRectification, e.Err}
}
