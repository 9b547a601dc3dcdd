//go:build !linux && !darwin

// Package opencl implements gpu.Platform on top of the system OpenCL
// library. It is unavailable on this OS.
package opencl

import "fluidlbm/gpu"

// Platforms always fails on this OS.
func Platforms() ([]gpu.Platform, error) {
	return nil, gpu.ErrBackendUnavailable
}
