package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrNoComputeDevice is returned when enumeration finds no usable device.
	ErrNoComputeDevice = errors.New("no compute device found")

	// ErrKernelCompile is matched by every *KernelCompileError.
	ErrKernelCompile = errors.New("kernel compile failed")

	// ErrDeviceAllocation is returned when a buffer does not fit on the device.
	ErrDeviceAllocation = errors.New("device allocation failed")

	// ErrBackendUnavailable is returned by backends whose driver is missing.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// KernelCompileError carries the device build log.
type KernelCompileError struct {
	Program string
	Device  string
	Log     string
}

func (e *KernelCompileError) Error() string {
	return fmt.Sprintf("gpu: building %q on %s: %s", e.Program, e.Device, e.Log)
}

func (e *KernelCompileError) Unwrap() error { return ErrKernelCompile }

// DeviceError wraps a driver status code.
type DeviceError struct {
	Op   string
	Code int32
	Msg  string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("gpu: %s: %s (%d)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("gpu: %s: status %d", e.Op, e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }
