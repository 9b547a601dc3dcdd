// Package gpu defines the compute-device abstraction the simulation engine
// drives: platforms enumerate devices, a device opens one context with a
// single in-order command queue, and everything else (buffers, programs,
// dispatches) goes through that context.
//
// Two backends implement it: gpu/opencl loads the system OpenCL library at
// runtime, gpu/host emulates a device on the CPU.
package gpu

import "fmt"

// DeviceType is the class a device reports during enumeration.
type DeviceType int

const (
	DeviceCPU DeviceType = iota
	DeviceGPU
	DeviceAccelerator
)

func (t DeviceType) String() string {
	switch t {
	case DeviceCPU:
		return "CPU"
	case DeviceGPU:
		return "GPU"
	case DeviceAccelerator:
		return "Accelerator"
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// DeviceInfo describes an enumerated device.
type DeviceInfo struct {
	Platform     string
	Name         string
	Vendor       string
	Driver       string
	Type         DeviceType
	ComputeUnits int
	GlobalMemory uint64 // bytes
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s, %d CUs, %.0f MB)", d.Name, d.Type, d.ComputeUnits,
		float64(d.GlobalMemory)/(1024*1024))
}

// Platform enumerates devices of one driver/vendor.
type Platform interface {
	Name() string
	Devices() ([]Device, error)
}

// Device is an enumerated, not yet opened, compute device.
type Device interface {
	Info() DeviceInfo
	// Open creates a context and one in-order command queue on the device.
	Open() (Context, error)
}

// Access is the kernel-side access mode of a buffer.
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
)

// ElemKind is the element type of a device buffer.
type ElemKind int

const (
	Half ElemKind = iota
	Float
	Double
	Int32
)

// Size returns the element size in bytes.
func (k ElemKind) Size() int {
	switch k {
	case Half:
		return 2
	case Double:
		return 8
	}
	return 4
}

func (k ElemKind) String() string {
	switch k {
	case Half:
		return "half"
	case Float:
		return "float"
	case Double:
		return "double"
	case Int32:
		return "int"
	}
	return fmt.Sprintf("ElemKind(%d)", int(k))
}

// BufferSpec describes a buffer to allocate.
type BufferSpec struct {
	Name   string
	Kind   ElemKind
	Len    int
	Access Access
}

// Bytes returns the allocation size.
func (s BufferSpec) Bytes() int { return s.Len * s.Kind.Size() }

// Buffer is device memory owned by a Context.
type Buffer interface {
	Spec() BufferSpec
	Size() int
	Release() error
}

// HostKernel is the CPU implementation of a kernel entry point, used by the
// host backend. Run processes the work-items with x in [x0, x1) and every y,
// z of the global range. Buffer arguments arrive as HostMemory, scalars as
// int32, float32 or float64.
type HostKernel struct {
	Run func(global [3]int, x0, x1 int, args []interface{}) error
	// Serial kernels are executed by a single worker. Kernels whose
	// work-items write overlapping addresses must set it.
	Serial bool
}

// HostMemory is element access to an emulated device buffer.
type HostMemory interface {
	Len() int
	Float(i int) float64
	SetFloat(i int, v float64)
	Int(i int) int32
	SetInt(i int, v int32)
}

// Source is a kernel program. Text is OpenCL C; Host carries the CPU
// implementations of its entry points for the host backend.
type Source struct {
	Name    string
	Text    string
	Options string
	Host    map[string]HostKernel
}

// Program is a built Source.
type Program interface {
	Kernel(name string) (Kernel, error)
	Release() error
}

// Kernel is one entry point of a Program.
type Kernel interface {
	Name() string
	Release() error
}

// Context is a device context bound to exactly one in-order queue. All
// methods enqueue onto that queue; Read blocks until the data is on the host.
type Context interface {
	Device() DeviceInfo
	NewBuffer(spec BufferSpec, data []byte) (Buffer, error)
	Write(b Buffer, data []byte) error
	Read(b Buffer, dst []byte) error
	Build(src Source) (Program, error)
	// Dispatch enqueues k over the 3D range global. Args are Buffer, int32,
	// float32 or float64 values in entry-point order.
	Dispatch(k Kernel, global [3]int, args ...interface{}) error
	Finish() error
	Release() error
}
