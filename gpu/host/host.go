// Package host implements gpu.Platform with an emulated device that runs
// kernels on the host CPU. Programs must carry Go implementations of their
// entry points (gpu.Source.Host); the OpenCL text is checked but not
// compiled.
package host

import (
	"fmt"
	"runtime"
	"sync"

	"fluidlbm/gpu"
)

// Platform exposes a single emulated device.
type Platform struct {
	workers  int
	memLimit uint64
}

// Option configures the Platform.
type Option func(*Platform)

// WithWorkers sets the worker pool size (compute units). Defaults to
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Platform) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMemoryLimit caps the bytes that may be allocated on the device.
// Defaults to the physical memory of the machine.
func WithMemoryLimit(bytes uint64) Option {
	return func(p *Platform) {
		if bytes > 0 {
			p.memLimit = bytes
		}
	}
}

// NewPlatform returns the host platform.
func NewPlatform(opts ...Option) *Platform {
	p := &Platform{workers: runtime.NumCPU(), memLimit: totalMemory()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Platform) Name() string { return "Host" }

// Devices returns the single emulated device.
func (p *Platform) Devices() ([]gpu.Device, error) {
	return []gpu.Device{&Device{platform: p}}, nil
}

// Device is the emulated device.
type Device struct {
	platform *Platform
}

func (d *Device) Info() gpu.DeviceInfo {
	return gpu.DeviceInfo{
		Platform:     d.platform.Name(),
		Name:         fmt.Sprintf("Host CPU (%s/%s)", runtime.GOOS, runtime.GOARCH),
		Vendor:       "Go " + runtime.Version(),
		Driver:       "emulated",
		Type:         gpu.DeviceCPU,
		ComputeUnits: d.platform.workers,
		GlobalMemory: d.platform.memLimit,
	}
}

// Open returns a fresh context; buffers are not shared between contexts.
func (d *Device) Open() (gpu.Context, error) {
	return &Context{info: d.Info(), workers: d.platform.workers, limit: d.platform.memLimit}, nil
}

// Context executes every command synchronously, which trivially gives
// in-order queue semantics.
type Context struct {
	info    gpu.DeviceInfo
	workers int
	limit   uint64

	mu        sync.Mutex
	allocated uint64
	released  bool
}

func (c *Context) Device() gpu.DeviceInfo { return c.info }

// Allocated returns the bytes currently held by live buffers.
func (c *Context) Allocated() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// NewBuffer allocates a zeroed buffer, or a copy of data when given. It
// fails with gpu.ErrDeviceAllocation past the memory limit.
func (c *Context) NewBuffer(spec gpu.BufferSpec, data []byte) (gpu.Buffer, error) {
	if spec.Len <= 0 {
		return nil, fmt.Errorf("host: buffer %q: invalid length %d", spec.Name, spec.Len)
	}
	size := uint64(spec.Bytes())

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil, fmt.Errorf("host: context released")
	}
	if c.allocated+size > c.limit {
		c.mu.Unlock()
		return nil, &gpu.DeviceError{
			Op:   fmt.Sprintf("allocating %q (%d bytes)", spec.Name, size),
			Code: -4,
			Msg:  fmt.Sprintf("%d of %d bytes already in use", c.allocated, c.limit),
			Err:  gpu.ErrDeviceAllocation,
		}
	}
	c.allocated += size
	c.mu.Unlock()

	b := &Buffer{ctx: c, spec: spec, data: make([]byte, size)}
	if data != nil {
		if len(data) != len(b.data) {
			b.Release()
			return nil, fmt.Errorf("host: buffer %q: %d initial bytes for %d byte buffer", spec.Name, len(data), size)
		}
		copy(b.data, data)
	}
	return b, nil
}

func (c *Context) buffer(b gpu.Buffer) (*Buffer, error) {
	hb, ok := b.(*Buffer)
	if !ok || hb.ctx != c {
		return nil, fmt.Errorf("host: buffer does not belong to this context")
	}
	if hb.data == nil {
		return nil, fmt.Errorf("host: buffer %q used after release", hb.spec.Name)
	}
	return hb, nil
}

func (c *Context) Write(b gpu.Buffer, data []byte) error {
	hb, err := c.buffer(b)
	if err != nil {
		return err
	}
	if len(data) != len(hb.data) {
		return fmt.Errorf("host: writing %d bytes to %d byte buffer %q", len(data), len(hb.data), hb.spec.Name)
	}
	copy(hb.data, data)
	return nil
}

func (c *Context) Read(b gpu.Buffer, dst []byte) error {
	hb, err := c.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) != len(hb.data) {
		return fmt.Errorf("host: reading %d byte buffer %q into %d bytes", len(hb.data), hb.spec.Name, len(dst))
	}
	copy(dst, hb.data)
	return nil
}

// Finish is a no-op: dispatches complete before Dispatch returns.
func (c *Context) Finish() error { return nil }

// Release marks the context released; later allocations fail.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

// Buffer is a byte slice typed by its spec.
type Buffer struct {
	ctx  *Context
	spec gpu.BufferSpec
	data []byte
}

func (b *Buffer) Spec() gpu.BufferSpec { return b.spec }
func (b *Buffer) Size() int            { return b.spec.Bytes() }

func (b *Buffer) Release() error {
	if b.data == nil {
		return nil
	}
	b.ctx.mu.Lock()
	b.ctx.allocated -= uint64(len(b.data))
	b.ctx.mu.Unlock()
	b.data = nil
	return nil
}

// Len, Float, SetFloat, Int and SetInt give host kernels element access.
func (b *Buffer) Len() int { return b.spec.Len }

func (b *Buffer) Float(i int) float64 { return gpu.GetFloat(b.spec.Kind, b.data, i) }

func (b *Buffer) SetFloat(i int, v float64) { gpu.PutFloat(b.spec.Kind, b.data, i, v) }

func (b *Buffer) Int(i int) int32 { return int32(gpu.GetFloat(gpu.Int32, b.data, i)) }

func (b *Buffer) SetInt(i int, v int32) { gpu.PutFloat(gpu.Int32, b.data, i, float64(v)) }
