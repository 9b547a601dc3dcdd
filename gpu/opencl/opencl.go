//go:build linux || darwin

// Package opencl implements gpu.Platform on top of the system OpenCL
// library, loaded at runtime so the binary builds without cgo or OpenCL
// headers.
package opencl

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"fluidlbm/gpu"
)

const (
	platformName   = 0x0902
	platformVendor = 0x0903

	deviceTypeCPU         = 1 << 1
	deviceTypeGPU         = 1 << 2
	deviceTypeAccelerator = 1 << 3
	deviceTypeAll         = 0xFFFFFFFF

	deviceType            = 0x1000
	deviceMaxComputeUnits = 0x1002
	deviceGlobalMemSize   = 0x101F
	deviceName            = 0x102B
	deviceVendor          = 0x102C
	driverVersion         = 0x102D

	memReadWrite   = 1 << 0
	memReadOnly    = 1 << 2
	memCopyHostPtr = 1 << 5

	programBuildLog = 0x1183

	clTrue = 1
)

// Platforms loads the OpenCL library and returns every installed platform.
func Platforms() ([]gpu.Platform, error) {
	if err := load(); err != nil {
		return nil, err
	}
	var num uint32
	if code := clGetPlatformIDs(0, nil, &num); code != clSuccess {
		// -1001 (no ICD) is how an empty loader reports itself.
		if code == -1001 {
			return nil, nil
		}
		return nil, statusError("clGetPlatformIDs", code)
	}
	if num == 0 {
		return nil, nil
	}
	ids := make([]uintptr, num)
	if code := clGetPlatformIDs(num, &ids[0], nil); code != clSuccess {
		return nil, statusError("clGetPlatformIDs", code)
	}

	platforms := make([]gpu.Platform, 0, num)
	for _, id := range ids {
		p := &Platform{id: id}
		p.name = platformString(id, platformName)
		p.vendor = platformString(id, platformVendor)
		platforms = append(platforms, p)
	}
	return platforms, nil
}

func platformString(id uintptr, param uint32) string {
	var size uintptr
	if clGetPlatformInfo(id, param, 0, nil, &size) != clSuccess || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != clSuccess {
		return ""
	}
	return goString(buf)
}

func deviceString(id uintptr, param uint32) string {
	var size uintptr
	if clGetDeviceInfo(id, param, 0, nil, &size) != clSuccess || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != clSuccess {
		return ""
	}
	return goString(buf)
}

func deviceUint(id uintptr, param uint32, size uintptr) uint64 {
	buf := make([]byte, 8)
	if clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != clSuccess {
		return 0
	}
	if size == 4 {
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return binary.LittleEndian.Uint64(buf)
}

// Platform is one OpenCL platform (driver).
type Platform struct {
	id     uintptr
	name   string
	vendor string
}

func (p *Platform) Name() string { return p.name }

func (p *Platform) Devices() ([]gpu.Device, error) {
	var num uint32
	code := clGetDeviceIDs(p.id, deviceTypeAll, 0, nil, &num)
	if code == clDeviceNotFound || num == 0 {
		return nil, nil
	}
	if code != clSuccess {
		return nil, statusError("clGetDeviceIDs", code)
	}
	ids := make([]uintptr, num)
	if code := clGetDeviceIDs(p.id, deviceTypeAll, num, &ids[0], nil); code != clSuccess {
		return nil, statusError("clGetDeviceIDs", code)
	}

	devices := make([]gpu.Device, 0, num)
	for _, id := range ids {
		info := gpu.DeviceInfo{
			Platform:     p.name,
			Name:         deviceString(id, deviceName),
			Vendor:       deviceString(id, deviceVendor),
			Driver:       deviceString(id, driverVersion),
			ComputeUnits: int(deviceUint(id, deviceMaxComputeUnits, 4)),
			GlobalMemory: deviceUint(id, deviceGlobalMemSize, 8),
		}
		switch t := deviceUint(id, deviceType, 8); {
		case t&deviceTypeGPU != 0:
			info.Type = gpu.DeviceGPU
		case t&deviceTypeAccelerator != 0:
			info.Type = gpu.DeviceAccelerator
		case t&deviceTypeCPU != 0:
			info.Type = gpu.DeviceCPU
		}
		devices = append(devices, &Device{id: id, info: info})
	}
	return devices, nil
}

// Device is an enumerated OpenCL device.
type Device struct {
	id   uintptr
	info gpu.DeviceInfo
}

func (d *Device) Info() gpu.DeviceInfo { return d.info }

func (d *Device) Open() (gpu.Context, error) {
	var code int32
	dev := d.id
	ctx := clCreateContext(nil, 1, &dev, 0, 0, &code)
	if code != clSuccess {
		return nil, statusError("clCreateContext", code)
	}
	queue := clCreateCommandQueue(ctx, d.id, 0, &code)
	if code != clSuccess {
		clReleaseContext(ctx)
		return nil, statusError("clCreateCommandQueue", code)
	}
	return &Context{device: d, ctx: ctx, queue: queue}, nil
}

// Context is an OpenCL context with one in-order command queue.
type Context struct {
	device *Device
	ctx    uintptr
	queue  uintptr
}

func (c *Context) Device() gpu.DeviceInfo { return c.device.info }

// Buffer is a cl_mem handle.
type Buffer struct {
	mem  uintptr
	spec gpu.BufferSpec
}

func (b *Buffer) Spec() gpu.BufferSpec { return b.spec }
func (b *Buffer) Size() int            { return b.spec.Bytes() }

func (b *Buffer) Release() error {
	if b.mem == 0 {
		return nil
	}
	code := clReleaseMemObject(b.mem)
	b.mem = 0
	return statusError("clReleaseMemObject", code)
}

func (c *Context) NewBuffer(spec gpu.BufferSpec, data []byte) (gpu.Buffer, error) {
	size := spec.Bytes()
	if size <= 0 {
		return nil, fmt.Errorf("opencl: buffer %q: invalid length %d", spec.Name, spec.Len)
	}
	flags := uint64(memReadWrite)
	if spec.Access == gpu.ReadOnly {
		flags = memReadOnly
	}
	var host unsafe.Pointer
	if data != nil {
		if len(data) != size {
			return nil, fmt.Errorf("opencl: buffer %q: %d initial bytes for %d byte buffer", spec.Name, len(data), size)
		}
		flags |= memCopyHostPtr
		host = unsafe.Pointer(&data[0])
	}

	var code int32
	mem := clCreateBuffer(c.ctx, flags, uintptr(size), host, &code)
	runtime.KeepAlive(data)
	if code != clSuccess {
		return nil, statusError(fmt.Sprintf("allocating %q (%d bytes)", spec.Name, size), code)
	}
	return &Buffer{mem: mem, spec: spec}, nil
}

func (c *Context) buffer(b gpu.Buffer) (*Buffer, error) {
	cb, ok := b.(*Buffer)
	if !ok || cb.mem == 0 {
		return nil, fmt.Errorf("opencl: invalid or released buffer")
	}
	return cb, nil
}

func (c *Context) Write(b gpu.Buffer, data []byte) error {
	cb, err := c.buffer(b)
	if err != nil {
		return err
	}
	if len(data) != cb.Size() {
		return fmt.Errorf("opencl: writing %d bytes to %d byte buffer %q", len(data), cb.Size(), cb.spec.Name)
	}
	code := clEnqueueWriteBuffer(c.queue, cb.mem, clTrue, 0, uintptr(len(data)), unsafe.Pointer(&data[0]), 0, 0, 0)
	runtime.KeepAlive(data)
	return statusError("clEnqueueWriteBuffer", code)
}

func (c *Context) Read(b gpu.Buffer, dst []byte) error {
	cb, err := c.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) != cb.Size() {
		return fmt.Errorf("opencl: reading %d byte buffer %q into %d bytes", cb.Size(), cb.spec.Name, len(dst))
	}
	code := clEnqueueReadBuffer(c.queue, cb.mem, clTrue, 0, uintptr(len(dst)), unsafe.Pointer(&dst[0]), 0, 0, 0)
	runtime.KeepAlive(dst)
	return statusError("clEnqueueReadBuffer", code)
}

// Program is a built cl_program.
type Program struct {
	ctx  *Context
	prog uintptr
	name string
}

func (c *Context) Build(src gpu.Source) (gpu.Program, error) {
	text := cString(src.Text)
	ptr := &text[0]
	var code int32
	prog := clCreateProgramWithSource(c.ctx, 1, &ptr, nil, &code)
	runtime.KeepAlive(text)
	if code != clSuccess {
		return nil, statusError("clCreateProgramWithSource", code)
	}

	opts := cString(src.Options)
	dev := c.device.id
	code = clBuildProgram(prog, 1, &dev, &opts[0], 0, 0)
	runtime.KeepAlive(opts)
	if code != clSuccess {
		buildLog := c.buildLog(prog)
		clReleaseProgram(prog)
		if code == clBuildProgramFailure {
			return nil, &gpu.KernelCompileError{Program: src.Name, Device: c.device.info.Name, Log: buildLog}
		}
		return nil, statusError("clBuildProgram", code)
	}
	return &Program{ctx: c, prog: prog, name: src.Name}, nil
}

func (c *Context) buildLog(prog uintptr) string {
	var size uintptr
	if clGetProgramBuildInfo(prog, c.device.id, programBuildLog, 0, nil, &size) != clSuccess || size == 0 {
		return "no build log"
	}
	buf := make([]byte, size)
	if clGetProgramBuildInfo(prog, c.device.id, programBuildLog, size, unsafe.Pointer(&buf[0]), nil) != clSuccess {
		return "no build log"
	}
	return goString(buf)
}

func (p *Program) Kernel(name string) (gpu.Kernel, error) {
	cname := cString(name)
	var code int32
	k := clCreateKernel(p.prog, &cname[0], &code)
	runtime.KeepAlive(cname)
	if code != clSuccess {
		return nil, statusError(fmt.Sprintf("clCreateKernel(%s)", name), code)
	}
	return &Kernel{kernel: k, name: name}, nil
}

func (p *Program) Release() error {
	if p.prog == 0 {
		return nil
	}
	code := clReleaseProgram(p.prog)
	p.prog = 0
	return statusError("clReleaseProgram", code)
}

// Kernel is a cl_kernel.
type Kernel struct {
	kernel uintptr
	name   string
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) Release() error {
	if k.kernel == 0 {
		return nil
	}
	code := clReleaseKernel(k.kernel)
	k.kernel = 0
	return statusError("clReleaseKernel", code)
}

func (c *Context) Dispatch(k gpu.Kernel, global [3]int, args ...interface{}) error {
	ck, ok := k.(*Kernel)
	if !ok || ck.kernel == 0 {
		return fmt.Errorf("opencl: invalid or released kernel")
	}
	for i, a := range args {
		if err := setArg(ck, uint32(i), a); err != nil {
			return err
		}
	}
	size := [3]uintptr{uintptr(global[0]), uintptr(global[1]), uintptr(global[2])}
	code := clEnqueueNDRangeKernel(c.queue, ck.kernel, 3, nil, &size[0], nil, 0, 0, 0)
	return statusError(fmt.Sprintf("clEnqueueNDRangeKernel(%s)", ck.name), code)
}

func setArg(k *Kernel, i uint32, a interface{}) error {
	var code int32
	switch v := a.(type) {
	case gpu.Buffer:
		cb, ok := v.(*Buffer)
		if !ok || cb.mem == 0 {
			return fmt.Errorf("opencl: %s arg %d: invalid buffer", k.name, i)
		}
		mem := cb.mem
		code = clSetKernelArg(k.kernel, i, unsafe.Sizeof(mem), unsafe.Pointer(&mem))
	case int32:
		code = clSetKernelArg(k.kernel, i, 4, unsafe.Pointer(&v))
	case float32:
		bits := math.Float32bits(v)
		code = clSetKernelArg(k.kernel, i, 4, unsafe.Pointer(&bits))
	case float64:
		bits := math.Float64bits(v)
		code = clSetKernelArg(k.kernel, i, 8, unsafe.Pointer(&bits))
	default:
		return fmt.Errorf("opencl: %s arg %d: unsupported type %T", k.name, i, a)
	}
	return statusError(fmt.Sprintf("clSetKernelArg(%s, %d)", k.name, i), code)
}

func (c *Context) Finish() error {
	return statusError("clFinish", clFinish(c.queue))
}

func (c *Context) Release() error {
	var err error
	if c.queue != 0 {
		err = statusError("clReleaseCommandQueue", clReleaseCommandQueue(c.queue))
		c.queue = 0
	}
	if c.ctx != 0 {
		if e := statusError("clReleaseContext", clReleaseContext(c.ctx)); err == nil {
			err = e
		}
		c.ctx = 0
	}
	return err
}
