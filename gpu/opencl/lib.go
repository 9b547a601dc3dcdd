//go:build linux || darwin

package opencl

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"fluidlbm/gpu"
)

var libraryPaths = map[string][]string{
	"linux":  {"libOpenCL.so.1", "libOpenCL.so"},
	"darwin": {"/System/Library/Frameworks/OpenCL.framework/OpenCL"},
}

var (
	loadOnce sync.Once
	loadErr  error

	clGetPlatformIDs          func(num uint32, platforms *uintptr, numRet *uint32) int32
	clGetPlatformInfo         func(platform uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clGetDeviceIDs            func(platform uintptr, devType uint64, num uint32, devices *uintptr, numRet *uint32) int32
	clGetDeviceInfo           func(device uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clCreateContext           func(props *uintptr, num uint32, devices *uintptr, notify uintptr, user uintptr, errcode *int32) uintptr
	clCreateCommandQueue      func(ctx uintptr, device uintptr, props uint64, errcode *int32) uintptr
	clCreateBuffer            func(ctx uintptr, flags uint64, size uintptr, host unsafe.Pointer, errcode *int32) uintptr
	clEnqueueWriteBuffer      func(queue, buf uintptr, blocking uint32, offset, size uintptr, ptr unsafe.Pointer, numEvents uint32, wait, event uintptr) int32
	clEnqueueReadBuffer       func(queue, buf uintptr, blocking uint32, offset, size uintptr, ptr unsafe.Pointer, numEvents uint32, wait, event uintptr) int32
	clCreateProgramWithSource func(ctx uintptr, count uint32, strings **byte, lengths *uintptr, errcode *int32) uintptr
	clBuildProgram            func(prog uintptr, num uint32, devices *uintptr, options *byte, notify uintptr, user uintptr) int32
	clGetProgramBuildInfo     func(prog, device uintptr, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clCreateKernel            func(prog uintptr, name *byte, errcode *int32) uintptr
	clSetKernelArg            func(kernel uintptr, index uint32, size uintptr, value unsafe.Pointer) int32
	clEnqueueNDRangeKernel    func(queue, kernel uintptr, dims uint32, offset, global, local *uintptr, numEvents uint32, wait, event uintptr) int32
	clFinish                  func(queue uintptr) int32
	clReleaseMemObject        func(mem uintptr) int32
	clReleaseKernel           func(kernel uintptr) int32
	clReleaseProgram          func(prog uintptr) int32
	clReleaseCommandQueue     func(queue uintptr) int32
	clReleaseContext          func(ctx uintptr) int32
)

// load opens the OpenCL ICD loader once. Missing library or symbols yield
// gpu.ErrBackendUnavailable.
func load() error {
	loadOnce.Do(func() {
		var lib uintptr
		var err error
		for _, path := range libraryPaths[runtime.GOOS] {
			lib, err = purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				break
			}
		}
		if lib == 0 {
			loadErr = fmt.Errorf("opencl: %w: %v", gpu.ErrBackendUnavailable, err)
			return
		}

		funcs := []struct {
			fptr interface{}
			name string
		}{
			{&clGetPlatformIDs, "clGetPlatformIDs"},
			{&clGetPlatformInfo, "clGetPlatformInfo"},
			{&clGetDeviceIDs, "clGetDeviceIDs"},
			{&clGetDeviceInfo, "clGetDeviceInfo"},
			{&clCreateContext, "clCreateContext"},
			{&clCreateCommandQueue, "clCreateCommandQueue"},
			{&clCreateBuffer, "clCreateBuffer"},
			{&clEnqueueWriteBuffer, "clEnqueueWriteBuffer"},
			{&clEnqueueReadBuffer, "clEnqueueReadBuffer"},
			{&clCreateProgramWithSource, "clCreateProgramWithSource"},
			{&clBuildProgram, "clBuildProgram"},
			{&clGetProgramBuildInfo, "clGetProgramBuildInfo"},
			{&clCreateKernel, "clCreateKernel"},
			{&clSetKernelArg, "clSetKernelArg"},
			{&clEnqueueNDRangeKernel, "clEnqueueNDRangeKernel"},
			{&clFinish, "clFinish"},
			{&clReleaseMemObject, "clReleaseMemObject"},
			{&clReleaseKernel, "clReleaseKernel"},
			{&clReleaseProgram, "clReleaseProgram"},
			{&clReleaseCommandQueue, "clReleaseCommandQueue"},
			{&clReleaseContext, "clReleaseContext"},
		}
		for _, f := range funcs {
			sym, err := purego.Dlsym(lib, f.name)
			if err != nil {
				loadErr = fmt.Errorf("opencl: %w: missing symbol %s", gpu.ErrBackendUnavailable, f.name)
				return
			}
			purego.RegisterFunc(f.fptr, sym)
		}
	})
	return loadErr
}

// cString returns a NUL-terminated copy of s.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// goString trims the NUL terminator of an info query result.
func goString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
