package host

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidlbm/gpu"
)

const fillSource = `
// fills each cell with its linear index
__kernel void fill(__global float* out, int Nx, int Ny, int Nz) {
    int x = get_global_id(0);
    int y = get_global_id(1);
    int z = get_global_id(2);
    out[x * Ny * Nz + y * Nz + z] = (float)(x * Ny * Nz + y * Nz + z);
}
`

func fillKernel(calls *int64) gpu.HostKernel {
	return gpu.HostKernel{Run: func(global [3]int, x0, x1 int, args []interface{}) error {
		atomic.AddInt64(calls, 1)
		out := args[0].(gpu.HostMemory)
		ny, nz := int(args[2].(int32)), int(args[3].(int32))
		for x := x0; x < x1; x++ {
			for y := 0; y < global[1]; y++ {
				for z := 0; z < global[2]; z++ {
					n := x*ny*nz + y*nz + z
					out.SetFloat(n, float64(n))
				}
			}
		}
		return nil
	}}
}

func openContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	devices, err := NewPlatform(opts...).Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, gpu.DeviceCPU, devices[0].Info().Type)

	ctx, err := devices[0].Open()
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Release() })
	return ctx.(*Context)
}

func TestDispatchCoversEveryCell(t *testing.T) {
	ctx := openContext(t, WithWorkers(4))

	var calls int64
	prog, err := ctx.Build(gpu.Source{Name: "fill", Text: fillSource, Host: map[string]gpu.HostKernel{"fill": fillKernel(&calls)}})
	require.NoError(t, err)
	k, err := prog.Kernel("fill")
	require.NoError(t, err)

	const nx, ny, nz = 6, 3, 2
	buf, err := ctx.NewBuffer(gpu.BufferSpec{Name: "out", Kind: gpu.Float, Len: nx * ny * nz}, nil)
	require.NoError(t, err)

	require.NoError(t, ctx.Dispatch(k, [3]int{nx, ny, nz}, buf, int32(nx), int32(ny), int32(nz)))
	require.NoError(t, ctx.Finish())
	assert.EqualValues(t, nx, calls, "one call per x slab")

	raw := make([]byte, buf.Size())
	require.NoError(t, ctx.Read(buf, raw))
	got := make([]float64, nx*ny*nz)
	require.NoError(t, gpu.DecodeFloats(gpu.Float, raw, got))
	for n, v := range got {
		assert.Equal(t, float64(n), v)
	}
}

func TestSerialKernelRunsOnce(t *testing.T) {
	ctx := openContext(t, WithWorkers(8))

	var calls int64
	hk := fillKernel(&calls)
	hk.Serial = true
	prog, err := ctx.Build(gpu.Source{Name: "fill", Text: fillSource, Host: map[string]gpu.HostKernel{"fill": hk}})
	require.NoError(t, err)
	k, err := prog.Kernel("fill")
	require.NoError(t, err)

	buf, err := ctx.NewBuffer(gpu.BufferSpec{Name: "out", Kind: gpu.Double, Len: 8}, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Dispatch(k, [3]int{4, 2, 1}, buf, int32(4), int32(2), int32(1)))
	assert.EqualValues(t, 1, calls)
}

func TestBuildRejectsBrokenSource(t *testing.T) {
	ctx := openContext(t)
	noop := map[string]gpu.HostKernel{"fill": {Run: func([3]int, int, int, []interface{}) error { return nil }}}

	tests := []struct {
		name string
		text string
		host map[string]gpu.HostKernel
	}{
		{"empty", "   ", noop},
		{"unclosed brace", "__kernel void fill(__global float* out) {", noop},
		{"stray paren", "__kernel void fill(__global float* out)) {}", noop},
		{"missing entry", "__kernel void other(__global float* out) {}", noop},
		{"no host code", fillSource, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.Build(gpu.Source{Name: tt.name, Text: tt.text, Host: tt.host})
			require.Error(t, err)
			assert.ErrorIs(t, err, gpu.ErrKernelCompile)
			var ce *gpu.KernelCompileError
			require.True(t, errors.As(err, &ce))
			assert.NotEmpty(t, ce.Log)
		})
	}
}

func TestDelimitersInCommentsIgnored(t *testing.T) {
	src := "/* { ( */\n// ]\n__kernel void fill(__global float* out) { out[0] = 1.0f; }\n"
	assert.NoError(t, checkDelimiters(src))
	assert.EqualError(t, checkDelimiters("void f() {\n  (\n}"), "line 3: unexpected '}'")
}

func TestUnknownEntryPoint(t *testing.T) {
	ctx := openContext(t)
	var calls int64
	prog, err := ctx.Build(gpu.Source{Name: "fill", Text: fillSource, Host: map[string]gpu.HostKernel{"fill": fillKernel(&calls)}})
	require.NoError(t, err)
	_, err = prog.Kernel("missing")
	assert.Error(t, err)
}

func TestMemoryLimit(t *testing.T) {
	ctx := openContext(t, WithMemoryLimit(1024))

	a, err := ctx.NewBuffer(gpu.BufferSpec{Name: "a", Kind: gpu.Double, Len: 100}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 800, ctx.Allocated())

	_, err = ctx.NewBuffer(gpu.BufferSpec{Name: "b", Kind: gpu.Double, Len: 100}, nil)
	assert.ErrorIs(t, err, gpu.ErrDeviceAllocation)

	require.NoError(t, a.Release())
	assert.EqualValues(t, 0, ctx.Allocated())

	_, err = ctx.NewBuffer(gpu.BufferSpec{Name: "b", Kind: gpu.Double, Len: 100}, nil)
	assert.NoError(t, err)
}

func TestWriteReadHalf(t *testing.T) {
	ctx := openContext(t)
	vals := []float64{0.5, -1.25, 2, 1024}
	buf, err := ctx.NewBuffer(gpu.BufferSpec{Name: "h", Kind: gpu.Half, Len: len(vals)}, gpu.EncodeFloats(gpu.Half, vals))
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Size())

	mem := buf.(gpu.HostMemory)
	assert.Equal(t, -1.25, mem.Float(1))
	mem.SetFloat(3, 3.5)

	raw := make([]byte, buf.Size())
	require.NoError(t, ctx.Read(buf, raw))
	got := make([]float64, len(vals))
	require.NoError(t, gpu.DecodeFloats(gpu.Half, raw, got))
	assert.Equal(t, []float64{0.5, -1.25, 2, 3.5}, got)

	assert.Error(t, ctx.Write(buf, []byte{1, 2}))
}

func TestDispatchRejectsForeignBuffer(t *testing.T) {
	a := openContext(t)
	b := openContext(t)
	var calls int64
	prog, err := a.Build(gpu.Source{Name: "fill", Text: fillSource, Host: map[string]gpu.HostKernel{"fill": fillKernel(&calls)}})
	require.NoError(t, err)
	k, err := prog.Kernel("fill")
	require.NoError(t, err)

	foreign, err := b.NewBuffer(gpu.BufferSpec{Name: "out", Kind: gpu.Float, Len: 1}, nil)
	require.NoError(t, err)
	assert.Error(t, a.Dispatch(k, [3]int{1, 1, 1}, foreign, int32(1), int32(1), int32(1)))
	assert.Error(t, a.Dispatch(k, [3]int{1, 1, 1}, "bogus"))
	assert.Zero(t, calls)
}
