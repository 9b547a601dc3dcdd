package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	info   DeviceInfo
	opened int
}

func (d *fakeDevice) Info() DeviceInfo { return d.info }

func (d *fakeDevice) Open() (Context, error) {
	d.opened++
	return nil, nil
}

type fakePlatform struct {
	name    string
	devices []Device
	err     error
}

func (p *fakePlatform) Name() string               { return p.name }
func (p *fakePlatform) Devices() ([]Device, error) { return p.devices, p.err }

func gpuDevice(name string, units int) *fakeDevice {
	return &fakeDevice{info: DeviceInfo{Name: name, Type: DeviceGPU, ComputeUnits: units}}
}

func TestSelectDeviceMostComputeUnits(t *testing.T) {
	a, b, c := gpuDevice("a", 8), gpuDevice("b", 40), gpuDevice("c", 16)
	d, err := SelectDevice([]Device{a, b, c})
	require.NoError(t, err)
	assert.Same(t, b, d)
}

func TestSelectDeviceTieGoesToFirst(t *testing.T) {
	a, b := gpuDevice("a", 20), gpuDevice("b", 20)
	d, err := SelectDevice([]Device{a, b})
	require.NoError(t, err)
	assert.Same(t, a, d)
}

func TestSelectDevicePrefersGPUOverWiderCPU(t *testing.T) {
	cpu := &fakeDevice{info: DeviceInfo{Name: "cpu", Type: DeviceCPU, ComputeUnits: 16}}
	acc := &fakeDevice{info: DeviceInfo{Name: "acc", Type: DeviceAccelerator, ComputeUnits: 2}}
	gpu := gpuDevice("gpu", 8)

	d, err := SelectDevice([]Device{cpu, gpu})
	require.NoError(t, err)
	assert.Same(t, gpu, d)

	d, err = SelectDevice([]Device{cpu, acc})
	require.NoError(t, err)
	assert.Same(t, acc, d)

	d, err = SelectDevice([]Device{gpu, cpu})
	require.NoError(t, err)
	assert.Same(t, gpu, d)
}

func TestSelectDeviceEmpty(t *testing.T) {
	_, err := SelectDevice(nil)
	assert.ErrorIs(t, err, ErrNoComputeDevice)
}

func TestNewManagerNoDevices(t *testing.T) {
	m, err := NewManager(ManagerOptions{}, &fakePlatform{name: "empty"})
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNoComputeDevice)
}

func TestNewManagerSkipsCPU(t *testing.T) {
	cpu := &fakeDevice{info: DeviceInfo{Name: "cpu", Type: DeviceCPU, ComputeUnits: 64}}
	_, err := NewManager(ManagerOptions{}, &fakePlatform{name: "p", devices: []Device{cpu}})
	assert.ErrorIs(t, err, ErrNoComputeDevice)
	assert.Zero(t, cpu.opened)

	m, err := NewManager(ManagerOptions{AllowCPU: true}, &fakePlatform{name: "p", devices: []Device{cpu}})
	require.NoError(t, err)
	assert.Equal(t, "cpu", m.Device().Name)
	assert.Equal(t, 1, cpu.opened)
}

func TestNewManagerAcrossPlatforms(t *testing.T) {
	small := gpuDevice("small", 4)
	big := gpuDevice("big", 32)
	m, err := NewManager(ManagerOptions{},
		&fakePlatform{name: "first", devices: []Device{small}},
		&fakePlatform{name: "second", devices: []Device{big}},
	)
	require.NoError(t, err)
	assert.Equal(t, "big", m.Device().Name)
	assert.Equal(t, 1, big.opened)
	assert.Zero(t, small.opened)
}

func TestNewManagerFilters(t *testing.T) {
	a := gpuDevice("Radeon", 60)
	b := gpuDevice("GeForce", 30)
	m, err := NewManager(ManagerOptions{Device: "GeForce"},
		&fakePlatform{name: "p", devices: []Device{a, b}})
	require.NoError(t, err)
	assert.Equal(t, "GeForce", m.Device().Name)

	_, err = NewManager(ManagerOptions{Platform: "CUDA"},
		&fakePlatform{name: "p", devices: []Device{a, b}})
	assert.ErrorIs(t, err, ErrNoComputeDevice)
}

func TestNewManagerEnumerationError(t *testing.T) {
	boom := errors.New("driver crashed")
	_, err := NewManager(ManagerOptions{}, &fakePlatform{name: "p", err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestCodecRoundTrip(t *testing.T) {
	values := []float64{0, 1, -2.5, 0.125, 1e-3}
	for _, kind := range []ElemKind{Half, Float, Double} {
		t.Run(kind.String(), func(t *testing.T) {
			raw := EncodeFloats(kind, values)
			require.Len(t, raw, len(values)*kind.Size())
			got := make([]float64, len(values))
			require.NoError(t, DecodeFloats(kind, raw, got))
			for i := range values {
				assert.InDelta(t, values[i], got[i], 1e-3)
			}
		})
	}

	ints := []int32{0, 1, 2, -7}
	got := make([]int32, len(ints))
	require.NoError(t, DecodeInts(EncodeInts(ints), got))
	assert.Equal(t, ints, got)

	assert.Error(t, DecodeInts([]byte{1, 2, 3}, got))
}

func TestKernelCompileErrorIs(t *testing.T) {
	err := error(&KernelCompileError{Program: "p", Device: "d", Log: "line 3: expected ';'"})
	assert.ErrorIs(t, err, ErrKernelCompile)
	assert.Contains(t, err.Error(), "expected ';'")
}
