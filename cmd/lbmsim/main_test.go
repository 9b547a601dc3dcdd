package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidlbm/config"
	"fluidlbm/gpu"
	"fluidlbm/gpu/host"
)

type stubGPU struct{ units int }

func (d stubGPU) Info() gpu.DeviceInfo {
	return gpu.DeviceInfo{Name: "stub gpu", Type: gpu.DeviceGPU, ComputeUnits: d.units}
}
func (d stubGPU) Open() (gpu.Context, error) { return nil, nil }

type stubPlatform struct{ devices []gpu.Device }

func (p stubPlatform) Name() string                   { return "Stub" }
func (p stubPlatform) Devices() ([]gpu.Device, error) { return p.devices, nil }

func TestBuildPlatformsHost(t *testing.T) {
	platforms, allowCPU, err := buildPlatforms(config.DeviceSettings{Backend: "host", MemoryLimitMB: 1})
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	assert.True(t, allowCPU)

	mgr, err := gpu.NewManager(gpu.ManagerOptions{AllowCPU: allowCPU}, platforms...)
	require.NoError(t, err)
	defer mgr.Close()
	assert.Equal(t, gpu.DeviceCPU, mgr.Device().Type)
}

func TestBuildPlatformsAutoEndsWithHost(t *testing.T) {
	platforms, allowCPU, err := buildPlatforms(config.DeviceSettings{Backend: "auto"})
	require.NoError(t, err)
	require.NotEmpty(t, platforms)
	assert.True(t, allowCPU)
	assert.Equal(t, "Host", platforms[len(platforms)-1].Name())
}

func TestAutoPrefersGPUOverWideHost(t *testing.T) {
	platforms := []gpu.Platform{
		stubPlatform{devices: []gpu.Device{stubGPU{units: 8}}},
		host.NewPlatform(host.WithWorkers(16)),
	}
	mgr, err := gpu.NewManager(gpu.ManagerOptions{AllowCPU: true}, platforms...)
	require.NoError(t, err)
	defer mgr.Close()
	assert.Equal(t, "stub gpu", mgr.Device().Name)
}

func TestBuildPlatformsUnknown(t *testing.T) {
	_, _, err := buildPlatforms(config.DeviceSettings{Backend: "cuda"})
	assert.Error(t, err)
}

func TestMaxSpeed(t *testing.T) {
	assert.InDelta(t, 5.0, maxSpeed([]float64{0, 0, 3, 4, 1, 0}, 2), 1e-12)
	assert.Equal(t, 0.0, maxSpeed(nil, 2))
}

func TestFlagOptionsWithoutFlags(t *testing.T) {
	opts, err := flagOptions("D3Q19", "bad", 0, 0, "", "", "")
	require.NoError(t, err, "unset flags are ignored")
	assert.Empty(t, opts)
}
