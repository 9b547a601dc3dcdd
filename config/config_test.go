package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidlbm/core"
)

func TestDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, "D2Q9", c.VelocitySetID())
	assert.Equal(t, core.NewGrid(64, 64, 1), c.Grid())
	assert.Equal(t, core.FP32, c.Precision())
	assert.Equal(t, 9, c.VelocitySet().Q)
	assert.InDelta(t, 0.8, c.Tau(), 1e-12)
	assert.InDelta(t, 1.25, c.Omega(), 1e-12)
	assert.InDelta(t, 1/math.Sqrt(3), c.SoundSpeed(), 1e-15)
	assert.InDelta(t, 1.0/3.0, c.SoundSpeed2(), 1e-15)
}

func TestValidationRejects(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		field string
	}{
		{"zero viscosity", WithViscosity(0), "viscosity"},
		{"negative viscosity", WithViscosity(-0.1), "viscosity"},
		{"NaN viscosity", WithViscosity(math.NaN()), "viscosity"},
		{"two dims", WithGrid(4, 4), "grid_size"},
		{"four dims", WithGrid(4, 4, 1, 1), "grid_size"},
		{"zero dim", WithGrid(4, 0, 1), "grid_size"},
		{"D2Q9 with depth", WithGrid(4, 4, 4), "grid_size"},
		{"too many populations", WithGrid(20000, 20000, 1), "grid_size"},
		{"unknown set", WithVelocitySet("D9Q99"), "velocity_set"},
		{"zero steps", WithTimesteps(0), "total_timesteps"},
		{"negative steps", WithTimesteps(-3), "total_timesteps"},
		{"bad precision", WithPrecision("FP8"), "precision"},
		{"bad simtype", WithSimType("plasma"), "simtype"},
		{"bad cmap", WithColorMap("rainbow"), "cmap"},
		{"bad window", WithWindow(1280), "window_dimensions"},
		{"bad backend", WithDevice(DeviceSettings{Backend: "cuda"}), "device.backend"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.opt)
			require.Nil(t, c)
			require.ErrorIs(t, err, ErrConfigValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestLargestIndexableGrid(t *testing.T) {
	// 15446 * 15446 * 9 is just below 2^31.
	_, err := New(WithGrid(15446, 15446, 1))
	assert.NoError(t, err)

	_, err = New(WithVelocitySet("D3Q27"), WithGrid(512, 512, 512))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "grid_size", verr.Field)
}

func TestValidationOrder(t *testing.T) {
	_, err := New(WithViscosity(-1), WithTimesteps(0))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "viscosity", verr.Field)
}

func TestValidateAll(t *testing.T) {
	err := ValidateAll(WithViscosity(-1), WithTimesteps(0), WithPrecision("x"))
	require.ErrorIs(t, err, ErrConfigValidation)
	assert.Contains(t, err.Error(), "viscosity")
	assert.Contains(t, err.Error(), "total_timesteps")
	assert.Contains(t, err.Error(), "precision")

	assert.NoError(t, ValidateAll())
}

func TestThreeDimensionalSet(t *testing.T) {
	c, err := New(WithVelocitySet("D3Q19"), WithGrid(8, 8, 8), WithPrecision("fp64"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.VelocitySet().D)
	assert.Equal(t, 512, c.Grid().N())
	assert.Equal(t, core.FP64, c.Precision())
}

func TestGridOptionCopies(t *testing.T) {
	dims := []int{4, 4, 1}
	c, err := New(WithGrid(dims...))
	require.NoError(t, err)
	dims[0] = 100
	assert.Equal(t, 4, c.Grid().Nx)
}

const sampleINI = `
[simulation]
velocity-set = D3Q15
grid = 16x8x4
viscosity = 0.05
timesteps = 200
precision = FP64
cmap = viridis
equilibrium-start

[device]
backend = host
memory-limit-mb = 64

[output]
listen = :9090
interval-ms = 250
`

func TestParseFile(t *testing.T) {
	c, err := Parse(sampleINI)
	require.NoError(t, err)

	assert.Equal(t, "D3Q15", c.VelocitySetID())
	assert.Equal(t, core.NewGrid(16, 8, 4), c.Grid())
	assert.Equal(t, 0.05, c.Viscosity())
	assert.Equal(t, 200, c.TotalTimesteps())
	assert.Equal(t, core.FP64, c.Precision())
	assert.Equal(t, "viridis", c.ColorMap())
	assert.True(t, c.EquilibriumStart())
	assert.Equal(t, "host", c.Device().Backend)
	assert.Equal(t, 64, c.Device().MemoryLimitMB)
	assert.Equal(t, ":9090", c.Output().Listen)
	assert.Equal(t, 250, c.Output().IntervalMs)
	w, h := c.Window()
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})
}

func TestLoadOverrides(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "case.ini")
	require.NoError(t, os.WriteFile(fname, []byte(sampleINI), 0o644))

	c, err := Load(fname, WithTimesteps(5))
	require.NoError(t, err)
	assert.Equal(t, 5, c.TotalTimesteps())
}

func TestPartialOverrides(t *testing.T) {
	c, err := Parse(sampleINI, WithBackend("auto"), WithListen(":7070"))
	require.NoError(t, err)
	assert.Equal(t, "auto", c.Device().Backend)
	assert.Equal(t, 64, c.Device().MemoryLimitMB, "other device settings survive")
	assert.Equal(t, ":7070", c.Output().Listen)
	assert.Equal(t, 250, c.Output().IntervalMs)
}

func TestLoadInvalidGrid(t *testing.T) {
	_, err := Parse("[simulation]\ngrid = 4,four,1\n")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "grid_size", verr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigValidation)
}

func TestParseDims(t *testing.T) {
	dims, err := ParseDims("4, 4, 1")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 1}, dims)

	dims, err = ParseDims("32x16x1")
	require.NoError(t, err)
	assert.Equal(t, "32,16,1", FormatDims(dims))

	_, err = ParseDims("")
	assert.Error(t, err)
}
