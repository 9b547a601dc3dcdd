package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"
)

// fileConfig mirrors the INI layout read by Load:
//
//	[simulation]
//	velocity-set = D2Q9
//	grid = 64,64,1
//	viscosity = 0.1
//	timesteps = 1000
//	precision = FP32
//
//	[device]
//	backend = auto
//
//	[output]
//	listen = :8080
type fileConfig struct {
	Simulation struct {
		VelocitySet      string  `gcfg:"velocity-set"`
		SimType          string  `gcfg:"simtype"`
		Grid             string  `gcfg:"grid"`
		Viscosity        float64 `gcfg:"viscosity"`
		Timesteps        int     `gcfg:"timesteps"`
		Precision        string  `gcfg:"precision"`
		Temperature      bool    `gcfg:"temperature"`
		Graphics         bool    `gcfg:"graphics"`
		ColorMap         string  `gcfg:"cmap"`
		Window           string  `gcfg:"window"`
		EquilibriumStart bool    `gcfg:"equilibrium-start"`
	}
	Device struct {
		Backend       string `gcfg:"backend"`
		Platform      string `gcfg:"platform"`
		Name          string `gcfg:"name"`
		MemoryLimitMB int    `gcfg:"memory-limit-mb"`
	}
	Output struct {
		Listen     string `gcfg:"listen"`
		IntervalMs int    `gcfg:"interval-ms"`
	}
}

func newFileConfig() *fileConfig {
	d := defaults()
	fc := &fileConfig{}
	fc.Simulation.VelocitySet = d.velocitySet
	fc.Simulation.SimType = d.simType
	fc.Simulation.Grid = FormatDims(d.grid)
	fc.Simulation.Viscosity = d.viscosity
	fc.Simulation.Timesteps = d.totalTimesteps
	fc.Simulation.Precision = d.precisionToken
	fc.Simulation.Graphics = d.useGraphics
	fc.Simulation.ColorMap = d.colorMap
	fc.Simulation.Window = FormatDims(d.window)
	fc.Device.Backend = d.device.Backend
	fc.Output.IntervalMs = d.output.IntervalMs
	return fc
}

func (fc *fileConfig) options() []Option {
	s := fc.Simulation
	// Malformed dimension lists become nil and fail validation with the
	// field name attached.
	grid, _ := ParseDims(s.Grid)
	window, _ := ParseDims(s.Window)
	return []Option{
		WithVelocitySet(s.VelocitySet),
		WithSimType(s.SimType),
		WithGrid(grid...),
		WithViscosity(s.Viscosity),
		WithTimesteps(s.Timesteps),
		WithPrecision(s.Precision),
		WithTemperature(s.Temperature),
		WithGraphics(s.Graphics),
		WithColorMap(s.ColorMap),
		WithWindow(window...),
		WithEquilibriumStart(s.EquilibriumStart),
		WithDevice(DeviceSettings{
			Backend:       fc.Device.Backend,
			Platform:      fc.Device.Platform,
			Device:        fc.Device.Name,
			MemoryLimitMB: fc.Device.MemoryLimitMB,
		}),
		WithOutput(OutputSettings{Listen: fc.Output.Listen, IntervalMs: fc.Output.IntervalMs}),
	}
}

// Load reads an INI config file. Options in overrides are applied after the
// file, so command line flags win.
func Load(fname string, overrides ...Option) (*Config, error) {
	fc := newFileConfig()
	if err := gcfg.ReadFileInto(fc, fname); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", fname, err)
	}
	return New(append(fc.options(), overrides...)...)
}

// Parse is Load for in-memory config text.
func Parse(text string, overrides ...Option) (*Config, error) {
	fc := newFileConfig()
	if err := gcfg.ReadStringInto(fc, text); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return New(append(fc.options(), overrides...)...)
}

// ParseDims parses "64,64,1" or "64x64x1".
func ParseDims(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty dimension list")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == 'x' || r == 'X' || r == ' '
	})
	dims := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", i, err)
		}
		dims[i] = v
	}
	return dims, nil
}

// FormatDims is the inverse of ParseDims.
func FormatDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
