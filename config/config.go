// Package config holds the validated, read-only parameter bundle of a
// simulation run.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"fluidlbm/core"
)

// ErrConfigValidation is matched by every *ValidationError.
var ErrConfigValidation = errors.New("invalid configuration")

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrConfigValidation }

var (
	SimTypes  = []string{"fluid"}
	ColorMaps = []string{
		"grays", "hot", "cool", "viridis", "inferno", "plasma", "magma",
		"cividis", "jet", "turbo", "RdYlBu", "blues",
	}
	Backends = []string{"auto", "opencl", "host"}
)

// DeviceSettings select the compute backend.
type DeviceSettings struct {
	Backend string
	// Platform and Device restrict enumeration to names containing them.
	Platform string
	Device   string
	// MemoryLimitMB caps host-backend allocations; 0 means physical memory.
	MemoryLimitMB int
}

// OutputSettings configure the snapshot server.
type OutputSettings struct {
	Listen     string
	IntervalMs int
}

// Config is built once by New or Load and is read-only afterwards.
type Config struct {
	velocitySet      string
	simType          string
	grid             []int
	viscosity        float64
	totalTimesteps   int
	precisionToken   string
	precision        core.Precision
	useTemperature   bool
	useGraphics      bool
	colorMap         string
	window           []int
	equilibriumStart bool
	device           DeviceSettings
	output           OutputSettings

	set core.VelocitySet
	tau float64
}

// Option modifies a Config under construction.
type Option func(*Config)

// WithVelocitySet selects the lattice by registry id, e.g. "D3Q19".
func WithVelocitySet(id string) Option { return func(c *Config) { c.velocitySet = id } }
// WithSimType sets the simulation type. Only "fluid" is recognised.
func WithSimType(t string) Option { return func(c *Config) { c.simType = t } }
// WithViscosity sets the kinematic viscosity in lattice units.
func WithViscosity(nu float64) Option { return func(c *Config) { c.viscosity = nu } }
// WithTimesteps sets the number of steps a full run performs.
func WithTimesteps(steps int) Option { return func(c *Config) { c.totalTimesteps = steps } }
// WithPrecision sets the storage precision token (FP16, FP32, FP64).
func WithPrecision(token string) Option { return func(c *Config) { c.precisionToken = token } }
// WithTemperature is accepted for file compatibility; it has no effect.
func WithTemperature(on bool) Option { return func(c *Config) { c.useTemperature = on } }
// WithGraphics toggles the (inert) visualisation flag.
func WithGraphics(on bool) Option { return func(c *Config) { c.useGraphics = on } }
// WithColorMap names the visualisation colour map.
func WithColorMap(name string) Option { return func(c *Config) { c.colorMap = name } }
// WithEquilibriumStart initialises populations from rho and u before the
// first step.
func WithEquilibriumStart(on bool) Option { return func(c *Config) { c.equilibriumStart = on } }
// WithDevice replaces all device settings.
func WithDevice(d DeviceSettings) Option { return func(c *Config) { c.device = d } }
// WithOutput replaces all snapshot server settings.
func WithOutput(o OutputSettings) Option { return func(c *Config) { c.output = o } }

// WithBackend overrides only the backend name of the device settings.
func WithBackend(name string) Option { return func(c *Config) { c.device.Backend = name } }

// WithListen overrides only the snapshot server address.
func WithListen(addr string) Option { return func(c *Config) { c.output.Listen = addr } }

// WithGrid sets the grid size; exactly three dimensions are accepted.
func WithGrid(dims ...int) Option {
	return func(c *Config) { c.grid = append([]int(nil), dims...) }
}

// WithWindow sets the (inert) visualisation window size.
func WithWindow(dims ...int) Option {
	return func(c *Config) { c.window = append([]int(nil), dims...) }
}

func defaults() *Config {
	return &Config{
		velocitySet:    "D2Q9",
		simType:        "fluid",
		grid:           []int{64, 64, 1},
		viscosity:      0.1,
		totalTimesteps: 1000,
		precisionToken: "FP32",
		useGraphics:    true,
		colorMap:       "inferno",
		window:         []int{1280, 720},
		device:         DeviceSettings{Backend: "auto"},
		output:         OutputSettings{IntervalMs: 100},
	}
}

// New applies opts over the defaults and validates the result. The first
// violation is returned.
func New(opts ...Option) (*Config, error) {
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(false); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateAll applies opts and reports every violation at once.
func ValidateAll(opts ...Option) error {
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	return c.validate(true)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func positive(dims []int) bool {
	for _, d := range dims {
		if d <= 0 {
			return false
		}
	}
	return true
}

func (c *Config) validate(all bool) error {
	var errs []error
	fail := func(field, format string, args ...interface{}) bool {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
		return !all
	}

	set, err := core.Lookup(c.velocitySet)
	if err != nil {
		if fail("velocity_set", "must be one of %v (got %q)", core.VelocitySetNames(), c.velocitySet) {
			return errs[0]
		}
	}
	c.set = set

	if !contains(SimTypes, c.simType) {
		if fail("simtype", "must be one of %v (got %q)", SimTypes, c.simType) {
			return errs[0]
		}
	}

	if !(c.viscosity > 0) || math.IsInf(c.viscosity, 0) {
		if fail("viscosity", "must be a positive real (got %g)", c.viscosity) {
			return errs[0]
		}
	}

	if len(c.grid) != 3 || !positive(c.grid) {
		if fail("grid_size", "must be a 3-tuple of positive integers (got %v)", c.grid) {
			return errs[0]
		}
	} else if c.velocitySet == "D2Q9" && c.grid[2] != 1 {
		if fail("grid_size", "must have Nz == 1 for D2Q9 (got %v)", c.grid) {
			return errs[0]
		}
	} else if cells := float64(c.grid[0]) * float64(c.grid[1]) * float64(c.grid[2]); set.Q > 0 && cells*float64(set.Q) > math.MaxInt32 {
		// Kernels index populations with 32-bit ints.
		if fail("grid_size", "holds %.0f populations, more than %d (got %v)", cells*float64(set.Q), math.MaxInt32, c.grid) {
			return errs[0]
		}
	}

	if c.totalTimesteps <= 0 {
		if fail("total_timesteps", "must be a positive integer (got %d)", c.totalTimesteps) {
			return errs[0]
		}
	}

	p, err := core.ParsePrecision(c.precisionToken)
	if err != nil {
		if fail("precision", "must be one of %v (got %q)", core.Precisions, c.precisionToken) {
			return errs[0]
		}
	}
	c.precision = p

	if !contains(ColorMaps, c.colorMap) {
		if fail("cmap", "must be one of %v (got %q)", ColorMaps, c.colorMap) {
			return errs[0]
		}
	}

	if len(c.window) != 2 || !positive(c.window) {
		if fail("window_dimensions", "must be a 2-tuple of positive integers (got %v)", c.window) {
			return errs[0]
		}
	}

	if !contains(Backends, strings.ToLower(c.device.Backend)) {
		if fail("device.backend", "must be one of %v (got %q)", Backends, c.device.Backend) {
			return errs[0]
		}
	}
	if c.device.MemoryLimitMB < 0 {
		if fail("device.memory_limit_mb", "must not be negative (got %d)", c.device.MemoryLimitMB) {
			return errs[0]
		}
	}
	if c.output.IntervalMs <= 0 {
		if fail("output.interval_ms", "must be a positive integer (got %d)", c.output.IntervalMs) {
			return errs[0]
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.tau = 3*c.viscosity + 0.5
	return nil
}

// VelocitySet returns the resolved velocity set.
func (c *Config) VelocitySet() core.VelocitySet { return c.set }

// VelocitySetID returns the registry id.
func (c *Config) VelocitySetID() string { return c.velocitySet }

// SimType returns the simulation type.
func (c *Config) SimType() string { return c.simType }

// Grid returns the grid dimensions.
func (c *Config) Grid() core.Grid { return core.NewGrid(c.grid[0], c.grid[1], c.grid[2]) }

// Viscosity returns the kinematic viscosity.
func (c *Config) Viscosity() float64 { return c.viscosity }
// TotalTimesteps returns the configured step count.
func (c *Config) TotalTimesteps() int { return c.totalTimesteps }
// Precision returns the parsed storage precision.
func (c *Config) Precision() core.Precision { return c.precision }
func (c *Config) UseTemperature() bool { return c.useTemperature }
func (c *Config) UseGraphics() bool { return c.useGraphics }
func (c *Config) ColorMap() string { return c.colorMap }
func (c *Config) Window() (w, h int) { return c.window[0], c.window[1] }
func (c *Config) EquilibriumStart() bool { return c.equilibriumStart }
// Device returns the backend selection settings.
func (c *Config) Device() DeviceSettings { return c.device }
// Output returns the snapshot server settings.
func (c *Config) Output() OutputSettings { return c.output }

// SoundSpeed is cs = 1/√3 in lattice units.
func (c *Config) SoundSpeed() float64 { return 1 / math.Sqrt(3) }

// SoundSpeed2 is cs² = 1/3.
func (c *Config) SoundSpeed2() float64 { return 1.0 / 3.0 }

// Tau is the BGK relaxation time 3ν + 0.5.
func (c *Config) Tau() float64 { return c.tau }

// Omega is the relaxation frequency 1/τ.
func (c *Config) Omega() float64 { return 1 / c.tau }

func (c *Config) String() string {
	return fmt.Sprintf("%s %dx%dx%d nu=%g tau=%g %s", c.velocitySet,
		c.grid[0], c.grid[1], c.grid[2], c.viscosity, c.tau, c.precision)
}
