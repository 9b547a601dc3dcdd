// Package simulation drives a lattice Boltzmann run on a compute device:
// it owns the device buffers, dispatches the collide-and-stream kernel once
// per step and copies results back to the host.
package simulation

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"fluidlbm/config"
	"fluidlbm/core"
	"fluidlbm/gpu"
	"fluidlbm/kernels"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to stderr with an "[lbm] " prefix.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		e.log = l
	}
}

// WithEquilibriumStart initialises the populations from rho and u with the
// equilibrium kernel before the first step. Defaults to the config setting.
func WithEquilibriumStart(on bool) Option {
	return func(e *Engine) { e.equilibriumStart = on }
}

// WithSynchronousTiming waits for the device after every step so the
// measured rate reflects completed work.
func WithSynchronousTiming(on bool) Option {
	return func(e *Engine) { e.syncTiming = on }
}

// WithClock replaces time.Now for the throughput meter.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProgressEvery logs a progress line every n steps. Zero logs ten lines
// per Run.
func WithProgressEvery(n int) Option {
	return func(e *Engine) { e.progressEvery = n }
}

// buffers are the device arrays, all sized from the grid and velocity set.
type buffers struct {
	f, fNext   gpu.Buffer
	rho, u     gpu.Buffer
	flags      gpu.Buffer
	velocities gpu.Buffer
	weights    gpu.Buffer
}

func (b *buffers) all() []gpu.Buffer {
	return []gpu.Buffer{b.f, b.fNext, b.rho, b.u, b.flags, b.velocities, b.weights}
}

// Engine runs one simulation on the device of a gpu.Manager.
type Engine struct {
	cfg  *config.Config
	mgr  *gpu.Manager
	ctx  gpu.Context
	set  core.VelocitySet
	grid core.Grid
	prec core.Precision
	log  *log.Logger
	now  func() time.Time

	equilibriumStart bool
	syncTiming       bool
	progressEvery    int

	mu           sync.Mutex
	state        State
	prog         gpu.Program
	stream       gpu.Kernel
	eq           gpu.Kernel
	bufs         *buffers
	lattice      *core.LatticeState
	steps        int
	equilibrated bool
	meter        meter
	vram         VRAM
}

// New compiles the solver program on the manager's device. The engine takes
// ownership of mgr and closes it in Close.
func New(cfg *config.Config, mgr *gpu.Manager, opts ...Option) (*Engine, error) {
	if cfg == nil || mgr == nil {
		return nil, errors.New("simulation: config and device manager are required")
	}
	e := &Engine{
		cfg:              cfg,
		mgr:              mgr,
		ctx:              mgr.Context(),
		set:              cfg.VelocitySet(),
		grid:             cfg.Grid(),
		prec:             cfg.Precision(),
		log:              log.New(os.Stderr, "[lbm] ", log.LstdFlags),
		now:              time.Now,
		equilibriumStart: cfg.EquilibriumStart(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lattice = core.NewLatticeState(e.grid, e.set)

	prog, err := e.ctx.Build(kernels.Source(e.prec))
	if err != nil {
		return nil, fmt.Errorf("simulation: building solver: %w", err)
	}
	stream, err := prog.Kernel(kernels.CollideAndStream)
	if err != nil {
		prog.Release()
		return nil, fmt.Errorf("simulation: %w", err)
	}
	eq, err := prog.Kernel(kernels.Equilibrium)
	if err != nil {
		stream.Release()
		prog.Release()
		return nil, fmt.Errorf("simulation: %w", err)
	}
	e.prog, e.stream, e.eq = prog, stream, eq
	e.state = DeviceReady

	e.log.Printf("%s %s on %s, grid %dx%dx%d, tau %.4f",
		e.set.Name, e.prec, mgr.Device().Name, e.grid.Nx, e.grid.Ny, e.grid.Nz, cfg.Tau())
	return e, nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Device describes the device the engine runs on.
func (e *Engine) Device() gpu.DeviceInfo { return e.mgr.Device() }

// Grid returns the lattice dimensions.
func (e *Engine) Grid() core.Grid { return e.grid }

// VelocitySet returns the engine's velocity set.
func (e *Engine) VelocitySet() core.VelocitySet { return e.set }

// InitializeBuffers allocates the device arrays from the host lattice
// state. Run calls it when needed.
func (e *Engine) InitializeBuffers() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeBuffers()
}

func (e *Engine) initializeBuffers() error {
	if e.state == Uninitialized {
		return invalidState("initialize buffers", e.state)
	}
	if e.bufs != nil {
		return nil
	}

	n, q, d := e.grid.N(), e.set.Q, e.set.D
	store := kernels.StorageKind(e.prec)
	compute := kernels.ComputeKind(e.prec)
	f := gpu.EncodeFloats(store, e.lattice.F)

	specs := []struct {
		spec gpu.BufferSpec
		data []byte
	}{
		{gpu.BufferSpec{Name: "f", Kind: store, Len: n * q}, f},
		{gpu.BufferSpec{Name: "f_next", Kind: store, Len: n * q}, f},
		{gpu.BufferSpec{Name: "rho", Kind: store, Len: n}, gpu.EncodeFloats(store, e.lattice.Rho)},
		{gpu.BufferSpec{Name: "u", Kind: store, Len: n * d}, gpu.EncodeFloats(store, e.lattice.U)},
		{gpu.BufferSpec{Name: "flags", Kind: gpu.Int32, Len: n}, gpu.EncodeInts(e.lattice.Flags)},
		{gpu.BufferSpec{Name: "velocities", Kind: gpu.Int32, Len: q * d, Access: gpu.ReadOnly}, gpu.EncodeInts(e.set.FlatVelocities())},
		{gpu.BufferSpec{Name: "weights", Kind: compute, Len: q, Access: gpu.ReadOnly}, gpu.EncodeFloats(compute, e.set.Weights)},
	}

	allocated := make([]gpu.Buffer, 0, len(specs))
	var used uint64
	for _, s := range specs {
		b, err := e.ctx.NewBuffer(s.spec, s.data)
		if err != nil {
			for _, a := range allocated {
				a.Release()
			}
			return fmt.Errorf("simulation: allocating %s: %w", s.spec.Name, err)
		}
		allocated = append(allocated, b)
		used += uint64(b.Size())
	}
	e.bufs = &buffers{
		f: allocated[0], fNext: allocated[1],
		rho: allocated[2], u: allocated[3], flags: allocated[4],
		velocities: allocated[5], weights: allocated[6],
	}

	total := e.mgr.Device().GlobalMemory
	e.vram = VRAM{Used: used, Total: total}
	if total > 0 {
		e.vram.Percent = 100 * float64(used) / float64(total)
	}
	e.log.Printf("VRAM: %.2f MB of %.0f MB (%.2f%%)",
		float64(used)/(1024*1024), float64(total)/(1024*1024), e.vram.Percent)

	if e.state == DeviceReady {
		e.state = BuffersReady
	}
	return nil
}

// Close releases the device buffers, the programs and the device context.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Uninitialized {
		return nil
	}

	var errs []error
	if e.bufs != nil {
		for _, b := range e.bufs.all() {
			errs = append(errs, b.Release())
		}
		e.bufs = nil
	}
	for _, k := range []gpu.Kernel{e.stream, e.eq} {
		errs = append(errs, k.Release())
	}
	errs = append(errs, e.prog.Release(), e.mgr.Close())
	e.state = Uninitialized
	return errors.Join(errs...)
}
