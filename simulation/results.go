package simulation

import (
	"fmt"

	"fluidlbm/core"
	"fluidlbm/gpu"
	"fluidlbm/transpiler"
)

// SetInitialConditions compiles src (see package transpiler), runs it once
// over the grid and copies rho, u and flags back to the host. It is valid
// before the first Run.
func (e *Engine) SetInitialConditions(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case DeviceReady, BuffersReady:
	default:
		return invalidState("set initial conditions", e.state)
	}

	k, err := transpiler.Compile(src, transpiler.Options{Precision: e.prec})
	if err != nil {
		return fmt.Errorf("simulation: initial conditions: %w", err)
	}
	if err := e.initializeBuffers(); err != nil {
		return err
	}

	prog, err := e.ctx.Build(k.Program())
	if err != nil {
		return fmt.Errorf("simulation: initial conditions: %w", err)
	}
	defer prog.Release()
	kern, err := prog.Kernel(transpiler.EntryPoint)
	if err != nil {
		return fmt.Errorf("simulation: initial conditions: %w", err)
	}
	defer kern.Release()

	b := e.bufs
	_, _, nx, ny, nz := e.dims()
	if err := e.ctx.Dispatch(kern, e.grid.Dims(), b.rho, b.u, b.flags, nx, ny, nz); err != nil {
		return fmt.Errorf("simulation: initial conditions: %w", err)
	}
	if err := e.ctx.Finish(); err != nil {
		return fmt.Errorf("simulation: initial conditions: %w", err)
	}
	if err := e.readFields(true); err != nil {
		return err
	}
	e.state = BuffersReady
	e.log.Printf("initial conditions applied: %d solid, %d equilibrium cells",
		e.countFlags(core.FlagSolid), e.countFlags(core.FlagEquilibrium))
	return nil
}

func (e *Engine) countFlags(f core.Flag) int {
	var c int
	for _, v := range e.lattice.Flags {
		if core.Flag(v) == f {
			c++
		}
	}
	return c
}

// readFields copies rho, u and optionally flags from the device into the
// host lattice state.
func (e *Engine) readFields(flags bool) error {
	b := e.bufs
	read := func(buf gpu.Buffer, dst []float64) error {
		raw := make([]byte, buf.Size())
		if err := e.ctx.Read(buf, raw); err != nil {
			return fmt.Errorf("simulation: reading %s: %w", buf.Spec().Name, err)
		}
		return gpu.DecodeFloats(buf.Spec().Kind, raw, dst)
	}
	if err := read(b.rho, e.lattice.Rho); err != nil {
		return err
	}
	if err := read(b.u, e.lattice.U); err != nil {
		return err
	}
	if !flags {
		return nil
	}
	raw := make([]byte, b.flags.Size())
	if err := e.ctx.Read(b.flags, raw); err != nil {
		return fmt.Errorf("simulation: reading flags: %w", err)
	}
	return gpu.DecodeInts(raw, e.lattice.Flags)
}

// Results copies density (N) and velocity (N*D) from the device. Before
// buffers exist it returns the initial host state.
func (e *Engine) Results() (density, velocity []float64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Uninitialized {
		return nil, nil, invalidState("results", e.state)
	}
	if e.bufs != nil {
		if err := e.readFields(false); err != nil {
			return nil, nil, err
		}
	}
	return append([]float64(nil), e.lattice.Rho...), append([]float64(nil), e.lattice.U...), nil
}

// Density returns the host copy of rho as of the last read-back.
func (e *Engine) Density() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.lattice.Rho...)
}

// Velocity returns the host copy of u as of the last read-back.
func (e *Engine) Velocity() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.lattice.U...)
}

// Flags returns the cell flags. They only change through
// SetInitialConditions.
func (e *Engine) Flags() []int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int32(nil), e.lattice.Flags...)
}

// Snapshot is a host copy of the macroscopic fields at a step.
type Snapshot struct {
	Step     int
	Grid     core.Grid
	D        int
	Density  []float64
	Velocity []float64
	Flags    []int32
	MLUps    float64
}

// Snapshot reads the current fields from the device. It is safe to call
// while Run is in progress; the copy is taken between two steps.
func (e *Engine) Snapshot() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Uninitialized {
		return Snapshot{}, invalidState("snapshot", e.state)
	}
	if e.bufs != nil {
		if err := e.readFields(false); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{
		Step:     e.steps,
		Grid:     e.grid,
		D:        e.set.D,
		Density:  append([]float64(nil), e.lattice.Rho...),
		Velocity: append([]float64(nil), e.lattice.U...),
		Flags:    append([]int32(nil), e.lattice.Flags...),
		MLUps:    mlups(e.grid.N(), e.meter.rate),
	}, nil
}
