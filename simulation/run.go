package simulation

import (
	"context"
	"fmt"

	"fluidlbm/kernels"
)

// Run advances the simulation by steps collide-and-stream steps. Each call
// resumes from the state on the device.
func (e *Engine) Run(steps int) error {
	return e.RunContext(context.Background(), steps)
}

// RunContext is Run with cancellation, checked between steps.
func (e *Engine) RunContext(ctx context.Context, steps int) error {
	if steps < 0 {
		return fmt.Errorf("simulation: negative step count %d", steps)
	}
	if err := e.begin(); err != nil {
		return err
	}

	progressEvery := e.progressEvery
	if progressEvery <= 0 {
		progressEvery = steps / 10
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			e.end(BuffersReady)
			return err
		}
		if err := e.step(); err != nil {
			e.end(BuffersReady)
			return err
		}
		if progressEvery > 0 && (i+1)%progressEvery == 0 {
			st := e.Stats()
			e.log.Printf("step %d/%d | %.1f steps/s | %.2f MLUps", i+1, steps, st.StepsPerSecond, st.MLUps)
		}
	}
	e.end(Completed)

	st := e.Stats()
	e.log.Printf("completed %d steps (%d total) in %s | %.2f MLUps", steps, st.Steps, st.Elapsed, st.AverageMLUps)
	return nil
}

// begin validates the state, allocates buffers if needed and runs the
// equilibrium initialisation once.
func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case DeviceReady, BuffersReady, Completed:
	default:
		return invalidState("run", e.state)
	}
	if err := e.initializeBuffers(); err != nil {
		return err
	}

	if e.equilibriumStart && !e.equilibrated {
		b := e.bufs
		q, d, nx, ny, nz := e.dims()
		if err := e.ctx.Dispatch(e.eq, e.grid.Dims(),
			b.f, b.rho, b.u, b.velocities, b.weights, q, d, nx, ny, nz, b.fNext); err != nil {
			return fmt.Errorf("simulation: equilibrium initialisation: %w", err)
		}
		e.equilibrated = true
	}
	e.meter.start(e.now())
	e.state = Running
	return nil
}

func (e *Engine) end(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) dims() (q, d, nx, ny, nz int32) {
	return int32(e.set.Q), int32(e.set.D), int32(e.grid.Nx), int32(e.grid.Ny), int32(e.grid.Nz)
}

// step dispatches one collide-and-stream and swaps the population buffers.
func (e *Engine) step() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bufs
	q, d, nx, ny, nz := e.dims()
	omega := kernels.Real(e.prec, e.cfg.Omega())
	if err := e.ctx.Dispatch(e.stream, e.grid.Dims(),
		b.f, b.rho, b.u, b.velocities, b.weights, omega, q, d, nx, ny, nz, b.fNext, b.flags); err != nil {
		return fmt.Errorf("simulation: step %d: %w", e.steps+1, err)
	}
	b.f, b.fNext = b.fNext, b.f
	e.steps++

	if e.syncTiming {
		if err := e.ctx.Finish(); err != nil {
			return fmt.Errorf("simulation: step %d: %w", e.steps, err)
		}
	}
	e.meter.tick(e.now(), 1)
	return nil
}

// Stats returns the step count, throughput and memory figures.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.grid.N()
	return Stats{
		Steps:          e.steps,
		StepsPerSecond: e.meter.rate,
		MLUps:          mlups(n, e.meter.rate),
		AverageMLUps:   mlups(n, e.meter.average()),
		Elapsed:        e.meter.elapsed,
		VRAM:           e.vram,
	}
}
