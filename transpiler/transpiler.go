// Package transpiler compiles initial conditions, written as a small Go
// function, into the initial_conditions device kernel.
//
// The accepted subset: assignments (= and :=) of numeric constants, names
// and array reads; if / else if / else on == and != comparisons; one
// `for v := range Nx|Ny|Nz` loop, which binds v to the work-item id along
// that axis; and the arrays rho, flags (no index) and u (one constant
// component). Within the function x, y, z, n, Nx, Ny and Nz are predeclared.
//
//	func initialConditions(x, y, z int) {
//		if x == 0 {
//			rho = 1.0
//		} else if y == 6 {
//			u[1] = 0.0
//		} else {
//			flags = 1
//		}
//	}
//
// Compilation is two independent stages, Parse and Emit. Nothing is emitted
// for input that fails to parse.
package transpiler

import (
	"fluidlbm/core"
	"fluidlbm/gpu"
)

// Options control code generation.
type Options struct {
	// Precision selects the storage type of rho and u.
	Precision core.Precision
}

// Kernel is a compiled initial-conditions function.
type Kernel struct {
	Func   *Func
	Source string

	prec core.Precision
}

// Compile parses src and emits the kernel source.
func Compile(src string, opts Options) (*Kernel, error) {
	fn, err := Parse(src)
	if err != nil {
		return nil, err
	}
	text, err := Emit(fn, opts)
	if err != nil {
		return nil, err
	}
	return &Kernel{Func: fn, Source: text, prec: opts.Precision}, nil
}

// Program returns the kernel as a buildable program, carrying the host
// implementation for the emulated device.
func (k *Kernel) Program() gpu.Source {
	return gpu.Source{
		Name: EntryPoint,
		Text: k.Source,
		Host: map[string]gpu.HostKernel{EntryPoint: k.Func.Host(k.prec)},
	}
}
