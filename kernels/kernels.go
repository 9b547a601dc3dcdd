// Package kernels holds the device programs of the lattice Boltzmann
// solver: the OpenCL C text, specialised for a storage precision, and the
// host implementations the emulated device executes.
package kernels

import (
	_ "embed"
	"fmt"
	"strings"

	"fluidlbm/core"
	"fluidlbm/gpu"
)

// Entry point names.
const (
	CollideAndStream = "lbm_collide_and_stream"
	Equilibrium      = "lbm_equilibrium"
)

//go:embed lbm.cl
var lbmSource string

// Preamble returns the precision dependent definitions every kernel of the
// solver is compiled with.
func Preamble(p core.Precision) string {
	var b strings.Builder
	if pragma := p.Pragma(); pragma != "" {
		b.WriteString(pragma + "\n")
	}
	fmt.Fprintf(&b, "#define MAX_Q 27\n")
	fmt.Fprintf(&b, "#define FLAG_FLUID %d\n", core.FlagFluid)
	fmt.Fprintf(&b, "#define FLAG_SOLID %d\n", core.FlagSolid)
	fmt.Fprintf(&b, "#define FLAG_EQUILIBRIUM %d\n", core.FlagEquilibrium)
	fmt.Fprintf(&b, "typedef %s real_t;\n", p.ComputeType())
	fmt.Fprintf(&b, "typedef %s store_t;\n", p.StorageType())
	if p == core.FP16 {
		b.WriteString("#define LOAD(p, i) vload_half((i), (p))\n")
		b.WriteString("#define STORE(p, i, v) vstore_half((v), (i), (p))\n")
	} else {
		b.WriteString("#define LOAD(p, i) ((real_t)(p)[i])\n")
		b.WriteString("#define STORE(p, i, v) ((p)[i] = (store_t)(v))\n")
	}
	return b.String()
}

// Source returns the solver program for precision p.
func Source(p core.Precision) gpu.Source {
	return gpu.Source{
		Name: "lbm_" + strings.ToLower(p.String()),
		Text: Preamble(p) + "\n" + lbmSource,
		Host: map[string]gpu.HostKernel{
			CollideAndStream: {Run: collideAndStream},
			Equilibrium:      {Run: equilibrium},
		},
	}
}

// StorageKind is the element kind of f, rho and u.
func StorageKind(p core.Precision) gpu.ElemKind {
	switch p {
	case core.FP16:
		return gpu.Half
	case core.FP64:
		return gpu.Double
	}
	return gpu.Float
}

// ComputeKind is the element kind of the weights buffer and of real_t
// scalar arguments.
func ComputeKind(p core.Precision) gpu.ElemKind {
	if p == core.FP64 {
		return gpu.Double
	}
	return gpu.Float
}

// Real converts v to the scalar argument type real_t maps to.
func Real(p core.Precision, v float64) interface{} {
	if p == core.FP64 {
		return v
	}
	return float32(v)
}
