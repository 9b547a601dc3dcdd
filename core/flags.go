package core

import "fmt"

// Flag classifies a lattice cell. The numeric values are shared with the
// device kernels (FLAG_FLUID, FLAG_SOLID, FLAG_EQ).
type Flag int32

const (
	FlagFluid       Flag = 0
	FlagSolid       Flag = 1
	FlagEquilibrium Flag = 2
)

func (f Flag) String() string {
	switch f {
	case FlagFluid:
		return "fluid"
	case FlagSolid:
		return "solid"
	case FlagEquilibrium:
		return "equilibrium"
	}
	return fmt.Sprintf("Flag(%d)", int32(f))
}
