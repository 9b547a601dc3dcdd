package transpiler

import "fmt"

// Array is one of the device arrays an initial-conditions function may
// address. The set is closed: every other name in a subscript is rejected.
type Array int

const (
	ArrayRho Array = iota
	ArrayU
	ArrayFlags
)

type arrayRule struct {
	name  string
	arity int
	kind  Kind
}

var arrayRules = [...]arrayRule{
	ArrayRho:   {name: "rho", arity: 0, kind: KindReal},
	ArrayU:     {name: "u", arity: 1, kind: KindReal},
	ArrayFlags: {name: "flags", arity: 0, kind: KindInt},
}

func lookupArray(name string) (Array, bool) {
	for a, r := range arrayRules {
		if r.name == name {
			return Array(a), true
		}
	}
	return 0, false
}

func (a Array) String() string { return arrayRules[a].name }

// Arity is the number of indices the array takes.
func (a Array) Arity() int { return arrayRules[a].arity }

// Kind is the element type.
func (a Array) Kind() Kind { return arrayRules[a].kind }

// Offset is the kernel expression addressing the array at cell n.
// Velocity components are addressed as n + c, not n*D + c.
func (a Array) Offset(component int) string {
	if a == ArrayU {
		return fmt.Sprintf("n + %d", component)
	}
	return "n"
}

// Index is the element Offset addresses for cell n.
func (a Array) Index(n, component int) int {
	if a == ArrayU {
		return n + component
	}
	return n
}
