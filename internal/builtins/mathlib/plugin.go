package mathlib

import (
	"math"
	"math/rand"

	"github.com/xirelogy/go-qcvm/internal/runtime"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{Name: "random", Index: 7, Handler: runRandom})
	runtime.Register(runtime.Spec{Name: "rint", Index: 36, Handler: runRint})
	runtime.Register(runtime.Spec{Name: "floor", Index: 37, Handler: runFloor})
	runtime.Register(runtime.Spec{Name: "ceil", Index: 38, Handler: runCeil})
	runtime.Register(runtime.Spec{Name: "fabs", Index: 43, Handler: runFabs})
}

// random returns a value in [0, 1] with 15 bits of resolution.
func runRandom(m *vm.Machine) error {
	m.ReturnFloat(float32(rand.Intn(0x8000)) / 0x7fff)
	return nil
}

func runRint(m *vm.Machine) error {
	f := m.ParmFloat(0)
	if f > 0 {
		m.ReturnFloat(float32(int(f + 0.5)))
	} else {
		m.ReturnFloat(float32(int(f - 0.5)))
	}
	return nil
}

func runFloor(m *vm.Machine) error {
	m.ReturnFloat(float32(math.Floor(float64(m.ParmFloat(0)))))
	return nil
}

func runCeil(m *vm.Machine) error {
	m.ReturnFloat(float32(math.Ceil(float64(m.ParmFloat(0)))))
	return nil
}

func runFabs(m *vm.Machine) error {
	m.ReturnFloat(float32(math.Abs(float64(m.ParmFloat(0)))))
	return nil
}
