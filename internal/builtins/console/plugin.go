package console

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-qcvm/internal/runtime"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{Name: "dprint", Index: 25, Handler: runDprint})
	runtime.Register(runtime.Spec{Name: "ftos", Index: 26, Handler: runFtos})
	runtime.Register(runtime.Spec{Name: "vtos", Index: 27, Handler: runVtos})
	runtime.Register(runtime.Spec{Name: "traceon", Index: 29, Handler: runTraceon})
	runtime.Register(runtime.Spec{Name: "traceoff", Index: 30, Handler: runTraceoff})
}

// varString concatenates the string arguments from first to the call's
// argument count.
func varString(m *vm.Machine, first int) string {
	var b strings.Builder
	for i := first; i < m.Argc(); i++ {
		b.WriteString(m.ParmString(i))
	}
	return b.String()
}

func runDprint(m *vm.Machine) error {
	m.Logger().Debugf("%s", strings.TrimRight(varString(m, 0), "\n"))
	return nil
}

// FormatFloat renders a float the way ftos does: whole values without a
// fraction, others with one decimal in a five-column field.
func FormatFloat(f float32) string {
	if f == float32(int32(f)) {
		return fmt.Sprintf("%d", int32(f))
	}
	return fmt.Sprintf("%5.1f", f)
}

func runFtos(m *vm.Machine) error {
	m.ReturnString(FormatFloat(m.ParmFloat(0)))
	return nil
}

func runVtos(m *vm.Machine) error {
	v := m.ParmVector(0)
	m.ReturnString(fmt.Sprintf("'%5.1f %5.1f %5.1f'", v[0], v[1], v[2]))
	return nil
}

func runTraceon(m *vm.Machine) error {
	m.SetTrace(true)
	return nil
}

func runTraceoff(m *vm.Machine) error {
	m.SetTrace(false)
	return nil
}
