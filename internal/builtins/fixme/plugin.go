package fixme

import (
	"github.com/xirelogy/go-qcvm/internal/runtime"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

// Index 0 also backs every builtin number the table does not cover.
const index = 0

func init() {
	runtime.Register(runtime.Spec{
		Name:    "fixme",
		Index:   index,
		Handler: runFixme,
	})
}

func runFixme(m *vm.Machine) error {
	m.RunWarning("unimplemented builtin")
	return nil
}
