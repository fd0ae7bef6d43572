package vm

import (
	"fmt"
	"io"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Disassemble lists every function of the loaded program against the
// machine's current global memory.
func (m *Machine) Disassemble(w io.Writer) error {
	if m == nil {
		return fmt.Errorf("nil machine")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	return progs.NewDisassembler(w, m.renderer()).DisassembleProgram()
}

// Statement renders statement index i.
func (m *Machine) Statement(i int) string {
	if i < 0 || i >= len(m.prog.Statements) {
		return ""
	}
	return m.renderer().Statement(m.prog.Statements[i])
}
