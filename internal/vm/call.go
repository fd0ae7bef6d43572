package vm

import "github.com/xirelogy/go-qcvm/internal/progs"

// enterFunction pushes the caller, saves the callee's local block and copies
// the argument slots into its parameter cells. It returns the statement
// index one before the callee's first statement.
func (m *Machine) enterFunction(f *progs.Function) (int, error) {
	m.stack[m.depth] = frame{s: m.xstatement, f: m.xfunction}
	m.depth++
	if m.depth >= MaxStackDepth {
		return 0, fault(ErrStackOverflow, "stack overflow")
	}

	g := m.globals.cells
	c := int(f.Locals)
	start := int(f.ParmStart)
	if m.localUsed+c > LocalStackSize {
		return 0, fault(ErrLocalsOverflow, "locals stack overflow")
	}
	if start < 0 || c < 0 || start+c > len(g) {
		return 0, fault(ErrBadOperand, "function locals out of range")
	}
	copy(m.localStack[m.localUsed:m.localUsed+c], g[start:start+c])
	m.localUsed += c

	o := start
	for i := 0; i < int(f.NumParms) && i < progs.MaxParms; i++ {
		for j := 0; j < int(f.ParmSize[i]); j++ {
			g[o] = g[progs.OFS_PARM0+i*3+j]
			o++
		}
	}

	m.xfunction = f
	return int(f.FirstStatement) - 1, nil
}

// leaveFunction restores the current function's locals and pops the caller,
// returning the statement to resume at.
func (m *Machine) leaveFunction() (int, error) {
	if m.depth <= 0 || m.xfunction == nil {
		return 0, fault(ErrStackUnderflow, "prog stack underflow")
	}
	c := int(m.xfunction.Locals)
	m.localUsed -= c
	if m.localUsed < 0 {
		return 0, fault(ErrLocalsUnderflow, "locals stack underflow")
	}
	start := int(m.xfunction.ParmStart)
	copy(m.globals.cells[start:start+c], m.localStack[m.localUsed:m.localUsed+c])

	m.depth--
	m.xfunction = m.stack[m.depth].f
	return m.stack[m.depth].s, nil
}

// Depth returns the current call depth.
func (m *Machine) Depth() int { return m.depth }

// LocalsUsed returns the number of saved local cells.
func (m *Machine) LocalsUsed() int { return m.localUsed }
