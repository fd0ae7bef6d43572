package vm

// Builtin is a native function callable from bytecode. Arguments are read
// from the parameter slots and results written to the return slot through
// the Machine accessors. A returned error aborts the execution.
type Builtin func(*Machine) error

func (m *Machine) callBuiltin(index int) error {
	if index < 0 || index >= len(m.builtins) {
		index = 0
	}
	var h Builtin
	if index < len(m.builtins) {
		h = m.builtins[index]
	}
	if h == nil {
		h = unimplemented
	}
	return h(m)
}

func unimplemented(m *Machine) error {
	m.RunWarning("unimplemented builtin")
	return nil
}
