package vm

// Duplicate returns an independent machine over the same image, with copied
// globals, entities, engine strings and configuration. Execution state is
// reset in the duplicate.
func (m *Machine) Duplicate(side Side) *Machine {
	if m == nil {
		return nil
	}
	dup := New(m.prog, side)
	copy(dup.functions, m.functions)
	copy(dup.globals.cells, m.globals.cells)
	dup.entities = m.entities.clone()
	dup.builtins = m.builtins
	dup.runawayLimit = m.runawayLimit
	dup.console = m.console
	dup.traceHook = m.traceHook
	dup.engineStrings = append([]string(nil), m.engineStrings...)
	for s, ref := range m.engineIndex {
		dup.engineIndex[s] = ref
	}
	return dup
}

func (e *Entities) clone() *Entities {
	return &Entities{
		fields: e.fields,
		cells:  append([]uint32(nil), e.cells...),
		free:   append([]bool(nil), e.free...),
		secret: append([]int32(nil), e.secret...),
		num:    e.num,
	}
}
