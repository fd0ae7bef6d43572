package vm

// GetString resolves a string reference. Non-negative references index the
// program's pool; negative ones name engine-owned strings. Unknown
// references resolve to "".
func (m *Machine) GetString(ref int32) string {
	if ref >= 0 {
		return m.prog.String(ref)
	}
	i := int(-ref) - 1
	if i < len(m.engineStrings) {
		return m.engineStrings[i]
	}
	return ""
}

// SetEngineString stores s outside the program pool and returns its
// reference. Equal strings share one reference.
func (m *Machine) SetEngineString(s string) int32 {
	if ref, ok := m.engineIndex[s]; ok {
		return ref
	}
	m.engineStrings = append(m.engineStrings, s)
	ref := -int32(len(m.engineStrings))
	m.engineIndex[s] = ref
	return ref
}
