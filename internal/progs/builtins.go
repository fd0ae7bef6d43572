package progs

import "fmt"

// BuiltinInfo describes a registered builtin slot.
type BuiltinInfo struct {
	Name  string
	Index int
}

var builtinInfo = map[int]BuiltinInfo{}

// RegisterBuiltinInfo registers builtin metadata for diagnostics/disassembly.
func RegisterBuiltinInfo(name string, index int) {
	if name == "" {
		name = fmt.Sprintf("#%d", index)
	}
	if _, exists := builtinInfo[index]; exists {
		panic(fmt.Sprintf("builtin #%d already registered", index))
	}
	builtinInfo[index] = BuiltinInfo{Name: name, Index: index}
}

// LookupBuiltinInfo returns builtin metadata if registered.
func LookupBuiltinInfo(index int) (BuiltinInfo, bool) {
	info, ok := builtinInfo[index]
	return info, ok
}
