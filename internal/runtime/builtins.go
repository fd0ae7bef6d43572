package runtime

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

// Spec describes a builtin: the script-visible name, its slot in the
// builtin table and the native handler.
type Spec struct {
	Name    string
	Index   int
	Handler vm.Builtin
}

var (
	byName  = map[string]Spec{}
	byIndex = map[int]Spec{}
)

// Register installs a builtin in both lookup tables and the disassembler's
// name registry.
func Register(spec Spec) {
	if spec.Handler == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if spec.Index < 0 {
		panic(fmt.Sprintf("builtin %s has negative index %d", spec.Name, spec.Index))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	if _, exists := byIndex[spec.Index]; exists {
		panic(fmt.Sprintf("builtin index #%d already registered", spec.Index))
	}
	byName[spec.Name] = spec
	byIndex[spec.Index] = spec
	progs.RegisterBuiltinInfo(spec.Name, spec.Index)
}

// LookupByName finds a builtin by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// LookupByIndex finds a builtin by table index.
func LookupByIndex(index int) (Spec, bool) {
	spec, ok := byIndex[index]
	return spec, ok
}

// All returns all registered builtins ordered by index.
func All() []Spec {
	out := make([]Spec, 0, len(byIndex))
	for _, spec := range byIndex {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Table materialises the registry as an index-addressed builtin table.
// Unregistered slots below the highest index are filled with the handler
// at index 0.
func Table() []vm.Builtin {
	max := -1
	for index := range byIndex {
		if index > max {
			max = index
		}
	}
	table := make([]vm.Builtin, max+1)
	for index, spec := range byIndex {
		table[index] = spec.Handler
	}
	if len(table) > 0 && table[0] != nil {
		for i := range table {
			if table[i] == nil {
				table[i] = table[0]
			}
		}
	}
	return table
}
