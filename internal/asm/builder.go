// Package asm builds program images statement by statement. It is used by
// tests and tooling that need small programs without a source compiler.
package asm

import (
	"fmt"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Builder accumulates globals, strings, functions and statements.
type Builder struct {
	prog    *progs.Program
	strings map[string]int32
	source  string
	pending []*Func
	errors  []error
}

// New constructs a builder with the reserved and system globals, the null
// function and statement 0 in place.
func New(source string) *Builder {
	b := &Builder{
		prog: &progs.Program{
			Statements:   []progs.Statement{{Op: progs.OP_DONE}},
			Functions:    []progs.Function{{}},
			Strings:      []byte{0},
			Globals:      make([]uint32, progs.RESERVED_OFS),
			EntityFields: progs.DefaultEntityFields,
		},
		strings: map[string]int32{"": 0},
		source:  source,
	}
	b.defineGlobal("RETURN", progs.EvVector, progs.OFS_RETURN)
	for i := 0; i < progs.MaxParms; i++ {
		b.defineGlobal(fmt.Sprintf("PARM%d", i), progs.EvVector, progs.OFS_PARM0+i*3)
	}
	b.prog.Globals = append(b.prog.Globals, make([]uint32, progs.GlobalVRight+3-progs.RESERVED_OFS)...)
	b.defineGlobal("self", progs.EvEntity, progs.GlobalSelf)
	b.defineGlobal("other", progs.EvEntity, progs.GlobalOther)
	b.defineGlobal("world", progs.EvEntity, progs.GlobalWorld)
	b.defineGlobal("time", progs.EvFloat, progs.GlobalTime)
	b.defineGlobal("frametime", progs.EvFloat, progs.GlobalFrametime)
	b.defineGlobal("total_secrets", progs.EvFloat, progs.GlobalTotalSecrets)
	b.defineGlobal("found_secrets", progs.EvFloat, progs.GlobalFoundSecrets)
	b.defineGlobal("v_forward", progs.EvVector, progs.GlobalVForward)
	b.defineGlobal("v_up", progs.EvVector, progs.GlobalVUp)
	b.defineGlobal("v_right", progs.EvVector, progs.GlobalVRight)
	return b
}

// Intern adds s to the string pool and returns its offset.
func (b *Builder) Intern(s string) int32 {
	if ofs, ok := b.strings[s]; ok {
		return ofs
	}
	ofs := int32(len(b.prog.Strings))
	b.prog.Strings = append(b.prog.Strings, s...)
	b.prog.Strings = append(b.prog.Strings, 0)
	b.strings[s] = ofs
	return ofs
}

// InternDistinct appends s to the pool without reusing an existing entry.
func (b *Builder) InternDistinct(s string) int32 {
	ofs := int32(len(b.prog.Strings))
	b.prog.Strings = append(b.prog.Strings, s...)
	b.prog.Strings = append(b.prog.Strings, 0)
	return ofs
}

func (b *Builder) defineGlobal(name string, typ uint16, ofs int) {
	b.prog.GlobalDefs = append(b.prog.GlobalDefs, progs.Def{
		Type: typ,
		Ofs:  uint16(ofs),
		Name: b.Intern(name),
	})
}

func (b *Builder) alloc(name string, typ uint16, width int) uint16 {
	ofs := len(b.prog.Globals)
	if ofs+width > 0xffff {
		b.errors = append(b.errors, fmt.Errorf("global space exhausted allocating %s", name))
		return 0
	}
	b.prog.Globals = append(b.prog.Globals, make([]uint32, width)...)
	if name != "" {
		b.defineGlobal(name, typ, ofs)
	}
	return uint16(ofs)
}

// Float allocates a named float global initialised to v.
func (b *Builder) Float(name string, v float32) uint16 {
	ofs := b.alloc(name, progs.EvFloat, 1)
	b.prog.Globals[ofs] = progs.FloatCell(v)
	return ofs
}

// Vector allocates a named vector global.
func (b *Builder) Vector(name string, v [3]float32) uint16 {
	ofs := b.alloc(name, progs.EvVector, 3)
	for i := 0; i < 3; i++ {
		b.prog.Globals[int(ofs)+i] = progs.FloatCell(v[i])
	}
	return ofs
}

// String allocates a named string global referencing s.
func (b *Builder) String(name, s string) uint16 {
	ofs := b.alloc(name, progs.EvString, 1)
	b.prog.Globals[ofs] = uint32(b.Intern(s))
	return ofs
}

// StringRef allocates a string global holding a raw pool offset.
func (b *Builder) StringRef(name string, ref int32) uint16 {
	ofs := b.alloc(name, progs.EvString, 1)
	b.prog.Globals[ofs] = uint32(ref)
	return ofs
}

// Entity allocates a named entity global (initially the world).
func (b *Builder) Entity(name string) uint16 {
	return b.alloc(name, progs.EvEntity, 1)
}

// Int allocates a global holding raw bits, typed as typ.
func (b *Builder) Int(name string, typ uint16, v int32) uint16 {
	ofs := b.alloc(name, typ, 1)
	b.prog.Globals[ofs] = uint32(v)
	return ofs
}

// FieldRef allocates a field-offset constant and registers the field def.
func (b *Builder) FieldRef(name string, typ uint16, fieldOfs int) uint16 {
	if _, ok := b.prog.FieldAtOfs(fieldOfs); !ok {
		b.prog.FieldDefs = append(b.prog.FieldDefs, progs.Def{
			Type: typ,
			Ofs:  uint16(fieldOfs),
			Name: b.Intern(name),
		})
	}
	return b.Int("."+name, progs.EvField, int32(fieldOfs))
}

// FuncRef allocates a function-reference global pointing at fnum.
func (b *Builder) FuncRef(name string, fnum int) uint16 {
	return b.Int(name, progs.EvFunction, int32(fnum))
}

// Temp allocates an anonymous scratch global of the given width.
func (b *Builder) Temp(width int) uint16 {
	return b.alloc("", progs.EvVoid, width)
}

// Builtin declares a native function bound to a builtin table index and
// returns its function number.
func (b *Builder) Builtin(name string, index int, parmSizes ...uint8) int {
	if index <= 0 {
		b.errors = append(b.errors, fmt.Errorf("builtin %s: index must be positive, got %d", name, index))
	}
	f := progs.Function{
		FirstStatement: int32(-index),
		Name:           b.Intern(name),
		File:           b.Intern(b.source),
		NumParms:       int32(len(parmSizes)),
	}
	copy(f.ParmSize[:], parmSizes)
	b.prog.Functions = append(b.prog.Functions, f)
	return len(b.prog.Functions) - 1
}

// Program returns the built image. Any allocation errors are reported here.
func (b *Builder) Program() (*progs.Program, error) {
	for _, fb := range b.pending {
		if !fb.closed {
			return nil, fmt.Errorf("function %s was not finished", fb.name)
		}
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	return b.prog, nil
}

// MustProgram returns the built image or panics (convenience for tests).
func (b *Builder) MustProgram() *progs.Program {
	p, err := b.Program()
	if err != nil {
		panic(err)
	}
	return p
}
