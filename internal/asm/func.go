package asm

import (
	"fmt"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Func accumulates the statements of one bytecode function. Its parameter
// and local cells are allocated as one contiguous block at declaration so
// the call protocol can save and restore them as a unit.
type Func struct {
	b         *Builder
	name      string
	index     int
	parmStart int
	parms     []uint16
	locals    []uint16
	code      []progs.Statement
	closed    bool
}

// Function declares a function with the given parameter widths (1 or 3
// cells) and extra local cells. The function number is valid immediately so
// other functions can reference it before its body is finished.
func (b *Builder) Function(name string, parmSizes []uint8, localCells int) *Func {
	fb := &Func{b: b, name: name}
	fb.parmStart = len(b.prog.Globals)
	total := 0
	for i, sz := range parmSizes {
		if sz != 1 && sz != 3 {
			b.errors = append(b.errors, fmt.Errorf("function %s: parameter %d has width %d", name, i, sz))
			sz = 1
		}
		fb.parms = append(fb.parms, uint16(fb.parmStart+total))
		total += int(sz)
	}
	for i := 0; i < localCells; i++ {
		fb.locals = append(fb.locals, uint16(fb.parmStart+total+i))
	}
	total += localCells
	b.alloc("", progs.EvVoid, total)
	for i, ofs := range fb.parms {
		typ := progs.EvFloat
		if parmSizes[i] == 3 {
			typ = progs.EvVector
		}
		b.defineGlobal(fmt.Sprintf("%s.p%d", name, i), typ, int(ofs))
	}

	f := progs.Function{
		ParmStart: int32(fb.parmStart),
		Locals:    int32(total),
		Name:      b.Intern(name),
		File:      b.Intern(b.source),
		NumParms:  int32(len(parmSizes)),
	}
	copy(f.ParmSize[:], parmSizes)
	b.prog.Functions = append(b.prog.Functions, f)
	fb.index = len(b.prog.Functions) - 1
	b.pending = append(b.pending, fb)
	return fb
}

// Index returns the function number.
func (fb *Func) Index() int {
	return fb.index
}

// Parm returns the global offset of parameter i.
func (fb *Func) Parm(i int) uint16 {
	return fb.parms[i]
}

// Local returns the global offset of local cell i.
func (fb *Func) Local(i int) uint16 {
	return fb.locals[i]
}

// Here returns the position the next statement will occupy.
func (fb *Func) Here() int {
	return len(fb.code)
}

// Op emits a three-operand statement and returns its position.
func (fb *Func) Op(op uint16, a, b, c uint16) int {
	fb.code = append(fb.code, progs.Statement{Op: op, A: int16(a), B: int16(b), C: int16(c)})
	return len(fb.code) - 1
}

// If emits IF/IFNOT on cond with a displacement patched later.
func (fb *Func) If(op uint16, cond uint16) int {
	return fb.Op(op, cond, 0, 0)
}

// Goto emits an unconditional branch with a displacement patched later.
func (fb *Func) Goto() int {
	return fb.Op(progs.OP_GOTO, 0, 0, 0)
}

// PatchTo points the branch emitted at position at to position target.
func (fb *Func) PatchTo(at, target int) {
	disp := int16(target - at)
	st := &fb.code[at]
	if st.Op == progs.OP_GOTO {
		st.A = disp
		return
	}
	st.B = disp
}

// StoreParm copies the value at ofs into argument slot i.
func (fb *Func) StoreParm(i int, ofs uint16, vector bool) {
	op := progs.OP_STORE_F
	if vector {
		op = progs.OP_STORE_V
	}
	fb.Op(op, ofs, uint16(progs.OFS_PARM0+i*3), 0)
}

// Call copies scalar arguments into the argument slots and emits CALLn.
func (fb *Func) Call(fnRef uint16, args ...uint16) {
	for i, a := range args {
		fb.StoreParm(i, a, false)
	}
	fb.Op(progs.OP_CALL0+uint16(len(args)), fnRef, 0, 0)
}

// Return emits RETURN of the value at ofs.
func (fb *Func) Return(ofs uint16) {
	fb.Op(progs.OP_RETURN, ofs, 0, 0)
}

// Done appends the function body, terminated by DONE, to the program.
func (fb *Func) Done() {
	if fb.closed {
		return
	}
	prog := fb.b.prog
	prog.Functions[fb.index].FirstStatement = int32(len(prog.Statements))
	prog.Statements = append(prog.Statements, fb.code...)
	prog.Statements = append(prog.Statements, progs.Statement{Op: progs.OP_DONE})
	fb.closed = true
}
