// Package vm executes compiled QuakeC programs. Each Machine owns its
// globals, entity table, call stack and local save stack; server and client
// programs run on separate machines.
package vm

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Side identifies which half of the engine a machine belongs to.
type Side int

const (
	SideServer Side = iota
	SideClient
)

func (s Side) String() string {
	switch s {
	case SideServer:
		return "server"
	case SideClient:
		return "client"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

const (
	// MaxStackDepth bounds nested bytecode calls.
	MaxStackDepth = 64
	// LocalStackSize is the number of cells saved across nested calls.
	LocalStackSize = 2048
	// DefaultRunawayLimit is the instruction budget of one top-level execution.
	DefaultRunawayLimit = 0x1000000
)

type frame struct {
	s int
	f *progs.Function
}

// PostExecuteHook runs after an outermost execution returns normally.
type PostExecuteHook func(*Machine) error

// Machine is one execution context.
type Machine struct {
	side      Side
	prog      *progs.Program
	functions []progs.Function
	globals   *Globals
	entities  *Entities
	builtins  []Builtin

	stack      [MaxStackDepth + 1]frame
	depth      int
	localStack [LocalStackSize]uint32
	localUsed  int

	xfunction  *progs.Function
	xstatement int
	argc       int
	trace      bool

	runawayLimit int
	instructions int
	active       bool

	engineStrings []string
	engineIndex   map[string]int32

	console   io.Writer
	logger    commonlog.Logger
	traceHook TraceHook
	postExec  PostExecuteHook
}

// New constructs a machine for prog. Globals and function records are
// copied so the image can be shared between machines.
func New(prog *progs.Program, side Side) *Machine {
	functions := make([]progs.Function, len(prog.Functions))
	copy(functions, prog.Functions)
	return &Machine{
		side:         side,
		prog:         prog,
		functions:    functions,
		globals:      newGlobals(prog.Globals),
		entities:     NewEntities(DefaultMaxEntities, prog.EntityFields),
		runawayLimit: DefaultRunawayLimit,
		engineIndex:  make(map[string]int32),
		console:      io.Discard,
		logger:       commonlog.GetLoggerf("qcvm.vm.%s", side),
	}
}

// SetBuiltins installs the native function table. Index 0 is the fallback
// for out-of-range builtin numbers.
func (m *Machine) SetBuiltins(table []Builtin) {
	m.builtins = table
}

// SetEntities replaces the entity table.
func (m *Machine) SetEntities(e *Entities) {
	m.entities = e
}

// SetRunawayLimit caps the instructions executed by one top-level call.
func (m *Machine) SetRunawayLimit(limit int) {
	if limit <= 0 {
		limit = DefaultRunawayLimit
	}
	m.runawayLimit = limit
}

// SetConsole directs trace output and diagnostics to w.
func (m *Machine) SetConsole(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	m.console = w
}

// SetTraceHook registers a callback invoked before each statement.
func (m *Machine) SetTraceHook(h TraceHook) {
	m.traceHook = h
}

// SetPostExecuteHook registers the hook run after outermost executions.
func (m *Machine) SetPostExecuteHook(h PostExecuteHook) {
	m.postExec = h
}

// SetActive marks the simulation as running; writes through the world
// entity are rejected while active.
func (m *Machine) SetActive(active bool) {
	m.active = active
}

// SetTrace toggles per-statement tracing to the console.
func (m *Machine) SetTrace(on bool) {
	m.trace = on
}

// ResetState clears the call stack and local save stack.
func (m *Machine) ResetState() {
	m.depth = 0
	m.localUsed = 0
	m.xfunction = nil
	m.xstatement = 0
}

// ExecuteByName runs the named function.
func (m *Machine) ExecuteByName(name string) error {
	fnum := m.prog.FindFunction(name)
	if fnum == 0 {
		return fmt.Errorf("%w: function %q not found", ErrNullFunction, name)
	}
	return m.Execute(fnum)
}

// Execute runs function fnum to completion. It may be re-entered from a
// builtin; the nested call returns when its own outermost function does.
func (m *Machine) Execute(fnum int) (err error) {
	if fnum <= 0 || fnum >= len(m.functions) {
		if self := m.globals.Int(progs.GlobalSelf); self != 0 {
			m.logger.Warningf("NULL function with self = entity %d", m.entities.Index(self))
		}
		return m.abort(fault(ErrNullFunction, "PR_ExecuteProgram: NULL function"))
	}
	f := &m.functions[fnum]
	m.trace = false
	exitDepth := m.depth

	if f.IsBuiltin() {
		m.argc = int(f.NumParms)
		if err := m.callBuiltin(f.BuiltinIndex()); err != nil {
			return err
		}
		return m.afterExecute(exitDepth)
	}

	pc, err := m.enterFunction(f)
	if err != nil {
		return m.abort(err)
	}
	profile, startProfile := 0, 0
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); !ok {
				panic(r)
			}
			m.xstatement = pc
			m.instructions = profile
			err = m.abort(fault(ErrBadOperand, "bad operand: %v", r))
		}
	}()

	g := m.globals.cells
	ents := m.entities
	statements := m.prog.Statements

	for {
		pc++
		profile++
		if profile > m.runawayLimit {
			m.xstatement = pc
			m.instructions = profile - 1
			return m.abort(fault(ErrRunaway, "runaway loop error"))
		}
		st := &statements[pc]
		if m.trace {
			fmt.Fprintln(m.console, strings.TrimRight(m.renderer().Statement(*st), " "))
		}
		if m.traceHook != nil {
			m.traceHook(m.traceInfo(st.Op, pc))
		}
		a, b, c := int(uint16(st.A)), int(uint16(st.B)), int(uint16(st.C))

		switch st.Op {
		case progs.OP_ADD_F:
			setf(g, c, ff(g, a)+ff(g, b))
		case progs.OP_ADD_V:
			for i := 0; i < 3; i++ {
				setf(g, c+i, ff(g, a+i)+ff(g, b+i))
			}
		case progs.OP_SUB_F:
			setf(g, c, ff(g, a)-ff(g, b))
		case progs.OP_SUB_V:
			for i := 0; i < 3; i++ {
				setf(g, c+i, ff(g, a+i)-ff(g, b+i))
			}
		case progs.OP_MUL_F:
			setf(g, c, ff(g, a)*ff(g, b))
		case progs.OP_MUL_V:
			// explicit conversions keep each product rounded to single precision
			setf(g, c, float32(ff(g, a)*ff(g, b))+float32(ff(g, a+1)*ff(g, b+1))+float32(ff(g, a+2)*ff(g, b+2)))
		case progs.OP_MUL_FV:
			s := ff(g, a)
			for i := 0; i < 3; i++ {
				setf(g, c+i, s*ff(g, b+i))
			}
		case progs.OP_MUL_VF:
			s := ff(g, b)
			for i := 0; i < 3; i++ {
				setf(g, c+i, s*ff(g, a+i))
			}
		case progs.OP_DIV_F:
			setf(g, c, ff(g, a)/ff(g, b))
		case progs.OP_BITAND:
			setf(g, c, float32(int32(ff(g, a))&int32(ff(g, b))))
		case progs.OP_BITOR:
			setf(g, c, float32(int32(ff(g, a))|int32(ff(g, b))))

		case progs.OP_GE:
			g[c] = b2c(ff(g, a) >= ff(g, b))
		case progs.OP_LE:
			g[c] = b2c(ff(g, a) <= ff(g, b))
		case progs.OP_GT:
			g[c] = b2c(ff(g, a) > ff(g, b))
		case progs.OP_LT:
			g[c] = b2c(ff(g, a) < ff(g, b))
		case progs.OP_AND:
			g[c] = b2c(ff(g, a) != 0 && ff(g, b) != 0)
		case progs.OP_OR:
			g[c] = b2c(ff(g, a) != 0 || ff(g, b) != 0)

		case progs.OP_NOT_F:
			g[c] = b2c(ff(g, a) == 0)
		case progs.OP_NOT_V:
			g[c] = b2c(ff(g, a) == 0 && ff(g, a+1) == 0 && ff(g, a+2) == 0)
		case progs.OP_NOT_S:
			g[c] = b2c(g[a] == 0 || m.GetString(int32(g[a])) == "")
		case progs.OP_NOT_FNC, progs.OP_NOT_ENT:
			g[c] = b2c(g[a] == 0)

		case progs.OP_EQ_F:
			g[c] = b2c(ff(g, a) == ff(g, b))
		case progs.OP_EQ_V:
			g[c] = b2c(ff(g, a) == ff(g, b) && ff(g, a+1) == ff(g, b+1) && ff(g, a+2) == ff(g, b+2))
		case progs.OP_EQ_S:
			g[c] = b2c(m.GetString(int32(g[a])) == m.GetString(int32(g[b])))
		case progs.OP_EQ_E, progs.OP_EQ_FNC:
			g[c] = b2c(g[a] == g[b])

		case progs.OP_NE_F:
			g[c] = b2c(ff(g, a) != ff(g, b))
		case progs.OP_NE_V:
			g[c] = b2c(ff(g, a) != ff(g, b) || ff(g, a+1) != ff(g, b+1) || ff(g, a+2) != ff(g, b+2))
		case progs.OP_NE_S:
			setf(g, c, float32(strings.Compare(m.GetString(int32(g[a])), m.GetString(int32(g[b])))))
		case progs.OP_NE_E, progs.OP_NE_FNC:
			g[c] = b2c(g[a] != g[b])

		case progs.OP_STORE_F, progs.OP_STORE_ENT, progs.OP_STORE_FLD, progs.OP_STORE_S, progs.OP_STORE_FNC:
			g[b] = g[a]
		case progs.OP_STORE_V:
			g[b], g[b+1], g[b+2] = g[a], g[a+1], g[a+2]

		case progs.OP_STOREP_F, progs.OP_STOREP_ENT, progs.OP_STOREP_FLD, progs.OP_STOREP_S, progs.OP_STOREP_FNC:
			cell, err := ents.pointerCell(int32(g[b]), 1)
			if err != nil {
				m.xstatement, m.instructions = pc, profile
				return m.abort(err)
			}
			ents.cells[cell] = g[a]
		case progs.OP_STOREP_V:
			cell, err := ents.pointerCell(int32(g[b]), 3)
			if err != nil {
				m.xstatement, m.instructions = pc, profile
				return m.abort(err)
			}
			copy(ents.cells[cell:cell+3], g[a:a+3])

		case progs.OP_ADDRESS:
			ref := int32(g[a])
			idx := ents.Index(ref)
			if idx < 0 || idx >= ents.num {
				m.xstatement, m.instructions = pc, profile
				return m.abort(fault(ErrBadEntity, "NUM_FOR_EDICT: bad pointer"))
			}
			if idx == 0 && m.active {
				m.xstatement, m.instructions = pc, profile
				return m.abort(fault(ErrWorldAssignment, "assignment to world entity"))
			}
			g[c] = uint32(ref + int32(g[b])*4)

		case progs.OP_LOAD_F, progs.OP_LOAD_FLD, progs.OP_LOAD_ENT, progs.OP_LOAD_S, progs.OP_LOAD_FNC:
			cell, err := ents.fieldCell(int32(g[a]), int32(g[b]), 1)
			if err != nil {
				m.xstatement, m.instructions = pc, profile
				return m.abort(err)
			}
			g[c] = ents.cells[cell]
		case progs.OP_LOAD_V:
			cell, err := ents.fieldCell(int32(g[a]), int32(g[b]), 3)
			if err != nil {
				m.xstatement, m.instructions = pc, profile
				return m.abort(err)
			}
			copy(g[c:c+3], ents.cells[cell:cell+3])

		case progs.OP_IFNOT:
			if g[a] == 0 {
				pc += int(st.B) - 1
			}
		case progs.OP_IF:
			if g[a] != 0 {
				pc += int(st.B) - 1
			}
		case progs.OP_GOTO:
			pc += int(st.A) - 1

		case progs.OP_CALL0, progs.OP_CALL1, progs.OP_CALL2, progs.OP_CALL3, progs.OP_CALL4,
			progs.OP_CALL5, progs.OP_CALL6, progs.OP_CALL7, progs.OP_CALL8:
			m.xfunction.Profile += int32(profile - startProfile)
			startProfile = profile
			m.xstatement = pc
			m.argc = int(st.Op - progs.OP_CALL0)
			fnum := int32(g[a])
			if fnum == 0 {
				m.instructions = profile
				return m.abort(fault(ErrNullFunction, "NULL function"))
			}
			if fnum < 0 || int(fnum) >= len(m.functions) {
				m.instructions = profile
				return m.abort(fault(ErrNullFunction, "bad function %d", fnum))
			}
			next := &m.functions[fnum]
			if next.IsBuiltin() {
				if err := m.callBuiltin(next.BuiltinIndex()); err != nil {
					return err
				}
				break
			}
			pc, err = m.enterFunction(next)
			if err != nil {
				m.instructions = profile
				return m.abort(err)
			}

		case progs.OP_DONE, progs.OP_RETURN:
			m.xfunction.Profile += int32(profile - startProfile)
			startProfile = profile
			m.xstatement = pc
			g[progs.OFS_RETURN], g[progs.OFS_RETURN+1], g[progs.OFS_RETURN+2] = g[a], g[a+1], g[a+2]
			pc, err = m.leaveFunction()
			if err != nil {
				m.instructions = profile
				return m.abort(err)
			}
			if m.depth == exitDepth {
				m.instructions = profile
				return m.afterExecute(exitDepth)
			}

		case progs.OP_STATE:
			self := int32(g[progs.GlobalSelf])
			idx := ents.Index(self)
			if idx < 0 || idx >= ents.num {
				m.xstatement, m.instructions = pc, profile
				return m.abort(fault(ErrBadEntity, "NUM_FOR_EDICT: bad pointer"))
			}
			ents.SetFloat(idx, progs.FieldNextthink, ff(g, progs.GlobalTime)+0.1)
			ents.SetFloat(idx, progs.FieldFrame, ff(g, a))
			ents.SetInt(idx, progs.FieldThink, int32(g[b]))

		default:
			m.xstatement, m.instructions = pc, profile
			return m.abort(fault(ErrBadOpcode, "Bad opcode %d", st.Op))
		}
	}
}

func (m *Machine) afterExecute(exitDepth int) error {
	if exitDepth != 0 || m.postExec == nil {
		return nil
	}
	if err := m.postExec(m); err != nil {
		return fmt.Errorf("post-execute: %w", err)
	}
	return nil
}
