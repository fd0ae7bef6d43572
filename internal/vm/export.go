package vm

import (
	"io"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Side reports which half of the engine the machine belongs to.
func (m *Machine) Side() Side { return m.side }

// Program returns the loaded image.
func (m *Machine) Program() *progs.Program { return m.prog }

// Globals returns global memory.
func (m *Machine) Globals() *Globals { return m.globals }

// Entities returns the entity table.
func (m *Machine) Entities() *Entities { return m.entities }

// Console returns the diagnostic writer.
func (m *Machine) Console() io.Writer { return m.console }

// Logger returns the machine's logger.
func (m *Machine) Logger() commonlog.Logger { return m.logger }

// Active reports whether the simulation is marked as running.
func (m *Machine) Active() bool { return m.active }

// Argc returns the argument count of the builtin call in progress.
func (m *Machine) Argc() int { return m.argc }

// Instructions returns the instruction count of the last execution.
func (m *Machine) Instructions() int { return m.instructions }

// Function returns the record of function fnum.
func (m *Machine) Function(fnum int) *progs.Function {
	if fnum <= 0 || fnum >= len(m.functions) {
		return nil
	}
	return &m.functions[fnum]
}

// CurrentFunction returns the name of the executing function.
func (m *Machine) CurrentFunction() string {
	if m.xfunction == nil {
		return ""
	}
	return m.GetString(m.xfunction.Name)
}

func (m *Machine) ParmFloat(i int) float32 { return m.globals.Float(Parm(i)) }
func (m *Machine) ParmVector(i int) Vec3   { return m.globals.Vector(Parm(i)) }
func (m *Machine) ParmInt(i int) int32     { return m.globals.Int(Parm(i)) }
func (m *Machine) ParmString(i int) string { return m.GetString(m.globals.Int(Parm(i))) }
func (m *Machine) ParmEntity(i int) int    { return m.entities.Index(m.globals.Int(Parm(i))) }
func (m *Machine) ReturnFloat(f float32)   { m.globals.SetFloat(progs.OFS_RETURN, f) }
func (m *Machine) ReturnVector(v Vec3)     { m.globals.SetVector(progs.OFS_RETURN, v) }
func (m *Machine) ReturnInt(v int32)       { m.globals.SetInt(progs.OFS_RETURN, v) }
func (m *Machine) ReturnString(s string)   { m.globals.SetInt(progs.OFS_RETURN, m.SetEngineString(s)) }
func (m *Machine) ReturnEntity(index int)  { m.globals.SetInt(progs.OFS_RETURN, m.entities.Ref(index)) }
