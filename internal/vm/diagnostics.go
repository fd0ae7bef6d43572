package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Fatal runtime conditions. Every one of them aborts the whole execution and
// resets the machine's stacks.
var (
	ErrStackOverflow   = errors.New("stack overflow")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrLocalsOverflow  = errors.New("locals stack overflow")
	ErrLocalsUnderflow = errors.New("locals stack underflow")
	ErrRunaway         = errors.New("runaway loop")
	ErrBadOpcode       = errors.New("bad opcode")
	ErrNullFunction    = errors.New("null function")
	ErrBadEntity       = errors.New("bad entity reference")
	ErrWorldAssignment = errors.New("assignment to world entity")
	ErrBadOperand      = errors.New("bad operand")
)

var fatals = []error{
	ErrStackOverflow, ErrStackUnderflow, ErrLocalsOverflow, ErrLocalsUnderflow,
	ErrRunaway, ErrBadOpcode, ErrNullFunction, ErrBadEntity, ErrWorldAssignment, ErrBadOperand,
}

// IsFatal reports whether err is one of the fatal runtime conditions.
func IsFatal(err error) bool {
	for _, f := range fatals {
		if errors.Is(err, f) {
			return true
		}
	}
	return false
}

// TraceInfo describes a single statement dispatch.
type TraceInfo struct {
	Op        uint16
	Function  string
	Source    string
	Statement int
}

// TraceHook observes statement dispatch.
type TraceHook func(TraceInfo)

// FrameInfo captures one call frame at the time of an error.
type FrameInfo struct {
	Function  string
	Source    string
	Statement int
}

// RuntimeError carries the rendered diagnostics of a fatal condition.
type RuntimeError struct {
	Message      string
	Statement    string
	Frame        FrameInfo
	Stack        []FrameInfo
	Trace        string
	Instructions int
	Cause        error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		locParts = append(locParts, e.Frame.Source)
	}
	if e.Frame.Function != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the fatal condition.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

type faultError struct {
	cause error
	msg   string
}

func (f *faultError) Error() string { return f.msg }
func (f *faultError) Unwrap() error { return f.cause }

func fault(cause error, format string, args ...interface{}) error {
	return &faultError{cause: cause, msg: fmt.Sprintf(format, args...)}
}

// abort renders the current statement and stack, resets the machine and
// returns the fatal error. Errors that already carry diagnostics pass
// through untouched.
func (m *Machine) abort(err error) error {
	var rte *RuntimeError
	if errors.As(err, &rte) {
		return err
	}
	cause := err
	if f, ok := err.(*faultError); ok {
		cause = f.cause
	}
	rte = m.newRuntimeError(err.Error(), cause)
	fmt.Fprintf(m.console, "%s\n%s\n", rte.Statement, rte.Trace)
	m.logger.Errorf("%s", rte.Message)
	m.ResetState()
	return rte
}

// RunWarning reports a non-fatal problem with the same statement and stack
// dump as a fatal error. Execution continues.
func (m *Machine) RunWarning(format string, args ...interface{}) {
	rte := m.newRuntimeError(fmt.Sprintf(format, args...), nil)
	fmt.Fprintf(m.console, "%s\n%s\n", rte.Statement, rte.Trace)
	m.logger.Warningf("%s", rte.Message)
}

func (m *Machine) newRuntimeError(msg string, cause error) *RuntimeError {
	stack, text := m.stackTrace()
	rte := &RuntimeError{
		Message:      msg,
		Stack:        stack,
		Trace:        text,
		Instructions: m.instructions,
		Cause:        cause,
	}
	if m.xstatement >= 0 && m.xstatement < len(m.prog.Statements) {
		rte.Statement = strings.TrimRight(m.renderer().Statement(m.prog.Statements[m.xstatement]), " ")
	}
	if len(stack) > 0 {
		rte.Frame = stack[0]
	}
	return rte
}

func (m *Machine) renderer() *progs.Renderer {
	return &progs.Renderer{
		Prog:     m.prog,
		Globals:  m.globals.cells,
		StringAt: m.GetString,
	}
}

// StackTrace renders the call stack innermost first.
func (m *Machine) StackTrace() string {
	_, text := m.stackTrace()
	return text
}

func (m *Machine) stackTrace() ([]FrameInfo, string) {
	if m.depth == 0 {
		return nil, "<NO STACK>"
	}
	depth := m.depth
	if depth > MaxStackDepth {
		depth = MaxStackDepth
	}
	m.stack[depth].f = m.xfunction
	m.stack[depth].s = m.xstatement

	var b strings.Builder
	frames := make([]FrameInfo, 0, depth+1)
	for i := depth; i >= 0; i-- {
		f := m.stack[i].f
		if i != depth {
			b.WriteByte('\n')
		}
		if f == nil {
			b.WriteString("<NO FUNCTION>")
			continue
		}
		info := FrameInfo{
			Function:  m.GetString(f.Name),
			Source:    m.GetString(f.File),
			Statement: m.stack[i].s,
		}
		frames = append(frames, info)
		fmt.Fprintf(&b, "%12s : %s", info.Source, info.Function)
	}
	return frames, b.String()
}

func (m *Machine) traceInfo(op uint16, pc int) TraceInfo {
	info := TraceInfo{Op: op, Statement: pc}
	if m.xfunction != nil {
		info.Function = m.GetString(m.xfunction.Name)
		info.Source = m.GetString(m.xfunction.File)
	}
	return info
}
