// Package qcvm runs compiled QuakeC programs for an engine host. One
// Context exists per simulation side; the server context also watches for
// level completion and broadcasts the secrets the players found.
package qcvm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	_ "github.com/xirelogy/go-qcvm/internal/builtins"
	"github.com/xirelogy/go-qcvm/internal/intermission"
	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/runtime"
	"github.com/xirelogy/go-qcvm/internal/secrets"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

// Side identifies the server or client program.
type Side int

const (
	Server Side = Side(vm.SideServer)
	Client Side = Side(vm.SideClient)
)

func (s Side) String() string { return vm.Side(s).String() }

// ErrBusy is returned when a context is asked to run while it is running.
var ErrBusy = errors.New("context is busy; concurrent Execute not allowed")

// Fatal runtime conditions, matched with errors.Is against a RuntimeError.
var (
	ErrStackOverflow   = vm.ErrStackOverflow
	ErrLocalsOverflow  = vm.ErrLocalsOverflow
	ErrRunaway         = vm.ErrRunaway
	ErrBadOpcode       = vm.ErrBadOpcode
	ErrNullFunction    = vm.ErrNullFunction
	ErrBadEntity       = vm.ErrBadEntity
	ErrWorldAssignment = vm.ErrWorldAssignment
)

// FrameTrace describes a single frame in a runtime error.
type FrameTrace struct {
	Function  string
	Source    string
	Statement int
}

// RuntimeError is a fatal execution error. The action that triggered the
// execution must be abandoned.
type RuntimeError struct {
	Message      string
	Statement    string
	Frame        FrameTrace
	Stack        []FrameTrace
	Instructions int
	Cause        error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		parts = append(parts, e.Frame.Source)
	}
	if e.Frame.Function != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err came from a fatal runtime condition.
func IsFatal(err error) bool {
	return vm.IsFatal(err)
}

// TraceInfo captures one statement dispatch for debug hooks.
type TraceInfo struct {
	Op        string
	Function  string
	Source    string
	Statement int
}

// TraceHook observes statement dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	var rte *vm.RuntimeError
	if !errors.As(err, &rte) {
		return err
	}
	return &RuntimeError{
		Message:      rte.Message,
		Statement:    rte.Statement,
		Frame:        frameTraceFromVM(rte.Frame),
		Stack:        stackTraceFromVM(rte.Stack),
		Instructions: rte.Instructions,
		Cause:        rte.Cause,
	}
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function:  info.Function,
		Source:    info.Source,
		Statement: info.Statement,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// PlayerSlot is one client slot as seen by the completion check.
type PlayerSlot struct {
	Active bool
	Entity int
}

// Options configures a new context. Zero values select defaults.
type Options struct {
	// RunawayLimit caps instructions per top-level execution.
	RunawayLimit int
	// MaxEntities sizes the entity table.
	MaxEntities int
	// Console receives trace output and diagnostics.
	Console io.Writer
	// Multicast delivers server messages reliably to every client. Only
	// used by server contexts.
	Multicast func(msg []byte) error
}

// Context is one execution context: a program image plus its memory.
type Context struct {
	side    Side
	machine *vm.Machine
	level   *intermission.Level
	scanner *intermission.Scanner
	secrets *secrets.Registry
	out     intermission.Multicaster
	mu      sync.Mutex
	busy    bool
}

// NewContext decodes a program image and builds a context for side.
func NewContext(side Side, image []byte, opts Options) (*Context, error) {
	prog, err := progs.UnmarshalImage(image)
	if err != nil {
		return nil, err
	}
	m := vm.New(prog, vm.Side(side))
	m.SetBuiltins(runtime.Table())
	m.SetRunawayLimit(opts.RunawayLimit)
	m.SetConsole(opts.Console)
	if opts.MaxEntities > 0 {
		m.SetEntities(vm.NewEntities(opts.MaxEntities, prog.EntityFields))
	}
	c := &Context{
		side:    side,
		machine: m,
		level:   &intermission.Level{},
		secrets: secrets.NewRegistry(),
	}
	if opts.Multicast != nil {
		c.out = intermission.MulticastFunc(opts.Multicast)
	}
	c.watchCompletion()
	return c, nil
}

func (c *Context) watchCompletion() {
	if c.side != Server {
		return
	}
	c.scanner = intermission.NewScanner(c.level, c.out)
	c.machine.SetPostExecuteHook(c.scanner.AfterExecute)
}

// Side reports which program the context runs.
func (c *Context) Side() Side { return c.side }

func (c *Context) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Context) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Duplicate clones the context's memory into a new context for side.
func (c *Context) Duplicate(side Side) (*Context, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()
	m := c.machine.Duplicate(vm.Side(side))
	dup := &Context{
		side:    side,
		machine: m,
		level:   &intermission.Level{},
		secrets: secrets.NewRegistry(),
		out:     c.out,
	}
	dup.watchCompletion()
	return dup, nil
}

// SetTraceHook attaches a debug hook that observes statement dispatch.
func (c *Context) SetTraceHook(h TraceHook) {
	if h == nil {
		c.machine.SetTraceHook(nil)
		return
	}
	c.machine.SetTraceHook(func(info vm.TraceInfo) {
		name, _ := progs.OpName(info.Op)
		h(TraceInfo{
			Op:        name,
			Function:  info.Function,
			Source:    info.Source,
			Statement: info.Statement,
		})
	})
}

// SetActive marks the simulation as running. While active, programs may
// not write through the world entity.
func (c *Context) SetActive(active bool) {
	c.machine.SetActive(active)
}

// HasFunction reports whether the program defines the named function.
func (c *Context) HasFunction(name string) bool {
	return c.machine.Program().FindFunction(name) != 0
}

// ExecFuture represents an in-flight execution.
type ExecFuture struct {
	ch <-chan error
}

// Await waits for completion or context cancellation.
func (f ExecFuture) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-f.ch:
		return err
	}
}

// ExecuteAsync runs the named function on its own goroutine.
func (c *Context) ExecuteAsync(ctx context.Context, name string) ExecFuture {
	ch := make(chan error, 1)
	if err := c.acquire(); err != nil {
		ch <- err
		close(ch)
		return ExecFuture{ch: ch}
	}
	go func() {
		defer close(ch)
		defer c.release()
		select {
		case <-ctx.Done():
			ch <- ctx.Err()
			return
		default:
		}
		ch <- convertRuntimeError(c.machine.ExecuteByName(name))
	}()
	return ExecFuture{ch: ch}
}

// Execute runs the named function and waits for it.
func (c *Context) Execute(ctx context.Context, name string) error {
	return c.ExecuteAsync(ctx, name).Await(ctx)
}

// Profile writes the top functions by instruction count and resets the
// counters.
func (c *Context) Profile(w io.Writer, top int) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	c.machine.ProfileReport(w, top)
	return nil
}

// Disassemble writes a listing of every function.
func (c *Context) Disassemble(w io.Writer) error {
	return c.machine.Disassemble(w)
}
