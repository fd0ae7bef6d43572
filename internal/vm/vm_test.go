package vm_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-qcvm/internal/asm"
	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

func newMachine(t *testing.T, b *asm.Builder) *vm.Machine {
	t.Helper()
	prog, err := b.Program()
	require.NoError(t, err)
	return vm.New(prog, vm.SideServer)
}

func run(t *testing.T, m *vm.Machine, name string) {
	t.Helper()
	require.NoError(t, m.ExecuteByName(name))
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, 0, m.LocalsUsed())
}

func returned(m *vm.Machine) float32 {
	return m.Globals().Float(progs.OFS_RETURN)
}

func TestFloatArithmetic(t *testing.T) {
	b := asm.New("arith.qc")
	x := b.Float("x", 6)
	y := b.Float("y", 4)
	out := b.Temp(1)
	cases := []struct {
		op   uint16
		want float32
	}{
		{progs.OP_ADD_F, 10},
		{progs.OP_SUB_F, 2},
		{progs.OP_MUL_F, 24},
		{progs.OP_DIV_F, 1.5},
		{progs.OP_BITAND, 4},
		{progs.OP_BITOR, 6},
		{progs.OP_GT, 1},
		{progs.OP_LE, 0},
		{progs.OP_AND, 1},
		{progs.OP_EQ_F, 0},
		{progs.OP_NE_F, 1},
	}
	for i, tc := range cases {
		f := b.Function(string(rune('a'+i)), nil, 0)
		f.Op(tc.op, x, y, out)
		f.Return(out)
		f.Done()
	}
	m := newMachine(t, b)
	for i, tc := range cases {
		name, _ := progs.OpName(tc.op)
		run(t, m, string(rune('a'+i)))
		assert.Equal(t, tc.want, returned(m), name)
	}
}

func TestDivisionByZeroIsNotAnError(t *testing.T) {
	b := asm.New("div.qc")
	one := b.Float("one", 1)
	zero := b.Float("zero", 0)
	out := b.Temp(1)
	inf := b.Function("inf", nil, 0)
	inf.Op(progs.OP_DIV_F, one, zero, out)
	inf.Return(out)
	inf.Done()
	nan := b.Function("nan", nil, 0)
	nan.Op(progs.OP_DIV_F, zero, zero, out)
	nan.Return(out)
	nan.Done()

	m := newMachine(t, b)
	run(t, m, "inf")
	assert.True(t, math.IsInf(float64(returned(m)), 1))
	run(t, m, "nan")
	assert.True(t, math.IsNaN(float64(returned(m))))
}

func TestVectorOps(t *testing.T) {
	b := asm.New("vec.qc")
	v1 := b.Vector("v1", [3]float32{1, 2, 3})
	v2 := b.Vector("v2", [3]float32{4, 5, 6})
	s := b.Float("s", 2)
	out := b.Temp(3)
	out2 := b.Temp(3)
	cmp := b.Temp(1)

	dot := b.Function("dot", nil, 0)
	dot.Op(progs.OP_MUL_V, v1, v2, out)
	dot.Return(out)
	dot.Done()

	scale := b.Function("scale", nil, 0)
	scale.Op(progs.OP_MUL_FV, s, v1, out)
	scale.Op(progs.OP_MUL_VF, v1, s, out2)
	scale.Op(progs.OP_EQ_V, out, out2, cmp)
	scale.Return(cmp)
	scale.Done()

	add := b.Function("add", nil, 0)
	add.Op(progs.OP_ADD_V, v1, v2, out)
	add.Return(out)
	add.Done()

	m := newMachine(t, b)
	run(t, m, "dot")
	assert.Equal(t, float32(32), returned(m))
	run(t, m, "scale")
	assert.Equal(t, float32(1), returned(m))
	assert.Equal(t, vm.Vec3{2, 4, 6}, m.Globals().Vector(int(out)))
	run(t, m, "add")
	assert.Equal(t, vm.Vec3{5, 7, 9}, m.Globals().Vector(progs.OFS_RETURN))
}

func TestBranches(t *testing.T) {
	b := asm.New("branch.qc")
	zero := b.Float("zero", 0)
	one := b.Float("one", 1)
	two := b.Float("two", 2)

	f := b.Function("pick", []uint8{1}, 0)
	br := f.If(progs.OP_IFNOT, f.Parm(0))
	f.Return(one)
	f.PatchTo(br, f.Here())
	f.Return(two)
	f.Done()

	g := b.Function("jump", nil, 0)
	j := g.Goto()
	g.Return(zero)
	g.PatchTo(j, g.Here())
	g.Return(one)
	g.Done()

	m := newMachine(t, b)
	m.Globals().SetFloat(vm.Parm(0), 5)
	run(t, m, "pick")
	assert.Equal(t, float32(1), returned(m))
	m.Globals().SetFloat(vm.Parm(0), 0)
	run(t, m, "pick")
	assert.Equal(t, float32(2), returned(m))
	run(t, m, "jump")
	assert.Equal(t, float32(1), returned(m))
}

func TestRecursionRestoresLocals(t *testing.T) {
	b := asm.New("rec.qc")
	one := b.Float("one", 1)
	f := b.Function("count", []uint8{1}, 2)
	ref := b.FuncRef("count_ref", f.Index())
	f.Op(progs.OP_STORE_F, f.Parm(0), f.Local(0), 0)
	br := f.If(progs.OP_IFNOT, f.Parm(0))
	f.Op(progs.OP_SUB_F, f.Parm(0), one, f.Local(1))
	f.Call(ref, f.Local(1))
	f.PatchTo(br, f.Here())
	f.Return(f.Local(0))
	f.Done()

	m := newMachine(t, b)
	m.Globals().SetFloat(vm.Parm(0), 3)
	run(t, m, "count")
	assert.Equal(t, float32(3), returned(m))
	assert.Equal(t, float32(0), m.Globals().Float(int(f.Parm(0))), "parameter cell restored after return")
}

func TestStackOverflowIsFatal(t *testing.T) {
	b := asm.New("deep.qc")
	f := b.Function("forever", nil, 0)
	ref := b.FuncRef("forever_ref", f.Index())
	f.Call(ref)
	f.Done()

	var console bytes.Buffer
	m := newMachine(t, b)
	m.SetConsole(&console)
	err := m.ExecuteByName("forever")
	require.ErrorIs(t, err, vm.ErrStackOverflow)
	assert.True(t, vm.IsFatal(err))
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, 0, m.LocalsUsed())
	assert.Contains(t, console.String(), "CALL0")
	assert.Contains(t, console.String(), "deep.qc : forever")

	var rte *vm.RuntimeError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, "forever", rte.Frame.Function)
}

func TestLocalsOverflow(t *testing.T) {
	b := asm.New("big.qc")
	f := b.Function("big", nil, 600)
	ref := b.FuncRef("big_ref", f.Index())
	f.Call(ref)
	f.Done()

	m := newMachine(t, b)
	err := m.ExecuteByName("big")
	require.ErrorIs(t, err, vm.ErrLocalsOverflow)
	assert.Equal(t, 0, m.LocalsUsed())
}

func TestRunawayLimit(t *testing.T) {
	b := asm.New("loop.qc")
	f := b.Function("spin", nil, 0)
	f.Goto()
	f.Done()

	m := newMachine(t, b)
	m.SetRunawayLimit(1000)
	err := m.ExecuteByName("spin")
	require.ErrorIs(t, err, vm.ErrRunaway)
	var rte *vm.RuntimeError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, 1000, rte.Instructions)
	assert.Contains(t, rte.Statement, "GOTO")
}

func TestRunawayBudgetAllowsExactLimit(t *testing.T) {
	b := asm.New("short.qc")
	one := b.Float("one", 1)
	f := b.Function("short", nil, 0)
	f.Op(progs.OP_ADD_F, one, one, b.Temp(1))
	f.Done()

	m := newMachine(t, b)
	m.SetRunawayLimit(2)
	run(t, m, "short")
	assert.Equal(t, 2, m.Instructions())
}

func TestBuiltinDispatchAndFallback(t *testing.T) {
	b := asm.New("native.qc")
	known := b.Builtin("known", 1)
	unknown := b.Builtin("unknown", 99)
	knownRef := b.FuncRef("known_ref", known)
	unknownRef := b.FuncRef("unknown_ref", unknown)
	f := b.Function("main", nil, 0)
	f.Call(knownRef)
	f.Call(unknownRef)
	f.Done()

	var calls []string
	m := newMachine(t, b)
	m.SetBuiltins([]vm.Builtin{
		func(m *vm.Machine) error { calls = append(calls, "fallback"); return nil },
		func(m *vm.Machine) error { calls = append(calls, "known"); return nil },
	})
	run(t, m, "main")
	assert.Equal(t, []string{"known", "fallback"}, calls)
}

func TestBuiltinArgumentsAndArgc(t *testing.T) {
	b := asm.New("args.qc")
	x := b.Float("x", 3)
	y := b.Float("y", 4)
	hyp := b.Builtin("hyp", 1, 1, 1)
	ref := b.FuncRef("hyp_ref", hyp)
	f := b.Function("main", nil, 1)
	f.Call(ref, x, y)
	f.Op(progs.OP_STORE_F, progs.OFS_RETURN, f.Local(0), 0)
	f.Return(f.Local(0))
	f.Done()

	argc := -1
	m := newMachine(t, b)
	m.SetBuiltins([]vm.Builtin{nil, func(m *vm.Machine) error {
		argc = m.Argc()
		a, b := m.ParmFloat(0), m.ParmFloat(1)
		m.ReturnFloat(float32(math.Sqrt(float64(a*a + b*b))))
		return nil
	}})
	run(t, m, "main")
	assert.Equal(t, 2, argc)
	assert.Equal(t, float32(5), returned(m))
}

func TestNullFunctionCall(t *testing.T) {
	b := asm.New("null.qc")
	ref := b.FuncRef("nothing", 0)
	f := b.Function("main", nil, 0)
	f.Call(ref)
	f.Done()

	m := newMachine(t, b)
	err := m.ExecuteByName("main")
	require.ErrorIs(t, err, vm.ErrNullFunction)
	require.ErrorIs(t, m.Execute(0), vm.ErrNullFunction)
}

func TestBadOpcode(t *testing.T) {
	b := asm.New("bad.qc")
	f := b.Function("main", nil, 0)
	f.Op(200, 0, 0, 0)
	f.Done()

	m := newMachine(t, b)
	require.ErrorIs(t, m.ExecuteByName("main"), vm.ErrBadOpcode)
}

func TestBadOperandIsFatal(t *testing.T) {
	b := asm.New("operand.qc")
	f := b.Function("main", nil, 0)
	f.Op(progs.OP_STORE_F, 1, 0xfff0, 0)
	f.Done()

	m := newMachine(t, b)
	err := m.ExecuteByName("main")
	require.ErrorIs(t, err, vm.ErrBadOperand)
	assert.Equal(t, 0, m.Depth())
}

func TestEntityFieldAccess(t *testing.T) {
	b := asm.New("ent.qc")
	self := uint16(progs.GlobalSelf)
	frame := b.FieldRef("frame", progs.EvFloat, progs.FieldFrame)
	origin := b.FieldRef("origin", progs.EvVector, progs.FieldOrigin)
	seven := b.Float("seven", 7)
	pos := b.Vector("pos", [3]float32{1, 2, 3})
	ptr := b.Temp(1)
	out := b.Temp(3)

	f := b.Function("main", nil, 0)
	f.Op(progs.OP_ADDRESS, self, frame, ptr)
	f.Op(progs.OP_STOREP_F, seven, ptr, 0)
	f.Op(progs.OP_ADDRESS, self, origin, ptr)
	f.Op(progs.OP_STOREP_V, pos, ptr, 0)
	f.Op(progs.OP_LOAD_V, self, origin, out)
	f.Return(out)
	f.Done()

	m := newMachine(t, b)
	m.SetActive(true)
	ent, err := m.Entities().Alloc()
	require.NoError(t, err)
	m.Globals().SetInt(int(self), m.Entities().Ref(ent))
	run(t, m, "main")
	assert.Equal(t, float32(7), m.Entities().Float(ent, progs.FieldFrame))
	assert.Equal(t, vm.Vec3{1, 2, 3}, m.Entities().Vector(ent, progs.FieldOrigin))
	assert.Equal(t, vm.Vec3{1, 2, 3}, m.Globals().Vector(progs.OFS_RETURN))
}

func TestWorldAssignmentWhileActive(t *testing.T) {
	b := asm.New("world.qc")
	frame := b.FieldRef("frame", progs.EvFloat, progs.FieldFrame)
	ptr := b.Temp(1)
	f := b.Function("main", nil, 0)
	f.Op(progs.OP_ADDRESS, progs.GlobalWorld, frame, ptr)
	f.Done()

	m := newMachine(t, b)
	run(t, m, "main")

	m.SetActive(true)
	err := m.ExecuteByName("main")
	require.ErrorIs(t, err, vm.ErrWorldAssignment)
	assert.True(t, vm.IsFatal(err))
}

func TestLoadFromDeadEntity(t *testing.T) {
	b := asm.New("dead.qc")
	frame := b.FieldRef("frame", progs.EvFloat, progs.FieldFrame)
	ent := b.Entity("ghost")
	f := b.Function("main", nil, 0)
	f.Op(progs.OP_LOAD_F, ent, frame, b.Temp(1))
	f.Done()

	m := newMachine(t, b)
	m.Globals().SetInt(int(ent), m.Entities().Ref(10))
	require.ErrorIs(t, m.ExecuteByName("main"), vm.ErrBadEntity)
}

func TestStateOpcode(t *testing.T) {
	b := asm.New("state.qc")
	think := b.Function("think", nil, 0)
	think.Done()
	frameNum := b.Float("frame_num", 4)
	thinkRef := b.FuncRef("think_ref", think.Index())
	f := b.Function("main", nil, 0)
	f.Op(progs.OP_STATE, frameNum, thinkRef, 0)
	f.Done()

	m := newMachine(t, b)
	ent, err := m.Entities().Alloc()
	require.NoError(t, err)
	m.Globals().SetInt(progs.GlobalSelf, m.Entities().Ref(ent))
	m.Globals().SetFloat(progs.GlobalTime, 10)
	run(t, m, "main")
	assert.InDelta(t, 10.1, m.Entities().Float(ent, progs.FieldNextthink), 1e-5)
	assert.Equal(t, float32(4), m.Entities().Float(ent, progs.FieldFrame))
	assert.Equal(t, int32(think.Index()), m.Entities().Int(ent, progs.FieldThink))
}

func TestStringComparison(t *testing.T) {
	b := asm.New("str.qc")
	s1 := b.StringRef("s1", b.InternDistinct("abc"))
	s2 := b.StringRef("s2", b.InternDistinct("abc"))
	s3 := b.String("s3", "abd")
	empty := b.String("empty", "")
	out := b.Temp(1)

	eq := b.Function("eq", nil, 0)
	eq.Op(progs.OP_EQ_S, s1, s2, out)
	eq.Return(out)
	eq.Done()
	ne := b.Function("ne", nil, 0)
	ne.Op(progs.OP_NE_S, s1, s3, out)
	ne.Return(out)
	ne.Done()
	not := b.Function("not", nil, 0)
	not.Op(progs.OP_NOT_S, empty, 0, out)
	not.Return(out)
	not.Done()

	m := newMachine(t, b)
	require.NotEqual(t, m.Globals().Cell(int(s1)), m.Globals().Cell(int(s2)))
	run(t, m, "eq")
	assert.Equal(t, float32(1), returned(m))
	run(t, m, "ne")
	assert.Equal(t, float32(-1), returned(m))
	run(t, m, "not")
	assert.Equal(t, float32(1), returned(m))
}

func TestEngineStrings(t *testing.T) {
	m := vm.New(asm.New("x.qc").MustProgram(), vm.SideClient)
	ref := m.SetEngineString("hello")
	assert.Less(t, ref, int32(0))
	assert.Equal(t, ref, m.SetEngineString("hello"))
	assert.Equal(t, "hello", m.GetString(ref))
	assert.Equal(t, "", m.GetString(-1000))
	assert.Equal(t, "", m.GetString(1<<20))
}

func TestReentrantExecute(t *testing.T) {
	b := asm.New("reenter.qc")
	seven := b.Float("seven", 7)
	inner := b.Function("inner", nil, 0)
	inner.Return(seven)
	inner.Done()
	hook := b.Builtin("callback", 1)
	hookRef := b.FuncRef("callback_ref", hook)
	outer := b.Function("outer", nil, 1)
	outer.Call(hookRef)
	outer.Op(progs.OP_STORE_F, progs.OFS_RETURN, outer.Local(0), 0)
	outer.Return(outer.Local(0))
	outer.Done()

	m := newMachine(t, b)
	hooks := 0
	m.SetPostExecuteHook(func(*vm.Machine) error { hooks++; return nil })
	m.SetBuiltins([]vm.Builtin{nil, func(m *vm.Machine) error {
		depth := m.Depth()
		if err := m.Execute(inner.Index()); err != nil {
			return err
		}
		if m.Depth() != depth {
			t.Errorf("nested execute changed depth: %d -> %d", depth, m.Depth())
		}
		m.ReturnFloat(m.Globals().Float(progs.OFS_RETURN) + 1)
		return nil
	}})
	run(t, m, "outer")
	assert.Equal(t, float32(8), returned(m))
	assert.Equal(t, 1, hooks)
}

func TestNestedFatalErrorPropagates(t *testing.T) {
	b := asm.New("nested.qc")
	inner := b.Function("inner", nil, 0)
	inner.Op(200, 0, 0, 0)
	inner.Done()
	cb := b.FuncRef("cb", b.Builtin("callback", 1))
	outer := b.Function("outer", nil, 0)
	outer.Call(cb)
	outer.Done()

	m := newMachine(t, b)
	m.SetBuiltins([]vm.Builtin{nil, func(m *vm.Machine) error { return m.Execute(inner.Index()) }})
	err := m.ExecuteByName("outer")
	require.ErrorIs(t, err, vm.ErrBadOpcode)
	assert.Equal(t, 0, m.Depth())
}

func TestTraceToggledByBuiltin(t *testing.T) {
	b := asm.New("trace.qc")
	on := b.FuncRef("traceon", b.Builtin("traceon", 1))
	one := b.Float("one", 1)
	f := b.Function("main", nil, 0)
	f.Call(on)
	f.Op(progs.OP_ADD_F, one, one, b.Temp(1))
	f.Done()

	var console bytes.Buffer
	m := newMachine(t, b)
	m.SetConsole(&console)
	m.SetBuiltins([]vm.Builtin{nil, func(m *vm.Machine) error { m.SetTrace(true); return nil }})
	run(t, m, "main")
	assert.Contains(t, console.String(), "ADD_F")
	assert.NotContains(t, console.String(), "CALL0")

	console.Reset()
	m.SetBuiltins([]vm.Builtin{nil, func(*vm.Machine) error { return nil }})
	run(t, m, "main")
	assert.Empty(t, console.String())
}

func TestProfileReport(t *testing.T) {
	b := asm.New("prof.qc")
	one := b.Float("one", 1)
	tmp := b.Temp(1)
	light := b.Function("light", nil, 0)
	light.Done()
	heavy := b.Function("heavy", nil, 0)
	for i := 0; i < 10; i++ {
		heavy.Op(progs.OP_ADD_F, one, one, tmp)
	}
	heavy.Done()

	m := newMachine(t, b)
	run(t, m, "heavy")
	run(t, m, "light")

	var out bytes.Buffer
	entries := m.ProfileReport(&out, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "heavy", entries[0].Function)
	assert.Equal(t, int32(11), entries[0].Instructions)
	assert.Contains(t, out.String(), "     11 heavy")
	assert.Empty(t, m.ProfileReport(nil, 10))
}

func TestDuplicateIsIndependent(t *testing.T) {
	b := asm.New("dup.qc")
	x := b.Float("x", 1)
	m := newMachine(t, b)
	dup := m.Duplicate(vm.SideClient)
	dup.Globals().SetFloat(int(x), 5)
	assert.Equal(t, float32(1), m.Globals().Float(int(x)))
	assert.Equal(t, vm.SideClient, dup.Side())
}
