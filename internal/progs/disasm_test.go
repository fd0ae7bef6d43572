package progs_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-qcvm/internal/asm"
	"github.com/xirelogy/go-qcvm/internal/progs"
)

func col(s string) string {
	return fmt.Sprintf("%-20s ", s)
}

func TestStatementRendering(t *testing.T) {
	b := asm.New("render.qc")
	x := b.Float("x", 6)
	y := b.Float("y", 4)
	tmp := b.Temp(1)
	v := b.Vector("v", [3]float32{1, 2, 3})
	prog := b.MustProgram()
	r := &progs.Renderer{Prog: prog, Globals: prog.Globals}

	got := r.Statement(progs.Statement{Op: progs.OP_ADD_F, A: int16(x), B: int16(y), C: int16(tmp)})
	want := "ADD_F      " + col(fmt.Sprintf("%d(x)  6.0", x)) + col(fmt.Sprintf("%d(y)  4.0", y)) + col(fmt.Sprintf("%d(?)", tmp))
	assert.Equal(t, want, got)

	got = r.Statement(progs.Statement{Op: progs.OP_IF, A: int16(x), B: 3})
	assert.Equal(t, "IF         "+col(fmt.Sprintf("%d(x)  6.0", x))+"branch 3", got)

	got = r.Statement(progs.Statement{Op: progs.OP_GOTO, A: -2})
	assert.Equal(t, "GOTO       branch -2", got)

	got = r.Statement(progs.Statement{Op: progs.OP_STORE_V, A: int16(v), B: progs.OFS_PARM0})
	assert.Equal(t, "STORE_V    "+col(fmt.Sprintf("%d(v)'  1.0   2.0   3.0'", v))+col("4(PARM0)"), got)

	got = r.Statement(progs.Statement{Op: progs.OP_RETURN, A: int16(x)})
	assert.Equal(t, "RETURN     "+col(fmt.Sprintf("%d(x)  6.0", x)), got)

	got = r.Statement(progs.Statement{Op: progs.OP_LOAD_F, A: progs.GlobalSelf})
	assert.True(t, strings.HasPrefix(got, "INDIRECT   28(self)entity 0"), got)
}

func TestValueString(t *testing.T) {
	b := asm.New("values.qc")
	s := b.String("greeting", "hello")
	e := b.Entity("target")
	fld := b.FieldRef("frame", progs.EvFloat, progs.FieldFrame)
	main := b.Function("main", nil, 0)
	main.Done()
	fn := b.FuncRef("main_ref", main.Index())
	flt := b.Float("f", 6.5)
	prog := b.MustProgram()
	prog.Globals[e] = uint32(2 * progs.DefaultEntityFields * 4)
	r := &progs.Renderer{Prog: prog, Globals: prog.Globals}

	assert.Equal(t, "hello", r.ValueString(progs.EvString, int(s)))
	assert.Equal(t, "entity 2", r.ValueString(progs.EvEntity, int(e)))
	assert.Equal(t, ".frame", r.ValueString(progs.EvField, int(fld)))
	assert.Equal(t, "main()", r.ValueString(progs.EvFunction, int(fn)))
	assert.Equal(t, "void", r.ValueString(progs.EvVoid, 0))
	assert.Equal(t, "pointer", r.ValueString(progs.EvPointer, 0))
	assert.Equal(t, "  6.5", r.ValueString(progs.EvFloat|progs.DefSaveGlobal, int(flt)))
	assert.Equal(t, "bad type 9", r.ValueString(9, 0))
}

func TestDisassembleProgram(t *testing.T) {
	const index = 240
	if _, ok := progs.LookupBuiltinInfo(index); !ok {
		progs.RegisterBuiltinInfo("probe", index)
	}
	b := asm.New("listing.qc")
	native := b.Builtin("probe", index, 1)
	one := b.Float("one", 1)
	f := b.Function("main", []uint8{1}, 1)
	f.Op(progs.OP_ADD_F, f.Parm(0), one, f.Local(0))
	f.Return(f.Local(0))
	f.Done()
	prog := b.MustProgram()

	var buf bytes.Buffer
	dis := progs.NewDisassembler(&buf, &progs.Renderer{Prog: prog, Globals: prog.Globals})
	require.NoError(t, dis.DisassembleProgram())
	out := buf.String()

	assert.Contains(t, out, fmt.Sprintf("func probe [builtin probe #%d]\n", index))
	assert.Contains(t, out, fmt.Sprintf("func main (params=1, locals=2, parm_start=%d) source=listing.qc\n", f.Parm(0)))
	first := prog.Functions[f.Index()].FirstStatement
	assert.Contains(t, out, fmt.Sprintf("%04d ADD_F", first))
	assert.Contains(t, out, fmt.Sprintf("%04d DONE\n", first+2))
	assert.Equal(t, 2, strings.Count(out, "func "))
	assert.Equal(t, 1, native)

	require.Error(t, dis.DisassembleFunction(0))
}

func TestOpcodeTable(t *testing.T) {
	name, ok := progs.OpName(progs.OP_BITOR)
	require.True(t, ok)
	assert.Equal(t, "BITOR", name)
	name, _ = progs.OpName(progs.OP_LOAD_V)
	assert.Equal(t, "INDIRECT", name)
	_, ok = progs.OpName(progs.OP_BITOR + 1)
	assert.False(t, ok)
	assert.Equal(t, uint16(65), progs.OP_BITOR)

	assert.True(t, progs.IsStore(progs.OP_STORE_FNC))
	assert.False(t, progs.IsStore(progs.OP_STOREP_F))
	assert.True(t, progs.IsCall(progs.OP_CALL8))
	assert.False(t, progs.IsCall(progs.OP_STATE))
}

func TestProgramLookups(t *testing.T) {
	b := asm.New("lookup.qc")
	f := b.Function("think", nil, 0)
	f.Done()
	prog := b.MustProgram()

	assert.Equal(t, f.Index(), prog.FindFunction("think"))
	assert.Equal(t, 0, prog.FindFunction("missing"))
	assert.Equal(t, "think", prog.FunctionName(f.Index()))
	assert.Equal(t, "", prog.FunctionName(99))
	assert.Equal(t, "", prog.String(-1))
	assert.Equal(t, "", prog.String(int32(len(prog.Strings)+10)))

	def, ok := prog.FindGlobal("found_secrets")
	require.True(t, ok)
	assert.Equal(t, uint16(progs.GlobalFoundSecrets), def.Ofs)
}

func TestImageFixture(t *testing.T) {
	b := asm.New("image.qc")
	b.Float("x", 2)
	f := b.Function("main", nil, 0)
	f.Done()
	prog := b.MustProgram()

	data, err := progs.MarshalImage(prog)
	require.NoError(t, err)
	again, err := progs.MarshalImage(prog)
	require.NoError(t, err)
	assert.Equal(t, data, again, "canonical encoding is stable")

	decoded, err := progs.UnmarshalImage(data)
	require.NoError(t, err)
	assert.Equal(t, prog, decoded)

	_, err = progs.UnmarshalImage([]byte{0xff})
	assert.Error(t, err)
	_, err = progs.MarshalImage(nil)
	assert.Error(t, err)
}
