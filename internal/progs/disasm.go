package progs

import (
	"fmt"
	"io"
	"strings"
)

// Renderer formats globals and statements against a program and a snapshot
// of global memory.
type Renderer struct {
	Prog    *Program
	Globals []uint32
	// StringAt resolves string references; defaults to Prog.String.
	StringAt func(int32) string
}

func (r *Renderer) str(ofs int32) string {
	if r.StringAt != nil {
		return r.StringAt(ofs)
	}
	return r.Prog.String(ofs)
}

func (r *Renderer) cell(ofs int) uint32 {
	if ofs < 0 || ofs >= len(r.Globals) {
		return 0
	}
	return r.Globals[ofs]
}

func (r *Renderer) entityStride() int {
	fields := r.Prog.EntityFields
	if fields <= 0 {
		fields = DefaultEntityFields
	}
	return fields * 4
}

// ValueString renders the cells starting at ofs as a value of type typ.
func (r *Renderer) ValueString(typ uint16, ofs int) string {
	typ &^= DefSaveGlobal
	v := r.cell(ofs)
	switch typ {
	case EvString:
		return r.str(int32(v))
	case EvEntity:
		return fmt.Sprintf("entity %d", int(int32(v))/r.entityStride())
	case EvFunction:
		fnum := int(int32(v))
		if fnum < 0 || fnum >= len(r.Prog.Functions) {
			return fmt.Sprintf("bad function %d()", fnum)
		}
		return r.str(r.Prog.Functions[fnum].Name) + "()"
	case EvField:
		def, ok := r.Prog.FieldAtOfs(int(int32(v)))
		if !ok {
			return fmt.Sprintf(".%d", int32(v))
		}
		return "." + r.str(def.Name)
	case EvVoid:
		return "void"
	case EvFloat:
		return fmt.Sprintf("%5.1f", cellFloat(v))
	case EvVector:
		return fmt.Sprintf("'%5.1f %5.1f %5.1f'",
			cellFloat(v), cellFloat(r.cell(ofs+1)), cellFloat(r.cell(ofs+2)))
	case EvPointer:
		return "pointer"
	default:
		return fmt.Sprintf("bad type %d", typ)
	}
}

// GlobalString renders a global operand with its current contents.
func (r *Renderer) GlobalString(ofs int) string {
	var line string
	def, ok := r.Prog.GlobalAtOfs(ofs)
	if !ok {
		line = fmt.Sprintf("%d(?)", ofs)
	} else {
		line = fmt.Sprintf("%d(%s)%s", ofs, r.str(def.Name), r.ValueString(def.Type, ofs))
	}
	return pad(line, 20) + " "
}

// GlobalStringNoContents renders a global operand by name only.
func (r *Renderer) GlobalStringNoContents(ofs int) string {
	var line string
	def, ok := r.Prog.GlobalAtOfs(ofs)
	if !ok {
		line = fmt.Sprintf("%d(?)", ofs)
	} else {
		line = fmt.Sprintf("%d(%s)", ofs, r.str(def.Name))
	}
	return pad(line, 20) + " "
}

// Statement renders a single statement in the stable diagnostic form.
func (r *Renderer) Statement(s Statement) string {
	var b strings.Builder
	if name, ok := OpName(s.Op); ok {
		b.WriteString(pad(name+" ", 11))
	}
	a, bb, c := int(uint16(s.A)), int(uint16(s.B)), int(uint16(s.C))
	switch {
	case s.Op == OP_IF || s.Op == OP_IFNOT:
		fmt.Fprintf(&b, "%sbranch %d", r.GlobalString(a), s.B)
	case s.Op == OP_GOTO:
		fmt.Fprintf(&b, "branch %d", s.A)
	case IsStore(s.Op):
		b.WriteString(r.GlobalString(a))
		b.WriteString(r.GlobalStringNoContents(bb))
	default:
		if a != 0 {
			b.WriteString(r.GlobalString(a))
		}
		if bb != 0 {
			b.WriteString(r.GlobalString(bb))
		}
		if c != 0 {
			b.WriteString(r.GlobalStringNoContents(c))
		}
	}
	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Disassembler writes a readable listing of program functions.
type Disassembler struct {
	w       io.Writer
	r       *Renderer
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer, r *Renderer) *Disassembler {
	return &Disassembler{w: w, r: r}
}

// DisassembleProgram lists every function of the program in table order.
func (d *Disassembler) DisassembleProgram() error {
	for fnum := 1; fnum < len(d.r.Prog.Functions); fnum++ {
		if err := d.DisassembleFunction(fnum); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleFunction lists the statements of one function, up to and
// including its terminating DONE.
func (d *Disassembler) DisassembleFunction(fnum int) error {
	prog := d.r.Prog
	if fnum <= 0 || fnum >= len(prog.Functions) {
		return fmt.Errorf("function index out of range: %d", fnum)
	}
	f := &prog.Functions[fnum]
	d.startSection()
	name := d.r.str(f.Name)
	if name == "" {
		name = "<anon>"
	}
	if f.IsBuiltin() {
		label := "builtin"
		if info, ok := LookupBuiltinInfo(f.BuiltinIndex()); ok {
			label = "builtin " + info.Name
		}
		fmt.Fprintf(d.w, "func %s [%s #%d]\n", name, label, f.BuiltinIndex())
		return nil
	}
	source := d.r.str(f.File)
	if source == "" {
		source = "<unknown>"
	}
	fmt.Fprintf(d.w, "func %s (params=%d, locals=%d, parm_start=%d) source=%s\n",
		name, f.NumParms, f.Locals, f.ParmStart, source)
	for pc := int(f.FirstStatement); pc >= 0 && pc < len(prog.Statements); pc++ {
		st := prog.Statements[pc]
		fmt.Fprintf(d.w, "%04d %s\n", pc, strings.TrimRight(d.r.Statement(st), " "))
		if st.Op == OP_DONE {
			break
		}
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}
