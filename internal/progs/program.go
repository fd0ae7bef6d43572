package progs

// Reserved global offsets.
const (
	OFS_NULL     = 0
	OFS_RETURN   = 1
	OFS_PARM0    = 4 // leave 3 ofs for each parm to hold vectors
	OFS_PARM1    = 7
	OFS_PARM2    = 10
	OFS_PARM3    = 13
	OFS_PARM4    = 16
	OFS_PARM5    = 19
	OFS_PARM6    = 22
	OFS_PARM7    = 25
	RESERVED_OFS = 28
)

// Well-known globals in the system globals block that follows the reserved area.
const (
	GlobalSelf         = 28
	GlobalOther        = 29
	GlobalWorld        = 30
	GlobalTime         = 31
	GlobalFrametime    = 32
	GlobalTotalSecrets = 39
	GlobalFoundSecrets = 41
	GlobalVForward     = 59
	GlobalVUp          = 62
	GlobalVRight       = 65
)

// Well-known entity field offsets, in cells.
const (
	FieldMovetype   = 8
	FieldSolid      = 9
	FieldOrigin     = 10
	FieldClassname  = 28
	FieldFrame      = 30
	FieldMins       = 33
	FieldThink      = 44
	FieldNextthink  = 46
	FieldTakedamage = 59

	// DefaultEntityFields is the size of the system entity field block.
	DefaultEntityFields = 105
)

// MaxParms is the number of argument slots a call can pass.
const MaxParms = 8

// Def types.
const (
	EvVoid uint16 = iota
	EvString
	EvFloat
	EvVector
	EvEntity
	EvField
	EvFunction
	EvPointer

	// DefSaveGlobal marks globals that are written to save games.
	DefSaveGlobal uint16 = 1 << 15
)

// Statement is a single instruction. A, B and C are global offsets for most
// opcodes and are read as unsigned; branch displacements are signed.
type Statement struct {
	Op uint16 `cbor:"op"`
	A  int16  `cbor:"a"`
	B  int16  `cbor:"b"`
	C  int16  `cbor:"c"`
}

// Function describes either a bytecode function (FirstStatement > 0) or a
// builtin (FirstStatement < 0, magnitude is the builtin index).
type Function struct {
	FirstStatement int32           `cbor:"first_statement"`
	ParmStart      int32           `cbor:"parm_start"`
	Locals         int32           `cbor:"locals"`
	Profile        int32           `cbor:"profile"`
	Name           int32           `cbor:"name"`
	File           int32           `cbor:"file"`
	NumParms       int32           `cbor:"numparms"`
	ParmSize       [MaxParms]uint8 `cbor:"parm_size"`
}

// IsBuiltin reports whether the function is implemented natively.
func (f *Function) IsBuiltin() bool {
	return f.FirstStatement < 0
}

// BuiltinIndex returns the builtin table index for a native function.
func (f *Function) BuiltinIndex() int {
	return int(-f.FirstStatement)
}

// Def names a global or an entity field.
type Def struct {
	Type uint16 `cbor:"type"`
	Ofs  uint16 `cbor:"ofs"`
	Name int32  `cbor:"name"`
}

// Program is a compiled program image. It is produced outside this module and
// treated as read-only; machines copy the parts they mutate.
type Program struct {
	Statements   []Statement `cbor:"statements"`
	Functions    []Function  `cbor:"functions"`
	GlobalDefs   []Def       `cbor:"globaldefs"`
	FieldDefs    []Def       `cbor:"fielddefs"`
	Strings      []byte      `cbor:"strings"`
	Globals      []uint32    `cbor:"globals"`
	EntityFields int         `cbor:"entityfields"`
}

// String returns the NUL-terminated pool string at ofs, or "" when ofs is
// outside the pool.
func (p *Program) String(ofs int32) string {
	if p == nil || ofs < 0 || int(ofs) >= len(p.Strings) {
		return ""
	}
	s := p.Strings[ofs:]
	for i, b := range s {
		if b == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

// GlobalAtOfs returns the global def whose offset is ofs.
func (p *Program) GlobalAtOfs(ofs int) (Def, bool) {
	for _, d := range p.GlobalDefs {
		if int(d.Ofs) == ofs {
			return d, true
		}
	}
	return Def{}, false
}

// FieldAtOfs returns the field def whose offset is ofs.
func (p *Program) FieldAtOfs(ofs int) (Def, bool) {
	for _, d := range p.FieldDefs {
		if int(d.Ofs) == ofs {
			return d, true
		}
	}
	return Def{}, false
}

// FindGlobal looks up a global def by name.
func (p *Program) FindGlobal(name string) (Def, bool) {
	for _, d := range p.GlobalDefs {
		if p.String(d.Name) == name {
			return d, true
		}
	}
	return Def{}, false
}

// FindFunction returns the index of the named function, or 0 when absent.
func (p *Program) FindFunction(name string) int {
	for i := 1; i < len(p.Functions); i++ {
		if p.String(p.Functions[i].Name) == name {
			return i
		}
	}
	return 0
}

// FunctionName returns the name of function fnum, or "" when out of range.
func (p *Program) FunctionName(fnum int) string {
	if fnum <= 0 || fnum >= len(p.Functions) {
		return ""
	}
	return p.String(p.Functions[fnum].Name)
}
