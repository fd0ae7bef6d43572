package vm

import (
	"math"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// Vec3 is the three-cell vector view of memory.
type Vec3 [3]float32

// Globals is flat global memory. Cells carry no type; each accessor
// reinterprets the same 32 bits.
type Globals struct {
	cells []uint32
}

func newGlobals(image []uint32) *Globals {
	cells := make([]uint32, len(image))
	copy(cells, image)
	return &Globals{cells: cells}
}

// Len returns the number of cells.
func (g *Globals) Len() int { return len(g.cells) }

// Cells exposes the raw cells; callers must not retain the slice across
// machine resets.
func (g *Globals) Cells() []uint32 { return g.cells }

func (g *Globals) Cell(ofs int) uint32         { return g.cells[ofs] }
func (g *Globals) SetCell(ofs int, v uint32)   { g.cells[ofs] = v }
func (g *Globals) Float(ofs int) float32       { return math.Float32frombits(g.cells[ofs]) }
func (g *Globals) SetFloat(ofs int, f float32) { g.cells[ofs] = math.Float32bits(f) }
func (g *Globals) Int(ofs int) int32           { return int32(g.cells[ofs]) }
func (g *Globals) SetInt(ofs int, v int32)     { g.cells[ofs] = uint32(v) }

func (g *Globals) Vector(ofs int) Vec3 {
	return Vec3{g.Float(ofs), g.Float(ofs + 1), g.Float(ofs + 2)}
}

func (g *Globals) SetVector(ofs int, v Vec3) {
	g.SetFloat(ofs, v[0])
	g.SetFloat(ofs+1, v[1])
	g.SetFloat(ofs+2, v[2])
}

// Parm returns the offset of argument slot i.
func Parm(i int) int {
	return progs.OFS_PARM0 + i*3
}

func ff(g []uint32, i int) float32 {
	return math.Float32frombits(g[i])
}

func setf(g []uint32, i int, f float32) {
	g[i] = math.Float32bits(f)
}

var cellOne = math.Float32bits(1)

func b2c(b bool) uint32 {
	if b {
		return cellOne
	}
	return 0
}
