package vm

import (
	"fmt"
	"math"

	"github.com/xirelogy/go-qcvm/internal/progs"
)

// DefaultMaxEntities is the entity capacity of a machine that was not given
// an explicit table.
const DefaultMaxEntities = 1024

// Entities is a fixed-layout entity table. An entity reference stored in
// memory is the byte offset of its record from the start of the table;
// index 0 is the world.
type Entities struct {
	fields int
	cells  []uint32
	free   []bool
	secret []int32
	num    int
}

// NewEntities allocates room for max entities of fields cells each. The
// world entity is live from the start.
func NewEntities(max, fields int) *Entities {
	if max < 1 {
		max = 1
	}
	if fields <= 0 {
		fields = progs.DefaultEntityFields
	}
	return &Entities{
		fields: fields,
		cells:  make([]uint32, max*fields),
		free:   make([]bool, max),
		secret: make([]int32, max),
		num:    1,
	}
}

// Max returns the capacity of the table.
func (e *Entities) Max() int { return len(e.free) }

// Num returns the live entity count.
func (e *Entities) Num() int { return e.num }

// Fields returns the number of cells per record.
func (e *Entities) Fields() int { return e.fields }

// Stride returns the record size in bytes.
func (e *Entities) Stride() int { return e.fields * 4 }

// SetNum sets the live entity count.
func (e *Entities) SetNum(n int) error {
	if n < 1 || n > e.Max() {
		return fmt.Errorf("entity count %d out of range [1,%d]", n, e.Max())
	}
	e.num = n
	return nil
}

// Alloc returns the first free entity after the world, growing the live
// count when none is free.
func (e *Entities) Alloc() (int, error) {
	for i := 1; i < e.num; i++ {
		if e.free[i] {
			e.clear(i)
			return i, nil
		}
	}
	if e.num >= e.Max() {
		return 0, fmt.Errorf("no free entities (max %d)", e.Max())
	}
	i := e.num
	e.num++
	e.clear(i)
	return i, nil
}

// Release marks an entity free and clears its fields.
func (e *Entities) Release(i int) {
	e.clear(i)
	e.free[i] = true
}

func (e *Entities) clear(i int) {
	base := i * e.fields
	for j := base; j < base+e.fields; j++ {
		e.cells[j] = 0
	}
	e.free[i] = false
	e.secret[i] = 0
}

// Ref returns the memory reference for entity index i.
func (e *Entities) Ref(i int) int32 {
	return int32(i * e.Stride())
}

// Index returns the entity index a reference points into.
func (e *Entities) Index(ref int32) int {
	if ref < 0 {
		return -1
	}
	return int(ref) / e.Stride()
}

// IsFree reports whether entity i has been released.
func (e *Entities) IsFree(i int) bool { return e.free[i] }

// SecretIndexPlusOne returns the secret marker of entity i (0 when unset).
func (e *Entities) SecretIndexPlusOne(i int) int32 { return e.secret[i] }

// SetSecretIndexPlusOne sets the secret marker of entity i.
func (e *Entities) SetSecretIndexPlusOne(i int, v int32) { e.secret[i] = v }

func (e *Entities) cell(i, field int) int { return i*e.fields + field }

func (e *Entities) Float(i, field int) float32 {
	return math.Float32frombits(e.cells[e.cell(i, field)])
}

func (e *Entities) SetFloat(i, field int, f float32) {
	e.cells[e.cell(i, field)] = math.Float32bits(f)
}

func (e *Entities) Int(i, field int) int32 {
	return int32(e.cells[e.cell(i, field)])
}

func (e *Entities) SetInt(i, field int, v int32) {
	e.cells[e.cell(i, field)] = uint32(v)
}

func (e *Entities) Vector(i, field int) Vec3 {
	return Vec3{e.Float(i, field), e.Float(i, field+1), e.Float(i, field+2)}
}

func (e *Entities) SetVector(i, field int, v Vec3) {
	for k := 0; k < 3; k++ {
		e.SetFloat(i, field+k, v[k])
	}
}

// fieldCell resolves (reference, field offset) to a cell index, checking the
// entity against the live count and the cell range against the table.
func (e *Entities) fieldCell(ref, field int32, width int) (int, error) {
	idx := e.Index(ref)
	if idx < 0 || idx >= e.num {
		return 0, fault(ErrBadEntity, "NUM_FOR_EDICT: bad pointer")
	}
	cell := int(ref)/4 + int(field)
	if cell < 0 || cell+width > len(e.cells) {
		return 0, fault(ErrBadEntity, "bad field offset %d", field)
	}
	return cell, nil
}

// pointerCell resolves a byte pointer produced by ADDRESS to a cell index
// inside a live entity.
func (e *Entities) pointerCell(ptr int32, width int) (int, error) {
	if ptr < 0 {
		return 0, fault(ErrBadEntity, "bad pointer %d", ptr)
	}
	cell := int(ptr) / 4
	if cell/e.fields >= e.num || cell+width > len(e.cells) {
		return 0, fault(ErrBadEntity, "bad pointer %d", ptr)
	}
	return cell, nil
}
