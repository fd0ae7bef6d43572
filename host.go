package qcvm

import (
	"fmt"

	"github.com/xirelogy/go-qcvm/internal/intermission"
	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

// Host-side memory access. These must not be called while the context is
// executing.

func (c *Context) global(name string) (int, error) {
	def, ok := c.machine.Program().FindGlobal(name)
	if !ok {
		return 0, fmt.Errorf("global %q not found", name)
	}
	return int(def.Ofs), nil
}

// GlobalFloat reads a named float global.
func (c *Context) GlobalFloat(name string) (float32, error) {
	ofs, err := c.global(name)
	if err != nil {
		return 0, err
	}
	return c.machine.Globals().Float(ofs), nil
}

// SetGlobalFloat writes a named float global.
func (c *Context) SetGlobalFloat(name string, v float32) error {
	ofs, err := c.global(name)
	if err != nil {
		return err
	}
	c.machine.Globals().SetFloat(ofs, v)
	return nil
}

// SetSelf points the self global at entity e.
func (c *Context) SetSelf(e int) {
	c.machine.Globals().SetInt(progs.GlobalSelf, c.machine.Entities().Ref(e))
}

// SetTime sets the time global.
func (c *Context) SetTime(t float32) {
	c.machine.Globals().SetFloat(progs.GlobalTime, t)
}

// ReturnFloat reads the return slot as a float.
func (c *Context) ReturnFloat() float32 {
	return c.machine.Globals().Float(progs.OFS_RETURN)
}

// SpawnEntity allocates an entity.
func (c *Context) SpawnEntity() (int, error) {
	return c.machine.Entities().Alloc()
}

// RemoveEntity frees an entity.
func (c *Context) RemoveEntity(e int) {
	c.machine.Entities().Release(e)
}

// EntityFloat reads a float field of entity e.
func (c *Context) EntityFloat(e, field int) float32 {
	return c.machine.Entities().Float(e, field)
}

// SetEntityFloat writes a float field of entity e.
func (c *Context) SetEntityFloat(e, field int, v float32) {
	c.machine.Entities().SetFloat(e, field, v)
}

// SetEntityVector writes a vector field of entity e.
func (c *Context) SetEntityVector(e, field int, v [3]float32) {
	c.machine.Entities().SetVector(e, field, vm.Vec3(v))
}

// NewLevel resets the per-level state: the completion flag, the skill sent
// with the completion message and the secret locations.
func (c *Context) NewLevel(skill int) {
	c.level.Reset(skill)
	c.secrets.Clear()
}

// SetPlayers replaces the client slots checked for intermission.
func (c *Context) SetPlayers(slots []PlayerSlot) {
	c.level.Clients = c.level.Clients[:0]
	for _, s := range slots {
		c.level.Clients = append(c.level.Clients, intermission.Client{Active: s.Active, Entity: s.Entity})
	}
}

// LevelCompleted reports whether the completion message was sent for the
// current level.
func (c *Context) LevelCompleted() bool {
	return c.level.Reached
}

// RecordSecret remembers that the trigger with the given mins is secret
// number index.
func (c *Context) RecordSecret(index uint16, mins [3]float32) {
	c.secrets.Record(index, vm.Vec3(mins))
}

// TagSecret marks entity e with its secret index when its mins match a
// recorded secret location.
func (c *Context) TagSecret(e int) bool {
	return c.secrets.TagEntity(c.machine.Entities(), e)
}
