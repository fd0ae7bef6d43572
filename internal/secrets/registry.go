// Package secrets maps secret trigger locations to their index on the
// level, so entities spawned at a known location can be tagged with the
// secret they represent.
package secrets

import (
	"sync"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-qcvm/internal/progs"
	"github.com/xirelogy/go-qcvm/internal/vm"
)

var log = commonlog.GetLogger("qcvm.secrets")

type location [3]int64

func locationOf(mins vm.Vec3) location {
	return location{int64(mins[0]), int64(mins[1]), int64(mins[2])}
}

// Registry is keyed by the integer-truncated mins of each secret trigger.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	locs map[location]uint16
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{locs: make(map[location]uint16)}
}

// Record associates mins with secret index secret, replacing any previous
// entry at the same location.
func (r *Registry) Record(secret uint16, mins vm.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locs[locationOf(mins)] = secret
}

// Clear forgets every location. Hosts call it on level change.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.locs)
}

// Len returns the number of recorded locations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locs)
}

// IndexForLocation returns the secret recorded at mins, or -1.
func (r *Registry) IndexForLocation(mins vm.Vec3) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.locs[locationOf(mins)]; ok {
		return int(s)
	}
	return -1
}

// TagEntity sets the secret marker of entity e when its mins match a
// recorded location. It reports whether the entity was tagged.
func (r *Registry) TagEntity(ents *vm.Entities, e int) bool {
	if e <= 0 || e >= ents.Num() {
		return false
	}
	idx := r.IndexForLocation(ents.Vector(e, progs.FieldMins))
	if idx < 0 {
		return false
	}
	ents.SetSecretIndexPlusOne(e, int32(idx)+1)
	log.Debugf("entity %d tagged as secret %d", e, idx)
	return true
}
