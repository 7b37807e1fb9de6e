// internal/link/registry.go
package link

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"accel-link-service/pkg/xlink"
)

// Registry owns the fixed-capacity table of link slots and the allocation
// of globally unique link IDs. All mutation goes through its lock; the
// platform layer is never called while the lock is held.
//
// Invariants:
//   - a slot is busy iff its id != InvalidLinkID
//   - no two busy slots share an id
//   - busy slot count never exceeds the configured capacity
type Registry struct {
	mu     sync.RWMutex
	slots  []Connection
	busy   []bool
	nextID xlink.LinkID
	logger *zap.Logger
}

// NewRegistry creates a registry with maxLinks free slots
func NewRegistry(maxLinks int, logger *zap.Logger) (*Registry, error) {
	if maxLinks <= 0 {
		return nil, fmt.Errorf("%w: max links must be positive, got %d", xlink.ErrInvalidArgument, maxLinks)
	}

	r := &Registry{
		slots:  make([]Connection, maxLinks),
		busy:   make([]bool, maxLinks),
		logger: logger.With(zap.String("component", "link-registry")),
	}
	for i := range r.slots {
		r.slots[i].reset()
	}
	return r, nil
}

// Capacity returns the fixed slot count
func (r *Registry) Capacity() int {
	return len(r.slots)
}

// ActiveCount returns the number of busy slots
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, b := range r.busy {
		if b {
			count++
		}
	}
	return count
}

// Allocate reserves a free slot and a unique link ID in one critical
// section, leaving the slot in the Connecting state. Returns
// ErrResourceExhausted when no slot or no ID is available. Only the ID
// leaves the registry; slot memory is never exposed to callers.
func (r *Registry) Allocate(device xlink.DeviceDescriptor) (xlink.LinkID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.nextFreeSlot()
	if idx < 0 {
		r.logger.Warn("No free link slot", zap.Int("capacity", len(r.slots)))
		return xlink.InvalidLinkID, fmt.Errorf("%w: all %d slots busy", xlink.ErrResourceExhausted, len(r.slots))
	}

	id, ok := r.nextUniqueID()
	if !ok {
		return xlink.InvalidLinkID, fmt.Errorf("%w: no free link id", xlink.ErrResourceExhausted)
	}

	conn := &r.slots[idx]
	conn.id = id
	conn.state = xlink.StateConnecting
	conn.device = device
	r.busy[idx] = true

	r.logger.Debug("Link slot allocated",
		zap.Uint32("link_id", uint32(id)),
		zap.Int("slot", idx),
	)
	return id, nil
}

// Release cleans the slot holding id and returns it to the free pool.
// Slots are located by searching busy entries for a matching ID; the ID
// value is never used as a table index.
func (r *Registry) Release(id xlink.LinkID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: id %d", xlink.ErrLinkNotFound, id)
	}

	r.slots[idx].reset()
	r.busy[idx] = false

	r.logger.Debug("Link slot released",
		zap.Uint32("link_id", uint32(id)),
		zap.Int("slot", idx),
	)
	return nil
}

// Lookup resolves a link ID to a snapshot of its slot. The copy is taken
// under the read lock so a concurrent Release can never be observed
// mid-transition through the returned value.
func (r *Registry) Lookup(id xlink.LinkID) (xlink.LinkInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return xlink.LinkInfo{}, fmt.Errorf("%w: id %d", xlink.ErrLinkNotFound, id)
	}
	return r.slots[idx].Info(), nil
}

// MarkUp records a successful transport connect for the link
func (r *Registry) MarkUp(id xlink.LinkID, handle xlink.DeviceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: id %d", xlink.ErrLinkNotFound, id)
	}

	r.slots[idx].handle = handle
	r.slots[idx].state = xlink.StateUp
	r.slots[idx].since = time.Now()
	return nil
}

// MarkResetting transitions an Up link into teardown and returns its
// handle for the platform reset call. ErrAlreadyInState when the link is
// not up.
func (r *Registry) MarkResetting(id xlink.LinkID) (xlink.DeviceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: id %d", xlink.ErrLinkNotFound, id)
	}
	if r.slots[idx].state != xlink.StateUp {
		return nil, fmt.Errorf("%w: link %d is %s", xlink.ErrAlreadyInState, id, r.slots[idx].state)
	}

	r.slots[idx].state = xlink.StateResetting
	return r.slots[idx].handle, nil
}

// ActiveIDs returns the IDs of all busy slots in table order
func (r *Registry) ActiveIDs() []xlink.LinkID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]xlink.LinkID, 0, len(r.slots))
	for i := range r.slots {
		if r.busy[i] {
			ids = append(ids, r.slots[i].id)
		}
	}
	return ids
}

// Links returns the external view of all busy slots
func (r *Registry) Links() []xlink.LinkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]xlink.LinkInfo, 0, len(r.slots))
	for i := range r.slots {
		if r.busy[i] {
			infos = append(infos, r.slots[i].Info())
		}
	}
	return infos
}

// nextFreeSlot scans the free flags for the first free slot index.
// Caller holds the write lock.
func (r *Registry) nextFreeSlot() int {
	for i := range r.busy {
		if !r.busy[i] {
			return i
		}
	}
	return -1
}

// nextUniqueID probes candidate IDs starting at nextID, wrapping past the
// invalid sentinel, until one not held by any busy slot is found. The
// probe resumes after the previous winner so recently freed IDs are not
// immediately reused. Caller holds the write lock.
func (r *Registry) nextUniqueID() (xlink.LinkID, bool) {
	start := r.nextID
	for {
		if r.indexOf(r.nextID) < 0 {
			id := r.nextID
			r.advanceID()
			return id, true
		}
		r.advanceID()
		if r.nextID == start {
			r.logger.Error("Link ID space exhausted")
			return xlink.InvalidLinkID, false
		}
	}
}

func (r *Registry) advanceID() {
	r.nextID++
	if r.nextID == xlink.InvalidLinkID {
		r.nextID = 0
	}
}

// indexOf returns the slot index holding id, or -1. Caller holds a lock.
func (r *Registry) indexOf(id xlink.LinkID) int {
	if id == xlink.InvalidLinkID {
		return -1
	}
	for i := range r.slots {
		if r.busy[i] && r.slots[i].id == id {
			return i
		}
	}
	return -1
}
