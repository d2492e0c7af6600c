package occlusion

import "github.com/gekko3d/vispipe/rt/core"

// State is the visibility state of a tracked object.
type State uint8

const (
	Unknown State = iota
	Pending
	Visible
	Occluded
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Pending:
		return "pending"
	case Visible:
		return "visible"
	case Occluded:
		return "occluded"
	}
	return "invalid"
}

// Status is the readiness of a query result.
type Status uint8

const (
	StatusReady Status = iota
	StatusNotReady
	StatusFailed
)

// Candidate is a frustum-visible object offered to the query pass.
type Candidate struct {
	ID     core.ObjectID
	Bounds core.AABB
	// RetestInterval of 0 uses the culler default.
	RetestInterval uint32
}

// Request asks the renderer to draw Proxy with the query in Slot.
type Request struct {
	ID    core.ObjectID
	Slot  int32
	Proxy core.AABB
}

// Result is a sample count read back for a slot.
type Result struct {
	Slot    int32
	Samples uint64
	Status  Status
}

// Readback gives non-blocking access to submitted query results. Poll must
// return immediately, reporting StatusNotReady for results still in flight.
type Readback interface {
	Poll(slot int32) (samples uint64, status Status)
}

// ReadbackFunc adapts a function to Readback.
type ReadbackFunc func(slot int32) (uint64, Status)

func (f ReadbackFunc) Poll(slot int32) (uint64, Status) {
	return f(slot)
}

type record struct {
	state    State
	resolved State // last settled state, reported in the frame a query is issued
	slot     int32

	lastTested uint64
	submitted  uint64
	bypassed   uint64
	interval   uint32
}

// slotArena is a fixed pool of query slots indexed by integer handle.
type slotArena struct {
	owner []core.ObjectID
	inUse []bool
	free  []int32
}

func newSlotArena(n int) *slotArena {
	a := &slotArena{
		owner: make([]core.ObjectID, n),
		inUse: make([]bool, n),
		free:  make([]int32, 0, n),
	}
	a.reset()
	return a
}

func (a *slotArena) reset() {
	a.free = a.free[:0]
	for i := len(a.inUse) - 1; i >= 0; i-- {
		a.inUse[i] = false
		a.owner[i] = 0
		a.free = append(a.free, int32(i))
	}
}

func (a *slotArena) acquire(id core.ObjectID) (int32, bool) {
	if len(a.free) == 0 {
		return -1, false
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.inUse[slot] = true
	a.owner[slot] = id
	return slot, true
}

func (a *slotArena) release(slot int32) {
	if slot < 0 || int(slot) >= len(a.inUse) || !a.inUse[slot] {
		return
	}
	a.inUse[slot] = false
	a.owner[slot] = 0
	a.free = append(a.free, slot)
}

func (a *slotArena) lookup(slot int32) (core.ObjectID, bool) {
	if slot < 0 || int(slot) >= len(a.inUse) || !a.inUse[slot] {
		return 0, false
	}
	return a.owner[slot], true
}

func (a *slotArena) used() int {
	return len(a.inUse) - len(a.free)
}
