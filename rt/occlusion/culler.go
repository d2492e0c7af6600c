package occlusion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gekko3d/vispipe/rt/core"
)

var (
	ErrInvalidMaxQueries     = errors.New("occlusion: max queries must be >= 1")
	ErrInvalidRetestInterval = errors.New("occlusion: retest interval must be >= 1")
	ErrInvalidPendingFrames  = errors.New("occlusion: max pending frames must be >= 1")
	ErrInvalidProxyMargin    = errors.New("occlusion: proxy margin must be finite and >= 0")
)

type Config struct {
	// MaxQueries bounds the number of simultaneously pending queries.
	MaxQueries int
	// RetestInterval is the default number of frames between tests of one
	// object.
	RetestInterval uint32
	// MaxPendingFrames is how long a query may stay unresolved before the
	// object is treated as visible and the slot reclaimed.
	MaxPendingFrames uint32
	// ProxyMargin grows query proxies beyond the object bounds.
	ProxyMargin float32
}

func DefaultConfig() Config {
	return Config{
		MaxQueries:       1024,
		RetestInterval:   5,
		MaxPendingFrames: 4,
		ProxyMargin:      0.01,
	}
}

func (c Config) Validate() error {
	if c.MaxQueries < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMaxQueries, c.MaxQueries)
	}
	if c.RetestInterval < 1 {
		return ErrInvalidRetestInterval
	}
	if c.MaxPendingFrames < 1 {
		return ErrInvalidPendingFrames
	}
	if c.ProxyMargin < 0 || math.IsNaN(float64(c.ProxyMargin)) || math.IsInf(float64(c.ProxyMargin), 0) {
		return ErrInvalidProxyMargin
	}
	return nil
}

type Stats struct {
	Tracked   int
	Tested    int // requests issued by the last query pass
	Pending   int
	Visible   int
	Occluded  int
	Bypassed  int // candidates that found no free slot in the last pass
	TimedOut  int // queries reclaimed after MaxPendingFrames, cumulative
	Abandoned int // queries discarded by Abandon, cumulative
	// Efficiency is the percentage of tracked objects currently occluded.
	Efficiency float32
}

// Culler tracks per-object query state across frames. It is not safe for
// concurrent use.
type Culler struct {
	cfg     Config
	records map[core.ObjectID]*record
	slots   *slotArena
	frame   uint64

	tested    int
	bypassed  int
	timedOut  int
	abandoned int
}

func NewCuller(cfg Config) (*Culler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Culler{
		cfg:     cfg,
		records: make(map[core.ObjectID]*record),
		slots:   newSlotArena(cfg.MaxQueries),
	}, nil
}

func (c *Culler) Config() Config {
	return c.cfg
}

// Frame is the number of query passes begun since the last Clear.
func (c *Culler) Frame() uint64 {
	return c.frame
}

// BeginQueryPass advances the frame and returns query requests for the
// candidates that are due. Candidates keep their previous state between
// retests. When the slot pool is exhausted the remaining due candidates are
// treated as visible for this frame.
func (c *Culler) BeginQueryPass(candidates []Candidate) []Request {
	c.frame++
	c.tested = 0
	c.bypassed = 0
	c.expire()

	var requests []Request
	for _, cand := range candidates {
		r := c.records[cand.ID]
		if r == nil {
			r = &record{state: Unknown, resolved: Unknown, slot: -1}
			c.records[cand.ID] = r
		}
		r.interval = cand.RetestInterval
		if r.interval == 0 {
			r.interval = c.cfg.RetestInterval
		}

		if r.state == Pending || !c.due(r) || !cand.Bounds.Valid() {
			continue
		}

		slot, ok := c.slots.acquire(cand.ID)
		if !ok {
			r.bypassed = c.frame
			c.bypassed++
			continue
		}

		r.state = Pending
		r.slot = slot
		r.submitted = c.frame
		r.lastTested = c.frame
		c.tested++
		requests = append(requests, Request{
			ID:    cand.ID,
			Slot:  slot,
			Proxy: cand.Bounds.Expand(c.cfg.ProxyMargin),
		})
	}
	return requests
}

func (c *Culler) due(r *record) bool {
	if r.state == Unknown {
		return true
	}
	return c.frame-r.lastTested >= uint64(r.interval)
}

// expire settles queries that have been pending too long as visible.
func (c *Culler) expire() {
	for _, r := range c.records {
		if r.state == Pending && c.frame-r.submitted > uint64(c.cfg.MaxPendingFrames) {
			c.settle(r, Visible)
			c.timedOut++
		}
	}
}

func (c *Culler) settle(r *record, s State) {
	c.slots.release(r.slot)
	r.slot = -1
	r.state = s
	r.resolved = s
}

// Resolve applies results that are already available. Results for unknown
// or free slots are ignored and NotReady results leave the query pending.
func (c *Culler) Resolve(results []Result) {
	for _, res := range results {
		c.apply(res.Slot, res.Samples, res.Status)
	}
}

// Poll asks rb for every pending slot and applies whatever is ready. It
// never waits on the readback.
func (c *Culler) Poll(rb Readback) {
	if rb == nil {
		return
	}
	pending := make([]int32, 0, c.slots.used())
	for slot, used := range c.slots.inUse {
		if used {
			pending = append(pending, int32(slot))
		}
	}
	for _, slot := range pending {
		samples, status := rb.Poll(slot)
		c.apply(slot, samples, status)
	}
}

func (c *Culler) apply(slot int32, samples uint64, status Status) {
	id, ok := c.slots.lookup(slot)
	if !ok {
		return
	}
	r := c.records[id]
	if r == nil || r.state != Pending || r.slot != slot {
		c.slots.release(slot)
		return
	}

	switch status {
	case StatusReady:
		if samples > 0 {
			c.settle(r, Visible)
		} else {
			c.settle(r, Occluded)
		}
	case StatusFailed:
		c.settle(r, Visible)
	case StatusNotReady:
		if c.frame-r.submitted > uint64(c.cfg.MaxPendingFrames) {
			c.settle(r, Visible)
			c.timedOut++
		}
	}
}

// IsVisible reports whether id should be drawn. Untracked, Unknown and
// bypassed objects are visible. A query pending since this frame reports
// the last settled state; once it is older the object is visible until the
// result arrives.
func (c *Culler) IsVisible(id core.ObjectID) bool {
	r := c.records[id]
	if r == nil {
		return true
	}
	if r.bypassed == c.frame && c.frame != 0 {
		return true
	}
	s := r.state
	if s == Pending {
		if c.frame > r.submitted {
			return true
		}
		s = r.resolved
	}
	return s != Occluded
}

// State returns the current state of id and whether it is tracked.
func (c *Culler) State(id core.ObjectID) (State, bool) {
	r := c.records[id]
	if r == nil {
		return Unknown, false
	}
	return r.state, true
}

// VisibleSet returns every tracked object that is currently visible.
func (c *Culler) VisibleSet() core.IDSet {
	out := make(core.IDSet, len(c.records))
	for id := range c.records {
		if c.IsVisible(id) {
			out.Add(id)
		}
	}
	return out
}

// Retain forgets objects that are not in live and frees their slots.
func (c *Culler) Retain(live core.IDSet) {
	for id, r := range c.records {
		if !live.Has(id) {
			c.slots.release(r.slot)
			delete(c.records, id)
		}
	}
}

// Abandon discards all in-flight queries. Their objects go back to Unknown
// so they are drawn and retested on the next pass.
func (c *Culler) Abandon() {
	for _, r := range c.records {
		if r.state != Pending {
			continue
		}
		c.slots.release(r.slot)
		r.slot = -1
		r.state = Unknown
		r.resolved = Unknown
		r.lastTested = 0
		c.abandoned++
	}
}

// Clear drops all state including the frame counter.
func (c *Culler) Clear() {
	c.records = make(map[core.ObjectID]*record)
	c.slots.reset()
	c.frame = 0
	c.tested = 0
	c.bypassed = 0
	c.timedOut = 0
	c.abandoned = 0
}

func (c *Culler) PendingCount() int {
	return c.slots.used()
}

// PendingIDs lists objects with a query in flight, ordered by id.
func (c *Culler) PendingIDs() []core.ObjectID {
	ids := make([]core.ObjectID, 0, c.slots.used())
	for id, r := range c.records {
		if r.state == Pending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Culler) Stats() Stats {
	s := Stats{
		Tracked:   len(c.records),
		Tested:    c.tested,
		Pending:   c.slots.used(),
		Bypassed:  c.bypassed,
		TimedOut:  c.timedOut,
		Abandoned: c.abandoned,
	}
	for id := range c.records {
		if c.IsVisible(id) {
			s.Visible++
		} else {
			s.Occluded++
		}
	}
	if s.Tracked > 0 {
		s.Efficiency = float32(s.Occluded) / float32(s.Tracked) * 100
	}
	return s
}
