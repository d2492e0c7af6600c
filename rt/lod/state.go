package lod

import "github.com/gekko3d/vispipe/rt/core"

// State is the per-object LOD record. It is created the first frame an
// object is visible and dropped once the object leaves the input.
type State struct {
	Level    int
	Previous int
	Blend    float32
	Coverage float32
	Distance float32
	// LastFrame is the last frame in which the object was visible.
	LastFrame uint64
}

type Stats struct {
	// Levels counts the objects updated this frame per level.
	Levels          []int
	InTransition    int
	Tracked         int
	AverageCoverage float32
}

// Update selects the level for id in frame and records it. maxLevel clamps
// the result when the object has fewer levels than thresholds; pass a
// negative value for no clamp.
func (s *Selector) Update(frame uint64, id core.ObjectID, bounds core.AABB, cam core.Camera, maxLevel int) State {
	s.frame = frame
	sel := s.Select(bounds, cam)
	if maxLevel >= 0 && sel.Level > maxLevel {
		sel.Level = maxLevel
		sel.Blend = 1
	}

	st, ok := s.states[id]
	if !ok {
		st = &State{Level: sel.Level, Previous: sel.Level}
		s.states[id] = st
	} else if st.Level != sel.Level {
		st.Previous = st.Level
	}
	st.Level = sel.Level
	st.Blend = sel.Blend
	st.Coverage = sel.Coverage
	st.Distance = sel.Distance
	st.LastFrame = frame
	return *st
}

func (s *Selector) State(id core.ObjectID) (State, bool) {
	st, ok := s.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Retain drops the state of every object not in live.
func (s *Selector) Retain(live core.IDSet) {
	for id := range s.states {
		if !live.Has(id) {
			delete(s.states, id)
		}
	}
}

// BeginFrame starts a frame so Stats only counts objects updated in it.
func (s *Selector) BeginFrame(frame uint64) {
	s.frame = frame
}

func (s *Selector) Clear() {
	s.states = make(map[core.ObjectID]*State)
	s.frame = 0
}

// Stats summarizes the objects updated in the most recent frame.
func (s *Selector) Stats() Stats {
	st := Stats{
		Levels:  make([]int, s.cfg.Levels()),
		Tracked: len(s.states),
	}
	var total float32
	n := 0
	for _, ls := range s.states {
		if ls.LastFrame != s.frame {
			continue
		}
		if ls.Level >= 0 && ls.Level < len(st.Levels) {
			st.Levels[ls.Level]++
		}
		if ls.Blend < 1 {
			st.InTransition++
		}
		total += ls.Coverage
		n++
	}
	if n > 0 {
		st.AverageCoverage = total / float32(n)
	}
	return st
}
