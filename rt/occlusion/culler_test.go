package occlusion

import (
	"testing"
	"time"

	"github.com/gekko3d/vispipe/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		p := float32(i)
		out[i] = Candidate{
			ID:     core.ObjectID(i + 1),
			Bounds: core.NewAABB(mgl32.Vec3{p, 0, 0}, mgl32.Vec3{p + 1, 1, 1}),
		}
	}
	return out
}

func newCuller(t *testing.T, mutate func(*Config)) *Culler {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCuller(cfg)
	require.NoError(t, err)
	return c
}

func resultsFor(reqs []Request, samples func(id core.ObjectID) uint64) []Result {
	out := make([]Result, len(reqs))
	for i, r := range reqs {
		out[i] = Result{Slot: r.Slot, Samples: samples(r.ID), Status: StatusReady}
	}
	return out
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"zero queries", func(c *Config) { c.MaxQueries = 0 }, ErrInvalidMaxQueries},
		{"zero interval", func(c *Config) { c.RetestInterval = 0 }, ErrInvalidRetestInterval},
		{"zero pending", func(c *Config) { c.MaxPendingFrames = 0 }, ErrInvalidPendingFrames},
		{"negative margin", func(c *Config) { c.ProxyMargin = -1 }, ErrInvalidProxyMargin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewCuller(cfg)
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestUnknownObjectsAreVisible(t *testing.T) {
	c := newCuller(t, nil)
	assert.True(t, c.IsVisible(42))

	reqs := c.BeginQueryPass(candidates(3))
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		s, ok := c.State(r.ID)
		assert.True(t, ok)
		assert.Equal(t, Pending, s)
		// first test in flight, nothing settled yet
		assert.True(t, c.IsVisible(r.ID))
	}
}

func TestResolveFromSampleCounts(t *testing.T) {
	c := newCuller(t, nil)
	reqs := c.BeginQueryPass(candidates(4))

	c.Resolve(resultsFor(reqs, func(id core.ObjectID) uint64 {
		if id%2 == 0 {
			return 0
		}
		return 12
	}))

	for _, id := range []core.ObjectID{1, 3} {
		s, _ := c.State(id)
		assert.Equal(t, Visible, s)
		assert.True(t, c.IsVisible(id))
	}
	for _, id := range []core.ObjectID{2, 4} {
		s, _ := c.State(id)
		assert.Equal(t, Occluded, s)
		assert.False(t, c.IsVisible(id))
	}
	assert.Equal(t, 0, c.PendingCount())

	vis := c.VisibleSet()
	assert.True(t, vis.Has(1))
	assert.False(t, vis.Has(2))

	st := c.Stats()
	assert.Equal(t, 2, st.Occluded)
	assert.InDelta(t, 50.0, st.Efficiency, 1e-4)

	// efficiency is over every tracked object, not the queries of one pass
	c.BeginQueryPass(nil)
	st = c.Stats()
	assert.Zero(t, st.Tested)
	assert.Equal(t, 4, st.Tracked)
	assert.InDelta(t, 50.0, st.Efficiency, 1e-4)
}

func TestProxiesAreConservative(t *testing.T) {
	c := newCuller(t, func(cfg *Config) { cfg.ProxyMargin = 0.5 })
	cands := candidates(5)
	reqs := c.BeginQueryPass(cands)
	for i, r := range reqs {
		assert.True(t, r.Proxy.Contains(cands[i].Bounds))
		assert.Equal(t, cands[i].Bounds.Min.Sub(mgl32.Vec3{0.5, 0.5, 0.5}), r.Proxy.Min)
	}
}

func TestTemporalCoherence(t *testing.T) {
	c := newCuller(t, func(cfg *Config) { cfg.RetestInterval = 3 })
	cands := candidates(1)

	reqs := c.BeginQueryPass(cands) // frame 1
	require.Len(t, reqs, 1)
	c.Resolve([]Result{{Slot: reqs[0].Slot, Samples: 0, Status: StatusReady}})

	// not due on frames 2 and 3, the occluded state is kept
	assert.Empty(t, c.BeginQueryPass(cands))
	assert.False(t, c.IsVisible(1))
	assert.Empty(t, c.BeginQueryPass(cands))
	assert.False(t, c.IsVisible(1))

	// frame 4 is 3 frames after the last test
	reqs = c.BeginQueryPass(cands)
	require.Len(t, reqs, 1)
	// while the retest is in flight the last settled state is reported
	assert.False(t, c.IsVisible(1))

	c.Resolve([]Result{{Slot: reqs[0].Slot, Samples: 7, Status: StatusReady}})
	assert.True(t, c.IsVisible(1))
}

func TestPerObjectRetestInterval(t *testing.T) {
	c := newCuller(t, func(cfg *Config) { cfg.RetestInterval = 10 })
	cands := candidates(2)
	cands[1].RetestInterval = 1

	for frame := 0; frame < 4; frame++ {
		reqs := c.BeginQueryPass(cands)
		c.Resolve(resultsFor(reqs, func(core.ObjectID) uint64 { return 1 }))
		if frame == 0 {
			assert.Len(t, reqs, 2)
		} else {
			require.Len(t, reqs, 1)
			assert.Equal(t, core.ObjectID(2), reqs[0].ID)
		}
	}
}

func TestPoolExhaustionBypassesToVisible(t *testing.T) {
	c := newCuller(t, func(cfg *Config) { cfg.MaxQueries = 4 })
	cands := candidates(10)

	reqs := c.BeginQueryPass(cands)
	assert.Len(t, reqs, 4)
	assert.Equal(t, 4, c.PendingCount())
	assert.Equal(t, 6, c.Stats().Bypassed)

	for _, cand := range cands {
		assert.True(t, c.IsVisible(cand.ID))
	}

	// slots stay busy until resolved, nothing more can be issued
	assert.Empty(t, c.BeginQueryPass(cands))
	assert.LessOrEqual(t, c.PendingCount(), 4)

	c.Resolve(resultsFor(reqs, func(core.ObjectID) uint64 { return 0 }))
	reqs = c.BeginQueryPass(cands)
	assert.Len(t, reqs, 4)
	assert.Equal(t, core.ObjectID(5), reqs[0].ID)
}

func TestPendingNeverExceedsPool(t *testing.T) {
	c := newCuller(t, func(cfg *Config) {
		cfg.MaxQueries = 16
		cfg.RetestInterval = 1
	})
	cands := candidates(100)
	for frame := 0; frame < 20; frame++ {
		reqs := c.BeginQueryPass(cands)
		assert.LessOrEqual(t, len(reqs), 16)
		assert.LessOrEqual(t, c.PendingCount(), 16)
		// resolve only half so slots stay contended
		c.Resolve(resultsFor(reqs[:len(reqs)/2], func(core.ObjectID) uint64 { return 0 }))
	}
}

func TestUnresolvedQueryFailsOpen(t *testing.T) {
	c := newCuller(t, func(cfg *Config) {
		cfg.MaxPendingFrames = 2
		cfg.RetestInterval = 1
	})
	cands := candidates(1)

	reqs := c.BeginQueryPass(cands)
	c.Resolve([]Result{{Slot: reqs[0].Slot, Status: StatusReady}})
	require.False(t, c.IsVisible(1))

	// a retest whose result never arrives
	reqs = c.BeginQueryPass(cands)
	require.Len(t, reqs, 1)

	assert.False(t, c.IsVisible(1), "the frame a retest is issued keeps the settled state")

	never := ReadbackFunc(func(int32) (uint64, Status) { return 0, StatusNotReady })
	for i := 0; i < 4; i++ {
		c.Poll(never)
		c.BeginQueryPass(nil)
		assert.True(t, c.IsVisible(1), "frame %d", c.Frame())
		assert.True(t, c.VisibleSet().Has(1))
	}

	s, _ := c.State(1)
	assert.Equal(t, Visible, s)
	assert.True(t, c.IsVisible(1))
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, 1, c.Stats().TimedOut)
}

func TestFailedQueryIsVisible(t *testing.T) {
	c := newCuller(t, nil)
	reqs := c.BeginQueryPass(candidates(1))
	c.Poll(ReadbackFunc(func(int32) (uint64, Status) { return 0, StatusFailed }))

	s, _ := c.State(reqs[0].ID)
	assert.Equal(t, Visible, s)
}

func TestPollIsNonBlocking(t *testing.T) {
	c := newCuller(t, nil)
	reqs := c.BeginQueryPass(candidates(8))

	ready := map[int32]bool{reqs[0].Slot: true, reqs[3].Slot: true}
	rb := ReadbackFunc(func(slot int32) (uint64, Status) {
		if ready[slot] {
			return 0, StatusReady
		}
		return 0, StatusNotReady
	})

	start := time.Now()
	c.Poll(rb)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	assert.Equal(t, 6, c.PendingCount())
	assert.Equal(t, []core.ObjectID{2, 3, 5, 6, 7, 8}, c.PendingIDs())
}

func TestAbandonResetsInFlightToUnknown(t *testing.T) {
	c := newCuller(t, nil)
	cands := candidates(3)
	reqs := c.BeginQueryPass(cands)
	c.Resolve(resultsFor(reqs[:1], func(core.ObjectID) uint64 { return 0 }))

	c.Abandon()
	assert.Equal(t, 0, c.PendingCount())

	s, _ := c.State(1)
	assert.Equal(t, Occluded, s, "settled objects are untouched")
	for _, id := range []core.ObjectID{2, 3} {
		s, _ := c.State(id)
		assert.Equal(t, Unknown, s)
		assert.True(t, c.IsVisible(id))
	}

	// stale results for discarded slots are ignored
	c.Resolve(resultsFor(reqs[1:], func(core.ObjectID) uint64 { return 0 }))
	s, _ = c.State(2)
	assert.Equal(t, Unknown, s)

	// Unknown objects are retested right away
	assert.Len(t, c.BeginQueryPass(cands[1:]), 2)
}

func TestRetainAndClear(t *testing.T) {
	c := newCuller(t, nil)
	c.BeginQueryPass(candidates(5))
	require.Equal(t, 5, c.PendingCount())

	c.Retain(core.IDSet{1: {}, 2: {}})
	assert.Equal(t, 2, c.PendingCount())
	assert.Equal(t, 2, c.Stats().Tracked)
	_, ok := c.State(4)
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, uint64(0), c.Frame())
	assert.Equal(t, 0, c.Stats().Tracked)
}

func TestQueryPassScalesWithRetestInterval(t *testing.T) {
	const objects = 10000
	cands := candidates(objects)

	issued := func(interval uint32, maxQueries int) int {
		c := newCuller(t, func(cfg *Config) {
			cfg.RetestInterval = interval
			cfg.MaxQueries = maxQueries
		})
		total := 0
		start := time.Now()
		for frame := 0; frame < 30; frame++ {
			reqs := c.BeginQueryPass(cands)
			total += len(reqs)
			assert.LessOrEqual(t, c.PendingCount(), maxQueries)
			c.Resolve(resultsFor(reqs, func(core.ObjectID) uint64 { return 1 }))
		}
		t.Logf("interval %d, pool %d: %d queries, %.3f ms/frame",
			interval, maxQueries, total, float64(time.Since(start).Microseconds())/30000)
		return total
	}

	// the default pool is saturated by 10k objects but never overflows
	issued(5, 1024)

	every := issued(1, objects)
	coherent := issued(5, objects)
	assert.Equal(t, 30*objects, every)
	assert.Equal(t, 6*objects, coherent)
}
