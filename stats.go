package vispipe

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gekko3d/vispipe/rt/batch"
	"github.com/gekko3d/vispipe/rt/instancing"
	"github.com/gekko3d/vispipe/rt/lod"
	"github.com/gekko3d/vispipe/rt/occlusion"
	"github.com/olekukonko/tablewriter"
)

// Stats describes one frame for diagnostics.
type Stats struct {
	Frame uint64

	TotalObjects      int
	VisibleObjects    int
	CulledByFrustum   int
	CulledByOcclusion int
	TotalBatches      int
	// InstancingRatio is visible objects per batch.
	InstancingRatio float32
	// CullingEfficiency is the percentage of objects culled by either pass.
	CullingEfficiency float32

	BVHRebuilt      bool
	FrustumDisabled bool

	Occlusion  occlusion.Stats
	LOD        lod.Stats
	Instancing instancing.Stats
	Batching   batch.Stats

	StageTimes map[string]time.Duration
}

func (s *Stats) finish() {
	if s.TotalBatches > 0 {
		s.InstancingRatio = float32(s.VisibleObjects) / float32(s.TotalBatches)
	}
	if s.TotalObjects > 0 {
		culled := s.CulledByFrustum + s.CulledByOcclusion
		s.CullingEfficiency = float32(culled) / float32(s.TotalObjects) * 100
	}
}

// Table renders the headline counters.
func (s Stats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Metric", "Value"})

	rows := [][]string{
		{"frame", fmt.Sprintf("%d", s.Frame)},
		{"total objects", fmt.Sprintf("%d", s.TotalObjects)},
		{"visible objects", fmt.Sprintf("%d", s.VisibleObjects)},
		{"culled by frustum", fmt.Sprintf("%d", s.CulledByFrustum)},
		{"culled by occlusion", fmt.Sprintf("%d", s.CulledByOcclusion)},
		{"batches", fmt.Sprintf("%d", s.TotalBatches)},
		{"instancing ratio", fmt.Sprintf("%.2f", s.InstancingRatio)},
		{"culling efficiency", fmt.Sprintf("%02.1f %%", s.CullingEfficiency)},
		{"queries issued", fmt.Sprintf("%d", s.Occlusion.Tested)},
		{"queries pending", fmt.Sprintf("%d", s.Occlusion.Pending)},
		{"queries bypassed", fmt.Sprintf("%d", s.Occlusion.Bypassed)},
		{"lod transitions", fmt.Sprintf("%d", s.LOD.InTransition)},
		{"bvh rebuilt", fmt.Sprintf("%t", s.BVHRebuilt)},
	}
	for i, n := range s.LOD.Levels {
		rows = append(rows, []string{fmt.Sprintf("lod %d", i), fmt.Sprintf("%d", n)})
	}
	table.AppendBulk(rows)
	table.SetFooter([]string{"target met", fmt.Sprintf("%t", s.Batching.MeetsTarget())})

	table.Render()
	return buf.String()
}
