package lod

import (
	"errors"
	"fmt"
	"math"

	"github.com/gekko3d/vispipe/rt/core"
)

// MinDistance below which an object is treated as touching the camera.
const MinDistance = 1e-3

var (
	ErrNoThresholds         = errors.New("lod: at least one screen coverage threshold is required")
	ErrThresholdNotPositive = errors.New("lod: thresholds must be finite and > 0")
	ErrThresholdOrder       = errors.New("lod: thresholds must be strictly decreasing")
	ErrTransitionZone       = errors.New("lod: transition zone must be within [0, 1]")
	ErrBias                 = errors.New("lod: bias must be finite and > -1")
)

type Config struct {
	// Thresholds are screen coverage values in pixels, highest detail first.
	Thresholds []float32
	// TransitionZone is the fraction of the gap between adjacent thresholds
	// used for cross-fading.
	TransitionZone float32
	// Bias scales coverage by (1 + Bias) before comparison.
	Bias              float32
	SmoothTransitions bool
}

func DefaultConfig() Config {
	return Config{
		Thresholds:        []float32{800, 400, 200, 100},
		TransitionZone:    0.2,
		Bias:              0,
		SmoothTransitions: true,
	}
}

func (c Config) Validate() error {
	if len(c.Thresholds) == 0 {
		return ErrNoThresholds
	}
	for i, t := range c.Thresholds {
		if !(t > 0) || math.IsInf(float64(t), 0) {
			return fmt.Errorf("%w (threshold %d is %v)", ErrThresholdNotPositive, i, t)
		}
		if i > 0 && !(t < c.Thresholds[i-1]) {
			return fmt.Errorf("%w (threshold %d is %v, previous %v)", ErrThresholdOrder, i, t, c.Thresholds[i-1])
		}
	}
	if !(c.TransitionZone >= 0 && c.TransitionZone <= 1) {
		return ErrTransitionZone
	}
	if !(c.Bias > -1) || math.IsInf(float64(c.Bias), 0) {
		return ErrBias
	}
	return nil
}

// Levels is the number of selectable levels, one more than the thresholds.
func (c Config) Levels() int {
	return len(c.Thresholds) + 1
}

// Selection is the outcome of a single LOD decision.
type Selection struct {
	Level int
	// Blend is 1 when fully at Level and falls to 0 at the threshold below
	// which the next level takes over.
	Blend    float32
	Coverage float32
	Distance float32
}

// Selector chooses levels from projected screen coverage and keeps a State
// for every object seen since it entered the input.
type Selector struct {
	cfg    Config
	states map[core.ObjectID]*State
	frame  uint64
}

func NewSelector(cfg Config) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Thresholds = append([]float32(nil), cfg.Thresholds...)
	return &Selector{
		cfg:    cfg,
		states: make(map[core.ObjectID]*State),
	}, nil
}

func (s *Selector) Config() Config {
	return s.cfg
}

// Coverage projects the bounding sphere of world-space bounds to an
// on-screen diameter in pixels.
func Coverage(bounds core.AABB, cam core.Camera) (coverage, distance float32) {
	distance = bounds.Center().Sub(cam.Position).Len()
	if !(distance > MinDistance) {
		return float32(math.Max(float64(cam.ViewportWidth), float64(cam.ViewportHeight))), distance
	}
	radius := bounds.Radius()
	return radius / distance * cam.ViewportHeight * cam.Focal(), distance
}

// SelectLevel returns the index of the first threshold met by the biased
// coverage, or len(thresholds) below the last one. Ties go to the higher
// detail level.
func (s *Selector) SelectLevel(coverage float32) int {
	biased := coverage * (1 + s.cfg.Bias)
	for i, t := range s.cfg.Thresholds {
		if biased >= t {
			return i
		}
	}
	return len(s.cfg.Thresholds)
}

// Blend returns the cross-fade progress for coverage at level. The zone
// starts at the level's own threshold and spans TransitionZone of the gap to
// the next higher threshold, so progress runs 0 -> 1 as coverage grows.
func (s *Selector) Blend(coverage float32, level int) float32 {
	th := s.cfg.Thresholds
	if !s.cfg.SmoothTransitions || level < 0 || level >= len(th) {
		return 1
	}

	var gap float32
	switch {
	case level > 0:
		gap = th[level-1] - th[level]
	case len(th) > 1:
		gap = th[0] - th[1]
	default:
		gap = th[0]
	}
	width := gap * s.cfg.TransitionZone
	if !(width > 0) {
		return 1
	}

	biased := coverage * (1 + s.cfg.Bias)
	progress := (biased - th[level]) / width
	switch {
	case progress < 0:
		return 0
	case progress >= 1:
		return 1
	}
	return progress
}

// Select picks the level for world-space bounds. Degenerate input resolves to
// the highest detail level.
func (s *Selector) Select(bounds core.AABB, cam core.Camera) Selection {
	if !(cam.ViewportHeight > 0) || !bounds.Valid() {
		return Selection{Level: 0, Blend: 1}
	}
	coverage, distance := Coverage(bounds, cam)
	if !(distance > MinDistance) {
		return Selection{Level: 0, Blend: 1, Coverage: coverage, Distance: distance}
	}
	level := s.SelectLevel(coverage)
	return Selection{
		Level:    level,
		Blend:    s.Blend(coverage, level),
		Coverage: coverage,
		Distance: distance,
	}
}
