package repfsm

import (
	"fmt"
	"math"

	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
)

// GateContext is what a gate sees for one frame.
type GateContext struct {
	Input
	State      State
	Zone       Zone
	Transition Transition
}

// Gate is an auxiliary condition checked before a transition whose angle
// condition is already met. A gate that cannot measure its condition
// (keypoints occluded, no reference yet) allows the transition.
type Gate interface {
	Name() string
	Applies(tr Transition) bool
	Allow(ctx GateContext) bool
	// Observe is called for every valid in-range frame before transitions
	// are evaluated.
	Observe(ctx GateContext)
	Reset()
}

// GatesFromProfile builds the gates a profile declares.
func GatesFromProfile(p profile.Profile) []Gate {
	gates := make([]Gate, 0, len(p.Gates))
	for i, spec := range p.Gates {
		switch spec.Kind {
		case profile.AlignmentGate:
			gates = append(gates, NewAlignmentGate(fmt.Sprintf("alignment#%d", i), spec, p.KeypointConfidence))
		case profile.DisplacementGate:
			gates = append(gates, NewDisplacementGate(fmt.Sprintf("displacement#%d", i), spec, p.KeypointConfidence))
		}
	}
	return gates
}

func applies(spec profile.GateSpec, tr Transition) bool {
	if tr == ToExtended {
		return spec.OnRelease
	}
	return spec.OnContract
}

// AlignmentGate requires the body line (e.g. nose-shoulder-hip-ankle) to
// score at least MinScore.
type AlignmentGate struct {
	name    string
	spec    profile.GateSpec
	minConf float64

	lastScore float64
}

// NewAlignmentGate creates an AlignmentGate.
func NewAlignmentGate(name string, spec profile.GateSpec, minConfidence float64) *AlignmentGate {
	return &AlignmentGate{name: name, spec: spec, minConf: minConfidence}
}

func (g *AlignmentGate) Name() string               { return g.name }
func (g *AlignmentGate) Applies(tr Transition) bool { return applies(g.spec, tr) }
func (g *AlignmentGate) Observe(GateContext)        {}
func (g *AlignmentGate) Reset()                     { g.lastScore = 0 }

// LastScore returns the score computed by the most recent Allow call.
func (g *AlignmentGate) LastScore() float64 { return g.lastScore }

func (g *AlignmentGate) Allow(ctx GateContext) bool {
	score, ok := pose.AlignmentScore(ctx.Pose, g.spec.PartsFor(ctx.Side), g.minConf)
	if !ok {
		return true
	}
	g.lastScore = score
	return score >= g.spec.MinScore
}

// DisplacementGate requires a supporting keypoint to have moved between
// MinDisplacement and MaxDisplacement pixels from where it sat while the
// joint was last fully extended (e.g. the hip dropping during a lunge).
type DisplacementGate struct {
	name    string
	spec    profile.GateSpec
	minConf float64

	ref    float64
	hasRef bool
}

// NewDisplacementGate creates a DisplacementGate.
func NewDisplacementGate(name string, spec profile.GateSpec, minConfidence float64) *DisplacementGate {
	return &DisplacementGate{name: name, spec: spec, minConf: minConfidence}
}

func (g *DisplacementGate) Name() string               { return g.name }
func (g *DisplacementGate) Applies(tr Transition) bool { return applies(g.spec, tr) }

// Reference returns the current extended-position reference.
func (g *DisplacementGate) Reference() (float64, bool) { return g.ref, g.hasRef }

func (g *DisplacementGate) Observe(ctx GateContext) {
	if ctx.State != Extended || ctx.Zone != ZoneExtended {
		return
	}
	if v, ok := pose.Coordinate(ctx.Pose, g.spec.PartsFor(ctx.Side), g.spec.Axis, g.minConf); ok {
		g.ref = v
		g.hasRef = true
	}
}

func (g *DisplacementGate) Allow(ctx GateContext) bool {
	if !g.hasRef {
		return true
	}
	v, ok := pose.Coordinate(ctx.Pose, g.spec.PartsFor(ctx.Side), g.spec.Axis, g.minConf)
	if !ok {
		return true
	}
	d := math.Abs(v - g.ref)
	if d < g.spec.MinDisplacement {
		return false
	}
	return g.spec.MaxDisplacement <= 0 || d <= g.spec.MaxDisplacement
}

func (g *DisplacementGate) Reset() {
	g.ref = 0
	g.hasRef = false
}
