// Package profile resolves an on-disk exercise profile into the immutable,
// typed parameter set every pipeline stage reads.
//
// Responsibilities: body-part name resolution, direction-aware threshold
// predicates, and default filling (via config.ProfileConfig Get* methods).
// Key types: Profile, Direction, ROMBand, StabilitySpec, GateSpec.
//
// Dependency rule: profile may import pose and config; it must not import
// any pipeline stage.
package profile

import (
	"fmt"
	"time"

	"github.com/banshee-data/rep.report/internal/config"
	"github.com/banshee-data/rep.report/internal/pose"
)

// Direction states which way the tracked angle moves when the exercise
// contracts.
type Direction int

const (
	// Flexion contracts by closing the joint (curl, squat, push-up).
	Flexion Direction = iota
	// Extension contracts by opening the joint (overhead press lockout).
	Extension
)

func (d Direction) String() string {
	if d == Extension {
		return config.DirectionExtension
	}
	return config.DirectionFlexion
}

// ShortRepPolicy decides what happens to a rep whose buffer is shorter than
// MinRepSamples.
type ShortRepPolicy int

const (
	// DiscardShortReps drops the rep without counting it.
	DiscardShortReps ShortRepPolicy = iota
	// FlagShortReps counts the rep and marks it TooShort.
	FlagShortReps
)

func (p ShortRepPolicy) String() string {
	if p == FlagShortReps {
		return config.ShortRepFlag
	}
	return config.ShortRepDiscard
}

// ROMBand is one range-of-motion quality band.
type ROMBand struct {
	Label string
	Min   float64
	Max   float64
}

// StabilitySpec selects the supporting-joint coordinate whose variance is
// scored.
type StabilitySpec struct {
	Parts             map[pose.Side][]pose.BodyPart
	Axis              pose.Axis
	Window            int
	Scale             float64
	VarianceThreshold float64
}

// GateKind identifies an auxiliary transition gate.
type GateKind int

const (
	AlignmentGate GateKind = iota
	DisplacementGate
)

func (k GateKind) String() string {
	if k == DisplacementGate {
		return config.GateDisplacement
	}
	return config.GateAlignment
}

// GateSpec is a resolved auxiliary gate declaration.
type GateSpec struct {
	Kind       GateKind
	OnContract bool
	OnRelease  bool
	Parts      map[pose.Side][]pose.BodyPart
	Axis       pose.Axis

	MinScore        float64 // alignment
	MinDisplacement float64 // displacement, pixels
	MaxDisplacement float64 // displacement, pixels; 0 means unbounded
}

// TempoSpec is the acceptable rep duration band.
type TempoSpec struct {
	Min          time.Duration
	Max          time.Duration
	AssumedFPS   float64
	MaxReversals int
}

// Weights are the normalised form-score weights.
type Weights struct {
	ROM        float64
	Smoothness float64
	Tempo      float64
	Stability  float64
}

// Profile is the resolved exercise definition. A Profile is a value; the
// slices and maps it holds are built fresh by New and must be treated as
// read-only.
type Profile struct {
	Name        string
	Description string

	Joints       map[pose.Side]pose.JointTriple
	DefaultSide  pose.Side
	AverageSides bool

	Direction           Direction
	ContractedThreshold float64
	ExtendedThreshold   float64
	MinValidAngle       float64
	MaxValidAngle       float64

	ROMBands []ROMBand
	IdealROM float64

	MinHoldFrames     int
	ReleaseHoldFrames int
	MinRepSamples     int
	MaxRepSamples     int
	ShortRepPolicy    ShortRepPolicy

	Tempo TempoSpec

	KeypointConfidence    float64
	MinConfidentKeypoints int
	SmoothingWindow       int
	OutlierThreshold      float64
	OutlierResetFrames    int

	SmoothnessK    float64
	SmoothnessWarn float64

	Stability *StabilitySpec
	Weights   Weights
	Gates     []GateSpec

	FeedbackCapacity  int
	OvercontractAngle float64
	HasOvercontract   bool
}

// New validates cfg and resolves it into a Profile. The returned error wraps
// config.ErrIncompleteProfile or config.ErrInvalidProfile.
func New(cfg *config.ProfileConfig) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("%w: nil profile", config.ErrIncompleteProfile)
	}
	if err := cfg.Validate(); err != nil {
		return Profile{}, err
	}

	p := Profile{
		Name:                  cfg.GetName(),
		AverageSides:          cfg.GetAverageSides(),
		ContractedThreshold:   *cfg.ContractedThreshold,
		ExtendedThreshold:     *cfg.ExtendedThreshold,
		MinValidAngle:         *cfg.MinValidAngle,
		MaxValidAngle:         *cfg.MaxValidAngle,
		IdealROM:              *cfg.IdealROMDegrees,
		MinHoldFrames:         cfg.GetMinHoldFrames(),
		ReleaseHoldFrames:     cfg.GetReleaseHoldFrames(),
		MinRepSamples:         cfg.GetMinRepSamples(),
		MaxRepSamples:         cfg.GetMaxRepSamples(),
		KeypointConfidence:    cfg.GetKeypointConfidence(),
		MinConfidentKeypoints: cfg.GetMinConfidentKeypoints(),
		SmoothingWindow:       cfg.GetSmoothingWindow(),
		OutlierThreshold:      cfg.GetOutlierThresholdDeg(),
		OutlierResetFrames:    cfg.GetOutlierResetFrames(),
		SmoothnessK:           cfg.GetSmoothnessK(),
		SmoothnessWarn:        cfg.GetSmoothnessWarn(),
		FeedbackCapacity:      cfg.GetFeedbackCapacity(),
		Tempo: TempoSpec{
			Min:          secondsToDuration(*cfg.TempoMinSeconds),
			Max:          secondsToDuration(*cfg.TempoMaxSeconds),
			AssumedFPS:   cfg.GetAssumedFPS(),
			MaxReversals: cfg.GetMaxTempoReversals(),
		},
	}
	if cfg.Description != nil {
		p.Description = *cfg.Description
	}
	if cfg.GetDirection() == config.DirectionExtension {
		p.Direction = Extension
	}
	if cfg.GetShortRepPolicy() == config.ShortRepFlag {
		p.ShortRepPolicy = FlagShortReps
	}
	p.OvercontractAngle, p.HasOvercontract = cfg.GetOvercontractAngle()

	side, err := pose.ParseSide(cfg.GetDefaultSide())
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", config.ErrInvalidProfile, err)
	}
	p.DefaultSide = side

	p.Joints = make(map[pose.Side]pose.JointTriple, len(cfg.Joints))
	for name, jc := range cfg.Joints {
		s, err := pose.ParseSide(name)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: %v", config.ErrInvalidProfile, err)
		}
		triple, err := resolveTriple(jc)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: joints.%s: %v", config.ErrInvalidProfile, name, err)
		}
		p.Joints[s] = triple
	}

	p.ROMBands = make([]ROMBand, len(cfg.ROMBands))
	for i, b := range cfg.ROMBands {
		p.ROMBands[i] = ROMBand{Label: b.Label, Min: b.Min, Max: b.Max}
	}

	if cfg.Stability != nil {
		parts, err := resolveSides(cfg.Stability.Left, cfg.Stability.Right)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: stability: %v", config.ErrInvalidProfile, err)
		}
		axis, err := pose.ParseAxis(cfg.Stability.Axis)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: stability: %v", config.ErrInvalidProfile, err)
		}
		p.Stability = &StabilitySpec{
			Parts:             parts,
			Axis:              axis,
			Window:            cfg.GetStabilityWindow(),
			Scale:             cfg.GetStabilityScale(),
			VarianceThreshold: cfg.GetStabilityVarianceThreshold(),
		}
	}

	for i, g := range cfg.Gates {
		spec, err := resolveGate(g)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: gates[%d]: %v", config.ErrInvalidProfile, i, err)
		}
		p.Gates = append(p.Gates, spec)
	}

	p.Weights = normaliseWeights(cfg.GetWeights(), p.Stability != nil)
	return p, nil
}

// MustNew is New for tests and built-in profiles. Panics on error.
func MustNew(cfg *config.ProfileConfig) Profile {
	p, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// Builtin resolves one of the embedded exercise profiles.
func Builtin(name string) (Profile, error) {
	cfg, err := config.BuiltinProfile(name)
	if err != nil {
		return Profile{}, err
	}
	return New(cfg)
}

// Joint returns the joint triple for a side. When the profile only defines
// one side, that side's triple is returned for either request.
func (p Profile) Joint(side pose.Side) (pose.JointTriple, bool) {
	if t, ok := p.Joints[side]; ok {
		return t, true
	}
	t, ok := p.Joints[side.Opposite()]
	return t, ok
}

// Triples returns the joint triples to measure for a side: both sides when
// AverageSides is set, otherwise just the requested one.
func (p Profile) Triples(side pose.Side) []pose.JointTriple {
	if p.AverageSides && len(p.Joints) > 1 {
		return []pose.JointTriple{p.Joints[side], p.Joints[side.Opposite()]}
	}
	if t, ok := p.Joint(side); ok {
		return []pose.JointTriple{t}
	}
	return nil
}

// InValidRange reports whether angle lies in [MinValidAngle, MaxValidAngle].
func (p Profile) InValidRange(angle float64) bool {
	return angle >= p.MinValidAngle && angle <= p.MaxValidAngle
}

// PastContracted reports whether angle is beyond the contracted threshold in
// the working direction.
func (p Profile) PastContracted(angle float64) bool {
	if p.Direction == Extension {
		return angle > p.ContractedThreshold
	}
	return angle < p.ContractedThreshold
}

// PastExtended reports whether angle is beyond the extended threshold in the
// working direction.
func (p Profile) PastExtended(angle float64) bool {
	if p.Direction == Extension {
		return angle < p.ExtendedThreshold
	}
	return angle > p.ExtendedThreshold
}

// Overcontracted reports whether angle has gone past the over-contraction
// warning angle.
func (p Profile) Overcontracted(angle float64) bool {
	if !p.HasOvercontract {
		return false
	}
	if p.Direction == Extension {
		return angle > p.OvercontractAngle
	}
	return angle < p.OvercontractAngle
}

// StabilityParts returns the stability keypoints for a side, or nil when
// the profile does not track stability.
func (p Profile) StabilityParts(side pose.Side) []pose.BodyPart {
	if p.Stability == nil {
		return nil
	}
	if parts := p.Stability.Parts[side]; len(parts) > 0 {
		return parts
	}
	return p.Stability.Parts[side.Opposite()]
}

// PartsFor returns the gate keypoints for a side, falling back to the other
// side when only one is declared.
func (g GateSpec) PartsFor(side pose.Side) []pose.BodyPart {
	if parts := g.Parts[side]; len(parts) > 0 {
		return parts
	}
	return g.Parts[side.Opposite()]
}

func resolveTriple(jc config.JointConfig) (pose.JointTriple, error) {
	var t pose.JointTriple
	var err error
	if t.Proximal, err = pose.ParseBodyPart(jc.Proximal); err != nil {
		return t, err
	}
	if t.Vertex, err = pose.ParseBodyPart(jc.Vertex); err != nil {
		return t, err
	}
	if t.Distal, err = pose.ParseBodyPart(jc.Distal); err != nil {
		return t, err
	}
	if t.Proximal == t.Vertex || t.Distal == t.Vertex {
		return t, fmt.Errorf("vertex %s repeated in %s", t.Vertex, t)
	}
	return t, nil
}

func resolveParts(names []string) ([]pose.BodyPart, error) {
	parts := make([]pose.BodyPart, 0, len(names))
	for _, n := range names {
		b, err := pose.ParseBodyPart(n)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}
	return parts, nil
}

func resolveSides(left, right []string) (map[pose.Side][]pose.BodyPart, error) {
	out := make(map[pose.Side][]pose.BodyPart, 2)
	if len(left) > 0 {
		parts, err := resolveParts(left)
		if err != nil {
			return nil, err
		}
		out[pose.SideLeft] = parts
	}
	if len(right) > 0 {
		parts, err := resolveParts(right)
		if err != nil {
			return nil, err
		}
		out[pose.SideRight] = parts
	}
	return out, nil
}

func resolveGate(g config.GateConfig) (GateSpec, error) {
	parts, err := resolveSides(g.Left, g.Right)
	if err != nil {
		return GateSpec{}, err
	}
	spec := GateSpec{Parts: parts}
	switch g.On {
	case config.GateOnRelease:
		spec.OnRelease = true
	case config.GateOnBoth:
		spec.OnContract, spec.OnRelease = true, true
	default:
		spec.OnContract = true
	}

	switch g.Type {
	case config.GateAlignment:
		spec.Kind = AlignmentGate
		spec.MinScore = 50
		if g.MinScore != nil {
			spec.MinScore = *g.MinScore
		}
	case config.GateDisplacement:
		spec.Kind = DisplacementGate
		if spec.Axis, err = pose.ParseAxis(g.Axis); err != nil {
			return GateSpec{}, err
		}
		if g.MinDisplacement != nil {
			spec.MinDisplacement = *g.MinDisplacement
		}
		if g.MaxDisplacement != nil {
			spec.MaxDisplacement = *g.MaxDisplacement
		}
	default:
		return GateSpec{}, fmt.Errorf("unknown gate type %q", g.Type)
	}
	return spec, nil
}

// normaliseWeights scales the weights to sum to one. Stability is zeroed
// when the profile tracks no stability coordinate.
func normaliseWeights(w config.Weights, hasStability bool) Weights {
	out := Weights{ROM: w.ROM, Smoothness: w.Smoothness, Tempo: w.Tempo, Stability: w.Stability}
	if !hasStability {
		out.Stability = 0
	}
	sum := out.ROM + out.Smoothness + out.Tempo + out.Stability
	if sum <= 0 {
		return Weights{ROM: 1.0 / 3, Smoothness: 1.0 / 3, Tempo: 1.0 / 3}
	}
	out.ROM /= sum
	out.Smoothness /= sum
	out.Tempo /= sum
	out.Stability /= sum
	return out
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
