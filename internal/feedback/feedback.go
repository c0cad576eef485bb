// Package feedback maps the pipeline's instantaneous state and the latest
// rep metrics to short qualitative tags, and keeps a bounded list of the
// most recent ones for display or audio coaching.
package feedback

import (
	"github.com/banshee-data/rep.report/internal/analysis"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/signal"
)

// Tag is a short machine-readable coaching cue.
type Tag string

const (
	NoPersonDetected Tag = "no_person_detected"
	LowConfidence    Tag = "low_confidence"
	AdjustPosition   Tag = "adjust_position"
	EaseUp           Tag = "ease_up"
	KeepJointStable  Tag = "keep_joint_stable"
	IncreaseRange    Tag = "increase_range_of_motion"
	TooJerky         Tag = "too_jerky"
	SlowDown         Tag = "slow_down"
	SpeedUp          Tag = "speed_up"
	ControlTempo     Tag = "control_tempo"
	RepTooShort      Tag = "rep_too_short"
	GoodRep          Tag = "good_rep"
)

// Input is everything Evaluate looks at for one frame.
type Input struct {
	Detected bool
	Valid    bool
	Reason   signal.Reason
	Smoothed float64

	// Variance of the most recent stability samples; only meaningful when
	// HasStability is set.
	StabilityVariance float64
	HasStability      bool

	// Set only on the frame a rep closes.
	Rep       *analysis.Metrics
	TooShort  bool
	Discarded bool
}

// Evaluate returns the tags for one frame. It holds no state.
func Evaluate(p profile.Profile, in Input) []Tag {
	if !in.Detected || in.Reason == signal.ReasonMissingDetection {
		return []Tag{NoPersonDetected}
	}

	var tags []Tag
	if !in.Valid {
		switch in.Reason {
		case signal.ReasonInsufficientConfidence:
			tags = append(tags, LowConfidence)
		case signal.ReasonDegenerateGeometry, signal.ReasonOutOfRange:
			tags = append(tags, AdjustPosition)
		}
	} else if p.Overcontracted(in.Smoothed) {
		tags = append(tags, EaseUp)
	}

	if in.HasStability && p.Stability != nil && in.StabilityVariance > p.Stability.VarianceThreshold {
		tags = append(tags, KeepJointStable)
	}

	if in.Discarded {
		tags = append(tags, RepTooShort)
	}
	if in.Rep != nil {
		tags = append(tags, repTags(p, *in.Rep, in.TooShort)...)
	}
	return tags
}

func repTags(p profile.Profile, m analysis.Metrics, tooShort bool) []Tag {
	var tags []Tag
	if tooShort {
		tags = append(tags, RepTooShort)
	}
	if !goodROM(p, m.ROM.Label) {
		tags = append(tags, IncreaseRange)
	}
	if m.Smoothness < p.SmoothnessWarn {
		tags = append(tags, TooJerky)
	}
	switch m.Tempo.Label {
	case analysis.TempoTooFast:
		tags = append(tags, SlowDown)
	case analysis.TempoTooSlow:
		tags = append(tags, SpeedUp)
	case analysis.TempoIrregular:
		tags = append(tags, ControlTempo)
	}
	if len(tags) == 0 {
		tags = append(tags, GoodRep)
	}
	return tags
}

// goodROM reports whether label is one of the profile's top two bands.
func goodROM(p profile.Profile, label string) bool {
	for i, b := range p.ROMBands {
		if i > 1 {
			break
		}
		if b.Label == label {
			return true
		}
	}
	return false
}

// Emitter retains the most recent tags in a fixed-size ring.
type Emitter struct {
	ring *signal.Ring[Tag]
}

// NewEmitter creates an Emitter holding at most capacity tags.
func NewEmitter(capacity int) *Emitter {
	return &Emitter{ring: signal.NewRing[Tag](capacity)}
}

// Push appends tags in order, skipping any tag equal to the newest one.
func (e *Emitter) Push(tags ...Tag) {
	for _, t := range tags {
		if newest, ok := e.ring.Newest(); ok && newest == t {
			continue
		}
		e.ring.Add(t)
	}
}

// Tags returns the retained tags, oldest first.
func (e *Emitter) Tags() []Tag { return e.ring.Values() }

// Len returns the number of retained tags.
func (e *Emitter) Len() int { return e.ring.Len() }

// Reset drops all retained tags.
func (e *Emitter) Reset() { e.ring.Reset() }
