// Package repfsm detects repetitions from a conditioned joint-angle signal.
//
// Responsibilities: two-state hysteresis with dwell (hold-frame) counts,
// rep buffer ownership, short-rep policy and auxiliary transition gates.
// Key types: Machine, State, Outcome, Rep, Gate.
//
// Dependency rule: repfsm may import pose and profile; it never measures
// angles itself and never scores reps.
package repfsm

import (
	"time"

	"github.com/banshee-data/rep.report/internal/monitoring"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
)

// State is the position of the working joint within a repetition.
type State string

const (
	Extended   State = "extended"   // Rest position, initial state
	Contracted State = "contracted" // Working position, rep buffer open
)

// Transition names a state change a gate may veto.
type Transition int

const (
	ToContracted Transition = iota
	ToExtended
)

func (t Transition) String() string {
	if t == ToExtended {
		return "to_extended"
	}
	return "to_contracted"
}

// Zone classifies an in-range angle against the two thresholds.
type Zone int

const (
	ZoneBetween Zone = iota
	ZoneContracted
	ZoneExtended
)

// Outcome is what a single Step produced.
type Outcome int

const (
	OutcomeNone       Outcome = iota
	OutcomeContracted         // entered Contracted; rep buffer opened
	OutcomeCompleted          // rep counted (possibly flagged TooShort)
	OutcomeDiscarded          // rep closed but too short and dropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContracted:
		return "contracted"
	case OutcomeCompleted:
		return "completed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "none"
	}
}

// Input is one frame of conditioned signal.
type Input struct {
	Frame     int64
	Angle     float64 // smoothed angle
	Valid     bool
	Pose      *pose.Pose
	Side      pose.Side
	Timestamp time.Time // zero when the source supplies none
}

// Rep is a closed rep buffer.
type Rep struct {
	Samples    []float64
	StartFrame int64
	EndFrame   int64
	Start      time.Time // zero when frames carry no timestamps
	End        time.Time
	TooShort   bool
}

// Result reports the effect of one Step.
type Result struct {
	Outcome Outcome
	State   State
	Zone    Zone
	Neutral bool   // frame ignored: invalid or out of range
	Vetoed  string // name of the gate that blocked a ready transition
	Rep     *Rep   // set for OutcomeCompleted and OutcomeDiscarded
}

// Machine is the rep state machine. It is not safe for concurrent use; the
// tracker serialises access.
type Machine struct {
	p     profile.Profile
	gates []Gate

	state State
	count int

	holdRun    int
	holdBuf    []float64
	holdStart  int64
	holdTime   time.Time
	releaseRun int

	buf       []float64
	repStart  int64
	repTime   time.Time
	discarded int
}

// New creates a Machine in the Extended state.
func New(p profile.Profile, gates ...Gate) *Machine {
	return &Machine{
		p:     p,
		gates: gates,
		state: Extended,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Count returns the number of counted reps, including flagged short reps.
func (m *Machine) Count() int { return m.count }

// Discarded returns the number of reps dropped by the short-rep policy.
func (m *Machine) Discarded() int { return m.discarded }

// HoldCount returns the dwell count toward the next transition.
func (m *Machine) HoldCount() int {
	if m.state == Contracted {
		return m.releaseRun
	}
	return m.holdRun
}

// BufferLen returns the number of samples in the open rep buffer.
func (m *Machine) BufferLen() int { return len(m.buf) }

// Classify returns the zone of an angle under the machine's profile.
func (m *Machine) Classify(angle float64) Zone {
	switch {
	case m.p.PastContracted(angle):
		return ZoneContracted
	case m.p.PastExtended(angle):
		return ZoneExtended
	default:
		return ZoneBetween
	}
}

// Step advances the machine by one frame.
func (m *Machine) Step(in Input) Result {
	if !in.Valid || !m.p.InValidRange(in.Angle) {
		return Result{State: m.state, Neutral: true}
	}

	zone := m.Classify(in.Angle)
	ctx := GateContext{Input: in, State: m.state, Zone: zone}
	for _, g := range m.gates {
		g.Observe(ctx)
	}

	res := Result{State: m.state, Zone: zone}
	switch m.state {
	case Extended:
		m.stepExtended(in, zone, &res)
	case Contracted:
		m.stepContracted(in, zone, &res)
	}
	res.State = m.state
	return res
}

func (m *Machine) stepExtended(in Input, zone Zone, res *Result) {
	if zone != ZoneContracted {
		m.clearHold()
		return
	}
	if m.holdRun == 0 {
		m.holdStart = in.Frame
		m.holdTime = in.Timestamp
	}
	m.holdRun++
	m.holdBuf = appendCapped(m.holdBuf, in.Angle, m.p.MaxRepSamples)
	if m.holdRun < m.p.MinHoldFrames {
		return
	}
	if name := m.veto(ToContracted, in, zone); name != "" {
		res.Vetoed = name
		return
	}

	m.state = Contracted
	m.buf = m.holdBuf
	m.holdBuf = nil
	m.repStart = m.holdStart
	m.repTime = m.holdTime
	m.holdRun = 0
	m.releaseRun = 0
	res.Outcome = OutcomeContracted
	monitoring.Debugf("repfsm: contracted at frame %d (angle %.1f)", in.Frame, in.Angle)
}

func (m *Machine) stepContracted(in Input, zone Zone, res *Result) {
	m.buf = appendCapped(m.buf, in.Angle, m.p.MaxRepSamples)
	if zone != ZoneExtended {
		m.releaseRun = 0
		return
	}
	m.releaseRun++
	if m.releaseRun < m.p.ReleaseHoldFrames {
		return
	}
	if name := m.veto(ToExtended, in, zone); name != "" {
		res.Vetoed = name
		return
	}

	rep := &Rep{
		Samples:    m.buf,
		StartFrame: m.repStart,
		EndFrame:   in.Frame,
		Start:      m.repTime,
		End:        in.Timestamp,
	}
	m.buf = nil
	m.releaseRun = 0
	m.state = Extended
	res.Rep = rep

	if len(rep.Samples) >= m.p.MinRepSamples {
		m.count++
		res.Outcome = OutcomeCompleted
		monitoring.Debugf("repfsm: rep %d completed at frame %d (%d samples)", m.count, in.Frame, len(rep.Samples))
		return
	}
	if m.p.ShortRepPolicy == profile.FlagShortReps {
		rep.TooShort = true
		m.count++
		res.Outcome = OutcomeCompleted
		monitoring.Logf("repfsm: rep %d flagged too short (%d samples < %d)", m.count, len(rep.Samples), m.p.MinRepSamples)
		return
	}
	m.discarded++
	res.Outcome = OutcomeDiscarded
	monitoring.Logf("repfsm: discarded short rep at frame %d (%d samples < %d)", in.Frame, len(rep.Samples), m.p.MinRepSamples)
}

// veto returns the name of the first applicable gate that blocks tr.
func (m *Machine) veto(tr Transition, in Input, zone Zone) string {
	ctx := GateContext{Input: in, State: m.state, Zone: zone, Transition: tr}
	for _, g := range m.gates {
		if g.Applies(tr) && !g.Allow(ctx) {
			monitoring.Debugf("repfsm: %s vetoed by %s at frame %d", tr, g.Name(), in.Frame)
			return g.Name()
		}
	}
	return ""
}

func (m *Machine) clearHold() {
	m.holdRun = 0
	m.holdBuf = m.holdBuf[:0]
}

// ResetDwell clears dwell counters and abandons any open rep buffer without
// counting it. The rep count is kept.
func (m *Machine) ResetDwell() {
	m.clearHold()
	m.releaseRun = 0
	m.buf = nil
	m.state = Extended
	for _, g := range m.gates {
		g.Reset()
	}
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.ResetDwell()
	m.count = 0
	m.discarded = 0
}

func appendCapped(buf []float64, v float64, limit int) []float64 {
	buf = append(buf, v)
	if limit > 0 && len(buf) > limit {
		buf = append(buf[:0], buf[len(buf)-limit:]...)
	}
	return buf
}
