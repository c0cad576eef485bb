// Package tracker is the per-session rep tracking pipeline.
//
// Responsibilities: owning every piece of per-session state (conditioner
// window, rep state machine, stability window, score average, feedback
// ring, rep history) and driving one frame at a time through
// angle extraction -> conditioning -> state machine -> (on completion)
// analysis -> scoring -> feedback.
// Key types: Tracker, Frame, Snapshot, CompletedRep, RepListener.
//
// Dependency rule: tracker composes the pipeline packages; nothing in the
// pipeline imports tracker. Persistence and rendering live in adapters
// that consume RepListener events.
package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/rep.report/internal/analysis"
	"github.com/banshee-data/rep.report/internal/feedback"
	"github.com/banshee-data/rep.report/internal/monitoring"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/repfsm"
	"github.com/banshee-data/rep.report/internal/scoring"
	"github.com/banshee-data/rep.report/internal/signal"
	"github.com/banshee-data/rep.report/internal/timeutil"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// instantStabilitySamples is how many recent stability samples feed the
// real-time "keep joint stable" cue.
const instantStabilitySamples = 5

// Frame is one pose-source delivery. A nil Pose means no subject was
// detected in that frame.
type Frame struct {
	Pose      *pose.Pose
	Timestamp time.Time // optional
}

// CompletedRep is the full metric bundle of one counted rep.
type CompletedRep struct {
	SessionID   string                   `json:"session_id"`
	Exercise    string                   `json:"exercise"`
	Side        pose.Side                `json:"side"`
	Number      int                      `json:"number"`
	Trajectory  []float64                `json:"trajectory"`
	ROM         analysis.ROMResult       `json:"rom"`
	Smoothness  float64                  `json:"smoothness"`
	Tempo       analysis.TempoResult     `json:"tempo"`
	Stability   analysis.StabilityResult `json:"stability"`
	FormScore   float64                  `json:"form_score"`
	TooShort    bool                     `json:"too_short"`
	StartFrame  int64                    `json:"start_frame"`
	EndFrame    int64                    `json:"end_frame"`
	CompletedAt time.Time                `json:"completed_at"`
}

// Clone returns a deep copy.
func (r CompletedRep) Clone() CompletedRep {
	r.Trajectory = append([]float64(nil), r.Trajectory...)
	return r
}

// Snapshot is the per-frame readable state.
type Snapshot struct {
	Frame       int64          `json:"frame"`
	Detected    bool           `json:"detected"`
	Raw         float64        `json:"raw"`
	Smoothed    float64        `json:"smoothed"`
	Valid       bool           `json:"valid"`
	Reason      signal.Reason  `json:"reason"`
	State       repfsm.State   `json:"state"`
	RepCount    int            `json:"rep_count"`
	Side        pose.Side      `json:"side"`
	Tags        []feedback.Tag `json:"tags"`
	AverageForm float64        `json:"average_form"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used to stamp reps when frames carry no
// timestamp.
func WithClock(c timeutil.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithListener registers a RepListener. Multiple listeners fan out in
// registration order.
func WithListener(l RepListener) Option {
	return func(t *Tracker) {
		if l != nil {
			t.listeners = append(t.listeners, l)
		}
	}
}

// Tracker runs the pipeline for one exercise session. Process must be
// called with frames in order and at most once per frame; the internal
// lock only makes Reset, SetActiveSide and the readers atomic with respect
// to Process.
type Tracker struct {
	profile   profile.Profile
	clock     timeutil.Clock
	listeners Fanout

	cond      *signal.Conditioner
	fsm       *repfsm.Machine
	analyzer  *analysis.Analyzer
	scorer    *scoring.Scorer
	emitter   *feedback.Emitter
	stability *signal.Ring[float64]

	sessionID   string
	side        pose.Side
	pendingSide *pose.Side
	frame       int64
	last        Snapshot
	history     []CompletedRep
	discarded   int
	flagged     int

	mu sync.Mutex
}

// New creates a Tracker for a resolved profile.
func New(p profile.Profile, opts ...Option) *Tracker {
	t := &Tracker{
		profile:  p,
		clock:    timeutil.RealClock{},
		cond:     signal.NewConditioner(signal.ConfigFromProfile(p)),
		fsm:      repfsm.New(p, repfsm.GatesFromProfile(p)...),
		analyzer: analysis.New(p),
		scorer:   scoring.New(p.Weights),
		emitter:  feedback.NewEmitter(p.FeedbackCapacity),
	}
	if p.Stability != nil {
		t.stability = signal.NewRing[float64](p.Stability.Window)
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resetLocked()
	return t
}

// Profile returns the profile the tracker was built with.
func (t *Tracker) Profile() profile.Profile { return t.profile }

// SessionID returns the identifier stamped on every CompletedRep since the
// last Reset.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Process runs one frame through the pipeline and returns the resulting
// snapshot. Listeners are notified after the tracker lock is released.
func (t *Tracker) Process(f Frame) Snapshot {
	t.mu.Lock()
	snap, rep := t.processLocked(f)
	t.mu.Unlock()

	if rep != nil && len(t.listeners) > 0 {
		t.listeners.RepCompleted(*rep)
	}
	return snap
}

func (t *Tracker) processLocked(f Frame) (Snapshot, *CompletedRep) {
	if t.pendingSide != nil {
		t.side = *t.pendingSide
		t.pendingSide = nil
		t.cond.Reset()
		t.fsm.ResetDwell()
		if t.stability != nil {
			t.stability.Reset()
		}
		monitoring.Logf("tracker: %s switched to %s side", t.profile.Name, t.side)
	}

	frame := t.frame
	t.frame++

	if f.Pose == nil {
		tags := feedback.Evaluate(t.profile, feedback.Input{Detected: false})
		t.emitter.Push(tags...)
		t.last = Snapshot{
			Frame:       frame,
			Smoothed:    t.cond.SmoothedAngle(),
			Reason:      signal.ReasonMissingDetection,
			State:       t.fsm.State(),
			RepCount:    t.fsm.Count(),
			Side:        t.side,
			Tags:        tags,
			AverageForm: t.scorer.Average(),
		}
		return t.copySnapshot(), nil
	}

	sample := t.cond.Process(frame, f.Pose, t.profile.Triples(t.side))

	var instVar float64
	var hasStability bool
	if t.stability != nil {
		if v, ok := pose.Coordinate(f.Pose, t.profile.StabilityParts(t.side), t.profile.Stability.Axis, t.profile.KeypointConfidence); ok {
			t.stability.Add(v)
		}
		if recent := t.stability.Last(instantStabilitySamples); len(recent) >= 2 {
			instVar = stat.PopVariance(recent, nil)
			hasStability = true
		}
	}

	res := t.fsm.Step(repfsm.Input{
		Frame:     frame,
		Angle:     sample.Smoothed,
		Valid:     sample.Valid,
		Pose:      f.Pose,
		Side:      t.side,
		Timestamp: f.Timestamp,
	})

	fb := feedback.Input{
		Detected:          true,
		Valid:             sample.Valid,
		Reason:            sample.Reason,
		Smoothed:          sample.Smoothed,
		StabilityVariance: instVar,
		HasStability:      hasStability,
	}

	var completed *CompletedRep
	switch res.Outcome {
	case repfsm.OutcomeCompleted:
		completed = t.completeRep(res.Rep, f.Timestamp)
		metrics := analysis.Metrics{
			ROM:        completed.ROM,
			Smoothness: completed.Smoothness,
			Tempo:      completed.Tempo,
			Stability:  completed.Stability,
		}
		fb.Rep = &metrics
		fb.TooShort = completed.TooShort
	case repfsm.OutcomeDiscarded:
		t.discarded++
		fb.Discarded = true
	}

	tags := feedback.Evaluate(t.profile, fb)
	t.emitter.Push(tags...)

	t.last = Snapshot{
		Frame:       frame,
		Detected:    true,
		Raw:         sample.Raw,
		Smoothed:    sample.Smoothed,
		Valid:       sample.Valid,
		Reason:      sample.Reason,
		State:       res.State,
		RepCount:    t.fsm.Count(),
		Side:        t.side,
		Tags:        tags,
		AverageForm: t.scorer.Average(),
	}
	monitoring.Debugf("tracker: frame %d raw=%.1f smoothed=%.1f valid=%t reason=%s state=%s",
		frame, sample.Raw, sample.Smoothed, sample.Valid, sample.Reason, res.State)

	if completed != nil {
		c := completed.Clone()
		return t.copySnapshot(), &c
	}
	return t.copySnapshot(), nil
}

func (t *Tracker) completeRep(rep *repfsm.Rep, ts time.Time) *CompletedRep {
	var elapsed time.Duration
	if !rep.Start.IsZero() && rep.End.After(rep.Start) {
		elapsed = rep.End.Sub(rep.Start)
	}
	in := analysis.Input{Samples: rep.Samples, Elapsed: elapsed}
	if t.stability != nil {
		in.Stability = t.stability.Values()
	}
	m := t.analyzer.Analyze(in)
	score := t.scorer.Score(m)
	if rep.TooShort {
		t.flagged++
	} else {
		t.scorer.Record(score)
	}

	completedAt := ts
	if completedAt.IsZero() {
		completedAt = t.clock.Now()
	}

	cr := CompletedRep{
		SessionID:   t.sessionID,
		Exercise:    t.profile.Name,
		Side:        t.side,
		Number:      t.fsm.Count(),
		Trajectory:  append([]float64(nil), rep.Samples...),
		ROM:         m.ROM,
		Smoothness:  m.Smoothness,
		Tempo:       m.Tempo,
		Stability:   m.Stability,
		FormScore:   score,
		TooShort:    rep.TooShort,
		StartFrame:  rep.StartFrame,
		EndFrame:    rep.EndFrame,
		CompletedAt: completedAt,
	}
	t.history = append(t.history, cr)
	monitoring.Logf("tracker: %s rep %d rom=%s (%.0f-%.0f) tempo=%s form=%.1f",
		cr.Exercise, cr.Number, cr.ROM.Label, cr.ROM.Min, cr.ROM.Max, cr.Tempo.Label, cr.FormScore)
	return &cr
}

func (t *Tracker) copySnapshot() Snapshot {
	s := t.last
	s.Tags = append([]feedback.Tag(nil), t.last.Tags...)
	return s
}

// Snapshot returns the state after the most recent frame.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copySnapshot()
}

// Count returns the number of counted reps.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fsm.Count()
}

// History returns copies of every completed rep, oldest first.
func (t *Tracker) History() []CompletedRep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CompletedRep, len(t.history))
	for i, r := range t.history {
		out[i] = r.Clone()
	}
	return out
}

// Tags returns the retained feedback tags, oldest first.
func (t *Tracker) Tags() []feedback.Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.emitter.Tags()
}

// ActiveSide returns the side currently measured. A side requested with
// SetActiveSide takes effect on the next processed frame.
func (t *Tracker) ActiveSide() pose.Side {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.side
}

// SetActiveSide requests a switch of the measured limb. At the start of the
// next frame the conditioner window, dwell counters, stability window and
// any open rep are cleared; the rep count and history are kept. Requesting
// the side already measured is a no-op and cancels any pending switch.
func (t *Tracker) SetActiveSide(side pose.Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if side == t.side {
		t.pendingSide = nil
		return
	}
	t.pendingSide = &side
}

// Reset returns the tracker to the state of a freshly constructed one,
// with a new session ID. Stores keyed by session ID see later reps as a new
// session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.cond.Reset()
	t.fsm.Reset()
	t.scorer.Reset()
	t.emitter.Reset()
	if t.stability != nil {
		t.stability.Reset()
	}
	t.sessionID = uuid.NewString()
	t.side = t.profile.DefaultSide
	t.pendingSide = nil
	t.frame = 0
	t.history = nil
	t.discarded = 0
	t.flagged = 0
	t.last = Snapshot{State: repfsm.Extended, Side: t.side}
}

// Summary aggregates the session so far.
type Summary struct {
	SessionID   string         `json:"session_id"`
	Exercise    string         `json:"exercise"`
	Frames      int64          `json:"frames"`
	Counted     int            `json:"counted"`
	Flagged     int            `json:"flagged"`
	Discarded   int            `json:"discarded"`
	AverageForm float64        `json:"average_form"`
	BestForm    float64        `json:"best_form"`
	Consistency float64        `json:"consistency"` // stddev of scored reps' form
	ROMLabels   map[string]int `json:"rom_labels"`
}

// Summary returns session-level statistics. Flagged short reps count
// toward Counted and ROMLabels but not toward the form statistics.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		SessionID:   t.sessionID,
		Exercise:    t.profile.Name,
		Frames:      t.frame,
		Counted:     t.fsm.Count(),
		Flagged:     t.flagged,
		Discarded:   t.discarded,
		AverageForm: t.scorer.Average(),
		BestForm:    t.scorer.Best(),
		ROMLabels:   make(map[string]int),
	}
	scores := make([]float64, 0, len(t.history))
	for _, r := range t.history {
		s.ROMLabels[r.ROM.Label]++
		if !r.TooShort {
			scores = append(scores, r.FormScore)
		}
	}
	if len(scores) > 1 {
		s.Consistency = math.Sqrt(stat.PopVariance(scores, nil))
	}
	return s
}
