package repfsm

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/rep.report/internal/config"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/signal"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func curlProfile(t testing.TB, mutate func(*config.ProfileConfig)) profile.Profile {
	t.Helper()
	cfg := config.MustBuiltinProfile("bicep_curl")
	if mutate != nil {
		mutate(cfg)
	}
	p, err := profile.New(cfg)
	require.NoError(t, err)
	return p
}

func feed(m *Machine, angles []float64) []Result {
	out := make([]Result, len(angles))
	for i, a := range angles {
		out[i] = m.Step(Input{Frame: int64(i), Angle: a, Valid: true})
	}
	return out
}

func completed(results []Result) []*Rep {
	var reps []*Rep
	for _, r := range results {
		if r.Outcome == OutcomeCompleted {
			reps = append(reps, r.Rep)
		}
	}
	return reps
}

var curlScenario = []float64{170, 170, 168, 140, 100, 60, 45, 45, 45, 60, 100, 140, 168, 170}

func TestMachine_CurlScenario(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	results := feed(m, curlScenario)

	reps := completed(results)
	require.Len(t, reps, 1)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, Extended, m.State())

	want := []float64{45, 45, 45, 60, 100, 140, 168, 170}
	if diff := cmp.Diff(want, reps[0].Samples); diff != "" {
		t.Errorf("rep samples mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(6), reps[0].StartFrame)
	assert.Equal(t, int64(13), reps[0].EndFrame)
	assert.False(t, reps[0].TooShort)

	assert.Equal(t, OutcomeContracted, results[8].Outcome)
	assert.Equal(t, Contracted, results[8].State)
	assert.Equal(t, OutcomeCompleted, results[13].Outcome)
}

func TestMachine_ConstantAngleNoReps(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	angles := make([]float64, 50)
	for i := range angles {
		angles[i] = 120
	}
	for _, r := range feed(m, angles) {
		assert.Equal(t, OutcomeNone, r.Outcome)
		assert.Equal(t, ZoneBetween, r.Zone)
	}
	assert.Zero(t, m.Count())
	assert.Equal(t, Extended, m.State())
}

func TestMachine_DwellShorterThanHold(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	feed(m, []float64{170, 170, 45, 45, 100, 170, 45, 45, 170, 170})
	assert.Zero(t, m.Count())
	assert.Equal(t, Extended, m.State())
	assert.Zero(t, m.HoldCount())
}

func TestMachine_NeutralFramesKeepDwell(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	steps := []Input{
		{Angle: 45, Valid: true},
		{Angle: 0, Valid: false},
		{Angle: 45, Valid: true},
		{Angle: 20, Valid: true}, // below min_valid_angle
		{Angle: 45, Valid: true},
	}
	var last Result
	for i, in := range steps {
		in.Frame = int64(i)
		last = m.Step(in)
		if i == 1 || i == 3 {
			assert.True(t, last.Neutral, "frame %d", i)
			assert.Equal(t, 0, int(last.Outcome))
		}
	}
	assert.Equal(t, OutcomeContracted, last.Outcome)
	assert.Equal(t, Contracted, m.State())
	assert.Equal(t, 3, m.BufferLen())
}

// expectedRepLens derives each rep's buffer length from the raw signal: from
// the first sample past the contracted threshold to the first later sample
// past the extended threshold, plus the remaining release hold frames.
// Smoothing delays both crossings by the same lag, so the conditioned buffer
// should land within one window of this.
func expectedRepLens(p profile.Profile, angles []float64) []int {
	var lens []int
	start := -1
	for i, a := range angles {
		switch {
		case start < 0 && p.PastContracted(a):
			start = i
		case start >= 0 && p.PastExtended(a):
			lens = append(lens, i-start+p.ReleaseHoldFrames)
			start = -1
		}
	}
	return lens
}

func TestMachine_CleanOscillation(t *testing.T) {
	t.Parallel()

	const (
		cycles = 4
		window = 5
	)
	p := curlProfile(t, nil)
	require.Equal(t, window, p.SmoothingWindow)

	tests := []struct {
		period int
		want   int // expected buffer length
	}{
		{period: 60, want: 34},
		{period: 120, want: 66},
		{period: 240, want: 131},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("period %d", tt.period), func(t *testing.T) {
			t.Parallel()

			// Triangle wave 170 -> 30 -> 170, then rest at the top.
			var angles []float64
			for i := 0; i <= cycles*tt.period; i++ {
				phase := float64(i%tt.period) / float64(tt.period)
				angles = append(angles, 30+140*math.Abs(2*phase-1))
			}
			for i := 0; i < 10; i++ {
				angles = append(angles, 170)
			}

			expected := expectedRepLens(p, angles)
			require.Len(t, expected, cycles)
			for _, n := range expected {
				assert.Equal(t, tt.want, n)
			}

			cond := signal.NewConditioner(signal.ConfigFromProfile(p))
			m := New(p)
			var reps []*Rep
			for i, a := range angles {
				s := cond.Push(int64(i), a)
				require.True(t, s.Valid, "frame %d rejected as %s", i, s.Reason)
				r := m.Step(Input{Frame: s.Frame, Angle: s.Smoothed, Valid: s.Valid})
				if r.Outcome == OutcomeCompleted {
					reps = append(reps, r.Rep)
				}
			}

			require.Len(t, reps, cycles)
			assert.Equal(t, cycles, m.Count())
			for i, rep := range reps {
				assert.InDelta(t, expected[i], len(rep.Samples), window, "rep %d buffer length", i+1)
			}
		})
	}
}

func TestMachine_SingleSpikeNoTransition(t *testing.T) {
	t.Parallel()

	p := curlProfile(t, nil)
	angles := []float64{170, 170, 170, 170, 170, 40, 170, 170, 170, 170}

	// Through the conditioner the spike is rejected outright.
	cond := signal.NewConditioner(signal.ConfigFromProfile(p))
	m := New(p)
	for i, a := range angles {
		s := cond.Push(int64(i), a)
		r := m.Step(Input{Frame: s.Frame, Angle: s.Smoothed, Valid: s.Valid})
		assert.Equal(t, OutcomeNone, r.Outcome)
	}
	assert.Equal(t, Extended, m.State())

	// Without conditioning, one frame is still shorter than the hold.
	m = New(p)
	for _, r := range feed(m, angles) {
		assert.Equal(t, OutcomeNone, r.Outcome)
	}
	assert.Equal(t, Extended, m.State())
}

func TestMachine_ShortRepPolicy(t *testing.T) {
	t.Parallel()

	discard := New(curlProfile(t, func(c *config.ProfileConfig) {
		c.MinRepSamples = ptr(10)
	}))
	results := feed(discard, curlScenario)
	assert.Equal(t, OutcomeDiscarded, results[len(results)-1].Outcome)
	require.NotNil(t, results[len(results)-1].Rep)
	assert.Zero(t, discard.Count())
	assert.Equal(t, 1, discard.Discarded())
	assert.Equal(t, Extended, discard.State())

	flag := New(curlProfile(t, func(c *config.ProfileConfig) {
		c.MinRepSamples = ptr(10)
		c.ShortRepPolicy = ptr(config.ShortRepFlag)
	}))
	reps := completed(feed(flag, curlScenario))
	require.Len(t, reps, 1)
	assert.True(t, reps[0].TooShort)
	assert.Equal(t, 1, flag.Count())
	assert.Zero(t, flag.Discarded())
}

func TestMachine_ExtensionDirection(t *testing.T) {
	t.Parallel()

	press, err := profile.Builtin("shoulder_press")
	require.NoError(t, err)

	m := New(press)
	reps := completed(feed(m, []float64{80, 80, 120, 165, 170, 172, 170, 140, 100, 85, 80, 80}))
	require.Len(t, reps, 1)
	assert.Equal(t, []float64{165, 170, 172, 170, 140, 100, 85, 80}, reps[0].Samples)
}

func TestMachine_MaxRepSamples(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, func(c *config.ProfileConfig) {
		c.MaxRepSamples = ptr(6)
	}))
	angles := []float64{45, 45, 45, 40, 41, 42, 43, 44, 100, 170, 170}
	reps := completed(feed(m, angles))
	require.Len(t, reps, 1)
	assert.Equal(t, []float64{42, 43, 44, 100, 170, 170}, reps[0].Samples)
	assert.Len(t, reps[0].Samples, 6)
}

func TestMachine_Timestamps(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var rep *Rep
	for i, a := range curlScenario {
		r := m.Step(Input{Frame: int64(i), Angle: a, Valid: true, Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)})
		if r.Rep != nil {
			rep = r.Rep
		}
	}
	require.NotNil(t, rep)
	assert.Equal(t, 700*time.Millisecond, rep.End.Sub(rep.Start))
}

type fakeGate struct {
	vetoes   int
	calls    int
	observed int
	resets   int
}

func (g *fakeGate) Name() string               { return "fake" }
func (g *fakeGate) Applies(tr Transition) bool { return tr == ToContracted }
func (g *fakeGate) Observe(GateContext)        { g.observed++ }
func (g *fakeGate) Reset()                     { g.resets++ }

func (g *fakeGate) Allow(GateContext) bool {
	g.calls++
	return g.calls > g.vetoes
}

func TestMachine_GateVetoKeepsDwell(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{vetoes: 2}
	m := New(curlProfile(t, nil), gate)
	results := feed(m, []float64{170, 45, 45, 45, 45, 45})

	assert.Equal(t, "fake", results[3].Vetoed)
	assert.Equal(t, Extended, results[3].State)
	assert.Equal(t, "fake", results[4].Vetoed)
	assert.Equal(t, OutcomeContracted, results[5].Outcome)
	assert.Empty(t, results[5].Vetoed)
	assert.Equal(t, 6, gate.observed)
	assert.Equal(t, 5, m.BufferLen(), "vetoed hold frames seed the rep buffer")

	// Release is not gated.
	reps := completed(feed(m, []float64{100, 170, 170}))
	assert.Len(t, reps, 1)
}

func TestMachine_ResetEqualsFresh(t *testing.T) {
	t.Parallel()

	p := curlProfile(t, nil)
	sequence := append(append([]float64{}, curlScenario...), 45, 45, 45, 100)

	fresh := New(p)
	want := feed(fresh, sequence)

	used := New(p)
	feed(used, append(sequence, curlScenario...))
	used.Reset()
	assert.Zero(t, used.Count())
	assert.Equal(t, Extended, used.State())
	assert.Zero(t, used.BufferLen())

	got := feed(used, sequence)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results after Reset differ from fresh machine (-fresh +reset):\n%s", diff)
	}
}

func TestMachine_ResetDwellKeepsCount(t *testing.T) {
	t.Parallel()

	m := New(curlProfile(t, nil))
	feed(m, curlScenario)
	feed(m, []float64{45, 45, 45, 60})
	require.Equal(t, Contracted, m.State())

	m.ResetDwell()
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, Extended, m.State())
	assert.Zero(t, m.BufferLen())
	assert.Zero(t, m.HoldCount())
}

func TestAlignmentGate(t *testing.T) {
	t.Parallel()

	push, err := profile.Builtin("pushup")
	require.NoError(t, err)
	gates := GatesFromProfile(push)
	require.Len(t, gates, 1)
	g := gates[0].(*AlignmentGate)
	assert.True(t, g.Applies(ToContracted))
	assert.False(t, g.Applies(ToExtended))

	plank := func(hipSag float64) *pose.Pose {
		var p pose.Pose
		p[pose.Nose] = pose.Keypoint{X: 0, Y: 300, Confidence: 0.9}
		p[pose.LeftShoulder] = pose.Keypoint{X: 100, Y: 300, Confidence: 0.9}
		p[pose.LeftHip] = pose.Keypoint{X: 250, Y: 300 + hipSag, Confidence: 0.9}
		p[pose.LeftAnkle] = pose.Keypoint{X: 450, Y: 300, Confidence: 0.9}
		return &p
	}

	ctx := GateContext{Input: Input{Pose: plank(0), Side: pose.SideLeft}, Transition: ToContracted}
	assert.True(t, g.Allow(ctx))
	assert.InDelta(t, 100, g.LastScore(), 1e-6)

	ctx.Pose = plank(150)
	assert.False(t, g.Allow(ctx))

	// Occluded body line cannot veto.
	ctx.Pose = &pose.Pose{}
	assert.True(t, g.Allow(ctx))
}

func TestDisplacementGate(t *testing.T) {
	t.Parallel()

	lunge, err := profile.Builtin("lunge")
	require.NoError(t, err)
	gates := GatesFromProfile(lunge)
	require.Len(t, gates, 1)
	g := gates[0].(*DisplacementGate)

	hipAt := func(y float64) *pose.Pose {
		var p pose.Pose
		p[pose.RightHip] = pose.Keypoint{X: 200, Y: y, Confidence: 0.9}
		return &p
	}
	in := func(y float64) Input { return Input{Pose: hipAt(y), Side: pose.SideRight} }

	// No reference yet.
	assert.True(t, g.Allow(GateContext{Input: in(400)}))

	g.Observe(GateContext{Input: in(400), State: Extended, Zone: ZoneExtended})
	ref, ok := g.Reference()
	require.True(t, ok)
	assert.Equal(t, 400.0, ref)

	// Frames outside the extended zone do not move the reference.
	g.Observe(GateContext{Input: in(430), State: Extended, Zone: ZoneBetween})
	ref, _ = g.Reference()
	assert.Equal(t, 400.0, ref)

	assert.False(t, g.Allow(GateContext{Input: in(410)}))
	assert.True(t, g.Allow(GateContext{Input: in(425)}))

	g.Reset()
	_, ok = g.Reference()
	assert.False(t, ok)
}

func TestDisplacementGate_VetoesShallowLunge(t *testing.T) {
	t.Parallel()

	lunge, err := profile.Builtin("lunge")
	require.NoError(t, err)
	m := New(lunge, GatesFromProfile(lunge)...)

	step := func(frame int64, angle, hipY float64) Result {
		var p pose.Pose
		p[pose.RightHip] = pose.Keypoint{X: 200, Y: hipY, Confidence: 0.9}
		return m.Step(Input{Frame: frame, Angle: angle, Valid: true, Pose: &p, Side: pose.SideRight})
	}

	step(0, 170, 400)
	step(1, 170, 400)
	// Knee bends but the hip barely drops: held as vetoed.
	for i := int64(2); i < 6; i++ {
		r := step(i, 90, 405)
		if i >= 4 {
			assert.NotEmpty(t, r.Vetoed)
		}
	}
	assert.Equal(t, Extended, m.State())

	r := step(6, 90, 440)
	assert.Equal(t, OutcomeContracted, r.Outcome)
}
