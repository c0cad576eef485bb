// Package analysis computes per-rep quality metrics from a closed rep
// buffer.
//
// Responsibilities: range-of-motion banding, movement smoothness from the
// discrete second difference, tempo banding with reversal corroboration,
// and supporting-joint stability.
// Key types: Analyzer, Metrics, ROMResult, TempoResult, StabilityResult.
//
// Dependency rule: analysis may import profile and units; it is pure and
// holds no per-rep state.
package analysis

import (
	"math"
	"time"

	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/units"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ROM labels outside the profile's own bands.
const (
	ROMPoor             = "poor"
	ROMInsufficientData = "insufficient_data"
)

// TempoLabel classifies rep duration.
type TempoLabel string

const (
	TempoGood      TempoLabel = "good"
	TempoTooFast   TempoLabel = "too_fast"
	TempoTooSlow   TempoLabel = "too_slow"
	TempoIrregular TempoLabel = "irregular"
	TempoUnknown   TempoLabel = "unknown"
)

// ReversalDeadband is the angle change (degrees) needed before a change of
// direction counts as a reversal.
const ReversalDeadband = 2.0

// ROMResult is the range-of-motion assessment of one rep.
type ROMResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Range returns Max - Min.
func (r ROMResult) Range() float64 { return r.Max - r.Min }

// TempoResult is the tempo assessment of one rep.
type TempoResult struct {
	Label     TempoLabel    `json:"label"`
	Score     float64       `json:"score"`
	Duration  time.Duration `json:"duration"`
	Reversals int           `json:"reversals"`
}

// StabilityResult is the supporting-joint stability of one rep. Present is
// false when the profile tracks no coordinate or fewer than two samples
// were available.
type StabilityResult struct {
	Score    float64 `json:"score"`
	Variance float64 `json:"variance"`
	Present  bool    `json:"present"`
}

// Metrics bundles every per-rep metric.
type Metrics struct {
	ROM        ROMResult       `json:"rom"`
	Smoothness float64         `json:"smoothness"`
	Tempo      TempoResult     `json:"tempo"`
	Stability  StabilityResult `json:"stability"`
}

// Input is a closed rep as seen by the analyzer.
type Input struct {
	Samples   []float64     // smoothed angles, oldest first
	Elapsed   time.Duration // from frame timestamps; 0 when unknown
	Stability []float64     // trailing stability coordinate window
}

// Analyzer evaluates reps against one profile.
type Analyzer struct {
	p profile.Profile
}

// New creates an Analyzer.
func New(p profile.Profile) *Analyzer {
	return &Analyzer{p: p}
}

// Analyze computes all metrics for one rep.
func (a *Analyzer) Analyze(in Input) Metrics {
	return Metrics{
		ROM:        a.ROM(in.Samples),
		Smoothness: a.Smoothness(in.Samples),
		Tempo:      a.Tempo(in.Samples, in.Elapsed),
		Stability:  a.Stability(in.Stability),
	}
}

// ROM bands the rep by how far it reached in both directions. Bands are
// tried in profile order; the first whose limits the trajectory covers
// wins.
func (a *Analyzer) ROM(samples []float64) ROMResult {
	if len(samples) < 2 {
		return ROMResult{Label: ROMInsufficientData}
	}
	res := ROMResult{
		Label: ROMPoor,
		Min:   floats.Min(samples),
		Max:   floats.Max(samples),
	}
	res.Score = units.ClampScore(100 * res.Range() / a.p.IdealROM)
	for _, b := range a.p.ROMBands {
		if res.Min <= b.Min && res.Max >= b.Max {
			res.Label = b.Label
			break
		}
	}
	return res
}

// Smoothness scores the rep by the spread of its angular acceleration:
// max(0, 100 - k*stddev(|second difference|)).
func (a *Analyzer) Smoothness(samples []float64) float64 {
	if len(samples) < 3 {
		return 0
	}
	acc := make([]float64, len(samples)-2)
	for i := 2; i < len(samples); i++ {
		acc[i-2] = math.Abs(samples[i] - 2*samples[i-1] + samples[i-2])
	}
	sd := math.Sqrt(stat.PopVariance(acc, nil))
	return units.ClampScore(100 - a.p.SmoothnessK*sd)
}

// Duration returns the rep duration: elapsed when known, otherwise the
// sample count at the profile's assumed frame rate.
func (a *Analyzer) Duration(samples int, elapsed time.Duration) time.Duration {
	if elapsed > 0 {
		return elapsed
	}
	return units.FramesToDuration(samples, a.p.Tempo.AssumedFPS)
}

// Tempo bands the rep duration and halves the score when the trajectory
// reverses direction more often than one clean rep allows.
func (a *Analyzer) Tempo(samples []float64, elapsed time.Duration) TempoResult {
	if len(samples) == 0 {
		return TempoResult{Label: TempoUnknown}
	}
	d := a.Duration(len(samples), elapsed)
	res := TempoResult{Duration: d, Reversals: CountReversals(samples, ReversalDeadband)}

	lo, hi := a.p.Tempo.Min, a.p.Tempo.Max
	switch {
	case d < lo:
		res.Label = TempoTooFast
		res.Score = 100 * d.Seconds() / lo.Seconds()
	case d > hi:
		res.Label = TempoTooSlow
		res.Score = 100 * hi.Seconds() / d.Seconds()
	default:
		res.Label = TempoGood
		res.Score = 100
	}
	if res.Reversals > a.p.Tempo.MaxReversals {
		res.Label = TempoIrregular
		res.Score /= 2
	}
	res.Score = units.ClampScore(res.Score)
	return res
}

// Stability scores the trailing window of the supporting coordinate:
// max(0, 100 - variance/scale).
func (a *Analyzer) Stability(coords []float64) StabilityResult {
	if a.p.Stability == nil || len(coords) < 2 {
		return StabilityResult{}
	}
	v := stat.PopVariance(coords, nil)
	return StabilityResult{
		Score:    units.ClampScore(100 - v/a.p.Stability.Scale),
		Variance: v,
		Present:  true,
	}
}

// CountReversals counts direction changes in samples, ignoring wiggles
// smaller than deadband degrees.
func CountReversals(samples []float64, deadband float64) int {
	if len(samples) < 2 {
		return 0
	}
	reversals := 0
	dir := 0 // +1 rising, -1 falling, 0 unknown
	extreme := samples[0]
	for _, v := range samples[1:] {
		switch dir {
		case 0:
			if v-extreme > deadband {
				dir, extreme = 1, v
			} else if extreme-v > deadband {
				dir, extreme = -1, v
			}
		case 1:
			if v > extreme {
				extreme = v
			} else if extreme-v > deadband {
				reversals++
				dir, extreme = -1, v
			}
		case -1:
			if v < extreme {
				extreme = v
			} else if v-extreme > deadband {
				reversals++
				dir, extreme = 1, v
			}
		}
	}
	return reversals
}
