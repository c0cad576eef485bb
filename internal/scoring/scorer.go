// Package scoring aggregates per-rep metrics into a single form score and a
// running session average.
package scoring

import (
	"github.com/banshee-data/rep.report/internal/analysis"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/units"
)

// Scorer holds the weights and the running session average.
type Scorer struct {
	weights profile.Weights

	sum   float64
	count int
	best  float64
}

// New creates a Scorer with the given weights.
func New(w profile.Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score returns the weighted form score of one rep. Absent stability is
// dropped and the remaining weights renormalised.
func (s *Scorer) Score(m analysis.Metrics) float64 {
	w := s.weights
	if !m.Stability.Present {
		w.Stability = 0
	}
	total := w.ROM + w.Smoothness + w.Tempo + w.Stability
	if total <= 0 {
		return 0
	}
	score := w.ROM*m.ROM.Score +
		w.Smoothness*m.Smoothness +
		w.Tempo*m.Tempo.Score +
		w.Stability*m.Stability.Score
	return units.ClampScore(score / total)
}

// Record adds a counted rep's score to the session average.
func (s *Scorer) Record(score float64) {
	s.sum += score
	s.count++
	if s.count == 1 || score > s.best {
		s.best = score
	}
}

// Average returns the mean recorded score, or 0 before the first rep.
func (s *Scorer) Average() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Best returns the highest recorded score.
func (s *Scorer) Best() float64 { return s.best }

// Count returns the number of recorded scores.
func (s *Scorer) Count() int { return s.count }

// Reset clears the session average.
func (s *Scorer) Reset() {
	s.sum = 0
	s.count = 0
	s.best = 0
}
