package pose

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/rep.report/internal/units"
	"gonum.org/v1/gonum/stat"
)

// alignmentPenalty converts mean perpendicular deviation (pixels) into score
// points.
const alignmentPenalty = 2.0

// Axis selects a pixel-space coordinate.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// String returns "x" or "y".
func (a Axis) String() string {
	if a == AxisY {
		return "y"
	}
	return "x"
}

// ParseAxis resolves "x" or "y".
func ParseAxis(name string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	default:
		return AxisX, fmt.Errorf("unknown axis %q (want x or y)", name)
	}
}

// Coordinate returns the mean of one axis over the confident keypoints in
// parts. ok is false when none of them is confident.
func Coordinate(p *Pose, parts []BodyPart, axis Axis, minConfidence float64) (value float64, ok bool) {
	if p == nil {
		return 0, false
	}
	var sum float64
	var n int
	for _, b := range parts {
		kp := p.At(b)
		if !kp.Confident(minConfidence) {
			continue
		}
		if axis == AxisY {
			sum += kp.Y
		} else {
			sum += kp.X
		}
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AlignmentScore rates how close the given keypoints lie to one straight
// line (e.g. nose-shoulder-hip-ankle in a plank). The line is the principal
// axis of the points, so the score does not depend on body orientation.
// Score = max(0, 100 - 2 * mean perpendicular deviation). ok is false when
// fewer than three keypoints are confident.
func AlignmentScore(p *Pose, parts []BodyPart, minConfidence float64) (score float64, ok bool) {
	if p == nil {
		return 0, false
	}
	xs := make([]float64, 0, len(parts))
	ys := make([]float64, 0, len(parts))
	for _, b := range parts {
		kp := p.At(b)
		if !kp.Confident(minConfidence) {
			continue
		}
		xs = append(xs, kp.X)
		ys = append(ys, kp.Y)
	}
	if len(xs) < 3 {
		return 0, false
	}

	meanX, meanY := stat.Mean(xs, nil), stat.Mean(ys, nil)
	cxx := stat.Covariance(xs, xs, nil)
	cyy := stat.Covariance(ys, ys, nil)
	cxy := stat.Covariance(xs, ys, nil)

	// Principal axis of the symmetric 2x2 covariance.
	theta := 0.5 * math.Atan2(2*cxy, cxx-cyy)
	nx, ny := -math.Sin(theta), math.Cos(theta)

	var dev float64
	for i := range xs {
		dev += math.Abs((xs[i]-meanX)*nx + (ys[i]-meanY)*ny)
	}
	dev /= float64(len(xs))

	return units.ClampScore(100 - alignmentPenalty*dev), true
}
