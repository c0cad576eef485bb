package pose

import (
	"errors"
	"math"

	"github.com/banshee-data/rep.report/internal/units"
)

// MinVectorLength is the shortest limb segment, in pixels, that still yields
// a meaningful angle.
const MinVectorLength = 1e-6

var (
	// ErrNoPose is returned when no subject was detected.
	ErrNoPose = errors.New("no pose detected")
	// ErrLowConfidence is returned when a keypoint of the triple is below the
	// confidence threshold.
	ErrLowConfidence = errors.New("keypoint confidence below threshold")
	// ErrDegenerate is returned when two keypoints coincide or the geometry
	// is not finite.
	ErrDegenerate = errors.New("degenerate joint geometry")
)

// Angle returns the angle in degrees at vertex b between the segments
// (a-b) and (c-b). The result lies in [0, 180] and Angle(a,b,c) equals
// Angle(c,b,a). Confidence is ignored here; see AngleAt.
func Angle(a, b, c Keypoint) (float64, error) {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y

	na := math.Hypot(bax, bay)
	nc := math.Hypot(bcx, bcy)
	if !(na >= MinVectorLength) || !(nc >= MinVectorLength) || math.IsInf(na, 0) || math.IsInf(nc, 0) {
		return 0, ErrDegenerate
	}

	cosine := (bax*bcx + bay*bcy) / (na * nc)
	if math.IsNaN(cosine) {
		return 0, ErrDegenerate
	}
	// Clamp floating-point drift before arccos.
	cosine = units.Clamp(cosine, -1, 1)

	return units.Clamp(units.RadToDeg(math.Acos(cosine)), units.MinJointAngle, units.MaxJointAngle), nil
}

// AngleAt computes the joint angle for a triple, rejecting keypoints below
// minConfidence.
func AngleAt(p *Pose, t JointTriple, minConfidence float64) (float64, error) {
	if p == nil {
		return 0, ErrNoPose
	}
	a, b, c := p.At(t.Proximal), p.At(t.Vertex), p.At(t.Distal)
	if !a.Confident(minConfidence) || !b.Confident(minConfidence) || !c.Confident(minConfidence) {
		return 0, ErrLowConfidence
	}
	return Angle(a, b, c)
}

// MeanAngleAt averages the joint angle over several triples (e.g. both
// knees), skipping triples that are not measurable. It fails only when none
// of the triples yields an angle; the error is then the first failure seen.
func MeanAngleAt(p *Pose, triples []JointTriple, minConfidence float64) (float64, error) {
	if p == nil {
		return 0, ErrNoPose
	}
	var sum float64
	var n int
	var firstErr error
	for _, t := range triples {
		a, err := AngleAt(p, t, minConfidence)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sum += a
		n++
	}
	if n == 0 {
		if firstErr == nil {
			firstErr = ErrLowConfidence
		}
		return 0, firstErr
	}
	return sum / float64(n), nil
}
