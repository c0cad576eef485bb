// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic pose and trajectory builders so the
// pipeline packages can drive the tracker with known joint angles.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/rep.report/internal/pose"
)

// DefaultConfidence is the confidence given to every generated keypoint.
const DefaultConfidence = 0.9

// limbLength is the pixel length of both generated limb segments.
const limbLength = 100.0

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// StandingPose returns a fully confident, roughly anatomical pose with every
// keypoint at a distinct position.
func StandingPose() *pose.Pose {
	var p pose.Pose
	set := func(b pose.BodyPart, x, y float64) {
		p[b] = pose.Keypoint{X: x, Y: y, Confidence: DefaultConfidence}
	}
	set(pose.Nose, 320, 80)
	set(pose.LeftEye, 330, 70)
	set(pose.RightEye, 310, 70)
	set(pose.LeftEar, 340, 75)
	set(pose.RightEar, 300, 75)
	set(pose.LeftShoulder, 370, 140)
	set(pose.RightShoulder, 270, 140)
	set(pose.LeftElbow, 380, 220)
	set(pose.RightElbow, 260, 220)
	set(pose.LeftWrist, 385, 300)
	set(pose.RightWrist, 255, 300)
	set(pose.LeftHip, 350, 300)
	set(pose.RightHip, 290, 300)
	set(pose.LeftKnee, 352, 400)
	set(pose.RightKnee, 288, 400)
	set(pose.LeftAnkle, 354, 500)
	set(pose.RightAnkle, 286, 500)
	return &p
}

// PoseWithAngle returns a StandingPose in which every given triple measures
// angle degrees at its vertex. The vertex keeps its standing position; the
// proximal point sits straight above it and the distal point is rotated.
func PoseWithAngle(angle float64, triples ...pose.JointTriple) *pose.Pose {
	p := StandingPose()
	SetAngle(p, angle, triples...)
	return p
}

// SetAngle bends each triple in p to angle degrees.
func SetAngle(p *pose.Pose, angle float64, triples ...pose.JointTriple) {
	rad := angle * math.Pi / 180
	for _, t := range triples {
		v := p[t.Vertex]
		p[t.Proximal] = pose.Keypoint{X: v.X, Y: v.Y - limbLength, Confidence: DefaultConfidence}
		p[t.Distal] = pose.Keypoint{
			X:          v.X + limbLength*math.Sin(rad),
			Y:          v.Y - limbLength*math.Cos(rad),
			Confidence: DefaultConfidence,
		}
	}
}

// Occlude sets the confidence of the given parts to zero.
func Occlude(p *pose.Pose, parts ...pose.BodyPart) {
	for _, b := range parts {
		p[b].Confidence = 0
	}
}

// Constant returns n copies of v.
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Triangle returns cycles periods of a triangle wave starting and ending at
// hi, bottoming out at lo halfway through each period. The final sample is
// hi again, so the slice has cycles*period+1 entries.
func Triangle(lo, hi float64, period, cycles int) []float64 {
	out := make([]float64, 0, cycles*period+1)
	for i := 0; i <= cycles*period; i++ {
		phase := float64(i%period) / float64(period)
		out = append(out, lo+(hi-lo)*math.Abs(2*phase-1))
	}
	return out
}
