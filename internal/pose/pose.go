// Package pose owns the per-frame keypoint model consumed by the rep
// tracking pipeline.
//
// Responsibilities: the fixed 17-part COCO body enumeration, keypoint
// confidence queries, limb/side selection, and the pure geometry used to
// turn three keypoints into a joint angle.
// Key types: Pose, Keypoint, BodyPart, Side, JointTriple.
//
// Dependency rule: pose is a leaf; it must not import any other pipeline
// package.
package pose

import (
	"fmt"
	"strings"
)

// NumKeypoints is the number of landmarks in every Pose.
const NumKeypoints = 17

// BodyPart indexes a keypoint within a Pose.
type BodyPart int

const (
	Nose BodyPart = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

var bodyPartNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// String returns the snake_case landmark name.
func (b BodyPart) String() string {
	if !b.Valid() {
		return fmt.Sprintf("body_part(%d)", int(b))
	}
	return bodyPartNames[b]
}

// Valid reports whether b indexes a landmark.
func (b BodyPart) Valid() bool {
	return b >= 0 && int(b) < NumKeypoints
}

// ParseBodyPart resolves a snake_case landmark name.
func ParseBodyPart(name string) (BodyPart, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range bodyPartNames {
		if candidate == n {
			return BodyPart(i), nil
		}
	}
	return 0, fmt.Errorf("unknown body part %q", name)
}

// Side selects the left or right limb of a paired joint.
type Side int

const (
	SideRight Side = iota
	SideLeft
)

// String returns "left" or "right".
func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// ParseSide resolves "left" or "right".
func ParseSide(name string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "left", "l":
		return SideLeft, nil
	case "right", "r":
		return SideRight, nil
	default:
		return SideRight, fmt.Errorf("unknown side %q (want left or right)", name)
	}
}

// Keypoint is one landmark in pixel space with its detector confidence.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Confident reports whether the keypoint meets the confidence threshold.
func (k Keypoint) Confident(minConfidence float64) bool {
	return k.Confidence >= minConfidence
}

// Pose is the full keypoint set for one detected subject in one frame.
type Pose [NumKeypoints]Keypoint

// At returns the keypoint for a body part.
func (p *Pose) At(b BodyPart) Keypoint {
	return p[b]
}

// ConfidentCount returns how many keypoints meet the confidence threshold.
func (p *Pose) ConfidentCount(minConfidence float64) int {
	n := 0
	for _, kp := range p {
		if kp.Confident(minConfidence) {
			n++
		}
	}
	return n
}

// JointTriple names the three keypoints forming a joint angle; the angle is
// measured at Vertex.
type JointTriple struct {
	Proximal BodyPart
	Vertex   BodyPart
	Distal   BodyPart
}

// String renders the triple as "proximal-vertex-distal".
func (t JointTriple) String() string {
	return fmt.Sprintf("%s-%s-%s", t.Proximal, t.Vertex, t.Distal)
}

// Valid reports whether all three parts index landmarks.
func (t JointTriple) Valid() bool {
	return t.Proximal.Valid() && t.Vertex.Valid() && t.Distal.Valid()
}

// Reversed swaps proximal and distal; the angle is unchanged.
func (t JointTriple) Reversed() JointTriple {
	return JointTriple{Proximal: t.Distal, Vertex: t.Vertex, Distal: t.Proximal}
}
