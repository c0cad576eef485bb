// Package units provides shared angle and frame-timing conversions.
package units

import (
	"math"
	"time"
)

// Angle bounds for joint angles, in degrees.
const (
	MinJointAngle = 0.0
	MaxJointAngle = 180.0
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore limits a quality score to [0, 100].
func ClampScore(v float64) float64 {
	return Clamp(v, 0, 100)
}

// FramesToDuration converts a sample count to wall-clock time at the given
// frame rate. A non-positive fps yields zero.
func FramesToDuration(frames int, fps float64) time.Duration {
	if fps <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / fps * float64(time.Second))
}

// DurationToFrames converts a wall-clock span to the nearest whole number of
// samples at the given frame rate.
func DurationToFrames(d time.Duration, fps float64) int {
	if fps <= 0 || d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * fps))
}
