// Package signal turns per-frame poses into a conditioned joint-angle
// signal.
//
// Responsibilities: completeness and confidence gating, angle extraction
// across one or both sides, outlier rejection and moving-average smoothing.
// Key types: Conditioner, Sample, Reason, Ring.
//
// Dependency rule: signal may import pose and profile; it must not import
// repfsm, analysis or tracker.
package signal

import (
	"errors"
	"math"

	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
	"gonum.org/v1/gonum/stat"
)

// Reason explains why a frame produced no valid sample.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonMissingDetection
	ReasonInsufficientConfidence
	ReasonDegenerateGeometry
	ReasonOutlier
	ReasonOutOfRange
)

var reasonNames = [...]string{
	ReasonOK:                     "ok",
	ReasonMissingDetection:       "missing_detection",
	ReasonInsufficientConfidence: "insufficient_confidence",
	ReasonDegenerateGeometry:     "degenerate_geometry",
	ReasonOutlier:                "outlier",
	ReasonOutOfRange:             "out_of_range",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// Sample is the conditioner's output for one frame.
type Sample struct {
	Frame    int64
	Raw      float64 // 0 when no angle could be measured
	Smoothed float64 // last accepted smoothed value when !Valid
	Valid    bool
	Reason   Reason
}

// Config holds conditioner parameters.
type Config struct {
	Window                int
	OutlierThreshold      float64 // degrees from the last accepted raw angle; 0 disables
	OutlierResetFrames    int     // consecutive rejections before re-seeding; 0 disables
	KeypointConfidence    float64
	MinConfidentKeypoints int
	MinValidAngle         float64
	MaxValidAngle         float64
}

// ConfigFromProfile extracts conditioner parameters from a resolved profile.
func ConfigFromProfile(p profile.Profile) Config {
	return Config{
		Window:                p.SmoothingWindow,
		OutlierThreshold:      p.OutlierThreshold,
		OutlierResetFrames:    p.OutlierResetFrames,
		KeypointConfidence:    p.KeypointConfidence,
		MinConfidentKeypoints: p.MinConfidentKeypoints,
		MinValidAngle:         p.MinValidAngle,
		MaxValidAngle:         p.MaxValidAngle,
	}
}

// Conditioner keeps the rolling window of accepted raw angles. It is not
// safe for concurrent use; the tracker serialises access.
type Conditioner struct {
	cfg Config

	window   []float64
	smoothed float64
	lastRaw  float64
	seeded   bool
	valid    bool

	rejectRun int
	pending   float64 // most recent rejected outlier
}

// NewConditioner creates a Conditioner. A window below 1 is treated as 1.
func NewConditioner(cfg Config) *Conditioner {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	return &Conditioner{
		cfg:    cfg,
		window: make([]float64, 0, cfg.Window),
	}
}

// Process measures the mean angle over triples and admits it to the window
// when every gate passes.
func (c *Conditioner) Process(frame int64, p *pose.Pose, triples []pose.JointTriple) Sample {
	if p == nil {
		return c.reject(frame, 0, ReasonMissingDetection)
	}
	if p.ConfidentCount(c.cfg.KeypointConfidence) < c.cfg.MinConfidentKeypoints {
		return c.reject(frame, 0, ReasonInsufficientConfidence)
	}

	raw, err := pose.MeanAngleAt(p, triples, c.cfg.KeypointConfidence)
	if err != nil {
		switch {
		case errors.Is(err, pose.ErrDegenerate):
			return c.reject(frame, 0, ReasonDegenerateGeometry)
		case errors.Is(err, pose.ErrNoPose):
			return c.reject(frame, 0, ReasonMissingDetection)
		default:
			return c.reject(frame, 0, ReasonInsufficientConfidence)
		}
	}
	return c.Push(frame, raw)
}

// Push runs the range and outlier gates on an already measured raw angle.
func (c *Conditioner) Push(frame int64, raw float64) Sample {
	if math.IsNaN(raw) || raw < c.cfg.MinValidAngle || raw > c.cfg.MaxValidAngle {
		return c.reject(frame, raw, ReasonOutOfRange)
	}

	if c.seeded && c.cfg.OutlierThreshold > 0 && math.Abs(raw-c.lastRaw) > c.cfg.OutlierThreshold {
		switch {
		case c.rejectRun > 0 && math.Abs(raw-c.pending) <= c.cfg.OutlierThreshold:
			// Two consecutive samples agree: the joint moved.
			c.window = append(c.window[:0], c.pending)
		case c.cfg.OutlierResetFrames > 0 && c.rejectRun+1 >= c.cfg.OutlierResetFrames:
			c.window = c.window[:0]
		default:
			c.rejectRun++
			c.pending = raw
			return c.reject(frame, raw, ReasonOutlier)
		}
	}
	c.rejectRun = 0

	if len(c.window) == c.cfg.Window {
		copy(c.window, c.window[1:])
		c.window = c.window[:len(c.window)-1]
	}
	c.window = append(c.window, raw)
	c.smoothed = stat.Mean(c.window, nil)
	c.lastRaw = raw
	c.seeded = true
	c.valid = true

	return Sample{Frame: frame, Raw: raw, Smoothed: c.smoothed, Valid: true, Reason: ReasonOK}
}

func (c *Conditioner) reject(frame int64, raw float64, reason Reason) Sample {
	c.valid = false
	if reason != ReasonOutlier {
		c.rejectRun = 0
	}
	return Sample{Frame: frame, Raw: raw, Smoothed: c.smoothed, Valid: false, Reason: reason}
}

// SmoothedAngle returns the last smoothed value. It is frozen while frames
// are invalid and 0 before the first accepted sample.
func (c *Conditioner) SmoothedAngle() float64 { return c.smoothed }

// IsValid reports whether the most recent frame produced a valid sample.
func (c *Conditioner) IsValid() bool { return c.valid }

// Seeded reports whether any sample has been accepted since the last reset.
func (c *Conditioner) Seeded() bool { return c.seeded }

// Window returns a copy of the accepted raw samples, oldest first.
func (c *Conditioner) Window() []float64 {
	out := make([]float64, len(c.window))
	copy(out, c.window)
	return out
}

// Reset clears the window and the frozen value.
func (c *Conditioner) Reset() {
	c.window = c.window[:0]
	c.smoothed = 0
	c.lastRaw = 0
	c.seeded = false
	c.valid = false
	c.rejectRun = 0
	c.pending = 0
}
