package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrIncompleteProfile is wrapped by Validate when a required field is
	// missing.
	ErrIncompleteProfile = errors.New("incomplete exercise profile")
	// ErrInvalidProfile is wrapped by Validate when fields are present but
	// inconsistent.
	ErrInvalidProfile = errors.New("invalid exercise profile")
)

// Accepted enum spellings.
const (
	DirectionFlexion   = "flexion"
	DirectionExtension = "extension"

	ShortRepDiscard = "discard"
	ShortRepFlag    = "flag"

	GateAlignment    = "alignment"
	GateDisplacement = "displacement"

	GateOnContract = "contract"
	GateOnRelease  = "release"
	GateOnBoth     = "both"
)

// JointConfig names the three keypoints of a joint angle.
type JointConfig struct {
	Proximal string `json:"proximal" yaml:"proximal"`
	Vertex   string `json:"vertex" yaml:"vertex"`
	Distal   string `json:"distal" yaml:"distal"`
}

// ROMBandConfig is one range-of-motion quality band. A rep earns the band
// when its trajectory reaches at least as far as both Min and Max.
type ROMBandConfig struct {
	Label string  `json:"label" yaml:"label"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// WeightsConfig holds the relative contribution of each metric to the form
// score. Values are normalised, so only ratios matter.
type WeightsConfig struct {
	ROM        *float64 `json:"rom,omitempty" yaml:"rom,omitempty"`
	Smoothness *float64 `json:"smoothness,omitempty" yaml:"smoothness,omitempty"`
	Tempo      *float64 `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	Stability  *float64 `json:"stability,omitempty" yaml:"stability,omitempty"`
}

// StabilityConfig declares the auxiliary coordinate whose variance measures
// how steady a supporting joint stays (elbow x for curls, hip y for squats).
type StabilityConfig struct {
	Left              []string `json:"left" yaml:"left"`
	Right             []string `json:"right" yaml:"right"`
	Axis              string   `json:"axis" yaml:"axis"`
	Window            *int     `json:"window,omitempty" yaml:"window,omitempty"`
	Scale             *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	VarianceThreshold *float64 `json:"variance_threshold,omitempty" yaml:"variance_threshold,omitempty"`
}

// GateConfig declares an auxiliary condition that must hold before a
// state transition is accepted.
type GateConfig struct {
	Type            string   `json:"type" yaml:"type"`
	On              string   `json:"on,omitempty" yaml:"on,omitempty"`
	Left            []string `json:"left" yaml:"left"`
	Right           []string `json:"right" yaml:"right"`
	Axis            string   `json:"axis,omitempty" yaml:"axis,omitempty"`
	MinScore        *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	MinDisplacement *float64 `json:"min_displacement,omitempty" yaml:"min_displacement,omitempty"`
	MaxDisplacement *float64 `json:"max_displacement,omitempty" yaml:"max_displacement,omitempty"`
}

// ProfileConfig is the on-disk schema of an exercise profile. Pointer fields
// distinguish "absent" from zero; Get* accessors supply defaults for the
// optional ones and Validate rejects profiles missing required thresholds.
type ProfileConfig struct {
	Name        *string `json:"name,omitempty" yaml:"name,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`

	// Joint selection
	Joints       map[string]JointConfig `json:"joints,omitempty" yaml:"joints,omitempty"` // keyed "left"/"right"
	DefaultSide  *string                `json:"default_side,omitempty" yaml:"default_side,omitempty"`
	AverageSides *bool                  `json:"average_sides,omitempty" yaml:"average_sides,omitempty"`

	// Rep detection thresholds (required)
	Direction           *string  `json:"direction,omitempty" yaml:"direction,omitempty"`
	ContractedThreshold *float64 `json:"contracted_threshold,omitempty" yaml:"contracted_threshold,omitempty"`
	ExtendedThreshold   *float64 `json:"extended_threshold,omitempty" yaml:"extended_threshold,omitempty"`
	MinValidAngle       *float64 `json:"min_valid_angle,omitempty" yaml:"min_valid_angle,omitempty"`
	MaxValidAngle       *float64 `json:"max_valid_angle,omitempty" yaml:"max_valid_angle,omitempty"`

	// Range of motion (required)
	ROMBands        []ROMBandConfig `json:"rom_bands,omitempty" yaml:"rom_bands,omitempty"`
	IdealROMDegrees *float64        `json:"ideal_rom_degrees,omitempty" yaml:"ideal_rom_degrees,omitempty"`

	// Tempo band in seconds (required)
	TempoMinSeconds *float64 `json:"tempo_min_seconds,omitempty" yaml:"tempo_min_seconds,omitempty"`
	TempoMaxSeconds *float64 `json:"tempo_max_seconds,omitempty" yaml:"tempo_max_seconds,omitempty"`

	// Dwell and rep length
	MinHoldFrames     *int    `json:"min_hold_frames,omitempty" yaml:"min_hold_frames,omitempty"`
	ReleaseHoldFrames *int    `json:"release_hold_frames,omitempty" yaml:"release_hold_frames,omitempty"`
	MinRepSamples     *int    `json:"min_rep_samples,omitempty" yaml:"min_rep_samples,omitempty"`
	MaxRepSamples     *int    `json:"max_rep_samples,omitempty" yaml:"max_rep_samples,omitempty"`
	ShortRepPolicy    *string `json:"short_rep_policy,omitempty" yaml:"short_rep_policy,omitempty"`

	// Signal conditioning
	KeypointConfidence    *float64 `json:"keypoint_confidence,omitempty" yaml:"keypoint_confidence,omitempty"`
	MinConfidentKeypoints *int     `json:"min_confident_keypoints,omitempty" yaml:"min_confident_keypoints,omitempty"`
	SmoothingWindow       *int     `json:"smoothing_window,omitempty" yaml:"smoothing_window,omitempty"`
	OutlierThresholdDeg   *float64 `json:"outlier_threshold_deg,omitempty" yaml:"outlier_threshold_deg,omitempty"`
	OutlierResetFrames    *int     `json:"outlier_reset_frames,omitempty" yaml:"outlier_reset_frames,omitempty"`

	// Analysis
	AssumedFPS        *float64 `json:"assumed_fps,omitempty" yaml:"assumed_fps,omitempty"`
	MaxTempoReversals *int     `json:"max_tempo_reversals,omitempty" yaml:"max_tempo_reversals,omitempty"`
	SmoothnessK       *float64 `json:"smoothness_k,omitempty" yaml:"smoothness_k,omitempty"`
	SmoothnessWarn    *float64 `json:"smoothness_warn,omitempty" yaml:"smoothness_warn,omitempty"`

	Stability *StabilityConfig `json:"stability,omitempty" yaml:"stability,omitempty"`
	Weights   *WeightsConfig   `json:"weights,omitempty" yaml:"weights,omitempty"`
	Gates     []GateConfig     `json:"gates,omitempty" yaml:"gates,omitempty"`

	// Feedback
	FeedbackCapacity  *int     `json:"feedback_capacity,omitempty" yaml:"feedback_capacity,omitempty"`
	OvercontractAngle *float64 `json:"overcontract_angle,omitempty" yaml:"overcontract_angle,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// LoadProfileConfig loads a ProfileConfig from a .json, .yaml or .yml file.
// The file must be under 1MB. The loaded profile is validated; a profile
// missing required thresholds is rejected here, before any frame is
// processed.
func LoadProfileConfig(path string) (*ProfileConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("profile file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat profile file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("profile file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var cfg *ProfileConfig
	if ext == ".json" {
		cfg, err = ParseProfileJSON(data)
	} else {
		cfg, err = ParseProfileYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseProfileJSON decodes and validates a JSON profile.
func ParseProfileJSON(data []byte) (*ProfileConfig, error) {
	cfg := &ProfileConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseProfileYAML decodes and validates a YAML profile.
func ParseProfileYAML(data []byte) (*ProfileConfig, error) {
	cfg := &ProfileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are present and that all values are
// consistent.
func (c *ProfileConfig) Validate() error {
	var missing []string
	if c.Name == nil || strings.TrimSpace(*c.Name) == "" {
		missing = append(missing, "name")
	}
	if len(c.Joints) == 0 {
		missing = append(missing, "joints")
	}
	if c.ContractedThreshold == nil {
		missing = append(missing, "contracted_threshold")
	}
	if c.ExtendedThreshold == nil {
		missing = append(missing, "extended_threshold")
	}
	if c.MinValidAngle == nil {
		missing = append(missing, "min_valid_angle")
	}
	if c.MaxValidAngle == nil {
		missing = append(missing, "max_valid_angle")
	}
	if len(c.ROMBands) == 0 {
		missing = append(missing, "rom_bands")
	}
	if c.IdealROMDegrees == nil {
		missing = append(missing, "ideal_rom_degrees")
	}
	if c.TempoMinSeconds == nil {
		missing = append(missing, "tempo_min_seconds")
	}
	if c.TempoMaxSeconds == nil {
		missing = append(missing, "tempo_max_seconds")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteProfile, strings.Join(missing, ", "))
	}

	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, fmt.Sprintf(format, args...))
	}

	for side := range c.Joints {
		if side != "left" && side != "right" {
			return invalid("joints key %q must be left or right", side)
		}
	}
	if side := c.GetDefaultSide(); side != "left" && side != "right" {
		return invalid("default_side must be left or right, got %q", side)
	}
	if _, ok := c.Joints[c.GetDefaultSide()]; !ok {
		return invalid("default_side %q has no joint triple", c.GetDefaultSide())
	}

	inAngleRange := func(name string, v float64) error {
		if v < 0 || v > 180 {
			return invalid("%s must be between 0 and 180, got %f", name, v)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"contracted_threshold", *c.ContractedThreshold},
		{"extended_threshold", *c.ExtendedThreshold},
		{"min_valid_angle", *c.MinValidAngle},
		{"max_valid_angle", *c.MaxValidAngle},
	} {
		if err := inAngleRange(f.name, f.v); err != nil {
			return err
		}
	}
	if *c.MinValidAngle >= *c.MaxValidAngle {
		return invalid("min_valid_angle (%f) must be below max_valid_angle (%f)", *c.MinValidAngle, *c.MaxValidAngle)
	}

	switch c.GetDirection() {
	case DirectionFlexion:
		if *c.ContractedThreshold >= *c.ExtendedThreshold {
			return invalid("flexion profiles need contracted_threshold < extended_threshold")
		}
	case DirectionExtension:
		if *c.ContractedThreshold <= *c.ExtendedThreshold {
			return invalid("extension profiles need contracted_threshold > extended_threshold")
		}
	default:
		return invalid("direction must be %q or %q, got %q", DirectionFlexion, DirectionExtension, c.GetDirection())
	}

	if *c.IdealROMDegrees <= 0 || *c.IdealROMDegrees > 180 {
		return invalid("ideal_rom_degrees must be in (0, 180], got %f", *c.IdealROMDegrees)
	}
	for i, b := range c.ROMBands {
		if b.Label == "" {
			return invalid("rom_bands[%d] has no label", i)
		}
		if b.Min > b.Max {
			return invalid("rom_bands[%d] min (%f) above max (%f)", i, b.Min, b.Max)
		}
	}
	if *c.TempoMinSeconds <= 0 || *c.TempoMinSeconds >= *c.TempoMaxSeconds {
		return invalid("tempo band must satisfy 0 < tempo_min_seconds < tempo_max_seconds")
	}

	if v := c.GetKeypointConfidence(); v < 0 || v > 1 {
		return invalid("keypoint_confidence must be between 0 and 1, got %f", v)
	}
	if v := c.GetMinConfidentKeypoints(); v < 0 || v > 17 {
		return invalid("min_confident_keypoints must be between 0 and 17, got %d", v)
	}
	if c.GetSmoothingWindow() < 1 {
		return invalid("smoothing_window must be at least 1, got %d", c.GetSmoothingWindow())
	}
	if c.GetOutlierThresholdDeg() < 0 {
		return invalid("outlier_threshold_deg must be non-negative")
	}
	if c.GetOutlierResetFrames() < 0 {
		return invalid("outlier_reset_frames must be non-negative")
	}
	if c.GetMinHoldFrames() < 1 || c.GetReleaseHoldFrames() < 1 {
		return invalid("hold frames must be at least 1")
	}
	if c.GetMinRepSamples() < 1 {
		return invalid("min_rep_samples must be at least 1")
	}
	if c.GetMaxRepSamples() < c.GetMinRepSamples() {
		return invalid("max_rep_samples (%d) below min_rep_samples (%d)", c.GetMaxRepSamples(), c.GetMinRepSamples())
	}
	if p := c.GetShortRepPolicy(); p != ShortRepDiscard && p != ShortRepFlag {
		return invalid("short_rep_policy must be %q or %q, got %q", ShortRepDiscard, ShortRepFlag, p)
	}
	if c.GetAssumedFPS() <= 0 {
		return invalid("assumed_fps must be positive")
	}
	if c.GetFeedbackCapacity() < 1 {
		return invalid("feedback_capacity must be at least 1")
	}

	w := c.GetWeights()
	if w.ROM < 0 || w.Smoothness < 0 || w.Tempo < 0 || w.Stability < 0 {
		return invalid("weights must be non-negative")
	}
	if w.ROM+w.Smoothness+w.Tempo+w.Stability <= 0 {
		return invalid("weights must not all be zero")
	}

	if s := c.Stability; s != nil {
		if len(s.Left) == 0 && len(s.Right) == 0 {
			return invalid("stability declares no keypoints")
		}
		if s.Axis != "x" && s.Axis != "y" {
			return invalid("stability axis must be x or y, got %q", s.Axis)
		}
		if c.GetStabilityWindow() < 2 {
			return invalid("stability window must be at least 2")
		}
		if c.GetStabilityScale() <= 0 {
			return invalid("stability scale must be positive")
		}
	}

	for i, g := range c.Gates {
		switch g.Type {
		case GateAlignment:
			if len(g.Left) < 3 && len(g.Right) < 3 {
				return invalid("gates[%d]: alignment gate needs at least three keypoints per side", i)
			}
		case GateDisplacement:
			if len(g.Left) == 0 && len(g.Right) == 0 {
				return invalid("gates[%d]: displacement gate declares no keypoints", i)
			}
			if g.Axis != "x" && g.Axis != "y" {
				return invalid("gates[%d]: axis must be x or y, got %q", i, g.Axis)
			}
			if g.MinDisplacement != nil && g.MaxDisplacement != nil && *g.MaxDisplacement < *g.MinDisplacement {
				return invalid("gates[%d]: max_displacement below min_displacement", i)
			}
		default:
			return invalid("gates[%d]: unknown type %q", i, g.Type)
		}
		switch g.On {
		case "", GateOnContract, GateOnRelease, GateOnBoth:
		default:
			return invalid("gates[%d]: on must be contract, release or both, got %q", i, g.On)
		}
	}

	return nil
}
