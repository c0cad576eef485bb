package config

// Weights is the resolved (non-pointer) set of form-score weights.
type Weights struct {
	ROM        float64
	Smoothness float64
	Tempo      float64
	Stability  float64
}

// GetName returns the profile name, or "" when unset.
func (c *ProfileConfig) GetName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

// GetDefaultSide returns the default_side value or the default.
func (c *ProfileConfig) GetDefaultSide() string {
	if c.DefaultSide == nil || *c.DefaultSide == "" {
		if _, ok := c.Joints["right"]; ok || len(c.Joints) == 0 {
			return "right"
		}
		return "left"
	}
	return *c.DefaultSide
}

// GetAverageSides returns the average_sides value or the default.
func (c *ProfileConfig) GetAverageSides() bool {
	if c.AverageSides == nil {
		return false
	}
	return *c.AverageSides
}

// GetDirection returns the direction value or the default.
func (c *ProfileConfig) GetDirection() string {
	if c.Direction == nil || *c.Direction == "" {
		return DirectionFlexion
	}
	return *c.Direction
}

// GetMinHoldFrames returns the min_hold_frames value or the default.
func (c *ProfileConfig) GetMinHoldFrames() int {
	if c.MinHoldFrames == nil {
		return 3
	}
	return *c.MinHoldFrames
}

// GetReleaseHoldFrames returns release_hold_frames, defaulting to half of
// min_hold_frames rounded up.
func (c *ProfileConfig) GetReleaseHoldFrames() int {
	if c.ReleaseHoldFrames == nil {
		return (c.GetMinHoldFrames() + 1) / 2
	}
	return *c.ReleaseHoldFrames
}

// GetMinRepSamples returns the min_rep_samples value or the default.
func (c *ProfileConfig) GetMinRepSamples() int {
	if c.MinRepSamples == nil {
		return 5
	}
	return *c.MinRepSamples
}

// GetMaxRepSamples returns the max_rep_samples value or the default.
func (c *ProfileConfig) GetMaxRepSamples() int {
	if c.MaxRepSamples == nil {
		return 900 // 30s at 30fps
	}
	return *c.MaxRepSamples
}

// GetShortRepPolicy returns the short_rep_policy value or the default.
func (c *ProfileConfig) GetShortRepPolicy() string {
	if c.ShortRepPolicy == nil || *c.ShortRepPolicy == "" {
		return ShortRepDiscard
	}
	return *c.ShortRepPolicy
}

// GetKeypointConfidence returns the keypoint_confidence value or the default.
func (c *ProfileConfig) GetKeypointConfidence() float64 {
	if c.KeypointConfidence == nil {
		return 0.5
	}
	return *c.KeypointConfidence
}

// GetMinConfidentKeypoints returns the min_confident_keypoints value or the default.
func (c *ProfileConfig) GetMinConfidentKeypoints() int {
	if c.MinConfidentKeypoints == nil {
		return 6
	}
	return *c.MinConfidentKeypoints
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *ProfileConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

// GetOutlierThresholdDeg returns the outlier_threshold_deg value or the
// default. Zero disables outlier rejection.
func (c *ProfileConfig) GetOutlierThresholdDeg() float64 {
	if c.OutlierThresholdDeg == nil {
		return 30
	}
	return *c.OutlierThresholdDeg
}

// GetOutlierResetFrames returns the outlier_reset_frames value or the
// default. Zero disables re-seeding.
func (c *ProfileConfig) GetOutlierResetFrames() int {
	if c.OutlierResetFrames == nil {
		return 10
	}
	return *c.OutlierResetFrames
}

// GetAssumedFPS returns the assumed_fps value or the default.
func (c *ProfileConfig) GetAssumedFPS() float64 {
	if c.AssumedFPS == nil {
		return 30
	}
	return *c.AssumedFPS
}

// GetMaxTempoReversals returns the max_tempo_reversals value or the default.
func (c *ProfileConfig) GetMaxTempoReversals() int {
	if c.MaxTempoReversals == nil {
		return 2
	}
	return *c.MaxTempoReversals
}

// GetSmoothnessK returns the smoothness_k value or the default.
func (c *ProfileConfig) GetSmoothnessK() float64 {
	if c.SmoothnessK == nil {
		return 2
	}
	return *c.SmoothnessK
}

// GetSmoothnessWarn returns the smoothness score below which a rep is
// reported as jerky.
func (c *ProfileConfig) GetSmoothnessWarn() float64 {
	if c.SmoothnessWarn == nil {
		return 70
	}
	return *c.SmoothnessWarn
}

// GetStabilityWindow returns the stability window or the default.
func (c *ProfileConfig) GetStabilityWindow() int {
	if c.Stability == nil || c.Stability.Window == nil {
		return 30
	}
	return *c.Stability.Window
}

// GetStabilityScale returns the stability variance divisor or the default.
func (c *ProfileConfig) GetStabilityScale() float64 {
	if c.Stability == nil || c.Stability.Scale == nil {
		return 10
	}
	return *c.Stability.Scale
}

// GetStabilityVarianceThreshold returns the instantaneous variance above
// which the supporting joint is reported as moving.
func (c *ProfileConfig) GetStabilityVarianceThreshold() float64 {
	if c.Stability == nil || c.Stability.VarianceThreshold == nil {
		return 100
	}
	return *c.Stability.VarianceThreshold
}

// GetWeights returns the scoring weights, filling unset entries with the
// defaults.
func (c *ProfileConfig) GetWeights() Weights {
	w := Weights{ROM: 0.30, Smoothness: 0.25, Tempo: 0.20, Stability: 0.25}
	if c.Weights == nil {
		return w
	}
	if c.Weights.ROM != nil {
		w.ROM = *c.Weights.ROM
	}
	if c.Weights.Smoothness != nil {
		w.Smoothness = *c.Weights.Smoothness
	}
	if c.Weights.Tempo != nil {
		w.Tempo = *c.Weights.Tempo
	}
	if c.Weights.Stability != nil {
		w.Stability = *c.Weights.Stability
	}
	return w
}

// GetFeedbackCapacity returns the feedback_capacity value or the default.
func (c *ProfileConfig) GetFeedbackCapacity() int {
	if c.FeedbackCapacity == nil {
		return 3
	}
	return *c.FeedbackCapacity
}

// GetOvercontractAngle returns the over-contraction warning angle. ok is
// false when the profile does not declare one.
func (c *ProfileConfig) GetOvercontractAngle() (angle float64, ok bool) {
	if c.OvercontractAngle == nil {
		return 0, false
	}
	return *c.OvercontractAngle, true
}
