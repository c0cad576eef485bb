package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalJSON = `{
  "name": "curl",
  "joints": {"right": {"proximal": "right_shoulder", "vertex": "right_elbow", "distal": "right_wrist"}},
  "contracted_threshold": 50,
  "extended_threshold": 160,
  "min_valid_angle": 30,
  "max_valid_angle": 180,
  "rom_bands": [{"label": "good", "min": 45, "max": 155}],
  "ideal_rom_degrees": 130,
  "tempo_min_seconds": 0.5,
  "tempo_max_seconds": 3
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestLoadProfileConfig_JSONDefaults(t *testing.T) {
	cfg, err := LoadProfileConfig(writeFile(t, "curl.json", minimalJSON))
	if err != nil {
		t.Fatalf("LoadProfileConfig failed: %v", err)
	}

	if cfg.GetName() != "curl" {
		t.Errorf("GetName() = %q, want curl", cfg.GetName())
	}
	if cfg.GetDirection() != DirectionFlexion {
		t.Errorf("GetDirection() = %q, want flexion", cfg.GetDirection())
	}
	if cfg.GetDefaultSide() != "right" {
		t.Errorf("GetDefaultSide() = %q, want right", cfg.GetDefaultSide())
	}
	if cfg.GetSmoothingWindow() != 5 {
		t.Errorf("GetSmoothingWindow() = %d, want 5", cfg.GetSmoothingWindow())
	}
	if cfg.GetOutlierThresholdDeg() != 30 {
		t.Errorf("GetOutlierThresholdDeg() = %f, want 30", cfg.GetOutlierThresholdDeg())
	}
	if cfg.GetMinHoldFrames() != 3 || cfg.GetReleaseHoldFrames() != 2 {
		t.Errorf("hold frames = %d/%d, want 3/2", cfg.GetMinHoldFrames(), cfg.GetReleaseHoldFrames())
	}
	if cfg.GetMinConfidentKeypoints() != 6 {
		t.Errorf("GetMinConfidentKeypoints() = %d, want 6", cfg.GetMinConfidentKeypoints())
	}
	if cfg.GetShortRepPolicy() != ShortRepDiscard {
		t.Errorf("GetShortRepPolicy() = %q, want discard", cfg.GetShortRepPolicy())
	}
	if cfg.GetFeedbackCapacity() != 3 {
		t.Errorf("GetFeedbackCapacity() = %d, want 3", cfg.GetFeedbackCapacity())
	}
	if _, ok := cfg.GetOvercontractAngle(); ok {
		t.Error("GetOvercontractAngle() should be unset")
	}
	w := cfg.GetWeights()
	if w.ROM != 0.30 || w.Smoothness != 0.25 || w.Tempo != 0.20 || w.Stability != 0.25 {
		t.Errorf("GetWeights() = %+v, want defaults", w)
	}
}

func TestLoadProfileConfig_YAML(t *testing.T) {
	yamlDoc := `
name: press
direction: extension
joints:
  left: {proximal: left_shoulder, vertex: left_elbow, distal: left_wrist}
default_side: left
contracted_threshold: 160
extended_threshold: 90
min_valid_angle: 60
max_valid_angle: 180
rom_bands:
  - {label: good, min: 90, max: 165}
ideal_rom_degrees: 80
tempo_min_seconds: 0.6
tempo_max_seconds: 3
release_hold_frames: 4
weights:
  stability: 0
`
	for _, ext := range []string{".yaml", ".yml"} {
		cfg, err := LoadProfileConfig(writeFile(t, "press"+ext, yamlDoc))
		if err != nil {
			t.Fatalf("LoadProfileConfig(%s) failed: %v", ext, err)
		}
		if cfg.GetDirection() != DirectionExtension {
			t.Errorf("GetDirection() = %q, want extension", cfg.GetDirection())
		}
		if cfg.GetDefaultSide() != "left" {
			t.Errorf("GetDefaultSide() = %q, want left", cfg.GetDefaultSide())
		}
		if cfg.GetReleaseHoldFrames() != 4 {
			t.Errorf("GetReleaseHoldFrames() = %d, want 4", cfg.GetReleaseHoldFrames())
		}
		if w := cfg.GetWeights(); w.Stability != 0 || w.ROM != 0.30 {
			t.Errorf("GetWeights() = %+v, want stability 0 and rom default", w)
		}
	}
}

func TestLoadProfileConfig_FileChecks(t *testing.T) {
	if _, err := LoadProfileConfig(writeFile(t, "curl.txt", minimalJSON)); err == nil {
		t.Error("expected error for .txt extension")
	}
	if _, err := LoadProfileConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadProfileConfig(writeFile(t, "bad.json", "{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}

	big := `{"description": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadProfileConfig(writeFile(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestValidate_Incomplete(t *testing.T) {
	fields := []string{
		"contracted_threshold", "extended_threshold", "min_valid_angle",
		"max_valid_angle", "ideal_rom_degrees", "tempo_min_seconds", "tempo_max_seconds",
	}
	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			cfg, err := ParseProfileJSON([]byte(minimalJSON))
			if err != nil {
				t.Fatalf("baseline failed: %v", err)
			}
			switch field {
			case "contracted_threshold":
				cfg.ContractedThreshold = nil
			case "extended_threshold":
				cfg.ExtendedThreshold = nil
			case "min_valid_angle":
				cfg.MinValidAngle = nil
			case "max_valid_angle":
				cfg.MaxValidAngle = nil
			case "ideal_rom_degrees":
				cfg.IdealROMDegrees = nil
			case "tempo_min_seconds":
				cfg.TempoMinSeconds = nil
			case "tempo_max_seconds":
				cfg.TempoMaxSeconds = nil
			}
			err = cfg.Validate()
			if !errors.Is(err, ErrIncompleteProfile) {
				t.Fatalf("Validate() = %v, want ErrIncompleteProfile", err)
			}
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error %q should name %s", err, field)
			}
		})
	}

	empty := &ProfileConfig{}
	if err := empty.Validate(); !errors.Is(err, ErrIncompleteProfile) {
		t.Errorf("empty profile: Validate() = %v, want ErrIncompleteProfile", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ProfileConfig)
	}{
		{"thresholds inverted for flexion", func(c *ProfileConfig) { c.ContractedThreshold = ptrFloat64(170) }},
		{"extension with flexion thresholds", func(c *ProfileConfig) { c.Direction = ptrString(DirectionExtension) }},
		{"unknown direction", func(c *ProfileConfig) { c.Direction = ptrString("sideways") }},
		{"angle above 180", func(c *ProfileConfig) { c.MaxValidAngle = ptrFloat64(200) }},
		{"valid range empty", func(c *ProfileConfig) { c.MinValidAngle = ptrFloat64(180) }},
		{"default side without joint", func(c *ProfileConfig) { c.DefaultSide = ptrString("left") }},
		{"zero smoothing window", func(c *ProfileConfig) { c.SmoothingWindow = ptrInt(0) }},
		{"confidence above one", func(c *ProfileConfig) { c.KeypointConfidence = ptrFloat64(1.5) }},
		{"tempo band inverted", func(c *ProfileConfig) { c.TempoMinSeconds = ptrFloat64(5) }},
		{"unknown short rep policy", func(c *ProfileConfig) { c.ShortRepPolicy = ptrString("ignore") }},
		{"negative weight", func(c *ProfileConfig) { c.Weights = &WeightsConfig{ROM: ptrFloat64(-1)} }},
		{"all weights zero", func(c *ProfileConfig) {
			c.Weights = &WeightsConfig{ROM: ptrFloat64(0), Smoothness: ptrFloat64(0), Tempo: ptrFloat64(0), Stability: ptrFloat64(0)}
		}},
		{"max rep samples below min", func(c *ProfileConfig) { c.MaxRepSamples = ptrInt(2) }},
		{"band without label", func(c *ProfileConfig) { c.ROMBands = []ROMBandConfig{{Min: 40, Max: 150}} }},
		{"stability without parts", func(c *ProfileConfig) { c.Stability = &StabilityConfig{Axis: "x"} }},
		{"stability bad axis", func(c *ProfileConfig) {
			c.Stability = &StabilityConfig{Right: []string{"right_elbow"}, Axis: "z"}
		}},
		{"unknown gate", func(c *ProfileConfig) { c.Gates = []GateConfig{{Type: "velocity"}} }},
		{"alignment gate too few parts", func(c *ProfileConfig) {
			c.Gates = []GateConfig{{Type: GateAlignment, Right: []string{"nose", "right_hip"}}}
		}},
		{"displacement gate bad range", func(c *ProfileConfig) {
			c.Gates = []GateConfig{{Type: GateDisplacement, Right: []string{"right_hip"}, Axis: "y",
				MinDisplacement: ptrFloat64(30), MaxDisplacement: ptrFloat64(10)}}
		}},
		{"gate bad trigger", func(c *ProfileConfig) {
			c.Gates = []GateConfig{{Type: GateDisplacement, Right: []string{"right_hip"}, Axis: "y", On: "always"}}
		}},
		{"bad joints key", func(c *ProfileConfig) {
			c.Joints["middle"] = JointConfig{Proximal: "nose", Vertex: "nose", Distal: "nose"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseProfileJSON([]byte(minimalJSON))
			if err != nil {
				t.Fatalf("baseline failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("Validate() = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestBuiltinProfiles(t *testing.T) {
	want := []string{"bicep_curl", "lunge", "pushup", "shoulder_press", "squat"}
	names := BuiltinNames()
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("BuiltinNames() = %v, want %v", names, want)
	}

	for _, name := range names {
		cfg, err := BuiltinProfile(name)
		if err != nil {
			t.Errorf("BuiltinProfile(%q) failed: %v", name, err)
			continue
		}
		if cfg.GetName() != name {
			t.Errorf("profile %q declares name %q", name, cfg.GetName())
		}
	}

	curl := MustBuiltinProfile("bicep_curl")
	if *curl.ContractedThreshold != 50 || *curl.ExtendedThreshold != 160 {
		t.Errorf("bicep_curl thresholds = %v/%v, want 50/160", *curl.ContractedThreshold, *curl.ExtendedThreshold)
	}
	if press := MustBuiltinProfile("shoulder_press"); press.GetDirection() != DirectionExtension {
		t.Errorf("shoulder_press direction = %q, want extension", press.GetDirection())
	}

	// Each call decodes a fresh copy.
	*curl.ContractedThreshold = 10
	if again := MustBuiltinProfile("bicep_curl"); *again.ContractedThreshold != 50 {
		t.Error("BuiltinProfile returned shared state")
	}

	if _, err := BuiltinProfile("deadlift"); err == nil {
		t.Error("expected error for unknown built-in")
	}
	defer func() {
		if recover() == nil {
			t.Error("MustBuiltinProfile should panic for unknown name")
		}
	}()
	MustBuiltinProfile("deadlift")
}
