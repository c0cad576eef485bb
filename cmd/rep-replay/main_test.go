package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/rep.report/internal/db"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	TMs       int64        `json:"t_ms"`
	Keypoints [][3]float64 `json:"keypoints"`
}

// curlLog renders n smooth curls of the given side's elbow as a pose log,
// frames 100ms apart, preceded by a frame with nobody in view.
func curlLog(t *testing.T, side pose.Side, n int) string {
	t.Helper()
	p, err := profile.Builtin("bicep_curl")
	require.NoError(t, err)
	tri, ok := p.Joint(side)
	require.True(t, ok)

	var b strings.Builder
	b.WriteString(`{"t_ms": 0, "keypoints": null}` + "\n")
	ms := int64(100)
	angles := append(testutil.Triangle(35, 170, 40, n), testutil.Constant(170, 10)...)
	for _, a := range angles {
		ps := testutil.PoseWithAngle(a, tri)
		line := logLine{TMs: ms}
		for _, kp := range ps {
			line.Keypoints = append(line.Keypoints, [3]float64{kp.X, kp.Y, kp.Confidence})
		}
		data, err := json.Marshal(line)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
		ms += 100
	}
	return b.String()
}

func TestFlagDefaults(t *testing.T) {
	if *profileName != "bicep_curl" {
		t.Errorf("expected -profile default bicep_curl, got %q", *profileName)
	}
	if *inputPath != "-" {
		t.Errorf("expected -input default -, got %q", *inputPath)
	}
	if *dbPath != "" || *plotPath != "" || *chartPath != "" {
		t.Error("expected outputs to be disabled by default")
	}
	if *debug || *showVersion {
		t.Error("expected -debug and -version to default to false")
	}
}

func TestRun_PrintsRepsAndSummary(t *testing.T) {
	var out bytes.Buffer
	err := run(options{profileName: "bicep_curl"}, strings.NewReader(curlLog(t, pose.SideRight, 3)), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "rep 1  rom=good")
	assert.Contains(t, text, "rep 3  rom=good")
	assert.NotContains(t, text, "rep 4")
	assert.Contains(t, text, "reps       3 (flagged 0, discarded 0)")
	assert.Contains(t, text, "rom good       3")
}

func TestRun_Outputs(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		profileName: "bicep_curl",
		side:        "left",
		dbPath:      filepath.Join(dir, "reps.db"),
		plotPath:    filepath.Join(dir, "reps.png"),
		chartPath:   filepath.Join(dir, "reps.html"),
	}
	var out bytes.Buffer
	require.NoError(t, run(opts, strings.NewReader(curlLog(t, pose.SideLeft, 2)), &out))

	store, err := db.OpenDB(opts.dbPath)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "bicep_curl", s.Exercise)
	assert.Equal(t, "left", s.Side)
	assert.Equal(t, 2, s.RepCount)
	require.NotNil(t, s.EndedAt)

	reps, err := store.Reps(s.SessionID)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, pose.SideLeft, reps[0].Side)

	for _, p := range []string{opts.plotPath, opts.chartPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), p)
	}
}

func TestRun_NoRepsSkipsPlots(t *testing.T) {
	dir := t.TempDir()
	opts := options{profileName: "squat", plotPath: filepath.Join(dir, "none.png")}
	var out bytes.Buffer
	require.NoError(t, run(opts, strings.NewReader(`{"keypoints": null}`+"\n"), &out))
	assert.Contains(t, out.String(), "reps       0")
	_, err := os.Stat(opts.plotPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(options{profileName: "deadlift"}, strings.NewReader(""), &out))
	assert.Error(t, run(options{profileName: "bicep_curl", side: "middle"}, strings.NewReader(""), &out))
	assert.Error(t, run(options{profileFile: filepath.Join(t.TempDir(), "missing.json")}, strings.NewReader(""), &out))
	assert.Error(t, run(options{profileName: "bicep_curl"}, strings.NewReader("not json\n"), &out))
}

func TestRun_ProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curl.yaml")
	yaml := `name: slow_curl
joints:
  right: {proximal: right_shoulder, vertex: right_elbow, distal: right_wrist}
contracted_threshold: 50
extended_threshold: 160
min_valid_angle: 30
max_valid_angle: 180
rom_bands:
  - {label: full, min: 45, max: 155}
ideal_rom_degrees: 130
tempo_min_seconds: 0.5
tempo_max_seconds: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(options{profileFile: path}, strings.NewReader(curlLog(t, pose.SideRight, 1)), &out))
	assert.Contains(t, out.String(), "rep 1  rom=full")
	assert.Contains(t, out.String(), "slow_curl")
}
