package poselog

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keypoints renders 17 keypoints; keypoint i sits at (i, 2i) with the given
// confidence.
func keypoints(conf float64) string {
	parts := make([]string, pose.NumKeypoints)
	for i := range parts {
		parts[i] = fmt.Sprintf("[%d,%d,%g]", i, 2*i, conf)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestReader_Frames(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"t_ms": 1000, "keypoints": ` + keypoints(0.9) + `}`,
		``,
		`{"t_ms": 1033, "keypoints": null}`,
		`   `,
		`{"keypoints": ` + keypoints(0.25) + `}`,
		`{}`,
	}, "\n")

	r := NewReader(strings.NewReader(input))
	frames, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, frames, 4)

	f := frames[0]
	assert.Equal(t, time.UnixMilli(1000).UTC(), f.Timestamp)
	require.NotNil(t, f.Pose)
	assert.Equal(t, pose.Keypoint{X: 7, Y: 14, Confidence: 0.9}, f.Pose.At(pose.LeftElbow))
	assert.Equal(t, pose.NumKeypoints, f.Pose.ConfidentCount(0.5))

	assert.Nil(t, frames[1].Pose)
	assert.Equal(t, time.UnixMilli(1033).UTC(), frames[1].Timestamp)

	require.NotNil(t, frames[2].Pose)
	assert.True(t, frames[2].Timestamp.IsZero())
	assert.Zero(t, frames[2].Pose.ConfidentCount(0.5))

	assert.Nil(t, frames[3].Pose)
	assert.True(t, frames[3].Timestamp.IsZero())

	assert.Equal(t, 6, r.Line())
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want string
	}{
		{"not json", `{"t_ms": 1,`, "line 2"},
		{"short pose", `{"keypoints": [[1,2,0.5]]}`, "1 keypoints, want 17"},
		{"short triple", `{"keypoints": ` + strings.Replace(keypoints(0.5), "[0,0,0.5]", "[0,0]", 1) + `}`, "has 2 values"},
		{"confidence above one", `{"keypoints": ` + keypoints(1.5) + `}`, "keypoint nose"},
		{"negative confidence", `{"keypoints": ` + keypoints(-0.1) + `}`, "keypoint nose"},
		{"bad timestamp", `{"t_ms": "soon", "keypoints": null}`, "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(strings.NewReader(`{"keypoints": null}` + "\n" + tt.line + "\n"))
			_, err := r.Next()
			require.NoError(t, err)

			_, err = r.Next()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "err = %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReader_ReadAllStopsAtError(t *testing.T) {
	t.Parallel()

	input := `{"keypoints": null}` + "\n" + `{"keypoints": null}` + "\n" + `garbage` + "\n" + `{"keypoints": null}`
	frames, err := NewReader(strings.NewReader(input)).ReadAll()
	assert.Len(t, frames, 2)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Contains(t, err.Error(), "line 3")
}
