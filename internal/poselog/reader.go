// Package poselog reads recorded pose streams in JSON-lines form, one frame
// per line:
//
//	{"t_ms": 1700000000123, "keypoints": [[x, y, confidence], ... 17 entries]}
//	{"t_ms": 1700000000156, "keypoints": null}
//
// t_ms is optional; a null or missing keypoints array is a frame in which
// no person was detected. Blank lines are skipped.
package poselog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/tracker"
)

// ErrMalformedFrame wraps every decoding failure; the message carries the
// line number.
var ErrMalformedFrame = errors.New("malformed pose frame")

const maxLineBytes = 1 << 20

type record struct {
	TMs       *int64      `json:"t_ms"`
	Keypoints [][]float64 `json:"keypoints"`
}

// Reader decodes frames from a JSON-lines stream.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc}
}

// Line returns the number of the line most recently read.
func (r *Reader) Line() int { return r.line }

// Next returns the next frame, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (tracker.Frame, error) {
	for r.sc.Scan() {
		r.line++
		b := r.sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		return decode(b, r.line)
	}
	if err := r.sc.Err(); err != nil {
		return tracker.Frame{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return tracker.Frame{}, io.EOF
}

// ReadAll decodes every remaining frame.
func (r *Reader) ReadAll() ([]tracker.Frame, error) {
	var frames []tracker.Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func decode(b []byte, line int) (tracker.Frame, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return tracker.Frame{}, fmt.Errorf("%w: line %d: %v", ErrMalformedFrame, line, err)
	}

	var f tracker.Frame
	if rec.TMs != nil {
		f.Timestamp = time.UnixMilli(*rec.TMs).UTC()
	}
	if rec.Keypoints == nil {
		return f, nil
	}
	if len(rec.Keypoints) != pose.NumKeypoints {
		return tracker.Frame{}, fmt.Errorf("%w: line %d: %d keypoints, want %d",
			ErrMalformedFrame, line, len(rec.Keypoints), pose.NumKeypoints)
	}

	var p pose.Pose
	for i, kp := range rec.Keypoints {
		if len(kp) != 3 {
			return tracker.Frame{}, fmt.Errorf("%w: line %d: keypoint %s has %d values, want [x, y, confidence]",
				ErrMalformedFrame, line, pose.BodyPart(i), len(kp))
		}
		x, y, c := kp[0], kp[1], kp[2]
		if !finite(x) || !finite(y) || !finite(c) || c < 0 || c > 1 {
			return tracker.Frame{}, fmt.Errorf("%w: line %d: keypoint %s = %v",
				ErrMalformedFrame, line, pose.BodyPart(i), kp)
		}
		p[i] = pose.Keypoint{X: x, Y: y, Confidence: c}
	}
	f.Pose = &p
	return f, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
