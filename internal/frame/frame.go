// Package frame defines the frame source consumed by the learning loop and
// provides replay and synthetic implementations. Live screen capture sits
// outside this module; captured runs are recorded as JSONL and replayed here.
package frame

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/tilewatch/internal/tile"
)

// Frame is one snapshot: a fixed-size grid of averaged RGB samples, one per
// tile cell.
type Frame struct {
	Colors [][]tile.RGB `json:"colors"`
}

// Source yields frames in capture order. Next returns io.EOF when the source
// is exhausted.
type Source interface {
	Next() (*Frame, error)
}

// ReplaySource reads frames from a JSONL recording, one frame object per
// line. With Loop set it rewinds at end of file instead of returning io.EOF.
type ReplaySource struct {
	path string
	loop bool
	f    *os.File
	sc   *bufio.Scanner
}

// NewReplaySource opens a JSONL recording.
func NewReplaySource(path string, loop bool) (*ReplaySource, error) {
	r := &ReplaySource{path: path, loop: loop}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ReplaySource) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open recording %s: %w", r.path, err)
	}
	r.f = f
	r.sc = bufio.NewScanner(f)
	r.sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return nil
}

// Next returns the next recorded frame.
func (r *ReplaySource) Next() (*Frame, error) {
	for {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return nil, fmt.Errorf("read recording %s: %w", r.path, err)
			}
			if !r.loop {
				return nil, io.EOF
			}
			r.f.Close()
			if err := r.open(); err != nil {
				return nil, err
			}
			continue
		}
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var fr Frame
		if err := json.Unmarshal(line, &fr); err != nil {
			return nil, fmt.Errorf("parse recording %s: %w", r.path, err)
		}
		return &fr, nil
	}
}

// Close releases the underlying file.
func (r *ReplaySource) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

// WriteRecording writes frames to w in the JSONL recording format.
func WriteRecording(w io.Writer, frames []*Frame) error {
	enc := json.NewEncoder(w)
	for _, fr := range frames {
		if err := enc.Encode(fr); err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
	}
	return nil
}
