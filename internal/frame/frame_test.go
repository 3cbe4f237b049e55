package frame

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/tilewatch/internal/tile"
)

func writeTestRecording(t *testing.T, frames []*Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create recording: %v", err)
	}
	defer f.Close()
	if err := WriteRecording(f, frames); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func twoFrames() []*Frame {
	return []*Frame{
		{Colors: [][]tile.RGB{{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}}}},
		{Colors: [][]tile.RGB{{{R: 7, G: 8, B: 9}, {R: 10, G: 11, B: 12}}}},
	}
}

func TestReplayRoundTrip(t *testing.T) {
	path := writeTestRecording(t, twoFrames())

	src, err := NewReplaySource(path, false)
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	defer src.Close()

	fr1, err := src.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if got := fr1.Colors[0][0]; got != (tile.RGB{R: 1, G: 2, B: 3}) {
		t.Fatalf("first frame color = %v", got)
	}

	fr2, err := src.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if got := fr2.Colors[0][1]; got != (tile.RGB{R: 10, G: 11, B: 12}) {
		t.Fatalf("second frame color = %v", got)
	}

	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of recording, got %v", err)
	}
}

func TestReplayLoopRewinds(t *testing.T) {
	path := writeTestRecording(t, twoFrames())

	src, err := NewReplaySource(path, true)
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	defer src.Close()

	// five reads over a two-frame recording must not hit EOF
	for i := 0; i < 5; i++ {
		if _, err := src.Next(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
}

func TestReplayRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := NewReplaySource(path, false)
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	defer src.Close()
	if _, err := src.Next(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSyntheticSourceFlicker(t *testing.T) {
	base := UniformGrid(5, tile.RGB{R: 132, G: 132, B: 132})
	p := tile.Pos{X: 1, Y: 2}
	options := []tile.RGB{{R: 200, G: 50, B: 50}, {R: 210, G: 60, B: 60}}
	src := NewSyntheticSource(base, map[tile.Pos][]tile.RGB{p: options}, 1)

	seen := make(map[tile.RGB]bool)
	for i := 0; i < 50; i++ {
		fr, err := src.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		// base cells stay constant
		if fr.Colors[0][0] != base[0][0] {
			t.Fatalf("base cell changed: %v", fr.Colors[0][0])
		}
		c := fr.Colors[p.Y][p.X]
		if c != options[0] && c != options[1] {
			t.Fatalf("flicker cell produced %v, not in option set", c)
		}
		seen[c] = true
		// frames are independent copies
		fr.Colors[0][0] = tile.RGB{R: 255}
	}
	if len(seen) != 2 {
		t.Fatalf("expected both flicker colors over 50 frames, saw %d", len(seen))
	}
}
