package frame

import (
	"math/rand"

	"github.com/banshee-data/tilewatch/internal/tile"
)

// SyntheticSource generates frames from a fixed base grid, optionally
// flickering chosen cells between several colors. Used for demo mode and
// tests where no recording is available.
type SyntheticSource struct {
	base    [][]tile.RGB
	flicker map[tile.Pos][]tile.RGB
	rng     *rand.Rand
	frame   int
}

// NewSyntheticSource creates a source over a base grid. flicker maps a
// position to the set of colors it cycles through; other cells are constant.
func NewSyntheticSource(base [][]tile.RGB, flicker map[tile.Pos][]tile.RGB, seed int64) *SyntheticSource {
	return &SyntheticSource{
		base:    base,
		flicker: flicker,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next returns a copy of the base grid with flickering cells resolved for
// this frame. Never returns an error.
func (s *SyntheticSource) Next() (*Frame, error) {
	colors := make([][]tile.RGB, len(s.base))
	for y, row := range s.base {
		colors[y] = make([]tile.RGB, len(row))
		copy(colors[y], row)
	}
	for p, opts := range s.flicker {
		if len(opts) == 0 {
			continue
		}
		colors[p.Y][p.X] = opts[s.rng.Intn(len(opts))]
	}
	s.frame++
	return &Frame{Colors: colors}, nil
}

// UniformGrid builds a size x size grid filled with one color.
func UniformGrid(size int, fill tile.RGB) [][]tile.RGB {
	g := make([][]tile.RGB, size)
	for y := range g {
		g[y] = make([]tile.RGB, size)
		for x := range g[y] {
			g[y][x] = fill
		}
	}
	return g
}
