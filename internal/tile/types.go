// Package tile implements symbolic classification of tile-grid frames and
// online discovery of unknown tile types from repeated color observations.
package tile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Reserved aliases. AliasUnknown is the fallback for colors with no registry
// mapping; AliasPlayer marks the anchor cell when the player sprite is
// recognized.
const (
	AliasUnknown = "unknown"
	AliasPlayer  = "player"
)

// TypeID identifies a tile type. IDs are allocated monotonically at commit
// time and never reused.
type TypeID int

// RGB is an averaged tile-cell color sample. It is treated as an opaque
// 3-component value; no range semantics beyond representability.
type RGB struct {
	R, G, B uint8
}

// Key returns the canonical "r,g,b" decimal form used as the color key in the
// persisted registry.
func (c RGB) Key() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

func (c RGB) String() string { return "(" + c.Key() + ")" }

// ParseColorKey parses a canonical "r,g,b" color key.
func ParseColorKey(key string) (RGB, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid color key %q: expected 3 components", key)
	}
	var vals [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return RGB{}, fmt.Errorf("invalid color key %q: component %q out of range", key, p)
		}
		vals[i] = uint8(n)
	}
	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

// MarshalJSON encodes the color as a [r,g,b] array, matching the recorded
// frame format.
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

// UnmarshalJSON decodes a [r,g,b] array.
func (c *RGB) UnmarshalJSON(data []byte) error {
	var arr [3]uint8
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("invalid rgb value: %w", err)
	}
	c.R, c.G, c.B = arr[0], arr[1], arr[2]
	return nil
}

// Pos is a cell position within the fixed-size grid.
type Pos struct {
	X, Y int
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// orthogonal neighbor offsets, in processing order
var adjacentOffsets = [4]Pos{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Classification is the resolved identity of one cell color: either a known
// type id or unknown. Resolving once per cell per frame avoids stringly-typed
// alias comparisons downstream.
type Classification struct {
	ID    TypeID
	Known bool
}

// Unknown is the zero Classification.
var Unknown = Classification{}

// Known returns a Classification for the given id.
func Known(id TypeID) Classification {
	return Classification{ID: id, Known: true}
}
