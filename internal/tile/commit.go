package tile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidate is returned by Commit when no position has qualified yet.
var ErrNoCandidate = errors.New("no candidate tile ready to commit")

// CommitResult describes a committed tile type.
type CommitResult struct {
	Alias      string  `json:"alias"`
	TypeID     TypeID  `json:"type_id"`
	Position   Pos     `json:"-"`
	Colors     []RGB   `json:"colors"`
	Animated   bool    `json:"animated"`
	Samples    int     `json:"samples"`
	Confidence float64 `json:"confidence"`
}

// Summary returns a one-line human-readable description for display.
func (r CommitResult) Summary() string {
	keys := make([]string, len(r.Colors))
	for i, c := range r.Colors {
		keys[i] = c.String()
	}
	kind := "tile"
	if r.Animated {
		kind = "animated tile"
	}
	return fmt.Sprintf("saved %s %q (type %d) colors=%s from %d samples (confidence %.2f)",
		kind, r.Alias, r.TypeID, strings.Join(keys, " "), r.Samples, r.Confidence)
}

// Commit materializes the most-recent candidate into registry entries. A
// single retained color becomes a static walkable tile; multiple retained
// colors become one animated type sharing a freshly allocated id, with every
// color mapped to it.
//
// The registry write is atomic: on persistence failure nothing is cleared and
// no id is consumed, so the caller can simply retry. Tracked state for the
// position is cleared only after a successful write.
func (l *Learner) Commit(reg *Registry) (*CommitResult, error) {
	pos, ok := l.MostRecentCandidate()
	if !ok {
		return nil, ErrNoCandidate
	}
	top := l.TopValues(pos)
	if len(top) == 0 {
		// should not happen while pos is a candidate; treated as no candidate
		return nil, ErrNoCandidate
	}

	alias, err := reg.NextLetterAlias()
	if err != nil {
		return nil, fmt.Errorf("allocate alias: %w", err)
	}

	colors := make([]RGB, len(top))
	for i, v := range top {
		colors[i] = v.Color
	}
	samples := l.WindowLen(pos)

	var props Properties
	var confidence float64
	animated := len(top) > 1
	if animated {
		// confidence reflects the weakest-evidenced frame
		confidence = top[0].Probability
		frames := make([]string, len(colors))
		for i, c := range colors {
			frames[i] = c.Key()
			if top[i].Probability < confidence {
				confidence = top[i].Probability
			}
		}
		props = Properties{
			Walkable:        true,
			Interactable:    true,
			Learned:         true,
			AnimationFrames: map[string][]string{"default": frames},
			Confidence:      confidence,
		}
	} else {
		confidence = l.Quality(pos)
		props = Properties{
			Walkable:     true,
			Interactable: false,
			Learned:      true,
			RGB:          colors[0].Key(),
			Confidence:   confidence,
		}
	}

	id, err := reg.DefineTile(alias, props, colors)
	if err != nil {
		return nil, fmt.Errorf("commit tile at %s: %w", pos, err)
	}

	l.clear(pos)

	return &CommitResult{
		Alias:      alias,
		TypeID:     id,
		Position:   pos,
		Colors:     colors,
		Animated:   animated,
		Samples:    samples,
		Confidence: confidence,
	}, nil
}
