package tile

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tilewatch/internal/monitoring"
)

// LearnerParams configures the rolling-window belief tracker.
type LearnerParams struct {
	// WindowSize is the observation window capacity per position.
	WindowSize int
	// TopK bounds how many distinct colors the belief distribution retains.
	TopK int
	// MinObservations is the window length required before a position can
	// qualify as a candidate.
	MinObservations int
	// ConfidenceThreshold is the entropy-derived confidence a position must
	// reach to qualify. Range [0,1].
	ConfidenceThreshold float64
}

// DefaultLearnerParams matches the tuned values used in live runs.
func DefaultLearnerParams() LearnerParams {
	return LearnerParams{
		WindowSize:          30,
		TopK:                3,
		MinObservations:     20,
		ConfidenceThreshold: 0.8,
	}
}

// BeliefValue is one retained color with its count inside the window and its
// probability after renormalizing over the retained values.
type BeliefValue struct {
	Color       RGB
	Count       int
	Probability float64
}

// cellBelief is the tracked state for one position: a FIFO window of raw
// observations. The belief distribution is derived from the window on demand,
// which lets the tracker recover from early misobservations and later
// recognize animated tiles.
type cellBelief struct {
	window []RGB
}

// Stats summarizes tracker state for display and logging.
type Stats struct {
	PositionsTracked  int     `json:"positions_tracked"`
	CandidatesReady   int     `json:"candidates_ready"`
	TotalObservations int     `json:"total_observations"`
	AvgConfidence     float64 `json:"avg_confidence"`
}

// Learner tracks per-position color beliefs for unknown cells adjacent to the
// anchor, and promotes positions to commit candidates once their evidence
// clears the promotion rule. It assumes a single logical owner; the Engine
// serializes access.
type Learner struct {
	params  LearnerParams
	anchor  Pos
	enabled bool

	tracked    map[Pos]*cellBelief
	candidates map[Pos]bool
	// mostRecent points at the latest position to qualify; it is the default
	// commit target. nil when nothing is qualified.
	mostRecent *Pos
}

// NewLearner creates a Learner with the given anchor cell.
func NewLearner(params LearnerParams, anchor Pos) *Learner {
	return &Learner{
		params:     params,
		anchor:     anchor,
		enabled:    true,
		tracked:    make(map[Pos]*cellBelief),
		candidates: make(map[Pos]bool),
	}
}

// Enabled reports whether learning is active.
func (l *Learner) Enabled() bool { return l.enabled }

// Toggle flips learning on or off without discarding tracked state.
func (l *Learner) Toggle() bool {
	l.enabled = !l.enabled
	return l.enabled
}

// Reset discards all tracked state: windows, candidacy, and the most-recent
// pointer. Committed registry definitions are untouched. Calling Reset twice
// is the same as calling it once.
func (l *Learner) Reset() {
	l.tracked = make(map[Pos]*cellBelief)
	l.candidates = make(map[Pos]bool)
	l.mostRecent = nil
}

// ProcessFrame feeds one frame through the tracker. The frame is skipped
// entirely when learning is disabled, either grid is nil, or the anchor cell
// is not currently recognized as the player (mid-transition frames would
// otherwise pollute the windows).
func (l *Learner) ProcessFrame(colors [][]RGB, aliases [][]string) {
	if !l.enabled || colors == nil || aliases == nil {
		return
	}
	if !inBounds(l.anchor, aliases) || aliases[l.anchor.Y][l.anchor.X] != AliasPlayer {
		return
	}

	for _, off := range adjacentOffsets {
		p := Pos{X: l.anchor.X + off.X, Y: l.anchor.Y + off.Y}
		if !inBounds(p, aliases) {
			continue
		}
		if aliases[p.Y][p.X] != AliasUnknown {
			continue
		}
		l.observe(p, colors[p.Y][p.X])
		l.evaluate(p)
	}
}

func inBounds(p Pos, aliases [][]string) bool {
	return p.Y >= 0 && p.Y < len(aliases) && p.X >= 0 && p.X < len(aliases[p.Y])
}

// observe appends one color sample to the position's window, evicting the
// oldest sample at capacity.
func (l *Learner) observe(p Pos, c RGB) {
	cb, ok := l.tracked[p]
	if !ok {
		cb = &cellBelief{window: make([]RGB, 0, l.params.WindowSize)}
		l.tracked[p] = cb
	}
	if len(cb.window) >= l.params.WindowSize {
		n := copy(cb.window, cb.window[1:])
		cb.window = cb.window[:n]
	}
	cb.window = append(cb.window, c)
}

// evaluate applies the promotion rule to one position after an observation.
// A position is a candidate iff its window is long enough and its confidence
// clears the threshold; as the window rolls it may drop out and re-qualify.
func (l *Learner) evaluate(p Pos) {
	cb := l.tracked[p]
	qualified := len(cb.window) >= l.params.MinObservations &&
		l.Quality(p) >= l.params.ConfidenceThreshold

	if !qualified {
		delete(l.candidates, p)
		if l.mostRecent != nil && *l.mostRecent == p {
			l.mostRecent = nil
		}
		return
	}

	fresh := !l.candidates[p]
	l.candidates[p] = true
	pos := p
	l.mostRecent = &pos
	if fresh {
		l.suggest(p)
	}
}

// suggest logs an advisory notification that a position is ready to commit.
func (l *Learner) suggest(p Pos) {
	top := l.TopValues(p)
	var b strings.Builder
	for i, v := range top {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.Color.String())
		b.WriteString(" x")
		b.WriteString(strconv.Itoa(v.Count))
		b.WriteString(" p=")
		b.WriteString(strconv.FormatFloat(v.Probability, 'f', 2, 64))
	}
	monitoring.Logf("tile suggestion ready at %s: confidence=%.2f samples=%d values=[%s]",
		p, l.Quality(p), len(l.tracked[p].window), b.String())
}

// TopValues returns the belief distribution for a position: the top-K colors
// by window count, renormalized so the retained probabilities sum to 1. The
// slice is ordered by descending count; ties break toward the color seen
// first in the window so the result is deterministic.
func (l *Learner) TopValues(p Pos) []BeliefValue {
	cb, ok := l.tracked[p]
	if !ok || len(cb.window) == 0 {
		return nil
	}

	counts := make(map[RGB]int)
	firstSeen := make(map[RGB]int)
	for i, c := range cb.window {
		if _, ok := counts[c]; !ok {
			firstSeen[c] = i
		}
		counts[c]++
	}

	vals := make([]BeliefValue, 0, len(counts))
	for c, n := range counts {
		vals = append(vals, BeliefValue{Color: c, Count: n})
	}
	sort.Slice(vals, func(i, j int) bool {
		if vals[i].Count != vals[j].Count {
			return vals[i].Count > vals[j].Count
		}
		return firstSeen[vals[i].Color] < firstSeen[vals[j].Color]
	})
	if len(vals) > l.params.TopK {
		vals = vals[:l.params.TopK]
	}

	total := 0
	for _, v := range vals {
		total += v.Count
	}
	for i := range vals {
		vals[i].Probability = float64(vals[i].Count) / float64(total)
	}
	return vals
}

// Quality returns the entropy-derived confidence for a position in [0,1]:
// 1 - H/Hmax over the retained distribution, where Hmax is the entropy of the
// uniform distribution over the same number of values. A single retained
// value is 1.0 by convention; an untracked position is 0.
func (l *Learner) Quality(p Pos) float64 {
	vals := l.TopValues(p)
	if len(vals) == 0 {
		return 0
	}
	if len(vals) == 1 {
		return 1
	}
	probs := make([]float64, len(vals))
	for i, v := range vals {
		probs[i] = v.Probability
	}
	// The H/Hmax ratio is base-invariant, so gonum's natural-log entropy
	// normalized by ln(n) matches the log2 definition exactly.
	h := stat.Entropy(probs)
	hmax := math.Log(float64(len(probs)))
	q := 1 - h/hmax
	if q < 0 {
		return 0
	}
	return q
}

// WindowLen returns the current observation count for a position.
func (l *Learner) WindowLen(p Pos) int {
	cb, ok := l.tracked[p]
	if !ok {
		return 0
	}
	return len(cb.window)
}

// IsCandidate reports whether a position currently satisfies the promotion
// rule.
func (l *Learner) IsCandidate(p Pos) bool { return l.candidates[p] }

// MostRecentCandidate returns the default commit target, or false if nothing
// is qualified.
func (l *Learner) MostRecentCandidate() (Pos, bool) {
	if l.mostRecent == nil {
		return Pos{}, false
	}
	return *l.mostRecent, true
}

// clear drops all tracked state for a position. Called exactly once per
// position, at commit.
func (l *Learner) clear(p Pos) {
	delete(l.tracked, p)
	delete(l.candidates, p)
	if l.mostRecent != nil && *l.mostRecent == p {
		l.mostRecent = nil
	}
}

// Stats summarizes the tracker: positions tracked, qualified candidates,
// total buffered observations, and mean confidence across tracked positions.
func (l *Learner) Stats() Stats {
	st := Stats{
		PositionsTracked: len(l.tracked),
		CandidatesReady:  len(l.candidates),
	}
	var confSum float64
	for p, cb := range l.tracked {
		st.TotalObservations += len(cb.window)
		confSum += l.Quality(p)
	}
	if len(l.tracked) > 0 {
		st.AvgConfidence = confSum / float64(len(l.tracked))
	}
	return st
}
