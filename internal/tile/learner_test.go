package tile

import (
	"math"
	"testing"

	"github.com/banshee-data/tilewatch/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// makeGrids builds a size x size color grid plus the matching alias grid with
// the anchor marked as the player and everything else unknown.
func makeGrids(size int, anchor Pos, fill RGB) ([][]RGB, [][]string) {
	colors := make([][]RGB, size)
	aliases := make([][]string, size)
	for y := 0; y < size; y++ {
		colors[y] = make([]RGB, size)
		aliases[y] = make([]string, size)
		for x := 0; x < size; x++ {
			colors[y][x] = fill
			aliases[y][x] = AliasUnknown
		}
	}
	aliases[anchor.Y][anchor.X] = AliasPlayer
	return colors, aliases
}

func testParams() LearnerParams {
	return LearnerParams{
		WindowSize:          30,
		TopK:                3,
		MinObservations:     20,
		ConfidenceThreshold: 0.8,
	}
}

func TestScenarioA_StableColorQualifies(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	red := RGB{200, 50, 50}
	pos := Pos{8, 7} // right neighbor

	colors, aliases := makeGrids(15, anchor, red)
	for i := 0; i < 19; i++ {
		l.ProcessFrame(colors, aliases)
	}
	if l.IsCandidate(pos) {
		t.Fatalf("position qualified with only %d observations", l.WindowLen(pos))
	}

	l.ProcessFrame(colors, aliases)
	if !l.IsCandidate(pos) {
		t.Fatalf("expected candidacy after 20th observation, window=%d quality=%v",
			l.WindowLen(pos), l.Quality(pos))
	}
	if q := l.Quality(pos); q != 1.0 {
		t.Fatalf("expected confidence 1.0 for single value, got %v", q)
	}

	top := l.TopValues(pos)
	if len(top) != 1 {
		t.Fatalf("expected 1 retained value, got %d", len(top))
	}
	if top[0].Color != red || top[0].Count != 20 || top[0].Probability != 1.0 {
		t.Fatalf("unexpected top value %+v", top[0])
	}

	// 5 more identical frames keep it a candidate
	for i := 0; i < 5; i++ {
		l.ProcessFrame(colors, aliases)
	}
	if !l.IsCandidate(pos) {
		t.Fatal("candidacy lost on further identical observations")
	}
	if mrc, ok := l.MostRecentCandidate(); !ok || mrc != pos {
		t.Fatalf("most-recent candidate = %v, %v; want %v", mrc, ok, pos)
	}
}

func TestScenarioB_AlternatingColorsNearZeroConfidence(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	pos := Pos{8, 7}
	a := RGB{10, 20, 30}
	b := RGB{200, 210, 220}

	colorsA, aliases := makeGrids(15, anchor, a)
	colorsB, _ := makeGrids(15, anchor, b)
	for i := 0; i < 15; i++ {
		l.ProcessFrame(colorsA, aliases)
		l.ProcessFrame(colorsB, aliases)
	}

	top := l.TopValues(pos)
	if len(top) != 2 {
		t.Fatalf("expected 2 retained values, got %d", len(top))
	}
	for _, v := range top {
		if math.Abs(v.Probability-0.5) > 1e-9 {
			t.Fatalf("expected probability 0.5, got %v", v.Probability)
		}
	}
	if q := l.Quality(pos); q > 1e-9 {
		t.Fatalf("expected near-zero confidence for uniform split, got %v", q)
	}
	if l.IsCandidate(pos) {
		t.Fatal("uniform split must not clear a 0.8 confidence threshold")
	}

	// with a zero threshold the same evidence qualifies (forced-commit path)
	params := testParams()
	params.ConfidenceThreshold = 0
	l2 := NewLearner(params, anchor)
	for i := 0; i < 15; i++ {
		l2.ProcessFrame(colorsA, aliases)
		l2.ProcessFrame(colorsB, aliases)
	}
	if !l2.IsCandidate(pos) {
		t.Fatal("expected candidacy with zero threshold")
	}
}

func TestScenarioD_MostRecentCandidatePointer(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	p1 := Pos{6, 7} // left neighbor, processed first
	p2 := Pos{8, 7} // right neighbor, processed second

	colors, aliases := makeGrids(15, anchor, RGB{90, 90, 90})
	colors[p2.Y][p2.X] = RGB{40, 200, 40}
	// top and bottom neighbors are known, so only p1 and p2 are tracked
	aliases[6][7] = "block"
	aliases[8][7] = "block"
	for i := 0; i < 20; i++ {
		l.ProcessFrame(colors, aliases)
	}

	if !l.IsCandidate(p1) || !l.IsCandidate(p2) {
		t.Fatalf("expected both positions qualified; p1=%v p2=%v", l.IsCandidate(p1), l.IsCandidate(p2))
	}
	mrc, ok := l.MostRecentCandidate()
	if !ok || mrc != p2 {
		t.Fatalf("most-recent candidate = %v, want %v (later in processing order)", mrc, p2)
	}
}

func TestWindowBound(t *testing.T) {
	params := testParams()
	params.WindowSize = 5
	params.MinObservations = 3
	anchor := Pos{7, 7}
	l := NewLearner(params, anchor)
	pos := Pos{8, 7}

	colors, aliases := makeGrids(15, anchor, RGB{1, 2, 3})
	for i := 0; i < 50; i++ {
		l.ProcessFrame(colors, aliases)
		if n := l.WindowLen(pos); n > params.WindowSize {
			t.Fatalf("window length %d exceeds capacity %d", n, params.WindowSize)
		}
	}
	if n := l.WindowLen(pos); n != params.WindowSize {
		t.Fatalf("window length = %d, want %d", n, params.WindowSize)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	params := testParams()
	params.WindowSize = 10
	anchor := Pos{7, 7}
	l := NewLearner(params, anchor)
	pos := Pos{8, 7}

	old := RGB{5, 5, 5}
	cur := RGB{250, 250, 250}
	colorsOld, aliases := makeGrids(15, anchor, old)
	colorsCur, _ := makeGrids(15, anchor, cur)

	for i := 0; i < 10; i++ {
		l.ProcessFrame(colorsOld, aliases)
	}
	// 10 new observations roll every old one out
	for i := 0; i < 10; i++ {
		l.ProcessFrame(colorsCur, aliases)
	}

	top := l.TopValues(pos)
	if len(top) != 1 || top[0].Color != cur {
		t.Fatalf("expected only the new color retained, got %+v", top)
	}
}

func TestRenormalization(t *testing.T) {
	params := testParams()
	params.TopK = 3
	anchor := Pos{7, 7}
	l := NewLearner(params, anchor)
	pos := Pos{8, 7}

	// five distinct colors with uneven counts; retained K=3 must renormalize
	palette := []RGB{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}, {5, 0, 0}}
	colors, aliases := makeGrids(15, anchor, palette[0])
	for i := 0; i < 25; i++ {
		colors[pos.Y][pos.X] = palette[i%len(palette)]
		l.ProcessFrame(colors, aliases)

		top := l.TopValues(pos)
		if len(top) > params.TopK {
			t.Fatalf("retained %d values, bound is %d", len(top), params.TopK)
		}
		sum := 0.0
		for _, v := range top {
			sum += v.Probability
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("probabilities sum to %v after %d observations", sum, i+1)
		}
	}
}

func TestQualityConventions(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)

	if q := l.Quality(Pos{8, 7}); q != 0 {
		t.Fatalf("never-observed position quality = %v, want 0", q)
	}

	colors, aliases := makeGrids(15, anchor, RGB{9, 9, 9})
	l.ProcessFrame(colors, aliases)
	if q := l.Quality(Pos{8, 7}); q != 1.0 {
		t.Fatalf("single retained value quality = %v, want 1.0 by convention", q)
	}
}

func TestAnchorGating(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	pos := Pos{8, 7}

	colors, aliases := makeGrids(15, anchor, RGB{1, 1, 1})
	aliases[anchor.Y][anchor.X] = AliasUnknown // player not recognized
	l.ProcessFrame(colors, aliases)
	if n := l.WindowLen(pos); n != 0 {
		t.Fatalf("frame with unrecognized anchor was not skipped: window=%d", n)
	}

	// nil grids are skipped silently
	l.ProcessFrame(nil, aliases)
	l.ProcessFrame(colors, nil)
	if st := l.Stats(); st.TotalObservations != 0 {
		t.Fatalf("nil grids mutated state: %+v", st)
	}
}

func TestOnlyUnknownAdjacentCellsObserved(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)

	colors, aliases := makeGrids(15, anchor, RGB{1, 1, 1})
	aliases[7][6] = "block" // known left neighbor
	aliases[6][7] = "brick" // known top neighbor
	l.ProcessFrame(colors, aliases)

	if n := l.WindowLen(Pos{6, 7}); n != 0 {
		t.Fatal("known cell was tracked")
	}
	if n := l.WindowLen(Pos{7, 6}); n != 0 {
		t.Fatal("known cell was tracked")
	}
	if n := l.WindowLen(Pos{8, 7}); n != 1 {
		t.Fatalf("unknown right neighbor not tracked, window=%d", n)
	}
	// diagonal and distant cells are never tracked
	if n := l.WindowLen(Pos{8, 8}); n != 0 {
		t.Fatal("diagonal cell was tracked")
	}
}

func TestAnchorAtGridEdge(t *testing.T) {
	anchor := Pos{0, 0}
	l := NewLearner(testParams(), anchor)

	colors, aliases := makeGrids(3, anchor, RGB{1, 1, 1})
	// must not panic on out-of-bounds neighbors
	l.ProcessFrame(colors, aliases)
	if st := l.Stats(); st.PositionsTracked != 2 {
		t.Fatalf("expected 2 in-bounds neighbors tracked, got %d", st.PositionsTracked)
	}
}

func TestResetIdempotent(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	colors, aliases := makeGrids(15, anchor, RGB{1, 1, 1})
	for i := 0; i < 25; i++ {
		l.ProcessFrame(colors, aliases)
	}
	if _, ok := l.MostRecentCandidate(); !ok {
		t.Fatal("setup: expected a candidate before reset")
	}

	l.Reset()
	first := l.Stats()
	l.Reset()
	second := l.Stats()
	if first != second {
		t.Fatalf("double reset diverged: %+v vs %+v", first, second)
	}
	if first.PositionsTracked != 0 || first.CandidatesReady != 0 || first.TotalObservations != 0 {
		t.Fatalf("reset left tracked state: %+v", first)
	}
	if _, ok := l.MostRecentCandidate(); ok {
		t.Fatal("reset left most-recent candidate set")
	}

	// candidacy requires re-accumulating min_observations from scratch
	l.ProcessFrame(colors, aliases)
	if _, ok := l.MostRecentCandidate(); ok {
		t.Fatal("candidate available immediately after reset")
	}
}

func TestToggleKeepsState(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	colors, aliases := makeGrids(15, anchor, RGB{1, 1, 1})
	for i := 0; i < 10; i++ {
		l.ProcessFrame(colors, aliases)
	}

	if enabled := l.Toggle(); enabled {
		t.Fatal("expected toggle to disable learning")
	}
	before := l.Stats()
	for i := 0; i < 10; i++ {
		l.ProcessFrame(colors, aliases)
	}
	if after := l.Stats(); after != before {
		t.Fatalf("disabled learner mutated state: %+v vs %+v", after, before)
	}

	if enabled := l.Toggle(); !enabled {
		t.Fatal("expected toggle to re-enable learning")
	}
	l.ProcessFrame(colors, aliases)
	if n := l.WindowLen(Pos{8, 7}); n != 11 {
		t.Fatalf("window did not resume from retained state: %d", n)
	}
}

func TestRequalificationAfterConfidenceDip(t *testing.T) {
	params := testParams()
	params.WindowSize = 20
	params.MinObservations = 10
	params.ConfidenceThreshold = 0.9
	anchor := Pos{7, 7}
	l := NewLearner(params, anchor)
	pos := Pos{8, 7}

	stable := RGB{100, 100, 100}
	noise := RGB{0, 0, 0}
	colorsStable, aliases := makeGrids(15, anchor, stable)
	colorsNoise, _ := makeGrids(15, anchor, noise)

	for i := 0; i < 20; i++ {
		l.ProcessFrame(colorsStable, aliases)
	}
	if !l.IsCandidate(pos) {
		t.Fatal("setup: expected initial candidacy")
	}

	// a burst of noise drops confidence below threshold
	for i := 0; i < 6; i++ {
		l.ProcessFrame(colorsNoise, aliases)
	}
	if l.IsCandidate(pos) {
		t.Fatalf("expected candidacy lost, quality=%v", l.Quality(pos))
	}
	if _, ok := l.MostRecentCandidate(); ok {
		t.Fatal("pointer still set after its position dropped out")
	}

	// the window rolls the noise out and the position re-qualifies
	for i := 0; i < 20; i++ {
		l.ProcessFrame(colorsStable, aliases)
	}
	if !l.IsCandidate(pos) {
		t.Fatalf("expected re-qualification, quality=%v", l.Quality(pos))
	}
}

func TestStats(t *testing.T) {
	anchor := Pos{7, 7}
	l := NewLearner(testParams(), anchor)
	colors, aliases := makeGrids(15, anchor, RGB{1, 1, 1})
	for i := 0; i < 25; i++ {
		l.ProcessFrame(colors, aliases)
	}

	st := l.Stats()
	if st.PositionsTracked != 4 {
		t.Fatalf("positions tracked = %d, want 4", st.PositionsTracked)
	}
	if st.CandidatesReady != 4 {
		t.Fatalf("candidates ready = %d, want 4", st.CandidatesReady)
	}
	if st.TotalObservations != 100 {
		t.Fatalf("total observations = %d, want 100", st.TotalObservations)
	}
	if st.AvgConfidence != 1.0 {
		t.Fatalf("avg confidence = %v, want 1.0", st.AvgConfidence)
	}
}
