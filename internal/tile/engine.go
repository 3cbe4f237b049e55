package tile

import (
	"sync"

	"github.com/banshee-data/tilewatch/internal/monitoring"
)

// Recorder receives learning telemetry. Implemented by learndb.DB; recording
// failures are logged and never block the learning loop.
type Recorder interface {
	RecordCommit(res *CommitResult) error
	RecordFrameStats(frameIdx int, st Stats) error
}

// Engine is the caller-facing control surface tying the registry and learner
// together. Frame processing itself is single-threaded; the mutex only
// serializes control calls arriving from the HTTP surface against the loop.
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	learner  *Learner
	recorder Recorder
	frameIdx int
}

// NewEngine creates an Engine. recorder may be nil.
func NewEngine(reg *Registry, learner *Learner, recorder Recorder) *Engine {
	return &Engine{registry: reg, learner: learner, recorder: recorder}
}

// Registry exposes the engine's registry for read access.
func (e *Engine) Registry() *Registry { return e.registry }

// Process classifies one frame and feeds it to the learner. A nil frame is a
// no-op. Returns the resolved alias grid for display.
func (e *Engine) Process(colors [][]RGB) [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if colors == nil {
		return nil
	}
	aliases := e.registry.AliasGrid(colors)
	e.learner.ProcessFrame(colors, aliases)
	e.frameIdx++

	if e.recorder != nil {
		if err := e.recorder.RecordFrameStats(e.frameIdx, e.learner.Stats()); err != nil {
			monitoring.Logf("record frame stats: %v", err)
		}
	}
	return aliases
}

// Commit saves the most-recent candidate to the registry. See Learner.Commit.
func (e *Engine) Commit() (*CommitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.learner.Commit(e.registry)
	if err != nil {
		return nil, err
	}
	if e.recorder != nil {
		if rerr := e.recorder.RecordCommit(res); rerr != nil {
			monitoring.Logf("record commit: %v", rerr)
		}
	}
	return res, nil
}

// Reset discards all in-flight learning state without touching the registry.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learner.Reset()
}

// Toggle flips learning on or off, preserving tracked state. Returns the new
// enabled state.
func (e *Engine) Toggle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Toggle()
}

// Stats returns a snapshot of tracker statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Stats()
}
