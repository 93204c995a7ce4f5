package brain

import "sync"

// Level bounds and the default decision threshold.
const (
	levelMin         = 0
	levelMax         = 100
	DefaultThreshold = 70
)

// Willingness tracks per-source chat drive on a 0 to 100 scale.
// Addressed traffic always gets a reply and feeds the drive; ambient
// group traffic gets one only when the level crosses the threshold,
// which spends the accumulated drive.
type Willingness struct {
	mu        sync.Mutex
	levels    map[string]float64
	threshold float64
	raiseStep float64
	decayStep float64
}

func NewWillingness(threshold float64) *Willingness {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Willingness{
		levels:    make(map[string]float64),
		threshold: threshold,
		raiseStep: 15,
		decayStep: 5,
	}
}

// Raise adds to a source's level, capped at 100.
func (w *Willingness) Raise(source string, amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.levels[source] = clamp(w.levels[source] + amount)
}

// Lower subtracts from a source's level, floored at 0.
func (w *Willingness) Lower(source string, amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.levels[source] = clamp(w.levels[source] - amount)
}

// Observe feeds one unit of ambient traffic into the drive.
func (w *Willingness) Observe(source string) {
	w.Raise(source, w.raiseStep)
}

// ShouldReply decides whether this unit deserves a reply. Addressed
// units always do. Ambient units reply once the level crosses the
// threshold, which resets the level; otherwise the level decays.
func (w *Willingness) ShouldReply(source string, addressed bool) bool {
	if addressed {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.levels[source] >= w.threshold {
		w.levels[source] = levelMin
		return true
	}
	w.levels[source] = clamp(w.levels[source] - w.decayStep)
	return false
}

// Level reports a source's current drive.
func (w *Willingness) Level(source string) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.levels[source]
}

func clamp(v float64) float64 {
	if v < levelMin {
		return levelMin
	}
	if v > levelMax {
		return levelMax
	}
	return v
}
