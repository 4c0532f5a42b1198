package position

import "sync"

var (
	defaultMu      sync.Mutex
	defaultTracker *Tracker
)

// SetDefault registers the process-wide tracker. Called once by the agent
// manager during startup; subsequent calls are no-ops so the first
// registration wins.
func SetDefault(t *Tracker) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTracker == nil {
		defaultTracker = t
	}
}

// Default returns the process-wide tracker for call sites that are too far
// from the composition point to receive it by reference. Calling it before
// SetDefault is a programming error and panics.
func Default() *Tracker {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTracker == nil {
		panic("position: Default called before the tracker was initialized by the agent manager")
	}
	return defaultTracker
}
