package position

import "testing"

// One test function so the order of the lifecycle checks is deterministic:
// the uninitialized panic must be observed before SetDefault runs.
func TestDefaultTrackerLifecycle(t *testing.T) {
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected Default to panic before initialization")
			}
		}()
		Default()
	}()

	first := NewTracker()
	SetDefault(first)

	if Default() != first {
		t.Error("expected Default to return the registered tracker")
	}

	// First registration wins, later calls are no-ops
	SetDefault(NewTracker())
	if Default() != first {
		t.Error("expected the first registered tracker to stay the default")
	}
}
