package bridge

import "sync"

// ChangeDetector remembers the last processed snapshot and reports whether
// a new one differs from it.
type ChangeDetector struct {
	mu   sync.Mutex
	last string
}

// Detect reports whether snapshot differs from the previous one. An empty
// snapshot never counts as a change and leaves the remembered one intact.
// On change the snapshot is remembered before Detect returns, so a failure
// further down the pipeline does not cause the same text to be processed
// again on the next tick.
func (d *ChangeDetector) Detect(snapshot string) bool {
	if snapshot == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if snapshot == d.last {
		return false
	}
	d.last = snapshot
	return true
}

// Last returns the remembered snapshot.
func (d *ChangeDetector) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
