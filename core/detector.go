package core

import "github.com/shopspring/decimal"

// ═══════════════════════════════════════════════════════════════════════════════
// EXPLOSION DETECTOR - Flags candidate upward moves
// ═══════════════════════════════════════════════════════════════════════════════

var two = decimal.NewFromInt(2)

// Detector evaluates window snapshots against the configured growth threshold.
type Detector struct {
	settings *Settings
}

// NewDetector creates a detector bound to live settings.
func NewDetector(settings *Settings) *Detector {
	return &Detector{settings: settings}
}

// Detect reports whether the snapshot shows a candidate explosion: the high
// came after the low, net movement is positive, the window mean sits above the
// midpoint of its range (a single spike followed by decay drags the mean below
// the midpoint), and relative growth clears the threshold.
func (d *Detector) Detect(snap WindowSnapshot) bool {
	if !snap.Min.Value.IsPositive() {
		return false
	}
	if snap.Max.Time <= snap.Min.Time {
		return false
	}
	if !snap.Last.Value.GreaterThan(snap.First.Value) {
		return false
	}

	midpoint := snap.Max.Value.Sub(snap.Min.Value).Div(two).Add(snap.Min.Value)
	if !snap.Mean.GreaterThan(midpoint) {
		return false
	}

	return snap.Growth().GreaterThan(d.settings.ExplosionThreshold())
}
