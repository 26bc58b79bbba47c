// Package detector decides whether a fresh fingerprint represents a change.
package detector

import "github.com/JakeFAU/sellerguard/internal/monitor"

// IsChanged reports whether currentFingerprint differs from the previous
// snapshot. A target without a previous snapshot is never considered changed:
// there is nothing to diff against.
func IsChanged(previous *monitor.Snapshot, currentFingerprint string) bool {
	if previous == nil {
		return false
	}
	return previous.ContentFingerprint != currentFingerprint
}
