// Package content canonicalizes fetched page content for stable comparison.
package content

import "strings"

// Normalize collapses every run of whitespace to a single space and trims
// both ends.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
