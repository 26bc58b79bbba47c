// Package memory implements the monitor stores in process memory. Data does
// not survive a restart; it backs development runs and tests.
package memory

import (
	"time"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

func clockOrDefault(c monitor.Clock) monitor.Clock {
	if c == nil {
		return wallClock{}
	}
	return c
}
