//go:build !linux

package fastmixer

import "time"

// sleepPrecise sleeps for d.
func sleepPrecise(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
