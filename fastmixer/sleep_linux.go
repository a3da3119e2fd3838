//go:build linux

package fastmixer

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// sleepPrecise sleeps for d using nanosleep, resuming after signals.
func sleepPrecise(d time.Duration) {
	if d <= 0 {
		return
	}
	ts := unix.NsecToTimespec(int64(d))
	for {
		var rem unix.Timespec
		err := unix.Nanosleep(&ts, &rem)
		if !errors.Is(err, unix.EINTR) {
			return
		}
		ts = rem
	}
}
