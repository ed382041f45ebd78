//go:build linux

package vout

import (
	"time"

	"golang.org/x/sys/unix"
)

// platformSleep sleeps for d using unix.Nanosleep, restarting on EINTR,
// for the sub-millisecond precision mwait wants on the final approach to
// a display deadline (spec §4.6 step 6).
func platformSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	for {
		rem := unix.Timespec{}
		err := unix.Nanosleep(&ts, &rem)
		if err == nil {
			return
		}
		if err == unix.EINTR {
			ts = rem
			continue
		}
		return
	}
}
