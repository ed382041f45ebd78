//go:build !linux

package vout

import "time"

// platformSleep falls back to time.Sleep on platforms without a direct
// nanosleep syscall binding.
func platformSleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
