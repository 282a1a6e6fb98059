//go:build linux

package platform

import "golang.org/x/sys/unix"

func clockResolutionUsecs() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGetres(unix.CLOCK_MONOTONIC_COARSE, &ts); err != nil {
		return 0, err
	}
	return ts.Nano() / 1000, nil
}
