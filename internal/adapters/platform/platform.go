// Package platform reports the timing information the tick converter is
// derived from.
package platform

import "fmt"

// DefaultKernelTickRatio gives a 1ms low level tick.
const DefaultKernelTickRatio = 10

// Static reports a configured ratio.
type Static struct {
	Ratio uint32
}

// KernelTickRatio implements ports.Platform.
func (s Static) KernelTickRatio() (uint32, error) {
	return s.Ratio, nil
}

// Host derives the ratio from the resolution of the host's coarse clock.
type Host struct{}

// KernelTickRatio implements ports.Platform.
func (Host) KernelTickRatio() (uint32, error) {
	res, err := clockResolutionUsecs()
	if err != nil {
		return 0, fmt.Errorf("query clock resolution: %w", err)
	}
	if res == 0 {
		return 0, fmt.Errorf("clock resolution below one microsecond")
	}
	return uint32(usecsPerKernelTick / res), nil
}

const usecsPerKernelTick = 10000
