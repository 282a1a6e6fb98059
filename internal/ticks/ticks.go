// Package ticks converts microsecond durations to scheduler ticks.
//
// Waits throughout testvisor are expressed in ticks of the platform's low
// level clock. A tick length is resolved once at startup; a zero length is a
// fatal configuration error.
package ticks

import (
	"fmt"
	"math"
	"time"

	"github.com/bft-labs/testvisor/internal/domain"
)

// WaitForever is the infinite-wait sentinel, valid both as a microsecond
// duration and as a tick count. It is never divided.
const WaitForever = math.MaxUint32

// NoWait asks a lookup to return immediately.
const NoWait Ticks = 0

// usecsPerKernelTick is the base period the kernel tick ratio divides.
const usecsPerKernelTick = 10000

// Ticks is a number of low level scheduler ticks.
type Ticks uint32

// Converter converts between microseconds, ticks and time.Duration.
type Converter struct {
	tickUsecs uint32
}

// NewConverter returns a Converter for a tick length in microseconds.
func NewConverter(tickUsecs uint32) (Converter, error) {
	if tickUsecs == 0 {
		return Converter{}, domain.ErrInvalidTickLength
	}
	return Converter{tickUsecs: tickUsecs}, nil
}

// FromKernelTickRatio derives the tick length from the number of low level
// ticks per 10ms kernel tick.
func FromKernelTickRatio(ratio uint32) (Converter, error) {
	if ratio == 0 {
		return Converter{}, fmt.Errorf("%w: kernel tick ratio is zero", domain.ErrInvalidTickLength)
	}
	c, err := NewConverter(usecsPerKernelTick / ratio)
	if err != nil {
		return Converter{}, fmt.Errorf("%w: kernel tick ratio %d", err, ratio)
	}
	return c, nil
}

// TickUsecs returns the tick length in microseconds.
func (c Converter) TickUsecs() uint32 {
	return c.tickUsecs
}

// ToTicks rounds usecs up to a whole number of ticks.
func (c Converter) ToTicks(usecs uint32) Ticks {
	if usecs == WaitForever {
		return WaitForever
	}
	n := (uint64(usecs) + uint64(c.tickUsecs) - 1) / uint64(c.tickUsecs)
	return Ticks(n)
}

// Duration converts t to a wait duration. WaitForever maps to a negative
// duration, which waiters treat as "no deadline".
func (c Converter) Duration(t Ticks) time.Duration {
	if t == WaitForever {
		return -1
	}
	return time.Duration(t) * time.Duration(c.tickUsecs) * time.Microsecond
}

// Wait is shorthand for Duration(ToTicks(usecs)).
func (c Converter) Wait(usecs uint32) time.Duration {
	return c.Duration(c.ToTicks(usecs))
}
