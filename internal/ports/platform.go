package ports

// Platform reports platform timing information.
type Platform interface {
	// KernelTickRatio returns the number of low level ticks per 10ms
	// kernel tick.
	KernelTickRatio() (uint32, error)
}

// Exiter terminates the process. Exit does not return.
type Exiter interface {
	Exit(code int)
}
