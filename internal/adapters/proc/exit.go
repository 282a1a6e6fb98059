package proc

import "os"

// Exiter terminates the process with os.Exit after running the registered
// flush hooks.
type Exiter struct {
	flush []func()
	exit  func(int)
}

// NewExiter creates an Exiter that runs flush before exiting.
func NewExiter(flush ...func()) *Exiter {
	return &Exiter{flush: flush, exit: os.Exit}
}

// Exit implements ports.Exiter. It does not return.
func (e *Exiter) Exit(code int) {
	for _, f := range e.flush {
		f()
	}
	e.exit(code)
}
