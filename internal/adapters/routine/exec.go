package routine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"

	"github.com/bft-labs/testvisor/internal/ports"
)

// StartFailure is returned when the program cannot be started.
const StartFailure = 127

// Exec runs an external program once per iteration and reports its exit
// status.
type Exec struct {
	path   string
	args   []string
	logger ports.Logger
}

// NewExec creates a routine running path with args.
func NewExec(path string, args []string, logger ports.Logger) *Exec {
	return &Exec{path: path, args: args, logger: logger}
}

// Name implements ports.TestRoutine.
func (e *Exec) Name() string {
	return filepath.Base(e.path)
}

// Run implements ports.TestRoutine. A run interrupted by ctx reports zero.
func (e *Exec) Run(ctx context.Context) int {
	cmd := exec.CommandContext(ctx, e.path, e.args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	e.logOutput(&out)

	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	e.logger.Error("cannot run test program", ports.String("path", e.path), ports.Err(err))
	return StartFailure
}

func (e *Exec) logOutput(out *bytes.Buffer) {
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		e.logger.Debug(sc.Text(), ports.String("routine", e.Name()))
	}
}
