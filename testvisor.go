// Package testvisor runs a test routine in a loop under a registered
// process name and tears the process down exactly once.
//
// Example usage:
//
//	cfg := testvisor.DefaultConfig()
//	cfg.Routine = "exec"
//	cfg.RoutineCmd = "/opt/kat/run --all"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := testvisor.Run(context.Background(), cfg, testvisor.Logger(os.Stderr, cfg)); err != nil {
//	    log.Fatal(err)
//	}
package testvisor

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/bft-labs/testvisor/internal/adapters/control"
	"github.com/bft-labs/testvisor/internal/adapters/fsdir"
	logAdapter "github.com/bft-labs/testvisor/internal/adapters/log"
	"github.com/bft-labs/testvisor/internal/adapters/memdir"
	"github.com/bft-labs/testvisor/internal/adapters/platform"
	"github.com/bft-labs/testvisor/internal/adapters/proc"
	"github.com/bft-labs/testvisor/internal/adapters/routine"
	"github.com/bft-labs/testvisor/internal/adapters/signals"
	"github.com/bft-labs/testvisor/internal/app"
	"github.com/bft-labs/testvisor/internal/cliconfig"
	"github.com/bft-labs/testvisor/internal/domain"
	"github.com/bft-labs/testvisor/internal/ports"
)

// Config holds the supervisor configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Logger returns a console logger on out honoring cfg.Debug.
func Logger(out io.Writer, cfg Config) zerolog.Logger {
	return logAdapter.NewConsoleLogger(out, cfg.Debug).With().Str("process", cfg.ProcessName).Logger()
}

// Instance is a wired supervisor.
type Instance struct {
	sup      *app.Supervisor
	closeAll func()
}

// New wires a supervisor from a validated cfg. Nothing is registered until
// Run.
func New(cfg Config, log zerolog.Logger) (*Instance, error) {
	logger := logAdapter.NewZerologAdapter(log)

	sigs := signals.New(signals.DefaultMapping())
	ctl, err := control.New(cfg.ControlDir, logger)
	if err != nil {
		sigs.Stop()
		return nil, err
	}
	closeAll := func() {
		ctl.Close()
		sigs.Stop()
	}

	deps := app.Dependencies{
		Root:     fsdir.New(cfg.RegistryDir, logger),
		Local:    memdir.New(),
		Objects:  proc.NewTable(),
		Platform: buildPlatform(cfg),
		// os.Exit skips deferred calls
		Exiter:  proc.NewExiter(closeAll),
		Routine: buildRoutine(cfg, logger),
		Sources: []ports.NotificationSource{sigs, ctl},
		Logger:  logger,
	}

	sup := app.New(appConfig(cfg), deps,
		app.WithReaction(domain.NotifyHostShutdownPending, func(_ context.Context, n domain.Notification) {
			logger.Warn("host shutdown pending, waiting for terminate", ports.String("source", n.Source))
		}),
		app.WithReaction(domain.NotifyKernelStopping, func(_ context.Context, n domain.Notification) {
			logger.Warn("kernel stopping", ports.String("source", n.Source))
		}),
	)
	return &Instance{sup: sup, closeAll: closeAll}, nil
}

// Run initializes the process and serves notifications. Teardown exits the
// process; Run only returns when ctx is done.
func (i *Instance) Run(ctx context.Context) error {
	return i.sup.Run(ctx)
}

// Close releases the notification sources.
func (i *Instance) Close() {
	i.closeAll()
}

// Run validates cfg, wires a supervisor and runs it.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	inst, err := New(cfg, log)
	if err != nil {
		return err
	}
	defer inst.Close()
	return inst.Run(ctx)
}

// appConfig converts the CLI configuration into supervisor settings.
func appConfig(cfg Config) app.Config {
	return app.Config{
		Names: app.Names{
			Process:    cfg.ProcessName,
			MainThread: cfg.MainThreadName,
			Inbox:      cfg.InboxName,
		},
		InboxLookupUsecs:    uint32(cfg.InboxLookupUsecs),
		IterationPauseUsecs: uint32(cfg.IterationPauseUsecs),
		FailOnRoutineError:  cfg.FailOnError,
		InboxDepth:          1,
	}
}

func buildPlatform(cfg Config) ports.Platform {
	if cfg.TickSource == cliconfig.TickHost {
		return platform.Host{}
	}
	return platform.Static{Ratio: uint32(cfg.KernelTickRatio)}
}

func buildRoutine(cfg Config, logger ports.Logger) ports.TestRoutine {
	if cfg.Routine == cliconfig.RoutineExec {
		path, args := cfg.RoutineArgv()
		return routine.NewExec(path, args, logger)
	}
	return routine.NewBuiltin(logger)
}
