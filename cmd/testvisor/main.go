package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/testvisor"
	logAdapter "github.com/bft-labs/testvisor/internal/adapters/log"
	"github.com/bft-labs/testvisor/internal/cliconfig"
)

const longHelp = `Run a test routine in a loop under a registered process name.

testvisor catalogs itself in a shared registry, starts a worker that invokes
the test routine until it fails, and tears down exactly once when a terminate
notification arrives or any thread reports a fatal error.

Notifications come from signals (SIGINT/SIGTERM terminate, SIGHUP announces a
host shutdown) and from files dropped into the control directory with
"testvisor notify".`

var exampleUsage = strings.TrimSpace(`
  testvisor --routine exec --routine-cmd "/opt/kat/run --all"
  testvisor notify terminate
  testvisor names --prune
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log := logAdapter.NewConsoleLogger(os.Stderr, false)
		log.Error().Err(err).Msg("testvisor")
		os.Exit(1)
	}
}

// options are the values shared by every subcommand.
type options struct {
	cfg     cliconfig.Config
	cfgPath string
}

func newRootCommand() *cobra.Command {
	opts := &options{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "testvisor",
		Short:         "Supervise a looping test routine under a registered name",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd, opts)
		},
	}

	bindFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the supervisor (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSupervisor(cmd, opts)
			},
		},
		newNotifyCommand(opts),
		newNamesCommand(opts),
	)
	return root
}

func bindFlags(fs *pflag.FlagSet, opts *options) {
	cfg := &opts.cfg
	fs.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $HOME/.testvisor/config.toml)")
	fs.StringVar(&cfg.Home, "home", cfg.Home, "state directory")
	fs.StringVar(&cfg.RegistryDir, "registry-dir", cfg.RegistryDir, "shared name registry (default: <home>/registry)")
	fs.StringVar(&cfg.ControlDir, "control-dir", cfg.ControlDir, "control directory (default: <home>/control/<process-name>)")

	fs.StringVar(&cfg.ProcessName, "process-name", cfg.ProcessName, "process name in the root scope")
	fs.StringVar(&cfg.MainThreadName, "main-thread-name", cfg.MainThreadName, "main thread name in the process scope")
	fs.StringVar(&cfg.InboxName, "inbox-name", cfg.InboxName, "termination inbox name in the process scope")

	fs.IntVar(&cfg.InboxLookupUsecs, "inbox-wait-usecs", cfg.InboxLookupUsecs, "how long a failing worker waits for the termination inbox")
	fs.IntVar(&cfg.IterationPauseUsecs, "pause-usecs", cfg.IterationPauseUsecs, "pause between test iterations")
	fs.StringVar(&cfg.TickSource, "tick-source", cfg.TickSource, `tick length source: "static" or "host"`)
	fs.IntVar(&cfg.KernelTickRatio, "tick-ratio", cfg.KernelTickRatio, "low level ticks per 10ms kernel tick (static tick source)")

	fs.StringVar(&cfg.Routine, "routine", cfg.Routine, `test routine: "builtin" or "exec"`)
	fs.StringVar(&cfg.RoutineCmd, "routine-cmd", cfg.RoutineCmd, "program and arguments for the exec routine")
	fs.BoolVar(&cfg.FailOnError, "fail-on-error", cfg.FailOnError, "tear down when the routine fails")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
}

// loadConfig layers the config file and TESTVISOR_* variables under the
// flags that were set explicitly, then validates.
func loadConfig(cmd *cobra.Command, opts *options) (cliconfig.Config, error) {
	cfg := opts.cfg

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := opts.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	} else if opts.cfgPath != "" {
		return cfg, fmt.Errorf("config file %s not found", opts.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runSupervisor(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log := testvisor.Logger(cmd.ErrOrStderr(), cfg)
	log.Info().Interface("config", cfg).Msg("configuration")

	return testvisor.Run(context.Background(), cfg, log)
}
