package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with optional fields so that a zero in the file
// can be told apart from an absent key.
type FileConfig struct {
	Home                string `toml:"home"`
	RegistryDir         string `toml:"registry_dir"`
	ControlDir          string `toml:"control_dir"`
	ProcessName         string `toml:"process_name"`
	MainThreadName      string `toml:"main_thread_name"`
	InboxName           string `toml:"inbox_name"`
	InboxLookupUsecs    *int   `toml:"inbox_wait_usecs"`
	IterationPauseUsecs *int   `toml:"pause_usecs"`
	TickSource          string `toml:"tick_source"`
	KernelTickRatio     *int   `toml:"tick_ratio"`
	Routine             string `toml:"routine"`
	RoutineCmd          string `toml:"routine_cmd"`
	FailOnError         *bool  `toml:"fail_on_error"`
	Debug               *bool  `toml:"debug"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultHome returns ~/.testvisor, or a directory under the system temp
// dir when the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".testvisor")
	}
	return filepath.Join(os.TempDir(), "testvisor")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultHome(), "config.toml")
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", fc.Home, &cfg.Home)
	s.setString("registry-dir", fc.RegistryDir, &cfg.RegistryDir)
	s.setString("control-dir", fc.ControlDir, &cfg.ControlDir)
	s.setString("process-name", fc.ProcessName, &cfg.ProcessName)
	s.setString("main-thread-name", fc.MainThreadName, &cfg.MainThreadName)
	s.setString("inbox-name", fc.InboxName, &cfg.InboxName)
	s.setString("tick-source", fc.TickSource, &cfg.TickSource)
	s.setString("routine", fc.Routine, &cfg.Routine)
	s.setString("routine-cmd", fc.RoutineCmd, &cfg.RoutineCmd)

	s.setInt("inbox-wait-usecs", fc.InboxLookupUsecs, &cfg.InboxLookupUsecs)
	s.setInt("pause-usecs", fc.IterationPauseUsecs, &cfg.IterationPauseUsecs)
	s.setInt("tick-ratio", fc.KernelTickRatio, &cfg.KernelTickRatio)

	s.setBool("fail-on-error", fc.FailOnError, &cfg.FailOnError)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
