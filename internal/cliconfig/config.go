package cliconfig

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bft-labs/testvisor/internal/domain"
)

// Routine kinds.
const (
	RoutineBuiltin = "builtin"
	RoutineExec    = "exec"
)

// Tick sources.
const (
	TickStatic = "static"
	TickHost   = "host"
)

// Config holds CLI configuration for testvisor.
type Config struct {
	Home        string
	RegistryDir string
	ControlDir  string

	ProcessName    string
	MainThreadName string
	InboxName      string

	InboxLookupUsecs    int
	IterationPauseUsecs int

	TickSource      string
	KernelTickRatio int

	Routine     string
	RoutineCmd  string
	FailOnError bool
	Debug       bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Home:             DefaultHome(),
		ProcessName:      "testvisor",
		MainThreadName:   "TMain",
		InboxName:        "R?EXIT_MBOX",
		InboxLookupUsecs: 5_000_000,
		TickSource:       TickStatic,
		KernelTickRatio:  10,
		Routine:          RoutineBuiltin,
		FailOnError:      true,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Home == "" {
		return invalid("home is required")
	}
	if c.RegistryDir == "" {
		c.RegistryDir = filepath.Join(c.Home, "registry")
	}

	for flag, name := range map[string]string{
		"process-name":     c.ProcessName,
		"main-thread-name": c.MainThreadName,
		"inbox-name":       c.InboxName,
	} {
		if err := domain.ValidateName(name); err != nil {
			return invalid("%s: %v", flag, err)
		}
	}

	// control files are per instance
	if c.ControlDir == "" {
		if strings.ContainsAny(c.ProcessName, `/\`) || c.ProcessName == "." || c.ProcessName == ".." {
			return invalid("process-name %q cannot name a control dir; set control-dir", c.ProcessName)
		}
		c.ControlDir = filepath.Join(c.Home, "control", c.ProcessName)
	}

	if c.InboxLookupUsecs < 0 || int64(c.InboxLookupUsecs) > math.MaxUint32 {
		return invalid("inbox-wait-usecs out of range: %d", c.InboxLookupUsecs)
	}
	if c.IterationPauseUsecs < 0 || int64(c.IterationPauseUsecs) > math.MaxUint32 {
		return invalid("pause-usecs out of range: %d", c.IterationPauseUsecs)
	}

	switch c.TickSource {
	case TickStatic:
		if c.KernelTickRatio <= 0 {
			return invalid("tick-ratio must be positive")
		}
	case TickHost:
	default:
		return invalid("tick-source must be %q or %q, got %q", TickStatic, TickHost, c.TickSource)
	}

	switch c.Routine {
	case RoutineBuiltin:
	case RoutineExec:
		if strings.TrimSpace(c.RoutineCmd) == "" {
			return invalid("routine-cmd is required for the exec routine")
		}
	default:
		return invalid("routine must be %q or %q, got %q", RoutineBuiltin, RoutineExec, c.Routine)
	}

	return nil
}

// RoutineArgv splits RoutineCmd into a program and its arguments.
func (c Config) RoutineArgv() (string, []string) {
	fields := strings.Fields(c.RoutineCmd)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if set and flag not changed. Zero is a valid
// value for the settings it is used with, so a pointer marks presence.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
