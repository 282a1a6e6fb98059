package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (TESTVISOR_*). Flags that were set explicitly keep their value.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", os.Getenv("TESTVISOR_HOME"), &cfg.Home)
	s.setString("registry-dir", os.Getenv("TESTVISOR_REGISTRY_DIR"), &cfg.RegistryDir)
	s.setString("control-dir", os.Getenv("TESTVISOR_CONTROL_DIR"), &cfg.ControlDir)
	s.setString("process-name", os.Getenv("TESTVISOR_PROCESS_NAME"), &cfg.ProcessName)
	s.setString("main-thread-name", os.Getenv("TESTVISOR_MAIN_THREAD_NAME"), &cfg.MainThreadName)
	s.setString("inbox-name", os.Getenv("TESTVISOR_INBOX_NAME"), &cfg.InboxName)
	s.setString("tick-source", os.Getenv("TESTVISOR_TICK_SOURCE"), &cfg.TickSource)
	s.setString("routine", os.Getenv("TESTVISOR_ROUTINE"), &cfg.Routine)
	s.setString("routine-cmd", os.Getenv("TESTVISOR_ROUTINE_CMD"), &cfg.RoutineCmd)

	if err := s.setIntFromString("inbox-wait-usecs", os.Getenv("TESTVISOR_INBOX_WAIT_USECS"), &cfg.InboxLookupUsecs); err != nil {
		return err
	}
	if err := s.setIntFromString("pause-usecs", os.Getenv("TESTVISOR_PAUSE_USECS"), &cfg.IterationPauseUsecs); err != nil {
		return err
	}
	if err := s.setIntFromString("tick-ratio", os.Getenv("TESTVISOR_TICK_RATIO"), &cfg.KernelTickRatio); err != nil {
		return err
	}

	s.setBoolFromString("fail-on-error", os.Getenv("TESTVISOR_FAIL_ON_ERROR"), &cfg.FailOnError)
	s.setBoolFromString("debug", os.Getenv("TESTVISOR_DEBUG"), &cfg.Debug)

	return nil
}
