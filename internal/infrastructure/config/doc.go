// Package config provides 12-factor configuration for the triad.
//
// Configuration is loaded from environment variables with the device
// defaults. A YAML, TOML or JSON file named by TRIAD_CONFIG_FILE (or the
// -config flag) is decoded over the environment values, so keys present in
// the file win.
//
// Configuration Sections:
//   - Channel: capacity of the bounded channel
//   - Generator, Receiver, Supervisor: task timing plus priority, core and stack
//   - Scheduler: terminate timeout
//   - Watchdog: task watchdog timeout and check interval
//   - Memory: heap budget
//   - Device: exit code that asks the process manager for a restart
//   - Diagnostics: optional HTTP server and its rate limit
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Supervisor.Period)
package config
